package models

import (
	"slices"
	"time"
)

// Role tags the variant of a UserProfile.
type Role string

const (
	RoleParent  Role = "parent"
	RoleTeacher Role = "teacher"
)

// Valid reports whether r is one of the known profile variants
func (r Role) Valid() bool {
	return r == RoleParent || r == RoleTeacher
}

// Provider identifies how a user authenticates
type Provider string

const (
	ProviderEmail    Provider = "email"
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
	ProviderApple    Provider = "apple"
)

// Settings holds per-user application preferences
type Settings struct {
	Language      string `json:"language"`
	DarkMode      bool   `json:"darkMode"`
	TextToSpeech  bool   `json:"textToSpeech"`
	ColorContrast bool   `json:"colorContrast"`
}

// DefaultSettings returns the settings a new profile starts with
func DefaultSettings() Settings {
	return Settings{Language: "en"}
}

// SettingsUpdate carries only the settings fields a caller wants changed
type SettingsUpdate struct {
	Language      *string `json:"language,omitempty"`
	DarkMode      *bool   `json:"darkMode,omitempty"`
	TextToSpeech  *bool   `json:"textToSpeech,omitempty"`
	ColorContrast *bool   `json:"colorContrast,omitempty"`
}

// Apply merges the supplied fields into s
func (u SettingsUpdate) Apply(s Settings) Settings {
	if u.Language != nil {
		s.Language = *u.Language
	}
	if u.DarkMode != nil {
		s.DarkMode = *u.DarkMode
	}
	if u.TextToSpeech != nil {
		s.TextToSpeech = *u.TextToSpeech
	}
	if u.ColorContrast != nil {
		s.ColorContrast = *u.ColorContrast
	}
	return s
}

// User represents a parent or teacher account.
//
// ChildrenIDs is populated for parents only and is derived from the
// children owned by the account rather than stored separately.
type User struct {
	ID                 string     `json:"uid"`
	Role               Role       `json:"type"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Provider           Provider   `json:"provider"`
	PasswordHash       string     `json:"-"`
	OAuthSubject       string     `json:"-"`
	AvatarURL          string     `json:"avatarUrl,omitempty"`
	OnboardingComplete bool       `json:"onboardingComplete"`
	ProfileCompleted   bool       `json:"profileCompleted"`
	IsActive           bool       `json:"isActive"`
	Settings           Settings   `json:"settings"`
	ChildrenIDs        []string   `json:"childrenIds,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	LastLogin          *time.Time `json:"lastLogin,omitempty"`
	UpdatedAt          time.Time  `json:"-"`
}

// IsParent reports whether the profile is the parent variant
func (u *User) IsParent() bool {
	return u.Role == RoleParent
}

// IsTeacher reports whether the profile is the teacher variant
func (u *User) IsTeacher() bool {
	return u.Role == RoleTeacher
}

// OwnsChild reports whether childID is one of the user's children
func (u *User) OwnsChild(childID string) bool {
	return slices.Contains(u.ChildrenIDs, childID)
}

// Session represents an authenticated session
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// PasswordResetToken represents a token for password reset
type PasswordResetToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	Used      bool
}

// IsExpired checks if the reset token has expired
func (t *PasswordResetToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}
