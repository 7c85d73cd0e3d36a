package models

import "time"

// Subject is one of the learning areas a child progresses through
type Subject string

const (
	SubjectMath    Subject = "math"
	SubjectScience Subject = "science"
	SubjectEnglish Subject = "english"
)

// Subjects lists every subject in display order
var Subjects = []Subject{SubjectMath, SubjectScience, SubjectEnglish}

// ParseSubject returns the Subject named by s
func ParseSubject(s string) (Subject, bool) {
	for _, subject := range Subjects {
		if string(subject) == s {
			return subject, true
		}
	}
	return "", false
}

// SubjectProgress is the level/star counter for one subject
type SubjectProgress struct {
	Level int `json:"level"`
	Stars int `json:"stars"`
}

// Progress maps each subject a child has started to its counters.
// A subject absent from the map has not been recorded yet.
type Progress map[Subject]SubjectProgress

// NewProgress returns the progress record every new child starts with
func NewProgress() Progress {
	p := make(Progress, len(Subjects))
	for _, subject := range Subjects {
		p[subject] = SubjectProgress{Level: 1, Stars: 0}
	}
	return p
}

// Clone returns an independent copy of p
func (p Progress) Clone() Progress {
	out := make(Progress, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Child represents a child profile owned by a parent
type Child struct {
	ID        string     `json:"uid"`
	ParentID  string     `json:"parentId"`
	Name      string     `json:"name"`
	Grade     int        `json:"grade"`
	PIN       string     `json:"pin"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
	IsActive  bool       `json:"isActive"`
	Progress  Progress   `json:"progress"`
	Rewards   []string   `json:"rewards"`
	ClassIDs  []string   `json:"classIds,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	UpdatedAt time.Time  `json:"-"`
}

// ChildUpdate carries the fields of a partial child update; nil fields are
// left untouched.
type ChildUpdate struct {
	Name      *string    `json:"name,omitempty"`
	Grade     *int       `json:"grade,omitempty"`
	AvatarURL *string    `json:"avatarUrl,omitempty"`
	IsActive  *bool      `json:"isActive,omitempty"`
	PIN       *string    `json:"-"`
	LastLogin *time.Time `json:"-"`
}

// IsEmpty reports whether the update changes nothing
func (u ChildUpdate) IsEmpty() bool {
	return u.Name == nil && u.Grade == nil && u.AvatarURL == nil &&
		u.IsActive == nil && u.PIN == nil && u.LastLogin == nil
}

// KidSession represents a child's join-code login
type KidSession struct {
	ID        string
	ChildID   string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the kid session has expired
func (s *KidSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// ChildDashboard is the summary shown on a child's landing screen
type ChildDashboard struct {
	Child      *Child `json:"child"`
	Level      int    `json:"level"`
	TotalStars int    `json:"totalStars"`
}
