package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"teachme/internal/models"
	"teachme/internal/repository"
	"teachme/internal/security"
	"teachme/internal/validation"
)

const resetTokenTTL = time.Hour

var (
	ErrEmailTaken         = repository.ErrEmailTaken
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrProviderConflict   = fmt.Errorf("email is linked to another sign-in provider: %w", repository.ErrEmailTaken)
)

// ProfileUpdate carries the profile fields a user may change
type ProfileUpdate struct {
	Name               *string `json:"name,omitempty"`
	OnboardingComplete *bool   `json:"onboardingComplete,omitempty"`
}

// AuthService handles authentication business logic
type AuthService struct {
	userRepo        *repository.UserRepository
	mailer          Mailer
	sessionDuration time.Duration
}

// NewAuthService creates a new auth service. mailer may be nil.
func NewAuthService(userRepo *repository.UserRepository, mailer Mailer, sessionDuration time.Duration) *AuthService {
	return &AuthService{
		userRepo:        userRepo,
		mailer:          mailer,
		sessionDuration: sessionDuration,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new email/password account of the given role
func (s *AuthService) Register(ctx context.Context, email, password, name string, role models.Role) (*models.User, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}
	if err := validation.ValidateName(name); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, validation.ValidationError{Field: "role", Message: "role must be parent or teacher"}
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := newUser(role, email, name, models.ProviderEmail)
	user.PasswordHash = passwordHash
	user.ProfileCompleted = true
	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.sendWelcome(ctx, user)
	return user, nil
}

// Login authenticates a user and creates a session
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Session, *models.User, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.IsActive || !security.CheckPassword(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	return s.startSession(ctx, user)
}

// OAuthLogin signs in with a federated identity. An unknown identity is
// linked to the account with the same email, or a new parent account is
// created for it.
func (s *AuthService) OAuthLogin(ctx context.Context, provider models.Provider, subject, email, name string) (*models.Session, *models.User, error) {
	if provider == "" || provider == models.ProviderEmail || subject == "" {
		return nil, nil, errors.New("missing oauth provider information")
	}
	email = normalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.GetUserByOAuth(ctx, provider, subject)
	if err == nil {
		return s.startSession(ctx, user)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to lookup oauth user: %w", err)
	}

	existing, err := s.userRepo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Provider != models.ProviderEmail && existing.Provider != provider {
			return nil, nil, ErrProviderConflict
		}
		if err := s.userRepo.LinkOAuthProvider(ctx, existing.ID, provider, subject); err != nil {
			return nil, nil, fmt.Errorf("failed to link oauth provider: %w", err)
		}
		existing.Provider = provider
		existing.OAuthSubject = subject
		return s.startSession(ctx, existing)
	case !errors.Is(err, models.ErrNotFound):
		return nil, nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.Split(email, "@")[0]
	}
	user = newUser(models.RoleParent, email, name, provider)
	user.OAuthSubject = subject
	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("failed to create oauth user: %w", err)
	}
	s.sendWelcome(ctx, user)

	return s.startSession(ctx, user)
}

func newUser(role models.Role, email, name string, provider models.Provider) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:        uuid.NewString(),
		Role:      role,
		Name:      name,
		Email:     email,
		Provider:  provider,
		IsActive:  true,
		Settings:  models.DefaultSettings(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *AuthService) sendWelcome(ctx context.Context, user *models.User) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendWelcomeEmail(ctx, user.Email, user.Name); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to send welcome email")
	}
}

func (s *AuthService) startSession(ctx context.Context, user *models.User) (*models.Session, *models.User, error) {
	now := time.Now().UTC()
	session := &models.Session{
		ID:        security.GenerateSessionID(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.sessionDuration),
		CreatedAt: now,
	}
	if err := s.userRepo.CreateSession(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, nil, fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLogin = &now

	return session, user, nil
}

// ValidateSession checks if a session is valid and returns the associated user
func (s *AuthService) ValidateSession(ctx context.Context, sessionID string) (*models.User, error) {
	session, err := s.userRepo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.IsExpired() {
		_ = s.userRepo.DeleteSession(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	return s.userRepo.GetUserByID(ctx, session.UserID)
}

// Logout invalidates a session
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.userRepo.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// CleanupExpiredSessions removes expired sessions and reset tokens
func (s *AuthService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	n, err := s.userRepo.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup sessions: %w", err)
	}
	if err := s.userRepo.DeleteExpiredResetTokens(ctx, now); err != nil {
		return n, fmt.Errorf("failed to cleanup reset tokens: %w", err)
	}
	return n, nil
}

// RequestPasswordReset creates a password reset token and emails it. An
// unknown or federated-only address is not an error so that the response
// does not reveal which emails are registered.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userRepo.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.PasswordHash == "" {
		return nil
	}

	token, err := security.GenerateSecureToken(32)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	_ = s.userRepo.DeleteUserResetTokens(ctx, user.ID)

	now := time.Now().UTC()
	if err := s.userRepo.CreateResetToken(ctx, &models.PasswordResetToken{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: now.Add(resetTokenTTL),
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}

	if s.mailer != nil {
		if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, user.Name, token); err != nil {
			return fmt.Errorf("failed to send reset email: %w", err)
		}
	}
	return nil
}

// ResetPassword sets a new password using a reset token. Every session of
// the user is revoked.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	resetToken, err := s.userRepo.GetResetToken(ctx, token)
	if errors.Is(err, models.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("failed to get reset token: %w", err)
	}
	if resetToken.Used || resetToken.IsExpired() {
		return ErrInvalidResetToken
	}

	if err := validation.ValidatePassword(newPassword); err != nil {
		return err
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, resetToken.UserID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.userRepo.MarkResetTokenUsed(ctx, token); err != nil {
		return fmt.Errorf("failed to mark token as used: %w", err)
	}
	if err := s.userRepo.DeleteUserSessions(ctx, resetToken.UserID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}

// UpdateProfile changes the user's name and onboarding flag
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.User, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if err := validation.ValidateName(name); err != nil {
			return nil, err
		}
		if err := s.userRepo.UpdateName(ctx, userID, name); err != nil {
			return nil, err
		}
	}
	if upd.OnboardingComplete != nil && *upd.OnboardingComplete {
		if err := s.userRepo.CompleteOnboarding(ctx, userID); err != nil {
			return nil, err
		}
	}
	return s.userRepo.GetUserByID(ctx, userID)
}

// UpdateSettings merges the supplied settings into the user's settings
func (s *AuthService) UpdateSettings(ctx context.Context, userID string, upd models.SettingsUpdate) (*models.Settings, error) {
	if upd.Language != nil {
		if err := validation.ValidateLanguage(*upd.Language); err != nil {
			return nil, err
		}
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	settings := upd.Apply(user.Settings)
	if err := s.userRepo.UpdateSettings(ctx, userID, settings); err != nil {
		return nil, err
	}
	return &settings, nil
}
