package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"teachme/internal/database"
	"teachme/internal/models"
)

// UserRepository handles database operations for users, sessions and
// password reset tokens
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new user repository
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *UserRepository) WithTx(tx *database.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

const userColumns = `id, role, name, email, provider, password_hash, oauth_subject, avatar_url,
	onboarding_complete, profile_completed, is_active, language, dark_mode, text_to_speech,
	color_contrast, created_at, last_login, updated_at`

// CreateUser inserts a new user. The role must be parent or teacher.
func (r *UserRepository) CreateUser(ctx context.Context, u *models.User) error {
	if !u.Role.Valid() {
		return fmt.Errorf("invalid role %q", u.Role)
	}

	query := `
		INSERT INTO users (id, role, name, email, provider, password_hash, oauth_subject, avatar_url,
			onboarding_complete, profile_completed, is_active, language, dark_mode, text_to_speech,
			color_contrast, created_at, last_login, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		u.ID, string(u.Role), u.Name, u.Email, string(u.Provider), u.PasswordHash, u.OAuthSubject, u.AvatarURL,
		u.OnboardingComplete, u.ProfileCompleted, u.IsActive,
		u.Settings.Language, u.Settings.DarkMode, u.Settings.TextToSpeech, u.Settings.ColorContrast,
		u.CreatedAt, nullTime(u.LastLogin), u.UpdatedAt,
	)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return wrapErr("create user", err)
	}
	return nil
}

// GetUserByID retrieves a user and the ids of their children
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, "id = ?", id)
}

// GetUserByEmail retrieves a user by email address
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, "email = ?", email)
}

// GetUserByOAuth retrieves a user linked to a federated identity
func (r *UserRepository) GetUserByOAuth(ctx context.Context, provider models.Provider, subject string) (*models.User, error) {
	return r.getUser(ctx, "provider = ? AND oauth_subject = ?", string(provider), subject)
}

func (r *UserRepository) getUser(ctx context.Context, where string, args ...any) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE " + where
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, wrapErr("get user", err)
	}

	user.ChildrenIDs, err = r.childIDs(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// childIDs lists the children owned by a user, oldest first
func (r *UserRepository) childIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM children WHERE parent_id = ? ORDER BY created_at ASC, id ASC", userID)
	if err != nil {
		return nil, wrapErr("list child ids", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("scan child id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListUsers returns every user ordered by creation time
func (r *UserRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, wrapErr("list users", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, wrapErr("scan user", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list users", err)
	}

	for i := range users {
		if users[i].ChildrenIDs, err = r.childIDs(ctx, users[i].ID); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// UpdateLastLogin stamps a successful sign-in
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "update last login", "UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?", at, at, id)
}

// UpdateName changes the display name and marks the profile completed
func (r *UserRepository) UpdateName(ctx context.Context, id, name string) error {
	return r.exec(ctx, "update user",
		"UPDATE users SET name = ?, profile_completed = ?, updated_at = ? WHERE id = ?", name, true, time.Now().UTC(), id)
}

// UpdateSettings replaces the stored settings
func (r *UserRepository) UpdateSettings(ctx context.Context, id string, s models.Settings) error {
	return r.exec(ctx, "update settings", `
		UPDATE users SET language = ?, dark_mode = ?, text_to_speech = ?, color_contrast = ?, updated_at = ?
		WHERE id = ?`,
		s.Language, s.DarkMode, s.TextToSpeech, s.ColorContrast, time.Now().UTC(), id)
}

// UpdatePassword stores a new password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.exec(ctx, "update password",
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?", passwordHash, time.Now().UTC(), id)
}

// LinkOAuthProvider attaches a federated identity to an existing user
func (r *UserRepository) LinkOAuthProvider(ctx context.Context, id string, provider models.Provider, subject string) error {
	return r.exec(ctx, "link oauth provider",
		"UPDATE users SET provider = ?, oauth_subject = ?, updated_at = ? WHERE id = ?", string(provider), subject, time.Now().UTC(), id)
}

// CompleteOnboarding marks the onboarding flow finished
func (r *UserRepository) CompleteOnboarding(ctx context.Context, id string) error {
	return r.exec(ctx, "complete onboarding",
		"UPDATE users SET onboarding_complete = ?, updated_at = ? WHERE id = ?", true, time.Now().UTC(), id)
}

func (r *UserRepository) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapErr(op, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateSession creates a new session for a user
func (r *UserRepository) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		s.ID, s.UserID, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return wrapErr("create session", err)
	}
	return nil
}

// GetSession retrieves a session by ID
func (r *UserRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s := &models.Session{}
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = ?", id,
	).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, wrapErr("get session", err)
	}
	return s, nil
}

// DeleteSession removes a session
func (r *UserRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return wrapErr("delete session", err)
	}
	return nil
}

// DeleteUserSessions removes every session of a user
func (r *UserRepository) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID); err != nil {
		return wrapErr("delete user sessions", err)
	}
	return nil
}

// DeleteExpiredResetTokens removes reset tokens that expired before now
func (r *UserRepository) DeleteExpiredResetTokens(ctx context.Context, now time.Time) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM password_reset_tokens WHERE expires_at < ?", now); err != nil {
		return wrapErr("delete expired reset tokens", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before now
func (r *UserRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", now)
	if err != nil {
		return 0, wrapErr("delete expired sessions", err)
	}
	return result.RowsAffected()
}

// CreateResetToken stores a password reset token
func (r *UserRepository) CreateResetToken(ctx context.Context, t *models.PasswordResetToken) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO password_reset_tokens (token, user_id, expires_at, created_at, used) VALUES (?, ?, ?, ?, ?)",
		t.Token, t.UserID, t.ExpiresAt, t.CreatedAt, t.Used)
	if err != nil {
		return wrapErr("create reset token", err)
	}
	return nil
}

// GetResetToken retrieves a password reset token
func (r *UserRepository) GetResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	t := &models.PasswordResetToken{}
	err := r.db.QueryRowContext(ctx,
		"SELECT token, user_id, expires_at, created_at, used FROM password_reset_tokens WHERE token = ?", token,
	).Scan(&t.Token, &t.UserID, &t.ExpiresAt, &t.CreatedAt, &t.Used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResetTokenNotFound
	}
	if err != nil {
		return nil, wrapErr("get reset token", err)
	}
	return t, nil
}

// DeleteUserResetTokens removes every reset token of a user
func (r *UserRepository) DeleteUserResetTokens(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM password_reset_tokens WHERE user_id = ?", userID); err != nil {
		return wrapErr("delete user reset tokens", err)
	}
	return nil
}

// MarkResetTokenUsed consumes a reset token
func (r *UserRepository) MarkResetTokenUsed(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE password_reset_tokens SET used = ? WHERE token = ?", true, token); err != nil {
		return wrapErr("mark reset token used", err)
	}
	return nil
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var lastLogin sql.NullTime
	err := row.Scan(
		&u.ID,
		&u.Role,
		&u.Name,
		&u.Email,
		&u.Provider,
		&u.PasswordHash,
		&u.OAuthSubject,
		&u.AvatarURL,
		&u.OnboardingComplete,
		&u.ProfileCompleted,
		&u.IsActive,
		&u.Settings.Language,
		&u.Settings.DarkMode,
		&u.Settings.TextToSpeech,
		&u.Settings.ColorContrast,
		&u.CreatedAt,
		&lastLogin,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.LastLogin = timePtr(lastLogin)
	return u, nil
}
