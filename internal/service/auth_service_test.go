package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teachme/internal/models"
	"teachme/internal/repository"
	"teachme/internal/validation"
)

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		fullName string
		role     models.Role
		field    string
	}{
		{"bad email", "not-an-email", "Passw0rd!", "Pat", models.RoleParent, "email"},
		{"short password", "a@example.com", "Pw0", "Pat", models.RoleParent, "password"},
		{"weak password", "a@example.com", "password1", "Pat", models.RoleParent, "password"},
		{"short name", "a@example.com", "Passw0rd!", "P", models.RoleParent, "name"},
		{"unknown role", "a@example.com", "Passw0rd!", "Pat", models.Role("admin"), "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Register(ctx, tt.email, tt.password, tt.fullName, tt.role)
			var verr validation.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.Register(ctx, "  Pat@Example.com ", "Passw0rd!", "Pat Parent", models.RoleParent)
	require.NoError(t, err)
	assert.Equal(t, "pat@example.com", user.Email)
	assert.Equal(t, models.ProviderEmail, user.Provider)
	assert.Equal(t, "en", user.Settings.Language)

	welcome, ok := env.mailer.last("welcome")
	require.True(t, ok)
	assert.Equal(t, "pat@example.com", welcome.to)

	_, err = env.auth.Register(ctx, "pat@example.com", "Passw0rd!", "Other", models.RoleTeacher)
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, _, err = env.auth.Login(ctx, "pat@example.com", "wrong-Passw0rd")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = env.auth.Login(ctx, "nobody@example.com", "Passw0rd!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	session, loggedIn, err := env.auth.Login(ctx, "PAT@example.com", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.NotNil(t, loggedIn.LastLogin)

	got, err := env.auth.ValidateSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, models.RoleParent, got.Role)

	require.NoError(t, env.auth.Logout(ctx, session.ID))
	_, err = env.auth.ValidateSession(ctx, session.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "pat@example.com", models.RoleParent)

	shortLived := NewAuthService(repository.NewUserRepository(env.db), nil, -time.Minute)
	session, _, err := shortLived.Login(ctx, "pat@example.com", "Passw0rd!")
	require.NoError(t, err)

	_, err = shortLived.ValidateSession(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, _, err = shortLived.Login(ctx, "pat@example.com", "Passw0rd!")
	require.NoError(t, err)
	n, err := shortLived.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOAuthLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("creates a parent account", func(t *testing.T) {
		_, user, err := env.auth.OAuthLogin(ctx, models.ProviderGoogle, "g-123", "new@example.com", "")
		require.NoError(t, err)
		assert.Equal(t, models.RoleParent, user.Role)
		assert.Equal(t, "new", user.Name)
		assert.Equal(t, models.ProviderGoogle, user.Provider)

		_, again, err := env.auth.OAuthLogin(ctx, models.ProviderGoogle, "g-123", "new@example.com", "New")
		require.NoError(t, err)
		assert.Equal(t, user.ID, again.ID)
		assert.Equal(t, "new", again.Name)
	})

	t.Run("links an email account", func(t *testing.T) {
		existing := env.register(t, "linked@example.com", models.RoleTeacher)
		_, user, err := env.auth.OAuthLogin(ctx, models.ProviderApple, "a-1", "linked@example.com", "Linked")
		require.NoError(t, err)
		assert.Equal(t, existing.ID, user.ID)
		assert.Equal(t, models.RoleTeacher, user.Role)

		_, _, err = env.auth.OAuthLogin(ctx, models.ProviderFacebook, "f-1", "linked@example.com", "Linked")
		assert.ErrorIs(t, err, ErrProviderConflict)
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("rejects missing identity", func(t *testing.T) {
		_, _, err := env.auth.OAuthLogin(ctx, models.ProviderGoogle, "", "x@example.com", "")
		assert.Error(t, err)
	})
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "pat@example.com", models.RoleParent)

	session, _, err := env.auth.Login(ctx, "pat@example.com", "Passw0rd!")
	require.NoError(t, err)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "nobody@example.com"))
	_, sent := env.mailer.last("reset")
	assert.False(t, sent)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "pat@example.com"))
	reset, ok := env.mailer.last("reset")
	require.True(t, ok)
	assert.Equal(t, user.Email, reset.to)

	var verr validation.ValidationError
	require.ErrorAs(t, env.auth.ResetPassword(ctx, reset.detail, "weak"), &verr)

	require.NoError(t, env.auth.ResetPassword(ctx, reset.detail, "N3wPassword"))
	assert.ErrorIs(t, env.auth.ResetPassword(ctx, reset.detail, "An0therOne"), ErrInvalidResetToken)
	assert.ErrorIs(t, env.auth.ResetPassword(ctx, "bogus", "An0therOne"), ErrInvalidResetToken)

	_, err = env.auth.ValidateSession(ctx, session.ID)
	assert.ErrorIs(t, err, models.ErrNotFound, "sessions are revoked after a reset")

	_, _, err = env.auth.Login(ctx, "pat@example.com", "Passw0rd!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = env.auth.Login(ctx, "pat@example.com", "N3wPassword")
	assert.NoError(t, err)
}

func TestUpdateProfileAndSettings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "pat@example.com", models.RoleParent)

	name := "Patricia"
	done := true
	updated, err := env.auth.UpdateProfile(ctx, user.ID, ProfileUpdate{Name: &name, OnboardingComplete: &done})
	require.NoError(t, err)
	assert.Equal(t, "Patricia", updated.Name)
	assert.True(t, updated.OnboardingComplete)

	short := "P"
	_, err = env.auth.UpdateProfile(ctx, user.ID, ProfileUpdate{Name: &short})
	assert.Error(t, err)

	dark := true
	settings, err := env.auth.UpdateSettings(ctx, user.ID, models.SettingsUpdate{DarkMode: &dark})
	require.NoError(t, err)
	assert.True(t, settings.DarkMode)
	assert.Equal(t, "en", settings.Language)

	lang := "pt-BR"
	settings, err = env.auth.UpdateSettings(ctx, user.ID, models.SettingsUpdate{Language: &lang})
	require.NoError(t, err)
	assert.True(t, settings.DarkMode, "unspecified fields are kept")
	assert.Equal(t, "pt-BR", settings.Language)

	bad := "english!"
	_, err = env.auth.UpdateSettings(ctx, user.ID, models.SettingsUpdate{Language: &bad})
	assert.Error(t, err)
}
