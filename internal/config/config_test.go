package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_TYPE", "SESSION_DURATION", "KID_LOGIN_RATE", "LOG_PRETTY", "AWS_REGION", "SES_FROM_EMAIL", "TRUSTED_PROXIES"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionDuration)
	assert.Equal(t, 24*time.Hour, cfg.KidSessionTTL)
	assert.Equal(t, 10, cfg.KidLoginRate)
	assert.False(t, cfg.LogPretty)
	assert.False(t, cfg.EmailEnabled())
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_TYPE", "Postgres")
	t.Setenv("SESSION_DURATION", "2h")
	t.Setenv("KID_LOGIN_RATE", "3")
	t.Setenv("KID_LOGIN_WINDOW", "30s")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("SES_FROM_EMAIL", "noreply@example.com")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, ,192.0.2.10")

	cfg := Load()
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "postgres", cfg.DatabaseType)
	assert.Equal(t, 2*time.Hour, cfg.SessionDuration)
	assert.Equal(t, 3, cfg.KidLoginRate)
	assert.Equal(t, 30*time.Second, cfg.KidLoginWindow)
	assert.True(t, cfg.LogPretty)
	assert.True(t, cfg.EmailEnabled())
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, cfg.TrustedProxies)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SESSION_DURATION", "forever")
	t.Setenv("KID_LOGIN_RATE", "-4")

	cfg := Load()
	assert.Equal(t, 7*24*time.Hour, cfg.SessionDuration)
	assert.Equal(t, 10, cfg.KidLoginRate)
}
