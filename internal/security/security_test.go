package security

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFGenerator(t *testing.T) {
	g := NewCSRFGenerator("secret")

	token, err := g.GenerateToken("session-1")
	require.NoError(t, err)
	assert.True(t, g.ValidateToken("session-1", token))
	assert.False(t, g.ValidateToken("session-2", token))
	assert.False(t, NewCSRFGenerator("other").ValidateToken("session-1", token))

	_, err = g.GenerateToken("")
	assert.Error(t, err)

	r := httptest.NewRequest("POST", "/children", nil)
	r.Header.Set(CSRFHeader, token)
	assert.True(t, g.ValidateRequest(r, "session-1"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "keys are limited independently")
	assert.Equal(t, time.Minute, rl.RetryAfter("1.2.3.4"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"))
}

func TestClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.10"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		proxies   TrustedProxies
		remote    string
		forwarded string
		realIP    string
		want      string
	}{
		{name: "socket peer", remote: "203.0.113.9:5555", want: "203.0.113.9"},
		{name: "headers ignored without trusted proxies", remote: "203.0.113.9:5555",
			forwarded: "198.51.100.1", realIP: "198.51.100.2", want: "203.0.113.9"},
		{name: "headers ignored from untrusted peer", proxies: proxies, remote: "203.0.113.9:5555",
			forwarded: "198.51.100.1", want: "203.0.113.9"},
		{name: "trusted proxy", proxies: proxies, remote: "10.1.2.3:80",
			forwarded: "198.51.100.1", want: "198.51.100.1"},
		{name: "spoofed left entries skipped", proxies: proxies, remote: "10.1.2.3:80",
			forwarded: "1.1.1.1, 198.51.100.1, 192.0.2.10", want: "198.51.100.1"},
		{name: "real ip from trusted proxy", proxies: proxies, remote: "192.0.2.10:80",
			realIP: "198.51.100.2", want: "198.51.100.2"},
		{name: "no port", remote: "203.0.113.9", want: "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, tt.proxies.ClientIP(r))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{" 10.0.0.1 ", "", "fd00::/8"})
	require.NoError(t, err)
	assert.Len(t, proxies, 2)

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestSessionFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	id, fromCookie := SessionFromRequest(r, SessionCookieName)
	assert.Empty(t, id)
	assert.False(t, fromCookie)

	r.AddCookie(CreateSessionCookie(r, SessionCookieName, "cookie-id", time.Now().Add(time.Hour)))
	id, fromCookie = SessionFromRequest(r, SessionCookieName)
	assert.Equal(t, "cookie-id", id)
	assert.True(t, fromCookie)

	r.Header.Set("Authorization", "Bearer header-id")
	id, fromCookie = SessionFromRequest(r, SessionCookieName)
	assert.Equal(t, "header-id", id)
	assert.False(t, fromCookie)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken("Bearer"))
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("Password123")
	require.NoError(t, err)
	assert.True(t, CheckPassword("Password123", hash))
	assert.False(t, CheckPassword("password123", hash))
	assert.False(t, CheckPassword("", ""))

	token, err := GenerateSecureToken(16)
	require.NoError(t, err)
	assert.Len(t, token, 32)
}
