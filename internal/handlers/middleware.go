package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"teachme/internal/models"
	"teachme/internal/security"
	"teachme/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	UserContextKey       ContextKey = "user"
	ChildContextKey      ContextKey = "child"
	SessionIDContextKey  ContextKey = "session_id"
	KidSessionContextKey ContextKey = "kid_session_id"
)

// Middleware holds dependencies for middleware functions
type Middleware struct {
	authService  *service.AuthService
	childService *service.ChildService
	csrf         *security.CSRFGenerator
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(authService *service.AuthService, childService *service.ChildService, csrf *security.CSRFGenerator) *Middleware {
	return &Middleware{
		authService:  authService,
		childService: childService,
		csrf:         csrf,
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// RequireAuth requires a valid parent or teacher session, from a Bearer
// token or the session cookie. Cookie-authenticated writes must carry the
// CSRF header.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, fromCookie := security.SessionFromRequest(r, security.SessionCookieName)
		if sessionID == "" {
			respondWithStatus(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
			return
		}

		user, err := m.authService.ValidateSession(r.Context(), sessionID)
		if err != nil {
			m.rejectSession(w, r, security.SessionCookieName, fromCookie, err)
			return
		}

		if fromCookie && !isSafeMethod(r.Method) && !m.csrf.ValidateRequest(r, sessionID) {
			respondWithStatus(w, http.StatusForbidden, ErrInvalidCSRFToken, "", nil)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		ctx = context.WithValue(ctx, SessionIDContextKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireKidAuth requires a valid kid session
func (m *Middleware) RequireKidAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, fromCookie := security.SessionFromRequest(r, security.KidSessionCookieName)
		if sessionID == "" {
			respondWithStatus(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
			return
		}

		child, err := m.childService.ValidateKidSession(r.Context(), sessionID)
		if err != nil {
			m.rejectSession(w, r, security.KidSessionCookieName, fromCookie, err)
			return
		}

		if fromCookie && !isSafeMethod(r.Method) && !m.csrf.ValidateRequest(r, sessionID) {
			respondWithStatus(w, http.StatusForbidden, ErrInvalidCSRFToken, "", nil)
			return
		}

		ctx := context.WithValue(r.Context(), ChildContextKey, child)
		ctx = context.WithValue(ctx, KidSessionContextKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rejectSession answers a failed session lookup. A store outage is not the
// client's fault, so the cookie is kept.
func (m *Middleware) rejectSession(w http.ResponseWriter, r *http.Request, cookieName string, fromCookie bool, err error) {
	if errors.Is(err, models.ErrRemoteUnavailable) {
		respondWithError(w, err)
		return
	}
	if fromCookie {
		http.SetCookie(w, security.CreateDeleteCookie(r, cookieName))
	}
	if errors.Is(err, service.ErrForbidden) {
		respondWithError(w, err)
		return
	}
	respondWithStatus(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
}

// RateLimit rejects clients that exceed limiter, keyed by client IP.
// Forwarding headers count only when sent by one of proxies.
func RateLimit(limiter *security.RateLimiter, proxies security.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := proxies.ClientIP(r)
			if !limiter.Allow(ip) {
				rateLimited.Inc()
				retry := int(limiter.RetryAfter(ip).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				log.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("Rate limit exceeded")
				respondWithStatus(w, http.StatusTooManyRequests, "Too many attempts, please wait a moment", "", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Logging logs every request and records its metrics
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Msg("HTTP request")
	})
}

// UserFromContext retrieves the signed-in parent or teacher
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(UserContextKey).(*models.User)
	return user
}

// ChildFromContext retrieves the signed-in child
func ChildFromContext(ctx context.Context) *models.Child {
	child, _ := ctx.Value(ChildContextKey).(*models.Child)
	return child
}

func sessionIDFromContext(ctx context.Context, key ContextKey) string {
	id, _ := ctx.Value(key).(string)
	return id
}
