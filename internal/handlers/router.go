package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"teachme/internal/security"
)

// RouterDeps carries everything the HTTP API is built from
type RouterDeps struct {
	Auth           *AuthHandler
	Parent         *ParentHandler
	Kid            *KidHandler
	Middleware     *Middleware
	KidLoginLimit  *security.RateLimiter
	TrustedProxies security.TrustedProxies
	Startup        *StartupStatus
	MetricsHandler http.Handler
}

// NewRouter wires the JSON API onto a chi router
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Logging)
	r.Use(middleware.Recoverer)

	if deps.Startup != nil {
		r.Get("/health", deps.Startup.Health)
	}
	metrics := deps.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	m := deps.Middleware

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", deps.Auth.Register)
		r.Post("/login", deps.Auth.Login)
		r.With(m.RequireAuth).Post("/logout", deps.Auth.Logout)
		r.Get("/{provider}/start", deps.Auth.StartOAuth)
		r.Get("/{provider}/callback", deps.Auth.OAuthCallback)
		r.Post("/password/forgot", deps.Auth.ForgotPassword)
		r.Post("/password/reset", deps.Auth.ResetPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(m.RequireAuth)

		r.Get("/me", deps.Auth.Me)
		r.Patch("/me", deps.Auth.UpdateMe)
		r.Patch("/me/settings", deps.Auth.UpdateSettings)

		r.Route("/children", func(r chi.Router) {
			r.Get("/", deps.Parent.ListChildren)
			r.Post("/", deps.Parent.CreateChild)
			r.Get("/stream", deps.Parent.StreamChildren)
			r.Get("/{id}", deps.Parent.GetChild)
			r.Patch("/{id}", deps.Parent.UpdateChild)
			r.Delete("/{id}", deps.Parent.DeleteChild)
			r.Post("/{id}/toggle", deps.Parent.ToggleChild)
			r.Post("/{id}/join-code", deps.Parent.RegenerateJoinCode)
		})
	})

	r.Route("/kid", func(r chi.Router) {
		login := http.HandlerFunc(deps.Kid.Login)
		if deps.KidLoginLimit != nil {
			r.With(RateLimit(deps.KidLoginLimit, deps.TrustedProxies)).Post("/login", login)
		} else {
			r.Post("/login", login)
		}

		r.Group(func(r chi.Router) {
			r.Use(m.RequireKidAuth)
			r.Post("/logout", deps.Kid.Logout)
			r.Get("/dashboard", deps.Kid.Dashboard)
			r.Get("/subjects/{subject}/modules", deps.Kid.Modules)
			r.Post("/lessons/{id}/progress", deps.Kid.RecordProgress)
		})
	})

	return r
}
