package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"

	"teachme/internal/config"
	"teachme/internal/database"
	"teachme/internal/handlers"
	"teachme/internal/logging"
	"teachme/internal/profilesync"
	"teachme/internal/repository"
	"teachme/internal/security"
	"teachme/internal/service"
	"teachme/migrations"
)

const cleanupInterval = time.Hour

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startup := handlers.NewStartupStatus(
		handlers.StepDatabase,
		handlers.StepMigrations,
		handlers.StepCatalogue,
		handlers.StepServices,
		handlers.StepSync,
	)

	// Health answers while the rest of startup runs. api is assigned
	// before MarkReady and only read after IsReady.
	deps := handlers.RouterDeps{Startup: startup}
	var api http.Handler
	router := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !startup.IsReady() {
			startup.Health(w, r)
			return
		}
		api.ServeHTTP(w, r)
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	startup.SetCurrentStep(handlers.StepDatabase)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()
	log.Info().Str("type", cfg.DatabaseType).Msg("Database connection established")
	startup.CompleteStep(handlers.StepDatabase)

	startup.SetCurrentStep(handlers.StepMigrations)
	if err := runMigrations(ctx, db, cfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	startup.CompleteStep(handlers.StepMigrations)

	startup.SetCurrentStep(handlers.StepSync)
	broker := profilesync.NewBroker()
	var notifier profilesync.Notifier
	if cfg.RedisURL != "" {
		client, err := profilesync.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer client.Close()
		redisNotifier := profilesync.NewRedisNotifier(client, profilesync.DefaultChannel, broker)
		go func() {
			if err := redisNotifier.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Redis change relay stopped")
			}
		}()
		notifier = redisNotifier
		log.Info().Msg("Child changes relayed through Redis")
	}
	sync := profilesync.New(db, broker, notifier)
	startup.CompleteStep(handlers.StepSync)

	startup.SetCurrentStep(handlers.StepServices)
	var mailer service.Mailer
	if cfg.EmailEnabled() {
		emailService, err := service.NewEmailService(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize email service")
		}
		mailer = emailService
		log.Info().Str("from", cfg.SESFromEmail).Msg("Email enabled")
	} else {
		log.Warn().Msg("Email disabled: set AWS_REGION and SES_FROM_EMAIL to enable")
	}

	csrfSecret := cfg.CSRFSecret
	if csrfSecret == "" {
		if csrfSecret, err = security.GenerateSecureToken(32); err != nil {
			log.Fatal().Err(err).Msg("Failed to generate CSRF secret")
		}
		log.Warn().Msg("CSRF_SECRET not set; tokens will not survive a restart or work across instances")
	}
	csrf := security.NewCSRFGenerator(csrfSecret)

	authService := service.NewAuthService(repository.NewUserRepository(db), mailer, cfg.SessionDuration)
	childService := service.NewChildService(sync, repository.NewChildRepository(db), mailer, cfg.KidSessionTTL)
	learningService := service.NewLearningService(db, sync)

	kidLoginLimit := security.NewRateLimiter(cfg.KidLoginRate, cfg.KidLoginWindow)
	defer kidLoginLimit.Stop()
	proxies, err := security.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid TRUSTED_PROXIES")
	}

	deps.Auth = handlers.NewAuthHandler(authService, csrf, oauthProviders(cfg), cfg.OAuthRedirectBaseURL, cfg.AppBaseURL)
	deps.Parent = handlers.NewParentHandler(childService)
	deps.Kid = handlers.NewKidHandler(childService, learningService, csrf)
	deps.Middleware = handlers.NewMiddleware(authService, childService, csrf)
	deps.KidLoginLimit = kidLoginLimit
	deps.TrustedProxies = proxies
	startup.CompleteStep(handlers.StepServices)

	startup.SetCurrentStep(handlers.StepCatalogue)
	if cfg.ModulesSeedPath != "" {
		if err := seedModules(ctx, learningService, cfg.ModulesSeedPath); err != nil {
			log.Error().Err(err).Str("path", cfg.ModulesSeedPath).Msg("Failed to seed modules")
		}
	}
	startup.CompleteStep(handlers.StepCatalogue)

	api = handlers.NewRouter(deps)
	startup.MarkReady()
	log.Info().Msg("Server ready")

	go cleanupExpiredSessions(ctx, authService, childService)

	<-ctx.Done()
	log.Info().Msg("Server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// runMigrations prefers migrations on disk and falls back to the copy
// built into the binary
func runMigrations(ctx context.Context, db *database.DB, path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		log.Info().Str("path", path).Msg("Running migrations from disk")
		return db.RunMigrations(ctx, path)
	}
	return db.RunMigrationsFS(ctx, migrations.FS)
}

func seedModules(ctx context.Context, learning *service.LearningService, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = learning.SeedModules(ctx, f)
	return err
}

func oauthProviders(cfg *config.Config) map[string]handlers.OAuthProvider {
	return map[string]handlers.OAuthProvider{
		"google": {
			Name:  "google",
			Label: "Google",
			Config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				Endpoint:     google.Endpoint,
				Scopes:       []string{"openid", "email", "profile"},
			},
			UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		},
		"facebook": {
			Name:  "facebook",
			Label: "Facebook",
			Config: &oauth2.Config{
				ClientID:     cfg.FacebookClientID,
				ClientSecret: cfg.FacebookClientSecret,
				Endpoint:     facebook.Endpoint,
				Scopes:       []string{"email", "public_profile"},
			},
			UserInfoURL: "https://graph.facebook.com/me?fields=id,name,email",
		},
		"apple": {
			Name:  "apple",
			Label: "Apple",
			Config: &oauth2.Config{
				ClientID:     cfg.AppleClientID,
				ClientSecret: cfg.AppleClientSecret,
				Endpoint: oauth2.Endpoint{
					AuthURL:  "https://appleid.apple.com/auth/authorize",
					TokenURL: "https://appleid.apple.com/auth/token",
				},
				Scopes: []string{"name", "email"},
			},
			AuthParams: map[string]string{
				"response_mode": "query",
			},
		},
	}
}

// cleanupExpiredSessions periodically removes expired sessions
func cleanupExpiredSessions(ctx context.Context, authService *service.AuthService, childService *service.ChildService) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if n, err := authService.CleanupExpiredSessions(ctx); err != nil {
			log.Error().Err(err).Msg("Error cleaning up expired sessions")
		} else {
			log.Debug().Int64("removed", n).Msg("Expired parent sessions cleaned up")
		}

		if n, err := childService.CleanupExpiredKidSessions(ctx); err != nil {
			log.Error().Err(err).Msg("Error cleaning up expired kid sessions")
		} else {
			log.Debug().Int64("removed", n).Msg("Expired kid sessions cleaned up")
		}
	}
}
