package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort      string
	DatabaseType    string // sqlite, postgres, pgx or mysql
	DatabasePath    string // sqlite file path
	DatabaseURL     string // DSN for postgres, pgx and mysql
	MigrationsPath  string
	ModulesSeedPath string // module catalogue loaded at startup when set
	SessionDuration time.Duration
	KidSessionTTL   time.Duration

	LogLevel  string
	LogPretty bool

	CSRFSecret string
	RedisURL   string

	GoogleClientID       string
	GoogleClientSecret   string
	FacebookClientID     string
	FacebookClientSecret string
	AppleClientID        string
	AppleClientSecret    string
	OAuthRedirectBaseURL string

	AWSRegion    string
	SESFromEmail string
	SESFromName  string
	AppBaseURL   string

	KidLoginRate   int
	KidLoginWindow time.Duration
	TrustedProxies []string // proxy IPs or CIDRs allowed to set X-Forwarded-For
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:      getEnv("PORT", "8080"),
		DatabaseType:    strings.ToLower(getEnv("DATABASE_TYPE", "sqlite")),
		DatabasePath:    getEnv("DB_PATH", "./teachme.db"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "./migrations"),
		ModulesSeedPath: getEnv("MODULES_SEED_PATH", ""),
		SessionDuration: getDuration("SESSION_DURATION", 7*24*time.Hour),
		KidSessionTTL:   24 * time.Hour,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getBool("LOG_PRETTY", false),

		CSRFSecret: getEnv("CSRF_SECRET", ""),
		RedisURL:   getEnv("REDIS_URL", ""),

		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
		FacebookClientID:     getEnv("FACEBOOK_CLIENT_ID", ""),
		FacebookClientSecret: getEnv("FACEBOOK_CLIENT_SECRET", ""),
		AppleClientID:        getEnv("APPLE_CLIENT_ID", ""),
		AppleClientSecret:    getEnv("APPLE_CLIENT_SECRET", ""),
		OAuthRedirectBaseURL: getEnv("OAUTH_REDIRECT_BASE_URL", "http://localhost:8080"),

		AWSRegion:    getEnv("AWS_REGION", ""),
		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "TeachMe"),
		AppBaseURL:   getEnv("APP_BASE_URL", "http://localhost:8080"),

		KidLoginRate:   getInt("KID_LOGIN_RATE", 10),
		KidLoginWindow: getDuration("KID_LOGIN_WINDOW", time.Minute),
		TrustedProxies: getList("TRUSTED_PROXIES"),
	}
}

// EmailEnabled reports whether SES settings are complete
func (c *Config) EmailEnabled() bool {
	return c.AWSRegion != "" && c.SESFromEmail != ""
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

// getList splits a comma separated variable, dropping empty entries
func getList(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
