package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Env struct {
	AppEnv    string
	Port      string
	APIPrefix string

	DBDriver   string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	RedisAddr string
	RedisPass string
	RedisDB   int

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	LoginMaxAttempts     int
	LoginAttemptWindow   time.Duration
	LoginLockoutDuration time.Duration
	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration

	AuditAsync     bool
	AuditQueueSize int

	SessionCleanupInterval time.Duration
	PasswordResetTTL       time.Duration

	AdminUsername string
	AdminPassword string

	SentryDSN          string
	GeolocationEnabled bool
	CookieSecure       bool

	// TrustedProxies are the addresses or CIDRs allowed to set
	// X-Forwarded-For. Empty trusts no proxy.
	TrustedProxies []string
}

// LoadEnv reads configuration from the environment, loading .env first
// when one is present.
func LoadEnv() (*Env, error) {
	_ = godotenv.Load()

	env := &Env{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "3000"),
		APIPrefix: getEnv("API_PREFIX", "/api"),

		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "showcase"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisPass: getEnv("REDIS_PASSWORD", ""),
		RedisDB:   getEnvAsInt("REDIS_DB", 0),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		AccessTokenTTL:  getEnvAsDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTokenTTL: getEnvAsDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		LoginMaxAttempts:     getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginAttemptWindow:   getEnvAsDuration("LOGIN_ATTEMPT_WINDOW", time.Hour),
		LoginLockoutDuration: getEnvAsDuration("LOGIN_LOCKOUT_DURATION", 15*time.Minute),
		LoginRateLimitMax:    getEnvAsInt("LOGIN_RATE_LIMIT_MAX", 5),
		LoginRateLimitWindow: getEnvAsDuration("LOGIN_RATE_LIMIT_WINDOW", 15*time.Minute),

		AuditAsync:     getEnvAsBool("AUDIT_ASYNC", false),
		AuditQueueSize: getEnvAsInt("AUDIT_QUEUE_SIZE", 1000),

		SessionCleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", time.Hour),
		PasswordResetTTL:       getEnvAsDuration("PASSWORD_RESET_TTL", 20*time.Minute),

		AdminUsername: strings.TrimSpace(os.Getenv("ADMIN_USERNAME")),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		SentryDSN:          getEnv("SENTRY_DSN", ""),
		GeolocationEnabled: getEnvAsBool("GEOLOCATION_ENABLED", false),
		TrustedProxies:     getEnvAsList("TRUSTED_PROXIES"),
	}
	env.CookieSecure = getEnvAsBool("COOKIE_SECURE", env.IsProduction())

	if err := env.Validate(); err != nil {
		return nil, err
	}

	return env, nil
}

func (e *Env) Validate() error {
	if len(e.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	if e.DBDriver != "postgres" && e.DBDriver != "mysql" {
		return fmt.Errorf("DB_DRIVER must be postgres or mysql, got %q", e.DBDriver)
	}

	if (e.AdminUsername == "") != (e.AdminPassword == "") {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD are required together")
	}

	if e.LoginMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}

	for _, proxy := range e.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			return fmt.Errorf("TRUSTED_PROXIES: %q is not an IP or CIDR", proxy)
		}
	}

	return nil
}

func (e *Env) IsProduction() bool {
	return strings.EqualFold(e.AppEnv, "production")
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string) []string {
	var items []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvAsDuration accepts Go duration strings ("15m", "168h").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}
