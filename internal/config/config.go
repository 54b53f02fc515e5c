package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Guard     GuardConfig
	Anonymous AnonymousConfig
	RateLimit RateLimitConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	RunMigrations     bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
	AllowedOrigins []string
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	CleanupInterval    time.Duration
	AttemptMaxAge      time.Duration
	FailureDelayBaseMs int
	FailureDelayJitter int
}

// GuardConfig controls the login lockout window.
type GuardConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	AttemptWindow     time.Duration
	RetentionPerEmail int
}

// AnonymousConfig controls the free quota for clients without an account.
type AnonymousConfig struct {
	UsageLimit int
}

type RateLimitConfig struct {
	LoginRequestsPerMinute int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "idguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			RunMigrations:     getEnvAsBool("DB_RUN_MIGRATIONS", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 24*time.Hour),
			CleanupInterval:    getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			AttemptMaxAge:      getEnvAsDuration("LOGIN_ATTEMPT_MAX_AGE", 30*24*time.Hour),
			FailureDelayBaseMs: getEnvAsInt("LOGIN_FAILURE_DELAY_MS", 200),
			FailureDelayJitter: getEnvAsInt("LOGIN_FAILURE_DELAY_JITTER_MS", 100),
		},
		Guard: GuardConfig{
			MaxFailedAttempts: getEnvAsInt("MAX_FAILED_ATTEMPTS", 5),
			LockoutDuration:   getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			AttemptWindow:     getEnvAsDuration("ATTEMPT_WINDOW", 15*time.Minute),
			RetentionPerEmail: getEnvAsInt("RETENTION_PER_EMAIL", 50),
		},
		Anonymous: AnonymousConfig{
			UsageLimit: getEnvAsInt("ANON_USAGE_LIMIT", 5),
		},
		RateLimit: RateLimitConfig{
			LoginRequestsPerMinute: getEnvAsInt("LOGIN_REQUESTS_PER_MINUTE", 20),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Guard.Validate(); err != nil {
		return nil, err
	}

	if cfg.Anonymous.UsageLimit <= 0 {
		return nil, fmt.Errorf("ANON_USAGE_LIMIT must be positive (got %d)", cfg.Anonymous.UsageLimit)
	}

	return cfg, nil
}

// Validate rejects lockout settings that would disable the guard.
func (g GuardConfig) Validate() error {
	switch {
	case g.MaxFailedAttempts <= 0:
		return fmt.Errorf("MAX_FAILED_ATTEMPTS must be positive (got %d)", g.MaxFailedAttempts)
	case g.LockoutDuration <= 0:
		return fmt.Errorf("LOCKOUT_DURATION must be positive (got %s)", g.LockoutDuration)
	case g.AttemptWindow <= 0:
		return fmt.Errorf("ATTEMPT_WINDOW must be positive (got %s)", g.AttemptWindow)
	case g.RetentionPerEmail < g.MaxFailedAttempts:
		return fmt.Errorf("RETENTION_PER_EMAIL (%d) must be at least MAX_FAILED_ATTEMPTS (%d)",
			g.RetentionPerEmail, g.MaxFailedAttempts)
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// parseAllowedOrigins reads CORS_ALLOWED_ORIGINS. Outside production an
// unset list falls back to local dev servers; production defaults to none.
func parseAllowedOrigins(env string) []string {
	if origins := getEnvAsList("CORS_ALLOWED_ORIGINS"); len(origins) > 0 {
		return origins
	}
	if env == "production" {
		return []string{}
	}
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := getEnv(key, "")
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
