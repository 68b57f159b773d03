package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and the CLI.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Client       ClientConfig
	Storage      StorageConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior. File enables a rotating log file
// in addition to stdout.
type LoggerConfig struct {
	Level         string
	File          string
	MaxSizeMB     int
	MaxBackups    int
	MaxAgeDays    int
	CompressFiles bool
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	// AdminEmail, when set, is seeded as an admin account at startup.
	AdminEmail            string
	AdminPassword         string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// ClientConfig configures the ticket store used by the CLI.
type ClientConfig struct {
	// Mode is "local" or "remote".
	Mode string
	// APIURL is the remote base URL; empty means relative paths.
	APIURL             string
	PageSize           int
	HTTPTimeoutSeconds int
}

// StorageConfig selects the persisted key/value backend.
type StorageConfig struct {
	// Backend is one of memory, file, sqlite, redis.
	Backend        string
	Path           string
	TicketsKey     string
	SessionKey     string
	DiscardCorrupt bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-ticket-tracker"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:         getEnv("LOG_LEVEL", "info"),
			File:          os.Getenv("LOG_FILE"),
			MaxSizeMB:     getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 50),
			MaxBackups:    getEnvAsInt("LOG_FILE_MAX_BACKUPS", 3),
			MaxAgeDays:    getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 14),
			CompressFiles: getEnvAsBool("LOG_FILE_COMPRESS", false),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			AdminEmail:            getEnv("AUTH_ADMIN_EMAIL", ""),
			AdminPassword:         os.Getenv("AUTH_ADMIN_PASSWORD"),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Client: ClientConfig{
			Mode:               strings.ToLower(getEnv("TICKETS_MODE", "local")),
			APIURL:             strings.TrimRight(os.Getenv("TICKETS_API_URL"), "/"),
			PageSize:           getEnvAsInt("TICKETS_PAGE_SIZE", 100),
			HTTPTimeoutSeconds: getEnvAsInt("TICKETS_HTTP_TIMEOUT_SECONDS", 0),
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(getEnv("TICKETS_STORAGE_BACKEND", "file")),
			Path:           getEnv("TICKETS_STORAGE_PATH", defaultStoragePath()),
			TicketsKey:     getEnv("TICKETS_STORAGE_KEY", "support_ai_tickets"),
			SessionKey:     getEnv("SESSION_STORAGE_KEY", "support_ai_token"),
			DiscardCorrupt: getEnvAsBool("TICKETS_DISCARD_CORRUPT", true),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// HTTPTimeout returns the client timeout; zero means no deadline.
func (c ClientConfig) HTTPTimeout() time.Duration {
	if c.HTTPTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "ticketctl-data"
	}
	return dir + string(os.PathSeparator) + "ticketctl"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
