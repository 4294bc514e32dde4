package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"opsagent.app/history/core/db"
)

// Mode selects the history backend combination, mirroring the deployment's
// CHAT_HISTORY_MODE setting. The local_* variants use a configured test
// identity instead of SSO headers.
type Mode string

const (
	// ModePostgres persists to Postgres only (no cache).
	ModePostgres Mode = "postgres"
	// ModeRedis persists to Postgres with a Redis write-through cache.
	ModeRedis Mode = "redis"
	// ModeLocalPostgres is ModePostgres with a local test identity.
	ModeLocalPostgres Mode = "local_psql"
	// ModeLocalRedis is ModeRedis with a local test identity.
	ModeLocalRedis Mode = "local_redis"
)

// CacheEnabled reports whether the mode fronts Postgres with Redis.
func (m Mode) CacheEnabled() bool {
	return m == ModeRedis || m == ModeLocalRedis
}

// LocalIdentity reports whether requests use the configured test identity
// instead of SSO headers.
func (m Mode) LocalIdentity() bool {
	return m == ModeLocalPostgres || m == ModeLocalRedis
}

func (m Mode) valid() bool {
	switch m {
	case ModePostgres, ModeRedis, ModeLocalPostgres, ModeLocalRedis:
		return true
	}
	return false
}

type Config struct {
	Env       string
	Port      string
	Mode      Mode
	OTel      OTelConfig
	DB        db.Config
	Redis     RedisConfig
	History   HistoryConfig
	LocalUser LocalUserConfig
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	TLS      bool
}

// Addr returns the host:port pair for the Redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type HistoryConfig struct {
	// WindowDays bounds listConversations to recently modified conversations.
	WindowDays int
	// CacheTTL is the expiry applied to every cache entry.
	CacheTTL time.Duration
	// CacheTimeout bounds each cache round-trip; on timeout the cache is
	// treated as unavailable and reads fall through to Postgres.
	CacheTimeout time.Duration
	// ReconcileInterval is how often the reconciler rebuilds cached
	// summary lists from Postgres.
	ReconcileInterval time.Duration
}

// LocalUserConfig is the test identity used by the local_* modes.
type LocalUserConfig struct {
	ID   string
	Name string
}

type ServiceType string

const (
	ServiceTypeServer     ServiceType = "server"
	ServiceTypeReconciler ServiceType = "reconciler"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the API server
//   - .env.reconciler for the cache reconciler
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("HISTORY_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:  getEnv("HISTORY_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		Mode: Mode(getEnv("CHAT_HISTORY_MODE", string(ModeLocalPostgres))),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "chat-history"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		DB: db.Config{
			DSN:      postgresDSN(),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6380),
			Password: getEnv("REDIS_PASSWORD", ""),
			TLS:      getEnvBool("REDIS_SSL", true),
		},
		History: HistoryConfig{
			WindowDays:        getEnvInt("CONVERSATION_HISTORY_DAYS", 7),
			CacheTTL:          time.Duration(getEnvInt("REDIS_TTL_SECONDS", 1800)) * time.Second,
			CacheTimeout:      time.Duration(getEnvInt("CACHE_TIMEOUT_SECONDS", 2)) * time.Second,
			ReconcileInterval: time.Duration(getEnvInt("RECONCILE_INTERVAL_SECONDS", 300)) * time.Second,
		},
		LocalUser: LocalUserConfig{
			ID:   getEnv("LOCAL_TEST_CLIENT_ID", "00000000-0000-0000-0000-000000000001"),
			Name: getEnv("LOCAL_TEST_USERNAME", "local_user"),
		},
	}

	if !cfg.Mode.valid() {
		return Config{}, fmt.Errorf("unsupported CHAT_HISTORY_MODE %q", cfg.Mode)
	}

	if cfg.History.WindowDays <= 0 {
		return Config{}, fmt.Errorf("CONVERSATION_HISTORY_DAYS must be positive")
	}

	return cfg, nil
}

// postgresDSN assembles the connection string from the discrete POSTGRES_*
// variables the deployment injects.
func postgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_ADMIN_LOGIN", "pgadmin")
	password := getEnv("POSTGRES_ADMIN_PASSWORD", "")
	database := getEnv("POSTGRES_DATABASE", "chat_history")
	sslmode := getEnv("POSTGRES_SSLMODE", "require")
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, database, sslmode)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
