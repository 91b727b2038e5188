package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the metadata API.
type Config struct {
	Server   ServerConfig
	Store    string
	LogLevel string
	Postgres PostgresConfig
	Redis    RedisConfig
	MinIO    MinIOConfig
	Notify   NotifyConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// RedisConfig configures the read-through metadata cache.
type RedisConfig struct {
	Enabled   bool
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// MinIOConfig carries MinIO connection details for the audit event archive.
type MinIOConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
}

// NotifyConfig groups the outbound notification sinks. Empty URLs disable a sink.
type NotifyConfig struct {
	MonitoringURL    string
	MonitoringAPIKey string
	SyncURL          string
	SyncAPIKey       string
	NATSURL          string
	NATSSubject      string
	Timeout          time.Duration
	// QueueSize bounds events waiting for background delivery.
	QueueSize int
}

// AuthConfig groups service-token settings. An empty secret disables authentication.
type AuthConfig struct {
	TokenSecret string
	TokenTTL    time.Duration
	Issuer      string
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// Load reads configuration values from environment variables, applying defaults.
// A .env file in the working directory is honoured when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Server: ServerConfig{
			Host:            getString("FILEMETA_API_HOST", "0.0.0.0"),
			Port:            getInt("FILEMETA_API_PORT", 8080),
			ReadTimeout:     getDuration("FILEMETA_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDuration("FILEMETA_API_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDuration("FILEMETA_API_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDuration("FILEMETA_API_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store:    strings.ToLower(getString("FILEMETA_STORE", "postgres")),
		LogLevel: strings.ToLower(getString("LOG_LEVEL", "info")),
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "filemeta_app"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "filemeta"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		Redis: RedisConfig{
			Enabled:   getBool("REDIS_ENABLED", true),
			Addr:      getString("REDIS_ADDR", "localhost:6379"),
			Password:  getString("REDIS_PASSWORD", ""),
			DB:        getInt("REDIS_DB", 0),
			TTL:       getDuration("FILEMETA_CACHE_TTL", time.Hour),
			KeyPrefix: getString("FILEMETA_CACHE_PREFIX", "metadata:"),
		},
		MinIO: MinIOConfig{
			Enabled:         getBool("MINIO_ENABLED", false),
			Endpoint:        getString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getString("MINIO_ROOT_USER", "filemeta"),
			SecretAccessKey: getString("MINIO_ROOT_PASSWORD", "change-me-strong-password"),
			Bucket:          getString("MINIO_AUDIT_BUCKET", "filemeta-audit"),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			Region:          getString("MINIO_REGION", ""),
		},
		Notify: NotifyConfig{
			MonitoringURL:    getString("FILEMETA_MONITORING_URL", ""),
			MonitoringAPIKey: getString("FILEMETA_MONITORING_API_KEY", ""),
			SyncURL:          getString("FILEMETA_SYNC_COORDINATOR_URL", ""),
			SyncAPIKey:       getString("FILEMETA_SYNC_COORDINATOR_API_KEY", ""),
			NATSURL:          getString("NATS_URL", ""),
			NATSSubject:      getString("FILEMETA_NATS_SUBJECT", "filemeta.events"),
			Timeout:          getDuration("FILEMETA_NOTIFY_TIMEOUT", 2*time.Second),
			QueueSize:        getInt("FILEMETA_NOTIFY_QUEUE_SIZE", 256),
		},
		Auth: AuthConfig{
			TokenSecret: getString("FILEMETA_TOKEN_SECRET", ""),
			TokenTTL:    getDuration("FILEMETA_TOKEN_TTL", 24*time.Hour),
			Issuer:      getString("FILEMETA_TOKEN_ISSUER", "filemeta"),
		},
		Metrics: MetricsConfig{
			PrometheusPath: getString("FILEMETA_METRICS_PATH", "/metrics"),
		},
	}

	switch cfg.Store {
	case "postgres", "memory":
	default:
		return Config{}, fmt.Errorf("unsupported FILEMETA_STORE %q", cfg.Store)
	}
	if cfg.Redis.TTL <= 0 {
		return Config{}, fmt.Errorf("FILEMETA_CACHE_TTL must be positive")
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}
