package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	pstrings "archivist/pkg/platform/strings"
)

// Config is the process configuration assembled from the environment.
type Config struct {
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Workflow WorkflowConfig
	Outbox   OutboxConfig
	LogLevel string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	AllowedOrigins  []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the store backend. An empty URL runs in memory.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	TxTimeout    time.Duration
}

// RedisConfig configures the realtime broadcast client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the notification sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// WorkflowConfig holds the bootstrap policy values. The live values are kept in
// the versioned settings record; these seed it and bound administrative edits.
type WorkflowConfig struct {
	RolesFile         string
	SeedFile          string
	CredentialTimeout time.Duration
	SessionTimeout    time.Duration
	SessionTimeoutMin time.Duration
	SessionTimeoutMax time.Duration
	ReasonMinLength   int
}

// OutboxConfig tunes the asynchronous dispatcher.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// FromEnv builds a Config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables win over it.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Server: Server{
			Addr:            getString("ARCHIVIST_ADDR", ":8080"),
			AllowedOrigins:  getList("ARCHIVIST_ALLOWED_ORIGINS", []string{"*"}),
			RequestTimeout:  getDuration("ARCHIVIST_REQUEST_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getDuration("ARCHIVIST_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getInt("DATABASE_MAX_OPEN_CONNS", 20),
			TxTimeout:    getDuration("DATABASE_TX_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getList("KAFKA_BROKERS", nil),
			Topic:   getString("KAFKA_NOTIFICATIONS_TOPIC", "archivist.notifications"),
		},
		Auth: AuthConfig{
			JWTSigningKey: getString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        getString("JWT_ISSUER", "archivist"),
			Audience:      getString("JWT_AUDIENCE", "archivist-api"),
		},
		Workflow: WorkflowConfig{
			RolesFile:         os.Getenv("ARCHIVIST_ROLES_FILE"),
			SeedFile:          os.Getenv("ARCHIVIST_SEED_FILE"),
			CredentialTimeout: getDuration("CREDENTIAL_TIMEOUT", 3*time.Second),
			SessionTimeout:    getDuration("SESSION_TIMEOUT", 30*time.Minute),
			SessionTimeoutMin: getDuration("SESSION_TIMEOUT_MIN", 5*time.Minute),
			SessionTimeoutMax: getDuration("SESSION_TIMEOUT_MAX", 480*time.Minute),
			ReasonMinLength:   getInt("REASON_MIN_LENGTH", 10),
		},
		Outbox: OutboxConfig{
			PollInterval: getDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    getInt("OUTBOX_BATCH_SIZE", 100),
		},
		LogLevel: getString("LOG_LEVEL", "info"),
	}

	if cfg.Workflow.SessionTimeoutMin > cfg.Workflow.SessionTimeoutMax {
		return Config{}, fmt.Errorf("session timeout bounds inverted: min %s > max %s",
			cfg.Workflow.SessionTimeoutMin, cfg.Workflow.SessionTimeoutMax)
	}
	return cfg, nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if list := pstrings.SplitList(os.Getenv(key)); list != nil {
		return list
	}
	return def
}
