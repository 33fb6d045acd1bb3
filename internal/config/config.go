package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	ObjectStore ObjectStoreConfig
	Kafka       KafkaConfig
	Demo        DemoConfig
	Logging     LoggingConfig
}

// ServerConfig holds HTTP API server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ObjectStoreConfig holds S3-compatible bucket settings.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// KafkaConfig holds bucket-notification consumer settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// DemoConfig holds the demo-mode override: when enabled, all incoming files
// resolve to the configured bootstrap user.
type DemoConfig struct {
	Enabled      bool
	UserName     string
	UserEmail    string
	PasswordHash string
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A local .env file is honored when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		// Missing .env is normal outside local development.
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         envOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:         envInt("SERVER_PORT", 8080),
			ReadTimeout:  envDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: envDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  envDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            envOrDefault("DB_HOST", "localhost"),
			Port:            envInt("DB_PORT", 5432),
			User:            envOrDefault("DB_USER", "postgres"),
			Password:        os.Getenv("DB_PASS"),
			Database:        envOrDefault("DB_NAME", "weather_uploads"),
			SSLMode:         envOrDefault("DB_SSLMODE", "disable"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: envDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:  envOrDefault("S3_ENDPOINT", "localhost:9000"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    envOrDefault("S3_BUCKET", "weather-uploads"),
			UseSSL:    envBool("S3_USE_SSL", false),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
			Topic:   envOrDefault("KAFKA_NOTIFICATION_TOPIC", "bucket-events"),
			GroupID: envOrDefault("KAFKA_GROUP_ID", "weather-upload-processor"),
		},
		Demo: DemoConfig{
			Enabled:      envBool("DEMO_MODE", false),
			UserName:     os.Getenv("DEMO_USER_NAME"),
			UserEmail:    os.Getenv("DEMO_USER_EMAIL"),
			PasswordHash: os.Getenv("DEMO_USER_PASSWORD_HASHED"),
		},
		Logging: LoggingConfig{
			Level: envOrDefault("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// Validate checks settings that have no sensible default.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("DB_HOST is required")
	}
	if c.Database.Database == "" {
		return errors.New("DB_NAME is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.Kafka.Topic == "" {
		return errors.New("KAFKA_NOTIFICATION_TOPIC is required")
	}
	if c.ObjectStore.Bucket == "" {
		return errors.New("S3_BUCKET is required")
	}
	if c.Demo.Enabled {
		if c.Demo.UserName == "" || c.Demo.UserEmail == "" || c.Demo.PasswordHash == "" {
			return errors.New("DEMO_MODE requires DEMO_USER_NAME, DEMO_USER_EMAIL and DEMO_USER_PASSWORD_HASHED")
		}
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
