// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable for the coordination service.
type Config struct {
	HTTPAddr     string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"user"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"password"`
	DBName     string `envconfig:"DB_NAME" default:"consultgo"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"72h"`

	// AuthTimeout bounds credential verification on a new connection;
	// the connection is dropped when it elapses.
	AuthTimeout time.Duration `envconfig:"AUTH_TIMEOUT" default:"5s"`

	// DefaultMaxConversations seeds max_conversations for responders the
	// profile collaborator has not configured yet.
	DefaultMaxConversations int `envconfig:"DEFAULT_MAX_CONVERSATIONS" default:"5"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Env      string `envconfig:"ENV" default:"production"`

	// TelegramBotToken enables the offline-responder notifier when set.
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
}

// Load populates a Config from the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return &cfg, nil
}

// PostgresDSN assembles the gorm postgres connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}
