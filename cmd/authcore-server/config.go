package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// serverConfig holds all configuration for the auth server.
type serverConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort int `env:"AUTH_HTTP_PORT" envDefault:"8080"`

	// Backend selects the credential store: "redis" or "postgres".
	Backend string `env:"AUTH_BACKEND" envDefault:"redis"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"marketplace"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"marketplace_secret"`
	PostgresDB   string `env:"AUTH_DB_NAME" envDefault:"auth_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"" envSeparator:","`

	AccessSecret  string        `env:"AUTH_ACCESS_SECRET"`
	RefreshSecret string        `env:"AUTH_REFRESH_SECRET"`
	AccessTTL     time.Duration `env:"AUTH_ACCESS_TTL" envDefault:"2h"`
	RefreshTTL    time.Duration `env:"AUTH_REFRESH_TTL" envDefault:"360h"`

	CookieSecure bool `env:"AUTH_COOKIE_SECURE" envDefault:"true"`

	EnableLoginThrottle   bool `env:"AUTH_LOGIN_THROTTLE" envDefault:"true"`
	EnableRefreshThrottle bool `env:"AUTH_REFRESH_THROTTLE" envDefault:"false"`
}

// loadConfig reads configuration from environment variables.
func loadConfig() (*serverConfig, error) {
	cfg := &serverConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}
	if cfg.Backend != "redis" && cfg.Backend != "postgres" {
		return nil, fmt.Errorf("invalid backend %q: want redis or postgres", cfg.Backend)
	}
	if len(cfg.AccessSecret) < 32 || len(cfg.RefreshSecret) < 32 {
		return nil, fmt.Errorf("AUTH_ACCESS_SECRET and AUTH_REFRESH_SECRET must be set to at least 32 bytes")
	}

	return cfg, nil
}

// postgresDSN returns the PostgreSQL connection string.
func (c *serverConfig) postgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}
