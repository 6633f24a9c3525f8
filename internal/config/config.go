package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"eta/internal/constants"
)

// Config holds the settings shared by the server and the client.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"eta"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	Host            string        `env:"ETA_HOST" envDefault:"localhost"`
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	EnableTLS       bool          `env:"ETA_ENABLE_TLS" envDefault:"false"`
	CertFile        string        `env:"ETA_CERT_FILE" envDefault:"certs/server.crt"`
	KeyFile         string        `env:"ETA_KEY_FILE" envDefault:"certs/server.key"`
	CleanupInterval time.Duration `env:"ETA_CLEANUP_INTERVAL" envDefault:"30s"`

	// Session store
	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisUsername string `env:"REDIS_USERNAME"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Identity. Only the server holds the signing secret.
	AuthSecret string        `env:"ETA_AUTH_SECRET"`
	AuthIssuer string        `env:"ETA_AUTH_ISSUER" envDefault:"eta"`
	TokenTTL   time.Duration `env:"ETA_TOKEN_TTL" envDefault:"1h"`

	// Client
	ServerURL           string        `env:"ETA_SERVER" envDefault:"http://localhost:8080"`
	Email               string        `env:"ETA_EMAIL"`
	Password            string        `env:"ETA_PASSWORD"`
	Username            string        `env:"ETA_USERNAME"`
	ThrottleWindow      time.Duration `env:"ETA_THROTTLE_WINDOW" envDefault:"10s"`
	ReplayInterval      time.Duration `env:"ETA_REPLAY_INTERVAL" envDefault:"1s"`
	DefaultExpiresAfter time.Duration `env:"ETA_EXPIRES_AFTER" envDefault:"1h"`
	DefaultPrivateMode  bool          `env:"ETA_PRIVATE_MODE" envDefault:"true"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if cfg.ThrottleWindow <= 0 {
		return nil, fmt.Errorf("ETA_THROTTLE_WINDOW must be positive, got %s", cfg.ThrottleWindow)
	}
	if cfg.DefaultExpiresAfter < constants.MinExpiresAfter || cfg.DefaultExpiresAfter > constants.MaxExpiresAfter {
		return nil, fmt.Errorf("ETA_EXPIRES_AFTER must be between %s and %s", constants.MinExpiresAfter, constants.MaxExpiresAfter)
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = constants.CleanupInterval
	}

	cfg.ServerURL = strings.TrimSuffix(cfg.ServerURL, "/")
	return cfg, nil
}

// ValidateServer checks the settings only the server needs.
func (c *Config) ValidateServer() error {
	if strings.TrimSpace(c.AuthSecret) == "" {
		return fmt.Errorf("ETA_AUTH_SECRET is required")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// RedisAddr returns host:port of the Redis server, or "" when Redis is not configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}

// LoadEnvFiles overlays .env files found next to the binary's working directory.
func LoadEnvFiles() {
	paths := []string{".env", "../.env", "../../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
