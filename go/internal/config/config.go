package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/lightsout/go/internal/game"
)

// Config is the shared configuration of the registry, the outbox relay and
// the game gateway. Values come from config.yaml, then environment variables.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Registry RegistryConfig `yaml:"registry"`
	Database DatabaseConfig `yaml:"database"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	NATS     NATSConfig     `yaml:"nats"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Game     game.Config    `yaml:"game"`
}

// Registry stores
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type RegistryConfig struct {
	Port       int    `yaml:"port"`
	Owner      string `yaml:"owner"`       // identity recorded for admin operations
	AdminToken string `yaml:"admin_token"` // bearer token for clear and pause; empty disables them
	Store      string `yaml:"store"`       // postgres or sqlite
	SQLitePath string `yaml:"sqlite_path"`
}

// DatabaseConfig holds the Postgres connection settings shared by the
// registry and the outbox relay.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

type GatewayConfig struct {
	Port           int      `yaml:"port"`
	RegistryURL    string   `yaml:"registry_url"` // empty disables score submission
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type NATSConfig struct {
	URL           string `yaml:"url"` // empty disables the event stream
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type OutboxConfig struct {
	HealthPort       int           `yaml:"health_port"`
	FallbackInterval time.Duration `yaml:"fallback_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	BatchSize        int           `yaml:"batch_size"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Registry: RegistryConfig{
			Port:       8080,
			Store:      StorePostgres,
			SQLitePath: "lightsout.db",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Name:     "lightsout",
			SSLMode:  "disable",
		},
		Gateway: GatewayConfig{
			Port:           8081,
			AllowedOrigins: []string{"*"},
		},
		NATS: NATSConfig{
			StreamName:    "REGISTRY_EVENTS",
			SubjectPrefix: "registry.events",
		},
		Outbox: OutboxConfig{
			HealthPort:       8082,
			FallbackInterval: 30 * time.Second,
			MaxRetries:       5,
			RetryDelay:       200 * time.Millisecond,
			BatchSize:        100,
		},
		Game: game.DefaultConfig(),
	}
}

// DefaultPath is the config file read when CONFIG_PATH is unset.
const DefaultPath = "config.yaml"

// Path returns the config file every binary loads: CONFIG_PATH, else DefaultPath.
func Path() string {
	return getEnv("CONFIG_PATH", DefaultPath)
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()

	switch cfg.Registry.Store {
	case StorePostgres, StoreSQLite:
	default:
		return nil, fmt.Errorf("unknown registry store %q", cfg.Registry.Store)
	}

	if err := cfg.Game.Timing.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game timing: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Registry.Port = getEnvAsInt("REGISTRY_PORT", c.Registry.Port)
	c.Registry.Owner = getEnv("REGISTRY_OWNER", c.Registry.Owner)
	c.Registry.AdminToken = getEnv("REGISTRY_ADMIN_TOKEN", c.Registry.AdminToken)
	c.Registry.Store = getEnv("REGISTRY_STORE", c.Registry.Store)
	c.Registry.SQLitePath = getEnv("REGISTRY_SQLITE_PATH", c.Registry.SQLitePath)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Gateway.Port = getEnvAsInt("GATEWAY_PORT", c.Gateway.Port)
	c.Gateway.RegistryURL = getEnv("REGISTRY_URL", c.Gateway.RegistryURL)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Gateway.AllowedOrigins = splitList(origins)
	}

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)

	c.Outbox.HealthPort = getEnvAsInt("OUTBOX_HEALTH_PORT", c.Outbox.HealthPort)
	c.Outbox.FallbackInterval = getEnvAsDuration("FALLBACK_INTERVAL", c.Outbox.FallbackInterval)
	c.Outbox.MaxRetries = getEnvAsInt("OUTBOX_MAX_RETRIES", c.Outbox.MaxRetries)
}

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
