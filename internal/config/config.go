package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the campaign engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Transport TransportConfig `yaml:"transport"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis connection used for distributed
// locking of scheduler ticks. If Addr is empty the scheduler falls back
// to PostgreSQL advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TransportConfig holds mail provider settings.
type TransportConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	FromName       string `yaml:"from_name"`
	FromEmail      string `yaml:"from_email"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SchedulerConfig holds batch partitioning and tick processing settings.
type SchedulerConfig struct {
	BatchSize         int `yaml:"batch_size"`
	SpacingMinutes    int `yaml:"spacing_minutes"`
	MaxBatchesPerTick int `yaml:"max_batches_per_tick"`
	SendConcurrency   int `yaml:"send_concurrency"`
	StalenessMinutes  int `yaml:"staleness_minutes"`
}

// TrackingConfig holds open/click tracking settings.
type TrackingConfig struct {
	BaseURL    string `yaml:"base_url"`
	SigningKey string `yaml:"signing_key"`
}

// AuthConfig holds the shared secret presented by the external cron
// trigger and admin API clients.
type AuthConfig struct {
	TriggerSecret string `yaml:"trigger_secret"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets
// can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MAIL_API_KEY"); v != "" {
		cfg.Transport.APIKey = v
	}
	if v := os.Getenv("MAIL_BASE_URL"); v != "" {
		cfg.Transport.BaseURL = v
	}
	if v := os.Getenv("MAIL_FROM_EMAIL"); v != "" {
		cfg.Transport.FromEmail = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("TRACKING_SIGNING_KEY"); v != "" {
		cfg.Tracking.SigningKey = v
	}
	if v := os.Getenv("TRIGGER_SECRET"); v != "" {
		cfg.Auth.TriggerSecret = v
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Transport.TimeoutSeconds == 0 {
		c.Transport.TimeoutSeconds = 30
	}
	if c.Scheduler.BatchSize == 0 {
		c.Scheduler.BatchSize = 500
	}
	if c.Scheduler.SpacingMinutes == 0 {
		c.Scheduler.SpacingMinutes = 5
	}
	if c.Scheduler.MaxBatchesPerTick == 0 {
		c.Scheduler.MaxBatchesPerTick = 5
	}
	if c.Scheduler.SendConcurrency == 0 {
		c.Scheduler.SendConcurrency = 4
	}
	if c.Scheduler.StalenessMinutes == 0 {
		c.Scheduler.StalenessMinutes = 30
	}
	if c.Tracking.BaseURL == "" {
		c.Tracking.BaseURL = "http://localhost:8080"
	}
}

// Validate checks for configuration that would make the engine unusable.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Tracking.SigningKey == "" {
		return fmt.Errorf("tracking.signing_key is required")
	}
	if c.Auth.TriggerSecret == "" {
		return fmt.Errorf("auth.trigger_secret is required")
	}
	return nil
}

// TransportTimeout returns the transport timeout as a duration.
func (c *Config) TransportTimeout() time.Duration {
	return time.Duration(c.Transport.TimeoutSeconds) * time.Second
}

// BatchSpacing returns the delay between consecutive batches.
func (c *Config) BatchSpacing() time.Duration {
	return time.Duration(c.Scheduler.SpacingMinutes) * time.Minute
}

// StalenessWindow returns how long a batch may sit in processing before
// reconciliation marks it failed.
func (c *Config) StalenessWindow() time.Duration {
	return time.Duration(c.Scheduler.StalenessMinutes) * time.Minute
}
