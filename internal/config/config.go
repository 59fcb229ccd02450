package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds runtime settings for the CLI app.
type Config struct {
	BaseURL   string `yaml:"base_url" env:"NEWSDESK_BASE_URL"`
	Session   string `yaml:"session" env:"NEWSDESK_SESSION"`
	CSRFToken string `yaml:"csrf_token" env:"NEWSDESK_CSRF_TOKEN"`

	DBPath   string `yaml:"db_path" env:"NEWSDESK_DB_PATH" env-default:"newsdesk.db"`
	LogPath  string `yaml:"log_path" env:"NEWSDESK_LOG_PATH" env-default:"newsdesk.log"`
	LogLevel string `yaml:"log_level" env:"NEWSDESK_LOG_LEVEL" env-default:"info"`

	PollInterval   time.Duration `yaml:"poll_interval" env:"NEWSDESK_POLL_INTERVAL" env-default:"30s"`
	NotifyDuration time.Duration `yaml:"notify_duration" env:"NEWSDESK_NOTIFY_DURATION" env-default:"10s"`
	Capacity       int           `yaml:"capacity" env:"NEWSDESK_CAPACITY" env-default:"25"`
	Page           int           `yaml:"page" env:"NEWSDESK_PAGE" env-default:"1"`
	Query          string        `yaml:"query" env:"NEWSDESK_QUERY"`
	Timezone       string        `yaml:"timezone" env:"NEWSDESK_TIMEZONE" env-default:"America/Bogota"`
	RateLimit      float64       `yaml:"rate_limit" env:"NEWSDESK_RATE_LIMIT" env-default:"5"`
	MetricsAddr    string        `yaml:"metrics_addr" env:"NEWSDESK_METRICS_ADDR"`
}

// Load reads path (or NEWSDESK_CONFIG when path is empty) if one is given,
// overlays the environment and validates the result.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("NEWSDESK_CONFIG")
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadFromEnv() (Config, error) {
	return Load("")
}

func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("NEWSDESK_BASE_URL is required")
	}
	if strings.HasSuffix(c.BaseURL, "/") {
		return fmt.Errorf("BaseURL must not end with '/': %s", c.BaseURL)
	}
	if c.DBPath == "" {
		return errors.New("DBPath is required")
	}
	if c.LogPath == "" {
		return errors.New("LogPath is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LogLevel must be debug, info, warn or error: %s", c.LogLevel)
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("PollInterval must be at least 1s: %s", c.PollInterval)
	}
	if c.NotifyDuration <= 0 {
		return fmt.Errorf("NotifyDuration must be positive: %s", c.NotifyDuration)
	}
	if c.Capacity < 1 {
		return fmt.Errorf("Capacity must be at least 1: %d", c.Capacity)
	}
	if c.Page < 1 {
		return fmt.Errorf("Page must be at least 1: %d", c.Page)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("RateLimit must be positive: %v", c.RateLimit)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone; an empty value means UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("Timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
