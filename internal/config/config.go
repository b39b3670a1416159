// Package config provides configuration loading for pdf-insight.
// Supports YAML files, a .env file, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/spherical/pdf-insight/internal/domain"
)

// Config holds all configuration for pdf-insight.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	PDF           PDFConfig           `yaml:"pdf"`
	Session       SessionConfig       `yaml:"session"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// OpenAIConfig holds chat-completions endpoint settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// PDFConfig holds rasterization settings.
type PDFConfig struct {
	DPI         float64 `yaml:"dpi"`
	Format      string  `yaml:"format"` // png or jpeg
	JPEGQuality int     `yaml:"jpeg_quality"`
	Preflight   bool    `yaml:"preflight"`
}

// SessionConfig holds session storage settings.
type SessionConfig struct {
	Driver    string        `yaml:"driver"` // memory or redis
	TTL       time.Duration `yaml:"ttl"`
	UploadDir string        `yaml:"upload_dir"`
	Redis     RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings. A non-empty URL
// (redis:// or rediss://) takes precedence over Addr, Password and DB.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from an optional YAML file and applies
// environment overrides. Variables from a .env file in the working
// directory are loaded first; real environment variables win.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError("read config file", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError("parse config file", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with defaults for local use.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     5 * time.Minute,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   50 << 20,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		},
		PDF: PDFConfig{
			DPI:         72,
			Format:      "png",
			JPEGQuality: 85,
			Preflight:   true,
		},
		Session: SessionConfig{
			Driver: "memory",
			TTL:    2 * time.Hour,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "pdfi:",
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return domain.ConfigError(fmt.Sprintf("invalid server port: %d", c.Server.Port), nil)
	}

	if c.Server.MaxUploadBytes < 0 {
		return domain.ConfigError("max_upload_bytes cannot be negative", nil)
	}

	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return domain.ConfigError("OPENAI_API_KEY is not set", nil)
	}

	if c.PDF.DPI <= 0 {
		return domain.ConfigError(fmt.Sprintf("dpi must be positive, got %v", c.PDF.DPI), nil)
	}

	switch c.PDF.Format {
	case "png", "jpeg":
	default:
		return domain.ConfigError(fmt.Sprintf("invalid image format: %s", c.PDF.Format), nil)
	}

	if c.PDF.JPEGQuality < 1 || c.PDF.JPEGQuality > 100 {
		return domain.ConfigError(fmt.Sprintf("jpeg_quality must be between 1 and 100, got %d", c.PDF.JPEGQuality), nil)
	}

	if c.Session.Driver != "memory" && c.Session.Driver != "redis" {
		return domain.ConfigError(fmt.Sprintf("invalid session driver: %s", c.Session.Driver), nil)
	}

	if c.Session.Driver == "redis" && c.Session.Redis.Addr == "" && c.Session.Redis.URL == "" {
		return domain.ConfigError("redis session driver requires an address", nil)
	}

	if c.Session.Redis.URL != "" {
		if _, err := redis.ParseURL(c.Session.Redis.URL); err != nil {
			return domain.ConfigError("invalid redis url", err)
		}
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return domain.ConfigError(fmt.Sprintf("invalid SERVER_PORT %q", v), err)
		}
		cfg.Server.Port = port
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}

	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}

	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAI.Model = v
	}

	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.Session.UploadDir = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Session.Driver = "redis"
		if strings.Contains(v, "://") {
			cfg.Session.Redis.URL = v
		} else {
			cfg.Session.Redis.Addr = v
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	return nil
}
