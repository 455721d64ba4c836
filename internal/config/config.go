package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/park285/cheese-arena/internal/obslog"
)

// AppConfig is the match server configuration.
// Precedence: built-in defaults < YAML file (CONFIG_FILE) < environment.
type AppConfig struct {
	HTTPAddr        string        `yaml:"http_addr" env:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	RedisURL    string        `yaml:"redis_url" env:"REDIS_URL"`
	RedisPrefix string        `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	FinishedTTL time.Duration `yaml:"finished_ttl" env:"FINISHED_TTL"` // 0 keeps finished matches forever
	DatabaseURL string        `yaml:"database_url" env:"DATABASE_URL"` // empty disables the archive

	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`

	IncrementPolicy string `yaml:"increment_policy" env:"INCREMENT_POLICY"` // ignore | credit

	Chat      ChatConfig      `yaml:"chat"`
	WS        WSConfig        `yaml:"ws"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Log       obslog.Options  `yaml:"log"`
}

type ChatConfig struct {
	HistoryLimit int64         `yaml:"history_limit" env:"CHAT_HISTORY_LIMIT"`
	TTL          time.Duration `yaml:"ttl" env:"CHAT_TTL"`
}

type WSConfig struct {
	AllowedOrigins []string      `yaml:"allowed_origins" env:"WS_ALLOWED_ORIGINS" envSeparator:","`
	SendBuffer     int           `yaml:"send_buffer" env:"WS_SEND_BUFFER"`
	PingInterval   time.Duration `yaml:"ping_interval" env:"WS_PING_INTERVAL"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WS_WRITE_TIMEOUT"`
}

type RateLimitConfig struct {
	PerSecond float64       `yaml:"per_second" env:"WS_RATE_PER_SECOND"`
	Burst     int           `yaml:"burst" env:"WS_RATE_BURST"`
	Cleanup   time.Duration `yaml:"cleanup" env:"WS_RATE_CLEANUP"`
}

// WebhookConfig points at an optional receiver of finished-match results.
type WebhookConfig struct {
	URL        string        `yaml:"url" env:"RESULT_WEBHOOK_URL"`
	Token      string        `yaml:"token" env:"RESULT_WEBHOOK_TOKEN"`
	Timeout    time.Duration `yaml:"timeout" env:"RESULT_WEBHOOK_TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"RESULT_WEBHOOK_RETRIES"`
}

func defaults() *AppConfig {
	return &AppConfig{
		HTTPAddr:        ":8080",
		ShutdownTimeout: 10 * time.Second,
		RedisPrefix:     "arena",
		TokenTTL:        24 * time.Hour,
		IncrementPolicy: "ignore",
		Chat:            ChatConfig{HistoryLimit: 200, TTL: 24 * time.Hour},
		WS:              WSConfig{SendBuffer: 64, PingInterval: 30 * time.Second, WriteTimeout: 5 * time.Second},
		RateLimit:       RateLimitConfig{PerSecond: 5, Burst: 10, Cleanup: time.Minute},
		Webhook:         WebhookConfig{Timeout: 5 * time.Second, MaxRetries: 3},
		Log:             obslog.Options{Level: "info", Format: "legacy", Console: true},
	}
}

// Load reads CONFIG_FILE (if set) and the process environment.
func Load() (*AppConfig, error) {
	return LoadFile(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
}

// LoadFile applies the YAML file at path (skipped when empty) and then the environment.
func LoadFile(path string) (*AppConfig, error) {
	cfg := defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.Webhook.URL = strings.TrimSpace(c.Webhook.URL)
	c.IncrementPolicy = strings.ToLower(strings.TrimSpace(c.IncrementPolicy))
	origins := c.WS.AllowedOrigins[:0]
	for _, o := range c.WS.AllowedOrigins {
		if s := strings.TrimSpace(o); s != "" {
			origins = append(origins, s)
		}
	}
	c.WS.AllowedOrigins = origins
}

func (c *AppConfig) Validate() error {
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.IncrementPolicy {
	case "", "ignore", "credit":
	default:
		return fmt.Errorf("INCREMENT_POLICY must be ignore or credit, got %q", c.IncrementPolicy)
	}
	if c.FinishedTTL < 0 {
		return errors.New("FINISHED_TTL must not be negative")
	}
	if c.Chat.HistoryLimit < 0 {
		return errors.New("CHAT_HISTORY_LIMIT must not be negative")
	}
	return nil
}
