// Package config loads service configuration from an optional YAML file and
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable holding the YAML config file path.
const EnvConfigPath = "INFLUENCEGEN_CONFIG"

type Config struct {
	Addr        string        `yaml:"addr"`
	LogLevel    string        `yaml:"logLevel"`
	Namespace   string        `yaml:"namespace"`
	System      string        `yaml:"system"`
	DatabaseURL string        `yaml:"databaseUrl"`
	DBMigrate   bool          `yaml:"dbMigrate"`
	RedisURL    string        `yaml:"redisUrl"`
	ParamsTTL   time.Duration `yaml:"paramsCacheTtl"`

	Callback CallbackConfig `yaml:"callback"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Auth     AuthConfig     `yaml:"auth"`
}

// CallbackConfig tunes the inbound callback endpoint.
type CallbackConfig struct {
	RateRPS          float64 `yaml:"rateRps"`
	RateBurst        int     `yaml:"rateBurst"`
	DiagnosticPrefix int     `yaml:"diagnosticPrefix"`
	MaxBodyBytes     int64   `yaml:"maxBodyBytes"`
}

// WebhookConfig tunes outbound deliveries to the orchestration service.
type WebhookConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	PollInterval time.Duration `yaml:"pollInterval"`
	Timeout      time.Duration `yaml:"timeout"`
	BatchSize    int           `yaml:"batchSize"`
}

// AuthConfig selects how bearer tokens on user and admin routes are verified.
type AuthConfig struct {
	Mode         string `yaml:"mode"` // dev, hmac, jwks
	HMACSecret   string `yaml:"hmacSecret"`
	JWKSURL      string `yaml:"jwksUrl"`
	SubjectClaim string `yaml:"subjectClaim"`
	RoleClaim    string `yaml:"roleClaim"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:      ":8080",
		LogLevel:  "info",
		Namespace: "influence_gen",
		System:    "N8N",
		DBMigrate: true,
		ParamsTTL: 30 * time.Second,
		Callback: CallbackConfig{
			RateRPS:          20,
			RateBurst:        40,
			DiagnosticPrefix: 5,
			MaxBodyBytes:     8 << 20,
		},
		Webhook: WebhookConfig{
			MaxAttempts:  3,
			PollInterval: time.Second,
			Timeout:      30 * time.Second,
			BatchSize:    50,
		},
		Auth: AuthConfig{
			Mode:         "dev",
			SubjectClaim: "sub",
			RoleClaim:    "role",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty)
// and environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by INFLUENCEGEN_CONFIG, if any.
func LoadFromEnv() (Config, error) {
	return Load(os.Getenv(EnvConfigPath))
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Namespace, "INFLUENCEGEN_NAMESPACE")
	setString(&cfg.System, "INFLUENCEGEN_SYSTEM")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.Auth.Mode, "AUTH_MODE")
	setString(&cfg.Auth.HMACSecret, "AUTH_HMAC_SECRET")
	setString(&cfg.Auth.JWKSURL, "AUTH_JWKS_URL")
	setString(&cfg.Auth.SubjectClaim, "AUTH_SUBJECT_CLAIM")
	setString(&cfg.Auth.RoleClaim, "AUTH_ROLE_CLAIM")

	if v := os.Getenv("DB_MIGRATE"); v != "" {
		cfg.DBMigrate = v != "false"
	}
	if v := os.Getenv("PARAMS_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PARAMS_CACHE_TTL: %w", err)
		}
		cfg.ParamsTTL = d
	}
	if v := os.Getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_RPS: %w", err)
		}
		cfg.Callback.RateRPS = f
	}
	if err := setInt(&cfg.Callback.RateBurst, "RATE_BURST"); err != nil {
		return err
	}
	if err := setInt(&cfg.Webhook.MaxAttempts, "WEBHOOK_MAX_ATTEMPTS"); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Namespace) == "":
		return errors.New("namespace must not be empty")
	case strings.TrimSpace(c.System) == "":
		return errors.New("system must not be empty")
	case c.ParamsTTL < 0:
		return errors.New("paramsCacheTtl must be >= 0")
	case c.Callback.RateRPS <= 0:
		return errors.New("callback.rateRps must be > 0")
	case c.Callback.RateBurst <= 0:
		return errors.New("callback.rateBurst must be > 0")
	case c.Callback.MaxBodyBytes <= 0:
		return errors.New("callback.maxBodyBytes must be > 0")
	case c.Webhook.MaxAttempts <= 0:
		return errors.New("webhook.maxAttempts must be > 0")
	case c.Webhook.PollInterval <= 0:
		return errors.New("webhook.pollInterval must be > 0")
	case c.Webhook.BatchSize <= 0:
		return errors.New("webhook.batchSize must be > 0")
	}
	switch c.Auth.Mode {
	case "dev", "hmac", "jwks":
	default:
		return fmt.Errorf("auth.mode %q not supported (dev, hmac, jwks)", c.Auth.Mode)
	}
	return nil
}
