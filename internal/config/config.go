// Package config loads classdesk settings from an optional YAML file,
// overridden by CLASSDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvFile names the environment variable holding the YAML config path.
const EnvFile = "CLASSDESK_CONFIG"

// StorageConfig describes the S3-compatible attachment bucket.
type StorageConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	PublicBaseURL string        `yaml:"public_base_url"`
	UploadTimeout time.Duration `yaml:"upload_timeout"`
}

type Config struct {
	Port      string `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Timezone is the IANA zone slot dates are interpreted in when a
	// request does not name one.
	Timezone string `yaml:"timezone"`

	// SecureCookies marks the identity cookie HTTPS-only.
	SecureCookies bool `yaml:"secure_cookies"`

	// AllowedOrigins lists extra hosts allowed to open the live feed.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// IdentityRetention is how long an unused, empty identity is kept.
	IdentityRetention time.Duration `yaml:"identity_retention"`

	Storage StorageConfig `yaml:"storage"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:              "8080",
		DBPath:            "classdesk.db",
		LogLevel:          "info",
		LogFormat:         "text",
		Timezone:          "UTC",
		IdentityRetention: 30 * 24 * time.Hour,
		Storage: StorageConfig{
			Region:        "us-east-1",
			UploadTimeout: 2 * time.Minute,
		},
	}
}

// Load reads the file named by CLASSDESK_CONFIG, if any, then applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	return load(os.Getenv(EnvFile), os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("config file %s not found", path)
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("CLASSDESK_PORT", &cfg.Port)
	str("CLASSDESK_DB_PATH", &cfg.DBPath)
	str("CLASSDESK_LOG_LEVEL", &cfg.LogLevel)
	str("CLASSDESK_LOG_FORMAT", &cfg.LogFormat)
	str("CLASSDESK_TIMEZONE", &cfg.Timezone)
	str("CLASSDESK_S3_ENDPOINT", &cfg.Storage.Endpoint)
	str("CLASSDESK_S3_BUCKET", &cfg.Storage.Bucket)
	str("CLASSDESK_S3_REGION", &cfg.Storage.Region)
	str("CLASSDESK_S3_ACCESS_KEY", &cfg.Storage.AccessKey)
	str("CLASSDESK_S3_SECRET_KEY", &cfg.Storage.SecretKey)
	str("CLASSDESK_S3_PUBLIC_URL", &cfg.Storage.PublicBaseURL)

	if v, ok := lookup("CLASSDESK_ALLOWED_ORIGINS"); ok && v != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	if v, ok := lookup("CLASSDESK_SECURE_COOKIES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CLASSDESK_SECURE_COOKIES: %w", err)
		}
		cfg.SecureCookies = b
	}
	for key, dst := range map[string]*time.Duration{
		"CLASSDESK_UPLOAD_TIMEOUT":     &cfg.Storage.UploadTimeout,
		"CLASSDESK_IDENTITY_RETENTION": &cfg.IdentityRetention,
	} {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate checks the port, timezone and durations.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.Storage.UploadTimeout <= 0 {
		return fmt.Errorf("upload timeout must be positive, got %s", c.Storage.UploadTimeout)
	}
	if c.IdentityRetention <= 0 {
		return fmt.Errorf("identity retention must be positive, got %s", c.IdentityRetention)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	return nil
}

// Location returns the configured zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
