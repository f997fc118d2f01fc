// Package config loads backend configuration from YAML with
// environment overrides. Missing values fall back to defaults; secrets
// are expected to arrive through the environment rather than the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved backend configuration.
type Config struct {
	Ledger  Ledger  `yaml:"ledger"`
	Scan    Scan    `yaml:"scan"`
	Auth    Auth    `yaml:"auth"`
	Metrics Metrics `yaml:"metrics"`
	Log     Log     `yaml:"log"`
}

// Ledger configures the gRPC ledger client.
type Ledger struct {
	Target           string        `yaml:"target"`
	ApplicationID    string        `yaml:"applicationId"`
	Party            string        `yaml:"party"`
	SubmitTimeout    time.Duration `yaml:"submitTimeout"`
	DialTimeout      time.Duration `yaml:"dialTimeout"`
	SubmitsPerSecond float64       `yaml:"submitsPerSecond"`
}

// Scan configures the reference-data HTTP client.
type Scan struct {
	BaseURL string `yaml:"baseUrl"`
}

// Auth selects how ledger tokens are obtained. Mode is one of
// "oauth", "shared-secret" or "none".
type Auth struct {
	Mode string `yaml:"mode"`

	TokenURL     string   `yaml:"tokenUrl"`
	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret"`
	Audience     string   `yaml:"audience"`
	Scopes       []string `yaml:"scopes"`

	Secret string        `yaml:"secret"`
	UserID string        `yaml:"userId"`
	TTL    time.Duration `yaml:"ttl"`
}

// Metrics configures the Prometheus listener. An empty Listen disables it.
type Metrics struct {
	Listen string `yaml:"listen"`
}

// Log configures logging. Level is one of debug, info, warn, error.
type Log struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Ledger: Ledger{
			Target:        "localhost:5001",
			ApplicationID: "licenseworks-backend",
			SubmitTimeout: 30 * time.Second,
			DialTimeout:   10 * time.Second,
		},
		Scan: Scan{
			BaseURL: "http://localhost:5012/api/validator",
		},
		Auth: Auth{
			Mode: "none",
			TTL:  time.Hour,
		},
		Log: Log{Level: "info"},
	}
}

// Load resolves configuration from path, falling back to conventional
// locations when path is empty. An explicitly named file must be
// readable; only the conventional locations may be absent. Env
// overrides apply either way.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := parseInto(&cfg, data, path); err != nil {
			return Config{}, err
		}
	} else {
		for _, p := range []string{"config.yaml", "configs/config.yaml"} {
			data, err := os.ReadFile(p)
			if err != nil {
				continue
			}
			if err := parseInto(&cfg, data, p); err != nil {
				return Config{}, err
			}
			break
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseInto(cfg *Config, data []byte, name string) error {
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", name, err)
	}
	merge(cfg, parsed)
	return nil
}

func merge(dst *Config, src Config) {
	if src.Ledger.Target != "" {
		dst.Ledger.Target = src.Ledger.Target
	}
	if src.Ledger.ApplicationID != "" {
		dst.Ledger.ApplicationID = src.Ledger.ApplicationID
	}
	if src.Ledger.Party != "" {
		dst.Ledger.Party = src.Ledger.Party
	}
	if src.Ledger.SubmitTimeout != 0 {
		dst.Ledger.SubmitTimeout = src.Ledger.SubmitTimeout
	}
	if src.Ledger.DialTimeout != 0 {
		dst.Ledger.DialTimeout = src.Ledger.DialTimeout
	}
	if src.Ledger.SubmitsPerSecond != 0 {
		dst.Ledger.SubmitsPerSecond = src.Ledger.SubmitsPerSecond
	}
	if src.Scan.BaseURL != "" {
		dst.Scan.BaseURL = src.Scan.BaseURL
	}
	if src.Auth.Mode != "" {
		dst.Auth.Mode = src.Auth.Mode
	}
	if src.Auth.TokenURL != "" {
		dst.Auth.TokenURL = src.Auth.TokenURL
	}
	if src.Auth.ClientID != "" {
		dst.Auth.ClientID = src.Auth.ClientID
	}
	if src.Auth.ClientSecret != "" {
		dst.Auth.ClientSecret = src.Auth.ClientSecret
	}
	if src.Auth.Audience != "" {
		dst.Auth.Audience = src.Auth.Audience
	}
	if src.Auth.Scopes != nil {
		dst.Auth.Scopes = src.Auth.Scopes
	}
	if src.Auth.Secret != "" {
		dst.Auth.Secret = src.Auth.Secret
	}
	if src.Auth.UserID != "" {
		dst.Auth.UserID = src.Auth.UserID
	}
	if src.Auth.TTL != 0 {
		dst.Auth.TTL = src.Auth.TTL
	}
	if src.Metrics.Listen != "" {
		dst.Metrics.Listen = src.Metrics.Listen
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
}

func applyEnvOverrides(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Ledger.Target, "LW_LEDGER_TARGET")
	setString(&cfg.Ledger.ApplicationID, "LW_APPLICATION_ID")
	setString(&cfg.Ledger.Party, "LW_PARTY")
	setString(&cfg.Scan.BaseURL, "LW_SCAN_BASE_URL")
	setString(&cfg.Auth.Mode, "LW_AUTH_MODE")
	setString(&cfg.Auth.TokenURL, "LW_AUTH_TOKEN_URL")
	setString(&cfg.Auth.ClientID, "LW_AUTH_CLIENT_ID")
	setString(&cfg.Auth.ClientSecret, "LW_AUTH_CLIENT_SECRET")
	setString(&cfg.Auth.Audience, "LW_AUTH_AUDIENCE")
	setString(&cfg.Auth.Secret, "LW_AUTH_SECRET")
	setString(&cfg.Auth.UserID, "LW_AUTH_USER_ID")
	setString(&cfg.Metrics.Listen, "LW_METRICS_LISTEN")
	setString(&cfg.Log.Level, "LW_LOG_LEVEL")

	if raw := strings.TrimSpace(os.Getenv("LW_SUBMIT_TIMEOUT")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.Ledger.SubmitTimeout = d
		}
	}
	if raw := strings.TrimSpace(os.Getenv("LW_SUBMITS_PER_SECOND")); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.Ledger.SubmitsPerSecond = f
		}
	}
}

func (c Config) validate() error {
	if c.Ledger.Target == "" {
		return fmt.Errorf("config: ledger.target is required")
	}
	if c.Ledger.ApplicationID == "" {
		return fmt.Errorf("config: ledger.applicationId is required")
	}
	switch c.Auth.Mode {
	case "none":
	case "oauth":
		if c.Auth.TokenURL == "" || c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
			return fmt.Errorf("config: auth mode oauth requires tokenUrl, clientId and clientSecret")
		}
	case "shared-secret":
		if c.Auth.Secret == "" || c.Auth.UserID == "" {
			return fmt.Errorf("config: auth mode shared-secret requires secret and userId")
		}
	default:
		return fmt.Errorf("config: unknown auth mode %q", c.Auth.Mode)
	}
	return nil
}
