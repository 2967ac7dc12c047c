// Package config loads service configuration from a YAML file with
// environment variable overrides (SEIRAN_ prefix, "__" as the nesting
// separator, e.g. SEIRAN_SESSION__SECRET).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SEIRAN_"

// Config is everything the account service reads at startup.
type Config struct {
	Addr         string `koanf:"addr"`
	PgDSN        string `koanf:"pg_dsn"`
	Debug        bool   `koanf:"debug"`
	Registration bool   `koanf:"registration"`

	Session struct {
		Secret string        `koanf:"secret"`
		TTL    time.Duration `koanf:"ttl"`
	} `koanf:"session"`

	Captcha struct {
		Secret string `koanf:"secret"`
	} `koanf:"captcha"`

	RateLimit struct {
		Burst     int `koanf:"burst"`
		PerSecond int `koanf:"per_second"`
	} `koanf:"rate_limit"`

	// SlowGate bounds concurrent KDF computations; 0 means GOMAXPROCS.
	SlowGate int `koanf:"slow_gate"`

	DisallowedNames     []string `koanf:"disallowed_names"`
	DisallowedPasswords []string `koanf:"disallowed_passwords"`
}

// Load reads the YAML file at path (skipped when the file does not exist)
// and applies environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{Registration: true}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 20
	}
	if c.RateLimit.PerSecond <= 0 {
		c.RateLimit.PerSecond = 10
	}
}
