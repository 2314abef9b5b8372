package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all vepower configuration.
type Config struct {
	Server struct {
		Bind string `yaml:"bind"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Auth struct {
		// Tokens that may invoke mutating operations. Empty list leaves the
		// API open, intended for local development only.
		Tokens []string `yaml:"tokens"`
	} `yaml:"auth"`
	Checkpoint struct {
		Cron    string `yaml:"cron"`
		OnStart bool   `yaml:"on_start"`
	} `yaml:"checkpoint"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is fine; defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Checkpoint.OnStart = true

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("VEPOWER_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("VEPOWER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse VEPOWER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("VEPOWER_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("VEPOWER_TOKENS"); v != "" {
		cfg.Auth.Tokens = strings.Split(v, ",")
	}
	if v := os.Getenv("VEPOWER_CHECKPOINT_CRON"); v != "" {
		cfg.Checkpoint.Cron = v
	}

	// Defaults
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Checkpoint.Cron == "" {
		cfg.Checkpoint.Cron = "0 * * * *" // hourly
	}

	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
