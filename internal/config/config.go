// Package config loads the engine configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the paper-trading engine.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Trading  Trading  `yaml:"trading"`
	Quotes   Quotes   `yaml:"quotes"`
	Logging  Logging  `yaml:"logging"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Database holds the PostgreSQL connection settings. An empty URL selects
// the in-memory store.
type Database struct {
	URL string `yaml:"url"`
}

// Redis configures the optional read-through session cache.
type Redis struct {
	URL        string `yaml:"url"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// Trading defines slippage and risk parameters for order execution.
type Trading struct {
	SlippageMinPct      float64 `yaml:"slippage_min_pct"`
	SlippageMaxPct      float64 `yaml:"slippage_max_pct"`
	MaxOrderValue       float64 `yaml:"max_order_value"`       // 0 disables
	MaxPositionQuantity float64 `yaml:"max_position_quantity"` // 0 disables
}

// Quotes configures the simulated price feed.
type Quotes struct {
	VariationPct float64            `yaml:"variation_pct"`
	Prices       map[string]float64 `yaml:"prices"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: Server{Host: "0.0.0.0", Port: 8080},
		Redis:  Redis{TTLSeconds: 30},
		Trading: Trading{
			SlippageMinPct: 0.5,
			SlippageMaxPct: 2.0,
		},
		Quotes:  Quotes{VariationPct: 5},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Load reads the YAML configuration file at the given path, parses it on
// top of the defaults, and applies environment variable overrides. An
// empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Trading.SlippageMinPct < 0 || c.Trading.SlippageMaxPct < c.Trading.SlippageMinPct {
		return fmt.Errorf("config: invalid slippage band [%v, %v]",
			c.Trading.SlippageMinPct, c.Trading.SlippageMaxPct)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Addr returns the listen address in host:port form.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
