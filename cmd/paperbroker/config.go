package main

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/tradecanvas/paperbroker/internal/broker"
	"github.com/tradecanvas/paperbroker/internal/types"
	"github.com/tradecanvas/paperbroker/pkg/errors"
	"gopkg.in/yaml.v3"
)

// StoreConfig selects the snapshot store backend.
type StoreConfig struct {
	// Type is "duckdb" or "memory".
	Type string `yaml:"type" validate:"omitempty,oneof=duckdb memory"`
	// Path is the database file for the duckdb backend.
	Path string `yaml:"path"`
}

// FeedConfig selects the tick transport.
type FeedConfig struct {
	// Type is "binance" or "websocket".
	Type string `yaml:"type" validate:"required,oneof=binance websocket"`
	// URL is the endpoint for the generic websocket feed.
	URL string `yaml:"url"`
}

// AppConfig is the YAML configuration for the paperbroker daemon.
type AppConfig struct {
	Engine   broker.Config         `yaml:"engine"`
	Store    StoreConfig           `yaml:"store"`
	Feed     FeedConfig            `yaml:"feed"`
	Symbols  []string              `yaml:"symbols" validate:"required,min=1"`
	Slippage *types.SlippageConfig `yaml:"slippage"`
}

// LoadAppConfig reads and validates the configuration file.
func LoadAppConfig(path string) (AppConfig, error) {
	var cfg AppConfig

	payload, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(errors.ErrCodeInvalidCommand, err, "failed to read config %s", path)
	}

	if err := yaml.Unmarshal(payload, &cfg); err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidCommand, "failed to parse config", err)
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = "duckdb"
	}

	if cfg.Store.Type == "duckdb" && cfg.Store.Path == "" {
		cfg.Store.Path = "data/paperbroker.db"
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidCommand, "invalid config", err)
	}

	return cfg, nil
}
