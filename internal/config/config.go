package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models ncp.yml.
type Config struct {
	Chain struct {
		ID   int64  `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"chain"`
	SessionKeys struct {
		TTLDays int `yaml:"ttl_days"`
	} `yaml:"session_keys"`
	Permissions struct {
		DefaultPeriodSeconds int64  `yaml:"default_period_seconds"`
		Justification        string `yaml:"justification"`
	} `yaml:"permissions"`
	Tokens map[string]Token `yaml:"tokens"`
}

// Token describes a known fungible asset used to fill in contract
// address and decimals when a scope node omits them.
type Token struct {
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Chain.ID <= 0 {
		return fmt.Errorf("config.chain.id must be a positive chain id")
	}
	if c.SessionKeys.TTLDays <= 0 {
		return fmt.Errorf("config.session_keys.ttl_days must be positive")
	}
	if c.Permissions.DefaultPeriodSeconds <= 0 {
		return fmt.Errorf("config.permissions.default_period_seconds must be positive")
	}
	for symbol, t := range c.Tokens {
		if symbol == "" {
			return fmt.Errorf("config.tokens contains an empty symbol")
		}
		if t.Address == "" {
			return fmt.Errorf("token %s has no contract address", symbol)
		}
		if t.Decimals < 0 || t.Decimals > 36 {
			return fmt.Errorf("token %s has invalid decimals %d", symbol, t.Decimals)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "ncp.yml")
}

// Load reads config from workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML for ncp.yml.
func GenerateDefault() string { return defaultTemplate }

const defaultTemplate = `chain:
  id: 11155111
  name: sepolia

session_keys:
  ttl_days: 7

permissions:
  default_period_seconds: 86400
  justification: "Automated transfer composed in the workflow editor"

tokens:
  USDC:
    address: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
    decimals: 6
  WETH:
    address: "0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"
    decimals: 18
`
