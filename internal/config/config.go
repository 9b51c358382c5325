// Package config loads and validates Toppy's typed configuration record.
//
// The file path is supplied via the TOPPY_CONFIG environment variable and
// parsed as TOML using viper, the way the pack's crc client loads its
// combined configuration from a file plus environment overrides.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/toppy-project/toppy/internal/policy"
)

// EnvConfigPath is the environment variable naming the config file.
const EnvConfigPath = "TOPPY_CONFIG"

// PolicyRule is the raw, TOML-shaped form of a policy.allow entry.
type PolicyRule struct {
	CIDR  string `mapstructure:"cidr"`
	Ports []int  `mapstructure:"ports"`
}

// PolicyConfig is the raw, TOML-shaped `[policy]` table.
type PolicyConfig struct {
	Allow []PolicyRule `mapstructure:"allow"`
}

// Config is the immutable configuration record described in spec.md §3.
// Once returned from Load, a Config is never mutated; it is safe to share
// across goroutines without synchronization.
type Config struct {
	Gateway    string       `mapstructure:"gateway"`
	Port       int          `mapstructure:"port"`
	ServerName string       `mapstructure:"server_name"`
	CACertPath string       `mapstructure:"ca_cert_path"`
	AuthToken  string       `mapstructure:"auth_token"`
	MTU        int          `mapstructure:"mtu"`
	Policy     PolicyConfig `mapstructure:"policy"`

	// Rules is the compiled, ready-to-evaluate form of Policy.Allow.
	// Populated by LoadFile (and so by Load), never by direct TOML
	// unmarshaling.
	Rules []policy.Rule `mapstructure:"-"`
}

// SNIName returns ServerName if set, else Gateway, matching spec.md §3's
// "server_name ... defaults to gateway" rule.
func (c *Config) SNIName() string {
	if c.ServerName != "" {
		return c.ServerName
	}
	return c.Gateway
}

// Load reads the TOML file named by TOPPY_CONFIG, validates it, and compiles
// the policy allow-list. It never falls back silently: a set-but-unreadable
// ca_cert_path is a load failure, not a trust-store downgrade.
func Load() (*Config, string, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return nil, "", fmt.Errorf("config.invalid: %s is not set", EnvConfigPath)
	}
	return LoadFile(path)
}

// LoadFile loads and validates a configuration file at an explicit path.
func LoadFile(path string) (*Config, string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, path, fmt.Errorf("config.invalid: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, path, fmt.Errorf("config.invalid: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, path, fmt.Errorf("config.invalid: %w", err)
	}

	rules, err := compileRules(cfg.Policy)
	if err != nil {
		return nil, path, fmt.Errorf("config.invalid: %w", err)
	}
	cfg.Rules = rules

	return &cfg, path, nil
}

func (c *Config) validate() error {
	if c.Gateway == "" {
		return fmt.Errorf("gateway must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..=65535, got %d", c.Port)
	}
	if c.MTU < 0 {
		return fmt.Errorf("mtu must be positive, got %d", c.MTU)
	}
	if c.CACertPath != "" {
		if _, err := os.ReadFile(c.CACertPath); err != nil {
			return fmt.Errorf("ca_cert_path %s: %w", c.CACertPath, err)
		}
	}
	return nil
}

func compileRules(pc PolicyConfig) ([]policy.Rule, error) {
	rules := make([]policy.Rule, 0, len(pc.Allow))
	for i, raw := range pc.Allow {
		rule, err := policy.NewRule(raw.CIDR, raw.Ports)
		if err != nil {
			return nil, fmt.Errorf("policy.allow[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
