package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment
// variables (§6 "Configuration").
type Config struct {
	// Network selects mainnet or testnet address encoding and the default
	// activation height.
	Network string `envconfig:"BRC20_NETWORK" default:"mainnet"`

	// ActivationHeight overrides the per-network default start height.
	// Zero means "use the network default".
	ActivationHeight int64 `envconfig:"BRC20_ACTIVATION_HEIGHT" default:"0"`

	// StorePath is the sqlite DSN path for the persistent store.
	StorePath string `envconfig:"BRC20_STORE_PATH" default:"./data/brc20indexer.sqlite"`

	// StoreRetries bounds retries on transient store errors (§5, §7).
	StoreRetries int `envconfig:"BRC20_STORE_RETRIES" default:"10"`

	// NodeRPCHost/User/Pass/TLS configure the Bitcoin node RPC collaborator (§6).
	NodeRPCHost string `envconfig:"BRC20_NODE_RPC_HOST" default:"127.0.0.1:8332"`
	NodeRPCUser string `envconfig:"BRC20_NODE_RPC_USER"`
	NodeRPCPass string `envconfig:"BRC20_NODE_RPC_PASS"`
	NodeRPCTLS  bool   `envconfig:"BRC20_NODE_RPC_TLS" default:"false"`

	LogLevel string `envconfig:"BRC20_LOG_LEVEL" default:"info"`
	LogDir   string `envconfig:"BRC20_LOG_DIR" default:"./logs"`

	HTTPAddr string `envconfig:"BRC20_HTTP_ADDR" default:":8090"`
}

// Load reads configuration from a .env file (if present) then from
// environment variables. Environment variables override .env values,
// exactly as the teacher's Load does.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			slog.Warn("failed to load .env file", "error", err)
		} else {
			slog.Info("loaded .env file")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}

	if cfg.ActivationHeight == 0 {
		cfg.ActivationHeight = cfg.defaultActivationHeight()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Network != "mainnet" && c.Network != "testnet" {
		return fmt.Errorf("%w: network must be \"mainnet\" or \"testnet\", got %q", ErrInvalidConfig, c.Network)
	}
	if c.StoreRetries < 0 {
		return fmt.Errorf("%w: store retries must be >= 0, got %d", ErrInvalidConfig, c.StoreRetries)
	}
	if c.ActivationHeight < 0 {
		return fmt.Errorf("%w: activation height must be >= 0, got %d", ErrInvalidConfig, c.ActivationHeight)
	}
	return nil
}

// defaultActivationHeight returns the protocol's canonical start height for
// the configured network.
func (c *Config) defaultActivationHeight() int64 {
	if c.Network == "testnet" {
		return ActivationHeightTestnet
	}
	return ActivationHeightMainnet
}
