// Package config loads process configuration for bsqparserd, grounded on
// the teacher's config/config.go flag+YAML layering.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	"gopkg.in/yaml.v3"
)

// RPCConfig is the underlying chain node's RPC connection info.
type RPCConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Config is the full process configuration.
type Config struct {
	Network string `yaml:"network"` // mainnet | testnet | regtest

	GenesisBlockHeight      uint32 `yaml:"genesis_block_height"`
	GenesisTxID             string `yaml:"genesis_tx_id"`
	MaxIntraBlockRecursions int    `yaml:"max_intra_block_recursions"`
	WarnRecursionThreshold  int    `yaml:"warn_recursion_threshold"`
	DevMode                 bool   `yaml:"dev_mode"`

	TxConcurrency        int    `yaml:"tx_concurrency"`
	CatchUpPollInterval  int    `yaml:"catch_up_poll_interval_seconds"`
	JournalDBPath        string `yaml:"journal_db_path"`
	SnapshotDBPath       string `yaml:"snapshot_db_path"`
	SnapshotRetainBlocks int    `yaml:"snapshot_retain_blocks"`

	MetricsAddr string `yaml:"metrics_addr"`
	HTTPAddr    string `yaml:"http_addr"`

	RPC RPCConfig `yaml:"rpc"`
}

// Default returns a Config with the spec's reference guard values and
// sane operational defaults.
func Default() Config {
	return Config{
		Network:                 "mainnet",
		MaxIntraBlockRecursions: 5300,
		WarnRecursionThreshold:  100,
		TxConcurrency:           8,
		CatchUpPollInterval:     10,
		JournalDBPath:           "./data/journal.db",
		SnapshotDBPath:          "./data/snapshot",
		SnapshotRetainBlocks:    10000,
		MetricsAddr:             ":9400",
		HTTPAddr:                ":8080",
	}
}

// Load reads a YAML file at path over the defaults, then applies flag
// overrides from args, mirroring the teacher's config.LoadConfig
// flag-then-yaml layering.
func Load(path string, args []string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	fs := flag.NewFlagSet("bsqparserd", flag.ContinueOnError)
	genesisHeight := uint(cfg.GenesisBlockHeight)
	fs.StringVar(&cfg.Network, "network", cfg.Network, "chain network: mainnet, testnet, regtest")
	fs.UintVar(&genesisHeight, "genesis-height", genesisHeight, "genesis block height")
	fs.StringVar(&cfg.GenesisTxID, "genesis-tx", cfg.GenesisTxID, "genesis transaction id")
	fs.BoolVar(&cfg.DevMode, "dev-mode", cfg.DevMode, "throw on fatal invariant violations instead of logging and rejecting")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "read-only HTTP surface listen address")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("failed to parse flags: %w", err)
	}
	cfg.GenesisBlockHeight = uint32(genesisHeight)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration is internally consistent.
func (c Config) Validate() error {
	if c.GenesisTxID == "" {
		return fmt.Errorf("genesis_tx_id is required")
	}
	if _, err := c.ChainParams(); err != nil {
		return err
	}
	return nil
}

// ChainParams resolves the network name to btcd chain parameters,
// grounded on the teacher's Config.GetChainParams.
func (c Config) ChainParams() (*chaincfg.Params, error) {
	switch c.Network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network: %s", c.Network)
	}
}
