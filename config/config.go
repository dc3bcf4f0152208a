// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package config loads the node's on-disk configuration: chain parameters
// (chain id, fee tokens, VM step limits), the mining mode the block
// producer starts in, and process-level settings (data directory, dev
// logging). Grounded on the teacher's convention of a single flat
// configuration struct unmarshalled by viper, with STARKSEQ_-prefixed
// environment overrides layered on top of a config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/starkcore/sequencer/executor"
	"github.com/starkcore/sequencer/felt"
	"github.com/starkcore/sequencer/produce"
)

// MiningMode names the producer's mining mode in configuration, mirroring
// produce.Mode but as a string so it round-trips through YAML/env cleanly.
type MiningMode string

const (
	MiningModeInstant  MiningMode = "instant"
	MiningModeInterval MiningMode = "interval"
	MiningModeOnDemand MiningMode = "on_demand"
)

// MiningConfig configures the block producer's mode (spec §4.6, "three
// mining modes").
type MiningConfig struct {
	Mode     MiningMode    `mapstructure:"mode"`
	Interval time.Duration `mapstructure:"interval"`
}

// ProducerConfig translates MiningConfig into produce.Config, validating
// the mode name.
func (m MiningConfig) ProducerConfig() (produce.Config, error) {
	switch m.Mode {
	case MiningModeInstant, "":
		return produce.Config{Mode: produce.ModeInstant}, nil
	case MiningModeInterval:
		if m.Interval <= 0 {
			return produce.Config{}, fmt.Errorf("config: mining.interval must be positive in interval mode")
		}
		return produce.Config{Mode: produce.ModeInterval, Interval: m.Interval}, nil
	case MiningModeOnDemand:
		return produce.Config{Mode: produce.ModeOnDemand}, nil
	default:
		return produce.Config{}, fmt.Errorf("config: unknown mining mode %q", m.Mode)
	}
}

// FeeTokens names the two fee token contract addresses a chain accepts, as
// hex strings in configuration (spec §4.4, "fee-token addresses").
type FeeTokens struct {
	ETH  string `mapstructure:"eth"`
	STRK string `mapstructure:"strk"`
}

// ChainConfig is the chain-wide parameter set an ExecutorFactory is built
// from (spec §4.4's CfgEnv, plus the genesis chain id every Starknet node
// is identified by).
type ChainConfig struct {
	ChainID           string    `mapstructure:"chain_id"`
	FeeTokens         FeeTokens `mapstructure:"fee_tokens"`
	InvokeMaxSteps    uint32    `mapstructure:"invoke_max_steps"`
	ValidateMaxSteps  uint32    `mapstructure:"validate_max_steps"`
	MaxRecursionDepth uint32    `mapstructure:"max_recursion_depth"`
}

// ExecutorCfgEnv parses ChainConfig's hex fields into an executor.CfgEnv,
// the shape an ExecutorFactory is actually constructed with.
func (c ChainConfig) ExecutorCfgEnv() (executor.CfgEnv, error) {
	chainID, err := felt.ParseHex(c.ChainID)
	if err != nil {
		return executor.CfgEnv{}, fmt.Errorf("config: chain_id: %w", err)
	}
	eth, err := felt.ParseHex(c.FeeTokens.ETH)
	if err != nil {
		return executor.CfgEnv{}, fmt.Errorf("config: fee_tokens.eth: %w", err)
	}
	strk, err := felt.ParseHex(c.FeeTokens.STRK)
	if err != nil {
		return executor.CfgEnv{}, fmt.Errorf("config: fee_tokens.strk: %w", err)
	}
	return executor.CfgEnv{
		ChainID: chainID,
		FeeTokenAddresses: executor.FeeTokenAddresses{
			ETH:  felt.NewContractAddress(eth),
			STRK: felt.NewContractAddress(strk),
		},
		InvokeTxMaxNSteps: c.InvokeMaxSteps,
		ValidateMaxNSteps: c.ValidateMaxSteps,
		MaxRecursionDepth: c.MaxRecursionDepth,
	}, nil
}

// NodeConfig is the whole of a node process's configuration (spec §6,
// "CLI surface" / "node launch").
type NodeConfig struct {
	DataDir string       `mapstructure:"datadir"`
	Dev     bool         `mapstructure:"dev"`
	Chain   ChainConfig  `mapstructure:"chain"`
	Mining  MiningConfig `mapstructure:"mining"`
}

// DefaultDataDir is where a node stores its database when neither a flag
// nor a config file names one.
const DefaultDataDir = "./starkseq-data"

// sepoliaChainID is Starknet Sepolia's chain id ("SN_SEPOLIA" ASCII-packed),
// used as the default so `starkseqd init` produces a runnable config
// without the operator having to know the encoding offhand.
const sepoliaChainID = "0x534e5f5345504f4c4941"

// Default returns the configuration `starkseqd init` writes out and the
// zero value most subcommands start from before flag/file/env overrides
// are layered on.
func Default() NodeConfig {
	return NodeConfig{
		DataDir: DefaultDataDir,
		Dev:     false,
		Chain: ChainConfig{
			ChainID: sepoliaChainID,
			FeeTokens: FeeTokens{
				ETH:  "0x49d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7",
				STRK: "0x4718f5a0fc34cc1af16a1cdee98ffb20c31f5cd61d6ab07201858f4287c938d",
			},
			InvokeMaxSteps:    4_000_000,
			ValidateMaxSteps:  1_000_000,
			MaxRecursionDepth: 50,
		},
		Mining: MiningConfig{Mode: MiningModeInstant},
	}
}

// Load builds a viper instance seeded with Default()'s values, reads the
// config file at path when path is non-empty (an empty path reads no file;
// no default location is searched), and applies STARKSEQ_-prefixed
// environment variable overrides, mirroring the override precedence flags
// > env > file > defaults that the node's cobra commands rely on by
// binding their own flags into the same viper instance before calling
// Load.
func Load(v *viper.Viper, path string) (NodeConfig, error) {
	setDefaults(v, Default())
	v.SetEnvPrefix("STARKSEQ")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return NodeConfig{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg NodeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return NodeConfig{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d NodeConfig) {
	v.SetDefault("datadir", d.DataDir)
	v.SetDefault("dev", d.Dev)
	v.SetDefault("chain.chain_id", d.Chain.ChainID)
	v.SetDefault("chain.fee_tokens.eth", d.Chain.FeeTokens.ETH)
	v.SetDefault("chain.fee_tokens.strk", d.Chain.FeeTokens.STRK)
	v.SetDefault("chain.invoke_max_steps", d.Chain.InvokeMaxSteps)
	v.SetDefault("chain.validate_max_steps", d.Chain.ValidateMaxSteps)
	v.SetDefault("chain.max_recursion_depth", d.Chain.MaxRecursionDepth)
	v.SetDefault("mining.mode", string(d.Mining.Mode))
	v.SetDefault("mining.interval", d.Mining.Interval)
}

// configFileName is the file `init` writes and `Load` expects inside a
// chain config directory.
const configFileName = "config.yaml"

// WriteChainConfigDir scaffolds a chain config directory at dir: the
// config file itself plus an empty data subdirectory the node's datadir
// flag defaults to, matching spec §6's "(iii) init (create a chain config
// directory)".
func WriteChainConfigDir(dir string, cfg NodeConfig) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", dir, err)
	}
	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", dataDir, err)
	}
	cfg.DataDir = dataDir

	v := viper.New()
	setDefaults(v, cfg)
	v.SetConfigFile(filepath.Join(dir, configFileName))
	if err := v.WriteConfigAs(v.ConfigFileUsed()); err != nil {
		return fmt.Errorf("config: write %s: %w", v.ConfigFileUsed(), err)
	}
	return nil
}

// DefaultConfigPath returns the path of the config file `init` writes
// inside dir. Load does not consult it; a caller that wants this file read
// passes the returned path to Load.
func DefaultConfigPath(dir string) string {
	return filepath.Join(dir, configFileName)
}
