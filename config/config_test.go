// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkcore/sequencer/produce"
)

func TestLoadAppliesDefaultsWithoutAFile(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, Default().DataDir, cfg.DataDir)
	assert.Equal(t, MiningModeInstant, cfg.Mining.Mode)
}

func TestMiningConfigProducerConfig(t *testing.T) {
	pc, err := MiningConfig{Mode: MiningModeInstant}.ProducerConfig()
	require.NoError(t, err)
	assert.Equal(t, produce.ModeInstant, pc.Mode)

	_, err = MiningConfig{Mode: MiningModeInterval}.ProducerConfig()
	assert.Error(t, err, "interval mode requires a positive interval")

	pc, err = MiningConfig{Mode: MiningModeInterval, Interval: 2 * time.Second}.ProducerConfig()
	require.NoError(t, err)
	assert.Equal(t, produce.ModeInterval, pc.Mode)
	assert.Equal(t, 2*time.Second, pc.Interval)

	_, err = MiningConfig{Mode: "bogus"}.ProducerConfig()
	assert.Error(t, err)
}

func TestChainConfigExecutorCfgEnvRejectsBadHex(t *testing.T) {
	c := Default().Chain
	c.ChainID = "not-hex"
	_, err := c.ExecutorCfgEnv()
	assert.Error(t, err)
}

func TestChainConfigExecutorCfgEnvParsesDefaults(t *testing.T) {
	env, err := Default().Chain.ExecutorCfgEnv()
	require.NoError(t, err)
	assert.False(t, env.ChainID.IsZero())
	assert.False(t, env.FeeTokenAddresses.ETH.Felt().IsZero())
}

func TestWriteChainConfigDirRoundTrips(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteChainConfigDir(dir, Default()))

	cfg, err := Load(viper.New(), filepath.Join(dir, configFileName))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	assert.Equal(t, Default().Chain.ChainID, cfg.Chain.ChainID)
}
