// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

// Package logctx wraps zap with the small set of conventions the rest of
// this module relies on: one base logger per process, a named
// sub-logger per component (the node command names "produce" and "node"), and a
// production JSON encoder in normal operation with a human-readable
// console encoder under -dev.
package logctx

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the base logger. dev selects zap's console encoder and debug
// level, matching the CLI's --dev flag; otherwise it builds the default
// JSON production config.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	return zap.NewProduction()
}

// Component returns a child logger tagged with name, used so log lines from
// different components can be filtered independently.
func Component(base *zap.Logger, name string) *zap.SugaredLogger {
	return base.Named(name).Sugar()
}

// Nop returns a logger that discards everything, for tests and callers that
// have not wired a real one.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
