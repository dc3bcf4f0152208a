// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutorErrorWrapsBatchAborted(t *testing.T) {
	e := &ExecutorError{TxIndex: 3, Err: ErrBatchAborted}
	assert.Contains(t, e.Error(), "tx 3")
	assert.True(t, errors.Is(e, ErrBatchAborted))
}

func TestNewExecutionOutputIsEmptyButInitialized(t *testing.T) {
	out := NewExecutionOutput()
	assert.NotNil(t, out.StateUpdates)
	assert.NotNil(t, out.Classes)
	assert.Empty(t, out.Transactions)
}
