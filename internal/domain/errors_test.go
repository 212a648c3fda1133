package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolErrorExposesSentinelAndCause(t *testing.T) {
	err := &ToolError{Tool: "shell", Err: context.DeadlineExceeded}

	assert.ErrorIs(t, err, ErrTool)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Wrapping keeps both reachable.
	wrapped := fmt.Errorf("step failed: %w", err)
	assert.ErrorIs(t, wrapped, ErrTool)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
}

func TestToolErrorWithoutCause(t *testing.T) {
	err := &ToolError{Tool: "shell"}
	assert.ErrorIs(t, err, ErrTool)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestStorageSentinelsAreDistinct(t *testing.T) {
	ioFailure := fmt.Errorf("save plan: %w: %w", ErrIO, errors.New("disk full"))
	assert.ErrorIs(t, ioFailure, ErrIO)
	assert.False(t, errors.Is(ioFailure, ErrSerialization))

	codecFailure := fmt.Errorf("unmarshal plan: %w: %w", ErrSerialization, errors.New("bad json"))
	assert.ErrorIs(t, codecFailure, ErrSerialization)
	assert.False(t, errors.Is(codecFailure, ErrIO))
}
