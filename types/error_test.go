package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	err := NewError(ErrDAGValidation, "duplicate step id: build")
	assert.Equal(t, "[DAG_VALIDATION] duplicate step id: build", err.Error())

	cause := errors.New("yaml: line 3: mapping values are not allowed")
	wrapped := NewError(ErrDAGParse, "parse pipeline definition").WithCause(cause)
	assert.Contains(t, wrapped.Error(), "DAG_PARSE")
	assert.Contains(t, wrapped.Error(), cause.Error())
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestErrorChaining(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrOptimisticLock, "stale version").WithEntityID("exec-1")
	outer := fmt.Errorf("update execution: %w", inner)

	assert.True(t, IsCode(outer, ErrOptimisticLock))
	assert.False(t, IsCode(outer, ErrWorkflowNotFound))
	assert.Equal(t, ErrOptimisticLock, GetErrorCode(outer))

	var e *Error
	require.True(t, errors.As(outer, &e))
	assert.Equal(t, "exec-1", e.EntityID)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(NewError(ErrDAGValidation, "bad graph")))
	assert.True(t, IsRetryable(NewError(ErrOptimisticLock, "conflict").WithRetryable(true)))
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   StepStatus
		terminal bool
	}{
		{StepPending, false},
		{StepRunning, false},
		{StepRetrying, false},
		{StepCompleted, true},
		{StepFailed, true},
		{StepSkipped, true},
		{StepTimeout, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.terminal, tt.status.Terminal(), string(tt.status))
	}

	assert.False(t, ExecutionRunning.Terminal())
	assert.True(t, ExecutionFailed.Terminal())
	assert.True(t, ExecutionInterrupted.Terminal())
}

func TestStepStatusSatisfied(t *testing.T) {
	t.Parallel()

	assert.True(t, StepCompleted.Satisfied())
	assert.True(t, StepSkipped.Satisfied())
	assert.False(t, StepFailed.Satisfied())
	assert.False(t, StepTimeout.Satisfied())
	assert.False(t, StepRunning.Satisfied())
}
