package store

import (
	"context"
	"time"

	"github.com/BaSui01/pipeflow/types"
)

// Scope narrows definition access to one user. The zero value is
// service-level access and sees everything.
type Scope struct {
	UserID        string
	IncludeSystem bool
}

// service reports whether the scope grants unrestricted access.
func (s Scope) service() bool { return s.UserID == "" }

// ExecutionFilter selects executions for listing.
type ExecutionFilter struct {
	Status    types.ExecutionStatus
	Initiator string
	Since     *time.Time
	Until     *time.Time
}

// AwaitingStats summarizes steps currently suspended on external events.
type AwaitingStats struct {
	Count            int64
	EarliestDeadline *time.Time
}

// Store is the persistence boundary for definitions, executions, and
// step state. Update methods use optimistic locking: they compare the
// version the caller holds and return OPTIMISTIC_LOCK when another
// writer got there first.
type Store interface {
	// Definitions.
	CreateDefinition(ctx context.Context, def *PipelineDefinition) error
	GetDefinition(ctx context.Context, id string, scope Scope) (*PipelineDefinition, error)
	ListDefinitions(ctx context.Context, scope Scope, offset, limit int) ([]*PipelineDefinition, int64, error)
	UpdateDefinition(ctx context.Context, def *PipelineDefinition, scope Scope) error
	DeleteDefinition(ctx context.Context, id string, scope Scope) error

	// Executions.
	CreateExecution(ctx context.Context, exec *PipelineExecution) error
	GetExecution(ctx context.Context, id string) (*PipelineExecution, error)
	UpdateExecution(ctx context.Context, exec *PipelineExecution) error
	ListExecutions(ctx context.Context, filter ExecutionFilter, offset, limit int) ([]*PipelineExecution, int64, error)

	// Steps.
	CreateStepBatch(ctx context.Context, steps []*StepExecution) error
	GetStep(ctx context.Context, id string) (*StepExecution, error)
	GetStepsByExecution(ctx context.Context, executionID string) ([]*StepExecution, error)
	UpdateStep(ctx context.Context, step *StepExecution) error
	GetStepByCorrelation(ctx context.Context, externalWorkflowID string) (*StepExecution, error)

	// Timeout sweeping.
	ListAwaitingOverdue(ctx context.Context, now time.Time, limit int) ([]*StepExecution, error)
	GetAwaitingStats(ctx context.Context) (*AwaitingStats, error)

	// Retention.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
