package types

// ExecutionStatus is the lifecycle state of a pipeline execution.
type ExecutionStatus string

const (
	ExecutionPending     ExecutionStatus = "PENDING"
	ExecutionRunning     ExecutionStatus = "RUNNING"
	ExecutionCompleted   ExecutionStatus = "COMPLETED"
	ExecutionFailed      ExecutionStatus = "FAILED"
	ExecutionInterrupted ExecutionStatus = "INTERRUPTED"
)

// Terminal reports whether the execution can make no further progress.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionInterrupted:
		return true
	}
	return false
}

// StepStatus is the lifecycle state of a single step execution.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
	StepRetrying  StepStatus = "RETRYING"
	StepTimeout   StepStatus = "TIMEOUT"
)

// Terminal reports whether the step can make no further progress.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped, StepTimeout:
		return true
	}
	return false
}

// Satisfied reports whether the step counts as a satisfied dependency
// for its dependents. Failed steps satisfy dependents only when the
// step declared on_failure=continue, which the scheduler checks
// separately against the DAG.
func (s StepStatus) Satisfied() bool {
	return s == StepCompleted || s == StepSkipped
}
