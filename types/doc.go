// Package types defines the shared vocabulary of the pipeline engine:
// structured errors with stable codes, and the execution/step status
// enums used by both the store and the orchestrator.
package types
