package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Definition and expression error codes
const (
	ErrDAGParse            ErrorCode = "DAG_PARSE"
	ErrDAGValidation       ErrorCode = "DAG_VALIDATION"
	ErrParameterResolution ErrorCode = "PARAMETER_RESOLUTION"
	ErrConditionEvaluation ErrorCode = "CONDITION_EVALUATION"
)

// Store error codes
const (
	ErrOptimisticLock   ErrorCode = "OPTIMISTIC_LOCK"
	ErrWorkflowNotFound ErrorCode = "WORKFLOW_NOT_FOUND"
)

// Runtime error codes
const (
	ErrHandlerNotFound ErrorCode = "HANDLER_NOT_FOUND"
	ErrStepTimeout     ErrorCode = "STEP_TIMEOUT"
	ErrPublishFailed   ErrorCode = "PUBLISH_FAILED"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	EntityID  string    `json:"entity_id,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithEntityID tags the error with the id of the entity it concerns,
// e.g. the execution or step whose version check failed.
func (e *Error) WithEntityID(id string) *Error {
	e.EntityID = id
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsCode reports whether err carries the given error code anywhere in
// its chain.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
