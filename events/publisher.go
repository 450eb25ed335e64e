package events

import (
	"context"
	"time"
)

// Event types emitted over callback topics.
const (
	TypeStepStarted       = "step.started"
	TypeStepCompleted     = "step.completed"
	TypeStepFailed        = "step.failed"
	TypeWorkflowProgress  = "workflow.progress"
	TypeWorkflowCompleted = "workflow.completed"
	TypeWorkflowFailed    = "workflow.failed"
)

// Event is one progress notification for an execution.
type Event struct {
	Type          string         `json:"type"`
	ExecutionID   string         `json:"execution_id"`
	Timestamp     string         `json:"timestamp"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	StepID        string         `json:"step_id,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType, executionID string) Event {
	return Event{
		Type:        eventType,
		ExecutionID: executionID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// Publisher delivers events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
	Close() error
}

// NopPublisher discards everything. Used when no event transport is
// configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
func (NopPublisher) Close() error                                 { return nil }
