package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/BaSui01/pipeflow/types"
)

// ActionContext carries everything a handler may read while executing
// one step.
type ActionContext struct {
	ExecutionID string
	StepID      string
	// Params are the step's resolved parameters.
	Params map[string]any
	// WorkflowParams are the execution-level input parameters.
	WorkflowParams map[string]any
	// StepOutputs maps completed step ids to their outputs.
	StepOutputs map[string]any
}

// ActionResult is the outcome of a handler execution. AwaitingEvent
// suspends the step until an external event arrives via the router or
// its deadline passes.
type ActionResult struct {
	Success            bool
	Outputs            map[string]any
	Error              string
	AwaitingEvent      bool
	ExternalWorkflowID string
	TimeoutSeconds     int
}

// ActionHandler executes one step action synchronously or initiates an
// event-driven one.
type ActionHandler interface {
	// Type is the action name steps reference.
	Type() string
	// RequiredParams lists parameters that must be present after
	// resolution; dispatch fails without them.
	RequiredParams() []string
	Execute(ctx context.Context, actx *ActionContext) (*ActionResult, error)
}

// DecisionAction tells the router what to do with an inbound event.
type DecisionAction string

const (
	DecisionComplete DecisionAction = "COMPLETE"
	DecisionIgnore   DecisionAction = "IGNORE"
	DecisionContinue DecisionAction = "CONTINUE"
)

// EventContext carries an inbound external event to the handler that
// owns the awaiting step.
type EventContext struct {
	ExecutionID string
	StepID      string
	// Payload is the raw external event body.
	Payload map[string]any
}

// EventDecision is a handler's verdict on an inbound event.
type EventDecision struct {
	Action DecisionAction
	// Status overrides the step's terminal status on COMPLETE;
	// empty means COMPLETED on success, FAILED when Error is set.
	Status types.StepStatus
	// Outputs are applied to the step on COMPLETE.
	Outputs map[string]any
	Error   string
	// Progress updates the step's progress on CONTINUE.
	Progress float64
}

// EventHandler is implemented by event-driven action handlers in
// addition to ActionHandler.
type EventHandler interface {
	OnEvent(ctx context.Context, ectx *EventContext) (*EventDecision, error)
}

// Registry maps action type names to handlers. Safe for concurrent
// use; registration normally happens once at startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]ActionHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]ActionHandler)}
}

// Register adds a handler. Registering the same type twice is an
// error to catch wiring mistakes early.
func (r *Registry) Register(h ActionHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h.Type() == "" {
		return fmt.Errorf("handler with empty action type")
	}
	if _, exists := r.handlers[h.Type()]; exists {
		return fmt.Errorf("handler %q already registered", h.Type())
	}
	r.handlers[h.Type()] = h
	return nil
}

// MustRegister panics on a registration error. For built-in wiring.
func (r *Registry) MustRegister(h ActionHandler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Get returns the handler for an action type.
func (r *Registry) Get(actionType string) (ActionHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[actionType]
	if !ok {
		return nil, types.Errorf(types.ErrHandlerNotFound, "no handler for action %q", actionType)
	}
	return h, nil
}

// Types lists registered action types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// checkRequired verifies a resolved parameter set against the
// handler's declared requirements.
func checkRequired(h ActionHandler, params map[string]any) error {
	for _, name := range h.RequiredParams() {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("action %q missing required param %q", h.Type(), name)
		}
	}
	return nil
}
