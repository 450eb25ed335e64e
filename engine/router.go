package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/pipeflow/store"
	"github.com/BaSui01/pipeflow/types"
)

// InboundEvent is a completion signal from an external system,
// correlated to an awaiting step by its external workflow id.
type InboundEvent struct {
	ExternalWorkflowID string         `json:"external_workflow_id"`
	Payload            map[string]any `json:"payload"`
}

// EventRouter matches inbound events to awaiting steps and lets the
// owning handler decide what to do with them.
type EventRouter struct {
	store        store.Store
	registry     *Registry
	orchestrator *Orchestrator
	logger       *zap.Logger
}

// NewEventRouter wires the router.
func NewEventRouter(st store.Store, registry *Registry, orchestrator *Orchestrator, logger *zap.Logger) *EventRouter {
	return &EventRouter{
		store:        st,
		registry:     registry,
		orchestrator: orchestrator,
		logger:       logger.With(zap.String("component", "event_router")),
	}
}

// OnEvent processes one inbound event. Events that match no awaiting
// step are ignored. A COMPLETE decision settles the step under its
// own version and resumes the owning execution; CONTINUE records
// progress only; IGNORE does nothing.
func (r *EventRouter) OnEvent(ctx context.Context, event InboundEvent) error {
	step, err := r.store.GetStepByCorrelation(ctx, event.ExternalWorkflowID)
	if err != nil {
		if types.IsCode(err, types.ErrWorkflowNotFound) {
			r.logger.Debug("event matched no awaiting step, ignored",
				zap.String("external_workflow_id", event.ExternalWorkflowID))
			return nil
		}
		return err
	}

	handler, err := r.registry.Get(step.HandlerType)
	if err != nil {
		return err
	}
	eventHandler, ok := handler.(EventHandler)
	if !ok {
		r.logger.Warn("handler cannot process events, ignoring",
			zap.String("action", step.HandlerType),
			zap.String("step_id", step.StepID))
		return nil
	}

	decision, err := eventHandler.OnEvent(ctx, &EventContext{
		ExecutionID: step.ExecutionID,
		StepID:      step.StepID,
		Payload:     event.Payload,
	})
	if err != nil {
		return err
	}
	if decision == nil {
		decision = &EventDecision{Action: DecisionIgnore}
	}

	switch decision.Action {
	case DecisionIgnore:
		r.logger.Debug("event ignored by handler",
			zap.String("step_id", step.StepID))
		return nil

	case DecisionContinue:
		// Intermediate progress; the step stays awaiting.
		if decision.Progress > step.Progress {
			step.Progress = decision.Progress
			if err := r.store.UpdateStep(ctx, step); err != nil {
				return err
			}
		}
		return nil

	case DecisionComplete:
		return r.complete(ctx, step, decision)

	default:
		r.logger.Warn("unknown decision action, ignoring",
			zap.String("action", string(decision.Action)))
		return nil
	}
}

// complete settles the step under the version read at correlation
// time. A racing timeout sweep wins the version race and this write
// surfaces OPTIMISTIC_LOCK instead of resurrecting a timed-out step.
func (r *EventRouter) complete(ctx context.Context, step *store.StepExecution, decision *EventDecision) error {
	status := decision.Status
	if status == "" {
		if decision.Error != "" {
			status = types.StepFailed
		} else {
			status = types.StepCompleted
		}
	}

	now := time.Now()
	step.Status = status
	step.EndTime = &now
	step.Progress = 100
	step.AwaitingEvent = false
	step.TimeoutAt = nil
	if decision.Outputs != nil {
		step.Outputs = store.JSONMap(decision.Outputs)
	}
	step.ErrorMessage = decision.Error

	if err := r.store.UpdateStep(ctx, step); err != nil {
		return err
	}

	r.logger.Info("awaiting step completed by event",
		zap.String("execution_id", step.ExecutionID),
		zap.String("step_id", step.StepID),
		zap.String("status", string(status)))

	return r.orchestrator.Run(ctx, step.ExecutionID)
}
