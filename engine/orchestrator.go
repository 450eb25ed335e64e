package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/pipeflow/events"
	"github.com/BaSui01/pipeflow/internal/metrics"
	"github.com/BaSui01/pipeflow/store"
	"github.com/BaSui01/pipeflow/types"
	"github.com/BaSui01/pipeflow/workflow"
	"github.com/BaSui01/pipeflow/workflow/dsl"
)

// DefinitionSource resolves stored pipeline definitions for submits
// that reference a PipelineID without an inline definition. Both the
// store and the definition cache satisfy it.
type DefinitionSource interface {
	GetDefinition(ctx context.Context, id string, scope store.Scope) (*store.PipelineDefinition, error)
}

// SubmitRequest starts a new pipeline execution. Definition accepts
// anything workflow.Parse does: JSON/YAML text, a decoded map, or a
// *WorkflowDAG. A zero PipelineID makes the run ephemeral: the
// definition is snapshotted on the execution and never persisted as a
// reusable pipeline. A nil Definition with a PipelineID submits the
// stored definition instead.
type SubmitRequest struct {
	Definition     any
	PipelineID     string
	Params         map[string]any
	Initiator      string
	UserID         string
	CallbackTopics []string
	CorrelationID  string
}

// Options tunes orchestrator behavior.
type Options struct {
	// Metrics receives engine instrumentation when non-nil.
	Metrics *metrics.Collector
	// NonStrictTemplates degrades missing references to empty values
	// instead of failing the owning step.
	NonStrictTemplates bool
	// DefaultStepTimeout applies to awaiting steps that set no
	// timeout of their own.
	DefaultStepTimeout time.Duration
	// Definitions resolves PipelineID-only submits. Nil rejects them.
	Definitions DefinitionSource
	// Tracer emits a span per execution run and per step. Nil uses
	// the global tracer provider.
	Tracer trace.Tracer
}

// Orchestrator drives executions through their DAGs. It holds no
// per-execution state: everything lives in the store, so any instance
// can pick up any execution.
type Orchestrator struct {
	store       store.Store
	registry    *Registry
	resolver    *dsl.Resolver
	evaluator   *dsl.Evaluator
	broadcaster *events.Broadcaster
	logger      *zap.Logger
	tracer      trace.Tracer
	opts        Options
}

// NewOrchestrator wires the engine. broadcaster may deliver to a
// NopPublisher but must not be nil.
func NewOrchestrator(st store.Store, registry *Registry, broadcaster *events.Broadcaster, logger *zap.Logger, opts Options) *Orchestrator {
	if opts.DefaultStepTimeout <= 0 {
		opts.DefaultStepTimeout = time.Hour
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("pipeflow/engine")
	}
	return &Orchestrator{
		store:       st,
		registry:    registry,
		resolver:    dsl.NewResolver(),
		evaluator:   dsl.NewEvaluator(),
		broadcaster: broadcaster,
		logger:      logger.With(zap.String("component", "orchestrator")),
		tracer:      tracer,
		opts:        opts,
	}
}

// Submit validates the definition, materializes the execution and its
// step rows, and returns the PENDING execution. It does not run
// anything; call Run with the returned id.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*store.PipelineExecution, error) {
	definition := req.Definition
	if definition == nil && req.PipelineID != "" {
		if o.opts.Definitions == nil {
			return nil, types.Errorf(types.ErrWorkflowNotFound, "no definition source configured for pipeline %s", req.PipelineID)
		}
		scope := store.Scope{}
		if req.UserID != "" {
			scope = store.Scope{UserID: req.UserID, IncludeSystem: true}
		}
		def, err := o.opts.Definitions.GetDefinition(ctx, req.PipelineID, scope)
		if err != nil {
			return nil, err
		}
		definition = def.DAGDefinition
	}

	dag, err := workflow.Parse(definition)
	if err != nil {
		return nil, err
	}

	params := mergeDefaults(dag, req.Params)
	for _, name := range dag.RequiredParameters() {
		if _, ok := params[name]; !ok {
			return nil, types.Errorf(types.ErrDAGValidation, "missing required parameter %q", name)
		}
	}

	snapshot, err := json.Marshal(dag)
	if err != nil {
		return nil, fmt.Errorf("snapshot definition: %w", err)
	}

	var pipelineID *string
	if req.PipelineID != "" {
		id := req.PipelineID
		pipelineID = &id
	}
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	exec := &store.PipelineExecution{
		ID:                 uuid.NewString(),
		PipelineID:         pipelineID,
		DefinitionSnapshot: string(snapshot),
		InputParams:        store.JSONMap(params),
		Initiator:          req.Initiator,
		UserID:             req.UserID,
		Status:             types.ExecutionPending,
		CallbackTopics:     store.StringSlice(req.CallbackTopics),
		CorrelationID:      correlationID,
	}
	if err := o.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	steps := make([]*store.StepExecution, 0, dag.StepCount())
	for _, s := range dag.Steps {
		steps = append(steps, &store.StepExecution{
			ID:             uuid.NewString(),
			ExecutionID:    exec.ID,
			StepID:         s.ID,
			StepName:       s.Name,
			Status:         types.StepPending,
			SequenceNumber: dag.Rank(s.ID),
			HandlerType:    s.Action,
		})
	}
	if err := o.store.CreateStepBatch(ctx, steps); err != nil {
		return nil, err
	}

	o.logger.Info("execution submitted",
		zap.String("execution_id", exec.ID),
		zap.String("workflow", dag.Name),
		zap.Int("steps", dag.StepCount()),
		zap.Bool("ephemeral", pipelineID == nil))
	return exec, nil
}

// Run advances an execution until it is terminal or every remaining
// step is suspended on an external event. Safe to call concurrently
// with a timeout sweep or event completion: all writes are CAS.
func (o *Orchestrator) Run(ctx context.Context, executionID string) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("execution.id", executionID)))
	defer span.End()

	err := o.run(ctx, executionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	return err
}

func (o *Orchestrator) run(ctx context.Context, executionID string) error {
	exec, err := o.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return nil
	}

	dag, err := workflow.Parse(exec.DefinitionSnapshot)
	if err != nil {
		return fmt.Errorf("reparse snapshot for %s: %w", executionID, err)
	}
	params := map[string]any(exec.InputParams)

	if exec.Status == types.ExecutionPending {
		now := time.Now()
		if err := o.updateExecution(ctx, exec, func(e *store.PipelineExecution) {
			e.Status = types.ExecutionRunning
			e.StartTime = &now
		}); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		steps, err := o.store.GetStepsByExecution(ctx, executionID)
		if err != nil {
			return err
		}
		st := buildRunState(dag, steps)

		ready := o.readySet(dag, st)

		if st.awaiting > 0 && len(ready) == 0 {
			// Suspended: an external event or timeout sweep resumes us.
			o.updateProgress(ctx, exec)
			o.logger.Debug("execution suspended on awaiting steps",
				zap.String("execution_id", executionID),
				zap.Int("awaiting", st.awaiting))
			return nil
		}

		if len(ready) == 0 {
			if st.running > 0 {
				// Another instance is mid-flight on these steps; it
				// will finalize when they drain.
				return nil
			}
			return o.finalize(ctx, exec, dag, st, params)
		}

		if st.hardFailure != "" && dag.Settings.FailFast {
			// Stop dispatching; everything still pending is unreachable.
			return o.finalize(ctx, exec, dag, st, params)
		}

		o.dispatchWave(ctx, dag, exec, ready, st, params)
		exec = o.updateProgress(ctx, exec)
	}
}

// runState is a point-in-time view of an execution's step rows.
type runState struct {
	byStepID map[string]*store.StepExecution
	outputs  map[string]any
	awaiting int
	running  int
	// hardFailure is the first FAILED/TIMEOUT step without
	// on_failure=continue, empty when none.
	hardFailure    string
	hardFailureMsg string
}

func buildRunState(dag *workflow.WorkflowDAG, steps []*store.StepExecution) *runState {
	st := &runState{
		byStepID: make(map[string]*store.StepExecution, len(steps)),
		outputs:  make(map[string]any),
	}
	for _, row := range steps {
		st.byStepID[row.StepID] = row
		if row.AwaitingEvent {
			st.awaiting++
		} else if row.Status == types.StepRunning || row.Status == types.StepRetrying {
			st.running++
		}
		if row.Status == types.StepCompleted && row.Outputs != nil {
			st.outputs[row.StepID] = map[string]any(row.Outputs)
		}
		if row.Status == types.StepFailed || row.Status == types.StepTimeout {
			if def, ok := dag.GetStep(row.StepID); ok && !def.ContinueOnFailure() && st.hardFailure == "" {
				st.hardFailure = row.StepID
				st.hardFailureMsg = row.ErrorMessage
			}
		}
	}
	return st
}

// readySet lists pending steps whose dependencies are all satisfied:
// COMPLETED, SKIPPED, or failed with on_failure=continue.
func (o *Orchestrator) readySet(dag *workflow.WorkflowDAG, st *runState) []*workflow.Step {
	var ready []*workflow.Step
	for _, s := range dag.Steps {
		row := st.byStepID[s.ID]
		if row == nil || row.Status != types.StepPending {
			continue
		}
		if o.depsSatisfied(dag, s, st) {
			ready = append(ready, s)
		}
	}
	return ready
}

func (o *Orchestrator) depsSatisfied(dag *workflow.WorkflowDAG, s *workflow.Step, st *runState) bool {
	for _, dep := range s.DependsOn {
		row := st.byStepID[dep]
		if row == nil {
			return false
		}
		if row.Status.Satisfied() {
			continue
		}
		if row.Status == types.StepFailed || row.Status == types.StepTimeout {
			if def, ok := dag.GetStep(dep); ok && def.ContinueOnFailure() {
				continue
			}
		}
		return false
	}
	return true
}

// dispatchWave runs every ready step, bounded by max_parallel_steps.
func (o *Orchestrator) dispatchWave(ctx context.Context, dag *workflow.WorkflowDAG, exec *store.PipelineExecution, ready []*workflow.Step, st *runState, params map[string]any) {
	limit := int64(dag.Settings.MaxParallelSteps)
	if limit <= 0 {
		limit = int64(len(ready))
	}
	sem := semaphore.NewWeighted(limit)

	var wg sync.WaitGroup
	for _, s := range ready {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(s *workflow.Step) {
			defer wg.Done()
			defer sem.Release(1)
			o.runStep(ctx, dag, exec, s, st.byStepID[s.ID], params, st.outputs)
		}(s)
	}
	wg.Wait()
}

// runStep drives one step from PENDING to a terminal or awaiting
// state, including condition gating, resolution, and retries.
func (o *Orchestrator) runStep(ctx context.Context, dag *workflow.WorkflowDAG, exec *store.PipelineExecution, def *workflow.Step, row *store.StepExecution, params map[string]any, outputs map[string]any) {
	ctx, span := o.tracer.Start(ctx, "pipeline.step",
		trace.WithAttributes(
			attribute.String("execution.id", exec.ID),
			attribute.String("step.id", def.ID),
			attribute.String("step.action", def.Action)))
	defer span.End()

	logger := o.logger.With(
		zap.String("execution_id", exec.ID),
		zap.String("step_id", def.ID))
	strict := !o.opts.NonStrictTemplates

	// Condition gate.
	if def.Condition != "" {
		pass, err := o.evaluator.Evaluate(def.Condition, params, outputs, strict)
		if err != nil {
			logger.Warn("condition evaluation failed", zap.Error(err))
			o.failStep(ctx, exec, def, row, err.Error(), logger)
			return
		}
		if !pass {
			now := time.Now()
			if err := o.updateStep(ctx, row, func(s *store.StepExecution) {
				s.Status = types.StepSkipped
				s.EndTime = &now
				s.Progress = 100
			}); err != nil {
				logger.Error("skip transition failed", zap.Error(err))
				return
			}
			logger.Info("step skipped by condition")
			o.recordStep(def.Action, types.StepSkipped, 0)
			return
		}
	}

	// Parameter resolution.
	resolved, err := o.resolver.ResolveMap(def.Params, params, outputs, strict)
	if err != nil {
		logger.Warn("parameter resolution failed", zap.Error(err))
		o.failStep(ctx, exec, def, row, err.Error(), logger)
		return
	}
	if resolved == nil {
		resolved = map[string]any{}
	}

	handler, err := o.registry.Get(def.Action)
	if err != nil {
		o.failStep(ctx, exec, def, row, err.Error(), logger)
		return
	}
	if err := checkRequired(handler, resolved); err != nil {
		o.failStep(ctx, exec, def, row, err.Error(), logger)
		return
	}

	started := time.Now()
	if err := o.updateStep(ctx, row, func(s *store.StepExecution) {
		s.Status = types.StepRunning
		s.StartTime = &started
	}); err != nil {
		logger.Error("start transition failed", zap.Error(err))
		return
	}
	o.notifyStep(events.TypeStepStarted, exec, row, nil, "")

	actx := &ActionContext{
		ExecutionID:    exec.ID,
		StepID:         def.ID,
		Params:         resolved,
		WorkflowParams: params,
		StepOutputs:    outputs,
	}

	maxAttempts := 1
	backoff := time.Duration(0)
	if def.Retry != nil && def.Retry.MaxAttempts > 0 {
		maxAttempts = def.Retry.MaxAttempts
		backoff = time.Duration(def.Retry.BackoffSeconds) * time.Second
	}

	for attempt := 1; ; attempt++ {
		result, execErr := o.executeWithTimeout(ctx, def, handler, actx)

		if execErr == nil && result != nil && result.AwaitingEvent {
			o.suspendStep(ctx, def, row, result, logger)
			return
		}

		if execErr == nil && result != nil && result.Success {
			now := time.Now()
			if err := o.updateStep(ctx, row, func(s *store.StepExecution) {
				s.Status = types.StepCompleted
				s.EndTime = &now
				s.Progress = 100
				s.Outputs = store.JSONMap(result.Outputs)
				s.ErrorMessage = ""
			}); err != nil {
				logger.Error("complete transition failed", zap.Error(err))
				return
			}
			logger.Info("step completed", zap.Duration("duration", time.Since(started)))
			o.recordStep(def.Action, types.StepCompleted, time.Since(started))
			o.notifyStep(events.TypeStepCompleted, exec, row, result.Outputs, "")
			return
		}

		failMsg := "handler reported failure"
		if execErr != nil {
			failMsg = execErr.Error()
		} else if result != nil && result.Error != "" {
			failMsg = result.Error
		}

		if attempt >= maxAttempts {
			o.failStep(ctx, exec, def, row, failMsg, logger)
			return
		}

		logger.Warn("step attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.String("error", failMsg))
		if err := o.updateStep(ctx, row, func(s *store.StepExecution) {
			s.Status = types.StepRetrying
			s.RetryCount = attempt
			s.ErrorMessage = failMsg
		}); err != nil {
			logger.Error("retry transition failed", zap.Error(err))
			return
		}
		if o.opts.Metrics != nil {
			o.opts.Metrics.RecordStepRetry(def.Action)
		}

		if backoff > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
		}
		if err := o.updateStep(ctx, row, func(s *store.StepExecution) {
			s.Status = types.StepRunning
		}); err != nil {
			logger.Error("rerun transition failed", zap.Error(err))
			return
		}
	}
}

func (o *Orchestrator) executeWithTimeout(ctx context.Context, def *workflow.Step, handler ActionHandler, actx *ActionContext) (*ActionResult, error) {
	if def.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(def.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	result, err := handler.Execute(ctx, actx)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, types.Errorf(types.ErrStepTimeout, "step %s timed out", def.ID).WithEntityID(def.ID)
	}
	return result, err
}

// suspendStep parks an event-driven step until the router or timeout
// scheduler resolves it.
func (o *Orchestrator) suspendStep(ctx context.Context, def *workflow.Step, row *store.StepExecution, result *ActionResult, logger *zap.Logger) {
	timeout := o.opts.DefaultStepTimeout
	if result.TimeoutSeconds > 0 {
		timeout = time.Duration(result.TimeoutSeconds) * time.Second
	} else if def.TimeoutSeconds > 0 {
		timeout = time.Duration(def.TimeoutSeconds) * time.Second
	}
	deadline := time.Now().Add(timeout)

	if err := o.updateStep(ctx, row, func(s *store.StepExecution) {
		s.Status = types.StepRunning
		s.AwaitingEvent = true
		s.ExternalWorkflowID = result.ExternalWorkflowID
		s.TimeoutAt = &deadline
	}); err != nil {
		logger.Error("suspend transition failed", zap.Error(err))
		return
	}
	logger.Info("step awaiting external completion",
		zap.String("external_workflow_id", result.ExternalWorkflowID),
		zap.Time("timeout_at", deadline))
}

func (o *Orchestrator) failStep(ctx context.Context, exec *store.PipelineExecution, def *workflow.Step, row *store.StepExecution, message string, logger *zap.Logger) {
	now := time.Now()
	if err := o.updateStep(ctx, row, func(s *store.StepExecution) {
		s.Status = types.StepFailed
		s.EndTime = &now
		s.ErrorMessage = message
	}); err != nil {
		logger.Error("fail transition failed", zap.Error(err))
		return
	}
	logger.Warn("step failed",
		zap.String("error", message),
		zap.Bool("continue_on_failure", def.ContinueOnFailure()))
	o.recordStep(def.Action, types.StepFailed, 0)
	o.notifyStep(events.TypeStepFailed, exec, row, nil, message)
}

// finalize settles the execution once nothing can make progress:
// unreachable steps become SKIPPED, final outputs are resolved, and
// the terminal status is derived from hard failures.
func (o *Orchestrator) finalize(ctx context.Context, exec *store.PipelineExecution, dag *workflow.WorkflowDAG, st *runState, params map[string]any) error {
	for _, s := range dag.Steps {
		row := st.byStepID[s.ID]
		if row == nil || row.Status != types.StepPending {
			continue
		}
		now := time.Now()
		if err := o.updateStep(ctx, row, func(step *store.StepExecution) {
			step.Status = types.StepSkipped
			step.EndTime = &now
			step.ErrorMessage = "unreachable: upstream dependency failed"
		}); err != nil {
			o.logger.Error("unreachable skip failed",
				zap.String("execution_id", exec.ID),
				zap.String("step_id", s.ID),
				zap.Error(err))
		}
	}

	// Final outputs resolve non-strict so skipped-branch references
	// degrade instead of failing a finished run.
	finalOutputs := map[string]any{}
	for name, tmpl := range dag.Outputs {
		value, err := o.resolver.Resolve(tmpl, params, st.outputs, false)
		if err != nil {
			o.logger.Warn("final output resolution failed",
				zap.String("execution_id", exec.ID),
				zap.String("output", name),
				zap.Error(err))
			continue
		}
		finalOutputs[name] = value
	}

	status := types.ExecutionCompleted
	if st.hardFailure != "" {
		status = types.ExecutionFailed
	}

	now := time.Now()
	if err := o.updateExecution(ctx, exec, func(e *store.PipelineExecution) {
		e.Status = status
		e.EndTime = &now
		e.ProgressPercentage = 100
		e.FinalOutputs = store.JSONMap(finalOutputs)
		if st.hardFailure != "" {
			e.ErrorInfo = fmt.Sprintf("step %s failed: %s", st.hardFailure, st.hardFailureMsg)
		}
	}); err != nil {
		return err
	}

	duration := time.Duration(0)
	if exec.StartTime != nil {
		duration = now.Sub(*exec.StartTime)
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordExecution(string(status), duration)
	}

	eventType := events.TypeWorkflowCompleted
	if status == types.ExecutionFailed {
		eventType = events.TypeWorkflowFailed
	}
	event := events.NewEvent(eventType, exec.ID)
	event.CorrelationID = exec.CorrelationID
	event.Data = map[string]any{
		"status":        string(status),
		"final_outputs": finalOutputs,
	}
	if exec.ErrorInfo != "" {
		event.Data["error"] = exec.ErrorInfo
	}
	o.broadcaster.Notify(exec.CallbackTopics, event)

	o.logger.Info("execution finished",
		zap.String("execution_id", exec.ID),
		zap.String("status", string(status)),
		zap.Duration("duration", duration))
	return nil
}

// updateProgress recomputes and persists progress, then emits a
// workflow.progress event. Progress never goes backwards.
func (o *Orchestrator) updateProgress(ctx context.Context, exec *store.PipelineExecution) *store.PipelineExecution {
	steps, err := o.store.GetStepsByExecution(ctx, exec.ID)
	if err != nil {
		o.logger.Warn("progress refresh failed", zap.Error(err))
		return exec
	}

	terminal := 0
	for _, row := range steps {
		if row.Status.Terminal() {
			terminal++
		}
	}
	progress := 0.0
	if len(steps) > 0 {
		progress = math.Round(float64(terminal)/float64(len(steps))*10000) / 100
	}
	if progress <= exec.ProgressPercentage {
		return exec
	}

	if err := o.updateExecution(ctx, exec, func(e *store.PipelineExecution) {
		e.ProgressPercentage = progress
	}); err != nil {
		o.logger.Warn("progress update failed", zap.Error(err))
		return exec
	}

	event := events.NewEvent(events.TypeWorkflowProgress, exec.ID)
	event.CorrelationID = exec.CorrelationID
	event.Data = map[string]any{"progress": progress}
	o.broadcaster.Notify(exec.CallbackTopics, event)
	return exec
}

// updateExecution applies mutate under CAS, reloading and retrying
// once on a version conflict.
func (o *Orchestrator) updateExecution(ctx context.Context, exec *store.PipelineExecution, mutate func(*store.PipelineExecution)) error {
	mutate(exec)
	err := o.store.UpdateExecution(ctx, exec)
	if !types.IsCode(err, types.ErrOptimisticLock) {
		return err
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordLockConflict("execution")
	}

	fresh, loadErr := o.store.GetExecution(ctx, exec.ID)
	if loadErr != nil {
		return loadErr
	}
	mutate(fresh)
	if err := o.store.UpdateExecution(ctx, fresh); err != nil {
		return err
	}
	*exec = *fresh
	return nil
}

// updateStep applies mutate under CAS with one reload-and-retry.
func (o *Orchestrator) updateStep(ctx context.Context, row *store.StepExecution, mutate func(*store.StepExecution)) error {
	mutate(row)
	err := o.store.UpdateStep(ctx, row)
	if !types.IsCode(err, types.ErrOptimisticLock) {
		return err
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordLockConflict("step")
	}

	fresh, loadErr := o.store.GetStep(ctx, row.ID)
	if loadErr != nil {
		return loadErr
	}
	mutate(fresh)
	if err := o.store.UpdateStep(ctx, fresh); err != nil {
		return err
	}
	*row = *fresh
	return nil
}

func (o *Orchestrator) notifyStep(eventType string, exec *store.PipelineExecution, row *store.StepExecution, outputs map[string]any, errMsg string) {
	event := events.NewEvent(eventType, exec.ID)
	event.CorrelationID = exec.CorrelationID
	event.StepID = row.StepID
	event.Data = map[string]any{"status": string(row.Status)}
	if outputs != nil {
		event.Data["outputs"] = outputs
	}
	if errMsg != "" {
		event.Data["error"] = errMsg
	}
	o.broadcaster.Notify(exec.CallbackTopics, event)
}

func (o *Orchestrator) recordStep(action string, status types.StepStatus, duration time.Duration) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordStep(action, string(status), duration)
	}
}

func mergeDefaults(dag *workflow.WorkflowDAG, params map[string]any) map[string]any {
	merged := dag.ParameterDefaults()
	for k, v := range params {
		merged[k] = v
	}
	return merged
}
