package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/BaSui01/pipeflow/events"
	"github.com/BaSui01/pipeflow/store"
	"github.com/BaSui01/pipeflow/testutil"
	"github.com/BaSui01/pipeflow/types"
)

type engineFixture struct {
	orchestrator *Orchestrator
	store        *store.GormStore
	registry     *Registry
}

func setupEngine(t *testing.T) *engineFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	st := store.NewGormStore(db, logger)
	require.NoError(t, st.Migrate())

	registry := NewRegistry()
	RegisterBuiltins(registry, logger)

	broadcaster := events.NewBroadcaster(events.NopPublisher{}, logger, events.BroadcasterOptions{})
	orch := NewOrchestrator(st, registry, broadcaster, logger, Options{Definitions: st})

	return &engineFixture{orchestrator: orch, store: st, registry: registry}
}

func (f *engineFixture) submitAndRun(t *testing.T, def map[string]any, params map[string]any) *store.PipelineExecution {
	t.Helper()
	ctx := context.Background()
	exec, err := f.orchestrator.Submit(ctx, SubmitRequest{
		Definition: def,
		Params:     params,
		Initiator:  "test",
	})
	require.NoError(t, err)
	require.NoError(t, f.orchestrator.Run(ctx, exec.ID))

	final, err := f.store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	return final
}

func (f *engineFixture) stepsByID(t *testing.T, executionID string) map[string]*store.StepExecution {
	t.Helper()
	rows, err := f.store.GetStepsByExecution(context.Background(), executionID)
	require.NoError(t, err)
	out := make(map[string]*store.StepExecution, len(rows))
	for _, row := range rows {
		out[row.StepID] = row
	}
	return out
}

func TestLinearPipeline(t *testing.T) {
	f := setupEngine(t)

	exec := f.submitAndRun(t, testutil.LinearPipeline("test message"), nil)

	assert.Equal(t, types.ExecutionCompleted, exec.Status)
	assert.Equal(t, "TEST MESSAGE", exec.FinalOutputs["result"])
	assert.Equal(t, float64(100), exec.ProgressPercentage)
	require.NotNil(t, exec.StartTime)
	require.NotNil(t, exec.EndTime)

	steps := f.stepsByID(t, exec.ID)
	assert.Equal(t, types.StepCompleted, steps["produce"].Status)
	assert.Equal(t, types.StepCompleted, steps["shout"].Status)
	assert.Equal(t, 1, steps["produce"].SequenceNumber)
	assert.Equal(t, 2, steps["shout"].SequenceNumber)
}

func TestConditionSkipPropagation(t *testing.T) {
	f := setupEngine(t)

	def := map[string]any{
		"name": "conditional",
		"parameters": []any{
			map[string]any{"name": "transform_enabled", "default": true},
		},
		"steps": []any{
			map[string]any{
				"id":     "produce",
				"action": "set_output",
				"params": map[string]any{"message": "hello"},
			},
			map[string]any{
				"id":         "shout",
				"action":     "transform",
				"depends_on": []any{"produce"},
				"condition":  "{{ params.transform_enabled }}",
				"params": map[string]any{
					"input":     "{{ steps.produce.outputs.message }}",
					"operation": "upper",
				},
			},
		},
		"outputs": map[string]any{
			"result": "{{ steps.shout.outputs.result | default('SKIPPED') }}",
		},
	}

	t.Run("enabled", func(t *testing.T) {
		exec := f.submitAndRun(t, def, map[string]any{"transform_enabled": true})
		assert.Equal(t, types.ExecutionCompleted, exec.Status)
		assert.Equal(t, "HELLO", exec.FinalOutputs["result"])
	})

	t.Run("disabled skips and falls back", func(t *testing.T) {
		exec := f.submitAndRun(t, def, map[string]any{"transform_enabled": false})
		assert.Equal(t, types.ExecutionCompleted, exec.Status)
		assert.Equal(t, "SKIPPED", exec.FinalOutputs["result"])

		steps := f.stepsByID(t, exec.ID)
		assert.Equal(t, types.StepSkipped, steps["shout"].Status)
	})
}

func TestFanOutJoin(t *testing.T) {
	f := setupEngine(t)

	branch := func(id, value string) map[string]any {
		return map[string]any{
			"id":         id,
			"action":     "set_output",
			"depends_on": []any{"start"},
			"params":     map[string]any{"v": value},
		}
	}
	def := map[string]any{
		"name":     "fanout",
		"settings": map[string]any{"max_parallel_steps": 2},
		"steps": []any{
			map[string]any{"id": "start", "action": "noop"},
			branch("a", "A"),
			branch("b", "B"),
			branch("c", "C"),
			map[string]any{
				"id":         "join",
				"action":     "aggregate",
				"depends_on": []any{"a", "b", "c"},
				"params": map[string]any{
					"inputs": []any{
						"{{ steps.a.outputs.v }}",
						"{{ steps.b.outputs.v }}",
						"{{ steps.c.outputs.v }}",
					},
				},
			},
		},
		"outputs": map[string]any{"joined": "{{ steps.join.outputs.result }}"},
	}

	exec := f.submitAndRun(t, def, nil)

	assert.Equal(t, types.ExecutionCompleted, exec.Status)
	assert.Equal(t, "A-B-C", exec.FinalOutputs["joined"], "branch order is declaration order")
}

func TestFanOutJoinWithoutRoot(t *testing.T) {
	f := setupEngine(t)

	exec := f.submitAndRun(t, testutil.FanOutPipeline("x", "y"), nil)
	assert.Equal(t, types.ExecutionCompleted, exec.Status)
	assert.Equal(t, "x-y", exec.FinalOutputs["merged"])
}

func TestEphemeralNeverPersistsDefinition(t *testing.T) {
	f := setupEngine(t)

	exec := f.submitAndRun(t, map[string]any{
		"name":  "ephemeral",
		"steps": []any{map[string]any{"id": "only", "action": "noop"}},
	}, nil)

	assert.Nil(t, exec.PipelineID)
	assert.NotEmpty(t, exec.DefinitionSnapshot)

	defs, total, err := f.store.ListDefinitions(context.Background(), store.Scope{}, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, defs)
}

func TestSubmitRejectsInvalidDAG(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	_, err := f.orchestrator.Submit(ctx, SubmitRequest{Definition: map[string]any{
		"name": "cyclic",
		"steps": []any{
			map[string]any{"id": "a", "action": "noop", "depends_on": []any{"b"}},
			map[string]any{"id": "b", "action": "noop", "depends_on": []any{"a"}},
		},
	}})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDAGValidation))

	_, err = f.orchestrator.Submit(ctx, SubmitRequest{Definition: map[string]any{
		"name": "needs-param",
		"parameters": []any{
			map[string]any{"name": "env", "required": true},
		},
		"steps": []any{map[string]any{"id": "a", "action": "noop"}},
	}})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDAGValidation))
	assert.Contains(t, err.Error(), "env")
}

func TestOnFailureContinue(t *testing.T) {
	f := setupEngine(t)

	def := map[string]any{
		"name": "tolerant",
		"steps": []any{
			map[string]any{
				"id":         "broken",
				"action":     "transform",
				"on_failure": "continue",
				"params":     map[string]any{"input": "x", "operation": "explode"},
			},
			map[string]any{
				"id":         "after",
				"action":     "set_output",
				"depends_on": []any{"broken"},
				"params": map[string]any{
					"value": "{{ steps.broken.outputs.result | default('fallback') }}",
				},
			},
		},
		"outputs": map[string]any{"value": "{{ steps.after.outputs.value }}"},
	}

	exec := f.submitAndRun(t, def, nil)

	assert.Equal(t, types.ExecutionCompleted, exec.Status,
		"continue-on-failure steps do not fail the execution")
	assert.Equal(t, "fallback", exec.FinalOutputs["value"])

	steps := f.stepsByID(t, exec.ID)
	assert.Equal(t, types.StepFailed, steps["broken"].Status)
	assert.Equal(t, types.StepCompleted, steps["after"].Status)
}

func TestHardFailureFailsExecution(t *testing.T) {
	f := setupEngine(t)

	def := map[string]any{
		"name":     "brittle",
		"settings": map[string]any{"fail_fast": true},
		"steps": []any{
			map[string]any{
				"id":     "broken",
				"action": "transform",
				"params": map[string]any{"input": "x", "operation": "explode"},
			},
			map[string]any{
				"id":         "after",
				"action":     "noop",
				"depends_on": []any{"broken"},
			},
		},
	}

	exec := f.submitAndRun(t, def, nil)

	assert.Equal(t, types.ExecutionFailed, exec.Status)
	assert.Contains(t, exec.ErrorInfo, "broken")

	steps := f.stepsByID(t, exec.ID)
	assert.Equal(t, types.StepFailed, steps["broken"].Status)
	assert.Equal(t, types.StepSkipped, steps["after"].Status,
		"unreachable steps settle as skipped")
}

// flakyHandler fails until the configured attempt count.
type flakyHandler struct {
	failures int32
	calls    atomic.Int32
}

func (h *flakyHandler) Type() string             { return "flaky" }
func (h *flakyHandler) RequiredParams() []string { return nil }

func (h *flakyHandler) Execute(context.Context, *ActionContext) (*ActionResult, error) {
	n := h.calls.Add(1)
	if n <= h.failures {
		return &ActionResult{Success: false, Error: "transient"}, nil
	}
	return &ActionResult{Success: true, Outputs: map[string]any{"attempt": float64(n)}}, nil
}

func TestRetryPolicy(t *testing.T) {
	f := setupEngine(t)
	flaky := &flakyHandler{failures: 2}
	require.NoError(t, f.registry.Register(flaky))

	def := map[string]any{
		"name": "retrying",
		"steps": []any{
			map[string]any{
				"id":     "flaky",
				"action": "flaky",
				"retry":  map[string]any{"max_attempts": 3},
			},
		},
		"outputs": map[string]any{"attempt": "{{ steps.flaky.outputs.attempt }}"},
	}

	exec := f.submitAndRun(t, def, nil)

	assert.Equal(t, types.ExecutionCompleted, exec.Status)
	assert.Equal(t, float64(3), exec.FinalOutputs["attempt"])

	steps := f.stepsByID(t, exec.ID)
	assert.Equal(t, types.StepCompleted, steps["flaky"].Status)
	assert.Equal(t, 2, steps["flaky"].RetryCount)
}

func TestRetryExhaustionFails(t *testing.T) {
	f := setupEngine(t)
	flaky := &flakyHandler{failures: 10}
	require.NoError(t, f.registry.Register(flaky))

	exec := f.submitAndRun(t, map[string]any{
		"name": "exhausted",
		"steps": []any{
			map[string]any{
				"id":     "flaky",
				"action": "flaky",
				"retry":  map[string]any{"max_attempts": 2},
			},
		},
	}, nil)

	assert.Equal(t, types.ExecutionFailed, exec.Status)
	steps := f.stepsByID(t, exec.ID)
	assert.Equal(t, types.StepFailed, steps["flaky"].Status)
	assert.EqualValues(t, 2, flaky.calls.Load())
}

func TestStrictResolutionFailsStep(t *testing.T) {
	f := setupEngine(t)

	exec := f.submitAndRun(t, map[string]any{
		"name": "strict",
		"steps": []any{
			map[string]any{
				"id":     "needs-missing",
				"action": "set_output",
				"params": map[string]any{"v": "{{ params.never_provided }}"},
			},
		},
	}, nil)

	assert.Equal(t, types.ExecutionFailed, exec.Status)
	steps := f.stepsByID(t, exec.ID)
	assert.Equal(t, types.StepFailed, steps["needs-missing"].Status)
	assert.Contains(t, steps["needs-missing"].ErrorMessage, "never_provided")
}

func TestUnknownActionFailsStep(t *testing.T) {
	f := setupEngine(t)

	exec := f.submitAndRun(t, map[string]any{
		"name": "unknown-action",
		"steps": []any{
			map[string]any{"id": "mystery", "action": "does_not_exist"},
		},
	}, nil)

	assert.Equal(t, types.ExecutionFailed, exec.Status)
	steps := f.stepsByID(t, exec.ID)
	assert.Equal(t, types.StepFailed, steps["mystery"].Status)
}

func TestRunIsIdempotentOnTerminalExecutions(t *testing.T) {
	f := setupEngine(t)

	exec := f.submitAndRun(t, map[string]any{
		"name":  "done",
		"steps": []any{map[string]any{"id": "only", "action": "noop"}},
	}, nil)
	require.Equal(t, types.ExecutionCompleted, exec.Status)

	version := exec.Version
	require.NoError(t, f.orchestrator.Run(context.Background(), exec.ID))

	after, err := f.store.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, version, after.Version, "terminal executions are untouched")
}

func TestSubmitByPipelineID(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	def := &store.PipelineDefinition{
		ID:   "stored-greeting",
		Name: "greeting",
		DAGDefinition: `{
			"name": "greeting",
			"steps": [
				{"id": "emit", "action": "set_output", "params": {"greeting": "hello"}}
			],
			"outputs": {"greeting": "{{ steps.emit.outputs.greeting }}"}
		}`,
	}
	require.NoError(t, f.store.CreateDefinition(ctx, def))

	exec, err := f.orchestrator.Submit(ctx, SubmitRequest{PipelineID: "stored-greeting", Initiator: "test"})
	require.NoError(t, err)
	require.NotNil(t, exec.PipelineID)
	assert.Equal(t, "stored-greeting", *exec.PipelineID)

	require.NoError(t, f.orchestrator.Run(ctx, exec.ID))
	final, err := f.store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionCompleted, final.Status)
	assert.Equal(t, "hello", final.FinalOutputs["greeting"])
}

func TestSubmitByPipelineIDUnknown(t *testing.T) {
	f := setupEngine(t)

	_, err := f.orchestrator.Submit(context.Background(), SubmitRequest{PipelineID: "ghost"})
	assert.True(t, types.IsCode(err, types.ErrWorkflowNotFound))
}

func TestRunEmitsExecutionAndStepSpans(t *testing.T) {
	f := setupEngine(t)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	logger := zaptest.NewLogger(t)
	broadcaster := events.NewBroadcaster(events.NopPublisher{}, logger, events.BroadcasterOptions{})
	orch := NewOrchestrator(f.store, f.registry, broadcaster, logger, Options{
		Definitions: f.store,
		Tracer:      provider.Tracer("engine-test"),
	})

	ctx := context.Background()
	exec, err := orch.Submit(ctx, SubmitRequest{
		Definition: testutil.LinearPipeline("traced"),
		Initiator:  "test",
	})
	require.NoError(t, err)
	require.NoError(t, orch.Run(ctx, exec.ID))

	names := make(map[string]int)
	for _, span := range recorder.Ended() {
		names[span.Name()]++
	}
	assert.Equal(t, 1, names["pipeline.run"])
	assert.Equal(t, 2, names["pipeline.step"], "one span per step")
}
