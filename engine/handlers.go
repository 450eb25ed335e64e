package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RegisterBuiltins adds the handlers every deployment gets: log,
// transform, set_output, aggregate, delay, noop.
func RegisterBuiltins(r *Registry, logger *zap.Logger) {
	r.MustRegister(&LogHandler{logger: logger.With(zap.String("component", "log_handler"))})
	r.MustRegister(&TransformHandler{})
	r.MustRegister(&SetOutputHandler{})
	r.MustRegister(&AggregateHandler{})
	r.MustRegister(&DelayHandler{})
	r.MustRegister(&NoopHandler{})
}

// LogHandler writes its message parameter to the service log.
type LogHandler struct {
	logger *zap.Logger
}

func (h *LogHandler) Type() string             { return "log" }
func (h *LogHandler) RequiredParams() []string { return []string{"message"} }

func (h *LogHandler) Execute(_ context.Context, actx *ActionContext) (*ActionResult, error) {
	message := asString(actx.Params["message"])
	level := asString(actx.Params["level"])

	fields := []zap.Field{
		zap.String("execution_id", actx.ExecutionID),
		zap.String("step_id", actx.StepID),
	}
	switch strings.ToLower(level) {
	case "warn", "warning":
		h.logger.Warn(message, fields...)
	case "error":
		h.logger.Error(message, fields...)
	case "debug":
		h.logger.Debug(message, fields...)
	default:
		h.logger.Info(message, fields...)
	}

	return &ActionResult{
		Success: true,
		Outputs: map[string]any{"logged": true, "message": message},
	}, nil
}

// TransformHandler applies a string operation to its input.
type TransformHandler struct{}

func (h *TransformHandler) Type() string             { return "transform" }
func (h *TransformHandler) RequiredParams() []string { return []string{"input", "operation"} }

func (h *TransformHandler) Execute(_ context.Context, actx *ActionContext) (*ActionResult, error) {
	input := actx.Params["input"]
	operation := asString(actx.Params["operation"])

	var result any
	switch operation {
	case "upper":
		result = strings.ToUpper(asString(input))
	case "lower":
		result = strings.ToLower(asString(input))
	case "trim":
		result = strings.TrimSpace(asString(input))
	case "replace":
		old := asString(actx.Params["old"])
		result = strings.ReplaceAll(asString(input), old, asString(actx.Params["new"]))
	case "join":
		sep := "-"
		if s, ok := actx.Params["separator"]; ok {
			sep = asString(s)
		}
		list, ok := input.([]any)
		if !ok {
			return &ActionResult{Success: false, Error: "join requires a list input"}, nil
		}
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = asString(item)
		}
		result = strings.Join(parts, sep)
	default:
		return &ActionResult{
			Success: false,
			Error:   fmt.Sprintf("unknown transform operation %q", operation),
		}, nil
	}

	return &ActionResult{
		Success: true,
		Outputs: map[string]any{"result": result},
	}, nil
}

// SetOutputHandler exposes its parameters verbatim as step outputs,
// useful for staging constants and fan-out branch values.
type SetOutputHandler struct{}

func (h *SetOutputHandler) Type() string             { return "set_output" }
func (h *SetOutputHandler) RequiredParams() []string { return nil }

func (h *SetOutputHandler) Execute(_ context.Context, actx *ActionContext) (*ActionResult, error) {
	outputs := make(map[string]any, len(actx.Params))
	for k, v := range actx.Params {
		outputs[k] = v
	}
	return &ActionResult{Success: true, Outputs: outputs}, nil
}

// AggregateHandler joins the values listed in its inputs parameter,
// in declared order. Join steps use it to merge fan-out branches.
type AggregateHandler struct{}

func (h *AggregateHandler) Type() string             { return "aggregate" }
func (h *AggregateHandler) RequiredParams() []string { return []string{"inputs"} }

func (h *AggregateHandler) Execute(_ context.Context, actx *ActionContext) (*ActionResult, error) {
	list, ok := actx.Params["inputs"].([]any)
	if !ok {
		return &ActionResult{Success: false, Error: "aggregate requires a list of inputs"}, nil
	}
	sep := "-"
	if s, ok := actx.Params["separator"]; ok {
		sep = asString(s)
	}

	parts := make([]string, len(list))
	for i, item := range list {
		parts[i] = asString(item)
	}
	return &ActionResult{
		Success: true,
		Outputs: map[string]any{"result": strings.Join(parts, sep), "count": float64(len(list))},
	}, nil
}

// DelayHandler sleeps for duration_seconds, honoring cancellation.
type DelayHandler struct{}

func (h *DelayHandler) Type() string             { return "delay" }
func (h *DelayHandler) RequiredParams() []string { return []string{"duration_seconds"} }

func (h *DelayHandler) Execute(ctx context.Context, actx *ActionContext) (*ActionResult, error) {
	seconds, err := asFloat(actx.Params["duration_seconds"])
	if err != nil || seconds < 0 {
		return &ActionResult{Success: false, Error: "duration_seconds must be a non-negative number"}, nil
	}

	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &ActionResult{
		Success: true,
		Outputs: map[string]any{"delayed_seconds": seconds},
	}, nil
}

// NoopHandler succeeds without doing anything.
type NoopHandler struct{}

func (h *NoopHandler) Type() string             { return "noop" }
func (h *NoopHandler) RequiredParams() []string { return nil }

func (h *NoopHandler) Execute(context.Context, *ActionContext) (*ActionResult, error) {
	return &ActionResult{Success: true}, nil
}

func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprint(val)
	}
}

func asFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		return strconv.ParseFloat(val, 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
