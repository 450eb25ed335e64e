package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/pipeflow/types"
)

func stepMap(id string, deps ...string) map[string]any {
	m := map[string]any{"id": id, "action": "noop"}
	if len(deps) > 0 {
		anyDeps := make([]any, len(deps))
		for i, d := range deps {
			anyDeps[i] = d
		}
		m["depends_on"] = anyDeps
	}
	return m
}

func defMap(steps ...map[string]any) map[string]any {
	anySteps := make([]any, len(steps))
	for i, s := range steps {
		anySteps[i] = s
	}
	return map[string]any{"name": "test", "steps": anySteps}
}

func TestValidateMissingFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		def     map[string]any
		wantErr string
	}{
		{
			name:    "missing name",
			def:     map[string]any{"steps": []any{stepMap("a")}},
			wantErr: "name is required",
		},
		{
			name:    "no steps",
			def:     map[string]any{"name": "empty", "steps": []any{}},
			wantErr: "at least one step",
		},
		{
			name:    "step without id",
			def:     defMap(map[string]any{"action": "noop"}),
			wantErr: "missing an id",
		},
		{
			name:    "step without action",
			def:     defMap(map[string]any{"id": "a"}),
			wantErr: "missing an action",
		},
		{
			name:    "bad on_failure",
			def:     defMap(map[string]any{"id": "a", "action": "noop", "on_failure": "explode"}),
			wantErr: "invalid on_failure",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := Validate(tt.def)
			assert.False(t, result.Valid)
			assert.Contains(t, strings.Join(result.Errors, "; "), tt.wantErr)

			_, err := Parse(tt.def)
			require.Error(t, err)
		})
	}
}

func TestValidateDuplicateStepIDs(t *testing.T) {
	t.Parallel()

	def := defMap(stepMap("build"), stepMap("build"))

	result := Validate(def)
	assert.False(t, result.Valid)
	assert.Contains(t, strings.Join(result.Errors, "; "), "duplicate step id: build")

	_, err := Parse(def)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDAGValidation))
	assert.Contains(t, err.Error(), "duplicate")
}

func TestValidateBadReferences(t *testing.T) {
	t.Parallel()

	result := Validate(defMap(stepMap("a", "ghost")))
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], `unknown step "ghost"`)

	result = Validate(defMap(stepMap("a", "a")))
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "depends on itself")
}

func TestValidateCycle(t *testing.T) {
	t.Parallel()

	def := defMap(
		stepMap("a", "c"),
		stepMap("b", "a"),
		stepMap("c", "b"),
	)

	result := Validate(def)
	assert.False(t, result.Valid)
	assert.True(t, result.HasCycles)

	_, err := Parse(def)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDAGValidation))
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateAcyclicGraphPasses(t *testing.T) {
	t.Parallel()

	result := Validate(defMap(
		stepMap("root"),
		stepMap("a", "root"),
		stepMap("b", "root"),
		stepMap("join", "a", "b"),
	))
	assert.True(t, result.Valid)
	assert.False(t, result.HasCycles)
	assert.Empty(t, result.Errors)
}
