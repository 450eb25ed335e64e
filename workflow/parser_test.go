package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/pipeflow/types"
)

const linearJSON = `{
  "name": "linear",
  "version": "1",
  "parameters": [
    {"name": "input_message", "type": "string", "required": true}
  ],
  "settings": {"max_parallel_steps": 2, "fail_fast": true},
  "steps": [
    {"id": "log_in", "action": "log", "params": {"message": "{{ params.input_message }}"}},
    {"id": "transform", "action": "transform", "depends_on": ["log_in"],
     "condition": "{{ params.transform_enabled | default(true) }}",
     "params": {"value": "{{ params.input_message }}", "operation": "upper"},
     "outputs": ["value"]},
    {"id": "log_out", "action": "log", "depends_on": ["transform"]}
  ],
  "outputs": {"result": "{{ steps.transform.outputs.value | default('SKIPPED') }}"}
}`

const linearYAML = `
name: linear
steps:
  - id: a
    action: log
  - id: b
    action: log
    depends_on: [a]
`

func TestParseJSON(t *testing.T) {
	t.Parallel()

	dag, err := Parse([]byte(linearJSON))
	require.NoError(t, err)

	assert.Equal(t, "linear", dag.Name)
	assert.Equal(t, 3, dag.StepCount())
	assert.Equal(t, 2, dag.Settings.MaxParallelSteps)
	assert.True(t, dag.Settings.FailFast)
	assert.Equal(t, []string{"input_message"}, dag.RequiredParameters())

	step, ok := dag.GetStep("transform")
	require.True(t, ok)
	assert.Equal(t, "transform", step.Action)
	assert.Equal(t, []string{"log_in"}, step.DependsOn)
	assert.Equal(t, []string{"value"}, step.Outputs)
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	dag, err := Parse(linearYAML)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, dag.TopologicalOrder())
}

func TestParseMap(t *testing.T) {
	t.Parallel()

	dag, err := Parse(map[string]any{
		"name": "inline",
		"steps": []any{
			map[string]any{"id": "only", "action": "noop"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, dag.StepCount())
	assert.Equal(t, 1, dag.Rank("only"))
}

func TestParseEmptyInput(t *testing.T) {
	t.Parallel()

	for _, raw := range []any{nil, "", "{}", "null", map[string]any{}, []byte("  ")} {
		_, err := Parse(raw)
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrDAGParse), "input %#v", raw)
	}
}

func TestParseMalformedInput(t *testing.T) {
	t.Parallel()

	_, err := Parse(`{"name": "broken", "steps": [`)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDAGParse))

	_, err = Parse(42)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDAGParse))
}

func TestParseIgnoresUnknownKeys(t *testing.T) {
	t.Parallel()

	dag, err := Parse(`{
	  "name": "forward-compat",
	  "future_field": {"nested": true},
	  "steps": [{"id": "a", "action": "noop", "experimental": 7}]
	}`)
	require.NoError(t, err)
	assert.Equal(t, 1, dag.StepCount())
}

func TestParseDoesNotMutateCallerDAG(t *testing.T) {
	t.Parallel()

	src := &WorkflowDAG{
		Name:  "shared",
		Steps: []*Step{{ID: "a", Action: "noop"}},
	}
	parsed, err := Parse(src)
	require.NoError(t, err)
	assert.NotSame(t, src, parsed)
	assert.Nil(t, src.steps)
}

func TestTopologicalOrderDiamond(t *testing.T) {
	t.Parallel()

	dag, err := Parse(map[string]any{
		"name": "diamond",
		"steps": []any{
			map[string]any{"id": "root", "action": "noop"},
			map[string]any{"id": "a", "action": "noop", "depends_on": []any{"root"}},
			map[string]any{"id": "b", "action": "noop", "depends_on": []any{"root"}},
			map[string]any{"id": "join", "action": "noop", "depends_on": []any{"a", "b"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"root", "a", "b", "join"}, dag.TopologicalOrder())
	assert.Equal(t, 1, dag.Rank("root"))
	assert.Equal(t, 4, dag.Rank("join"))

	roots := dag.RootSteps()
	require.Len(t, roots, 1)
	assert.Equal(t, "root", roots[0].ID)

	leaves := dag.LeafSteps()
	require.Len(t, leaves, 1)
	assert.Equal(t, "join", leaves[0].ID)

	assert.ElementsMatch(t, []string{"a", "b"}, dag.Dependents("root"))
	assert.Empty(t, dag.Dependents("join"))
}
