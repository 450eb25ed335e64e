package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/pipeflow/types"
)

func TestResolvePureTemplatePreservesType(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name   string
		value  any
		params map[string]any
		want   any
	}{
		{"boolean", "{{ params.flag }}", map[string]any{"flag": true}, true},
		{"number", "{{ params.count }}", map[string]any{"count": float64(42)}, float64(42)},
		{"string", "{{ params.name }}", map[string]any{"name": "alice"}, "alice"},
		{"list", "{{ params.items }}", map[string]any{"items": []any{"a", "b"}}, []any{"a", "b"}},
		{"map", "{{ params.obj }}", map[string]any{"obj": map[string]any{"k": "v"}}, map[string]any{"k": "v"}},
		{"nil", "{{ params.empty }}", map[string]any{"empty": nil}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.value, tt.params, nil, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveEmbeddedTemplateStringifies(t *testing.T) {
	r := NewResolver()

	got, err := r.Resolve("n={{ params.x }}", map[string]any{"x": float64(5)}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "n=5", got)

	got, err = r.Resolve("{{ params.a }}-{{ params.b }}", map[string]any{"a": "x", "b": true}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "x-true", got)
}

func TestResolveStepOutputs(t *testing.T) {
	r := NewResolver()
	outputs := map[string]any{
		"fetch": map[string]any{"status": float64(200), "body": "ok"},
	}

	got, err := r.Resolve("{{ steps.fetch.outputs.status }}", nil, outputs, false)
	require.NoError(t, err)
	assert.Equal(t, float64(200), got)

	got, err = r.Resolve("result: {{ steps.fetch.outputs.body }}", nil, outputs, false)
	require.NoError(t, err)
	assert.Equal(t, "result: ok", got)
}

func TestResolveMissingReference(t *testing.T) {
	r := NewResolver()

	t.Run("non-strict resolves to empty", func(t *testing.T) {
		got, err := r.Resolve("{{ params.missing }}", map[string]any{}, nil, false)
		require.NoError(t, err)
		assert.Equal(t, "", got)

		got, err = r.Resolve("v={{ params.missing }}", map[string]any{}, nil, false)
		require.NoError(t, err)
		assert.Equal(t, "v=", got)
	})

	t.Run("strict fails", func(t *testing.T) {
		_, err := r.Resolve("{{ params.missing }}", map[string]any{}, nil, true)
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrParameterResolution))
	})

	t.Run("strict recovers through default", func(t *testing.T) {
		got, err := r.Resolve("{{ params.missing | default(7) }}", map[string]any{}, nil, true)
		require.NoError(t, err)
		assert.Equal(t, float64(7), got)
	})
}

func TestResolveFilters(t *testing.T) {
	r := NewResolver()
	params := map[string]any{
		"name":  "alice",
		"items": []any{"first", "second"},
	}

	tests := []struct {
		expr string
		want any
	}{
		{"{{ params.name | upper }}", "ALICE"},
		{"{{ params.name | length }}", float64(5)},
		{"{{ params.items | first }}", "first"},
		{"{{ params.items | last }}", "second"},
		{"{{ params.absent | default('fallback') }}", "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := r.Resolve(tt.expr, params, nil, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveNested(t *testing.T) {
	r := NewResolver()
	params := map[string]any{"region": "eu-west-1", "count": float64(3)}

	input := map[string]any{
		"url":   "https://{{ params.region }}.example.com",
		"count": "{{ params.count }}",
		"static": map[string]any{
			"list": []any{"{{ params.region }}", "literal"},
		},
	}

	got, err := r.ResolveMap(input, params, nil, false)
	require.NoError(t, err)

	assert.Equal(t, "https://eu-west-1.example.com", got["url"])
	assert.Equal(t, float64(3), got["count"])
	nested := got["static"].(map[string]any)
	assert.Equal(t, []any{"eu-west-1", "literal"}, nested["list"])
}

func TestResolveMalformedTemplate(t *testing.T) {
	r := NewResolver()

	for _, strict := range []bool{false, true} {
		_, err := r.Resolve("broken {{ params.x", map[string]any{"x": 1}, nil, strict)
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrParameterResolution))
	}

	_, err := r.Resolve("{{ params.x == }}", map[string]any{"x": 1}, nil, false)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrParameterResolution))
}

func TestResolveNonStringPassthrough(t *testing.T) {
	r := NewResolver()

	for _, v := range []any{float64(5), true, nil} {
		got, err := r.Resolve(v, nil, nil, false)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestHasTemplates(t *testing.T) {
	assert.False(t, HasTemplates("plain text"))
	assert.True(t, HasTemplates("{{ params.x }}"))
	assert.True(t, HasTemplates(map[string]any{"a": []any{"{{ steps.s.outputs.v }}"}}))
	assert.False(t, HasTemplates(map[string]any{"a": float64(1)}))
}

func TestExtractVariables(t *testing.T) {
	input := map[string]any{
		"a": "{{ params.first }}",
		"b": []any{"{{ steps.fetch.outputs.body | upper }}", "{{ params.first }}"},
	}

	vars := ExtractVariables(input)
	assert.ElementsMatch(t, []string{"params.first", "steps.fetch.outputs.body"}, vars)
}

func TestResolvePlainStringsUnchanged(t *testing.T) {
	r := NewResolver()

	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[^{]*`).Draw(t, "s")
		got, err := r.Resolve(s, map[string]any{"x": 1}, nil, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != s {
			t.Fatalf("plain string changed: %q -> %v", s, got)
		}
	})
}
