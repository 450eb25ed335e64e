package testutil

// LinearPipeline returns a two-step definition: a producer feeding an
// uppercase transform.
func LinearPipeline(message string) map[string]any {
	return map[string]any{
		"name": "linear",
		"steps": []any{
			map[string]any{
				"id":     "produce",
				"action": "set_output",
				"params": map[string]any{"message": message},
			},
			map[string]any{
				"id":         "shout",
				"action":     "transform",
				"depends_on": []any{"produce"},
				"params": map[string]any{
					"input":     "{{ steps.produce.outputs.message }}",
					"operation": "upper",
				},
			},
		},
		"outputs": map[string]any{"result": "{{ steps.shout.outputs.result }}"},
	}
}

// FanOutPipeline returns a diamond definition: three parallel branches
// aggregated by a join step.
func FanOutPipeline(values ...string) map[string]any {
	branches := make([]any, 0, len(values))
	inputs := make([]any, 0, len(values))
	deps := make([]any, 0, len(values))
	for i, v := range values {
		id := "branch_" + string(rune('a'+i))
		branches = append(branches, map[string]any{
			"id":     id,
			"action": "set_output",
			"params": map[string]any{"value": v},
		})
		inputs = append(inputs, "{{ steps."+id+".outputs.value }}")
		deps = append(deps, id)
	}

	steps := append(branches, map[string]any{
		"id":         "join",
		"action":     "aggregate",
		"depends_on": deps,
		"params":     map[string]any{"inputs": inputs},
	})

	return map[string]any{
		"name":    "fan_out",
		"steps":   steps,
		"outputs": map[string]any{"merged": "{{ steps.join.outputs.result }}"},
	}
}
