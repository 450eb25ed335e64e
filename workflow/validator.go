package workflow

import "fmt"

// ValidationResult reports every structural problem found in a
// definition. HasCycles is set separately so linting callers can
// distinguish a cyclic graph from other defects.
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
	HasCycles bool     `json:"has_cycles"`
}

// validateDAG checks structure, per-step fields, references, and
// acyclicity, in that order. Reference and cycle checks are skipped for
// steps that already failed the earlier phases badly enough to make
// them meaningless.
func validateDAG(dag *WorkflowDAG) ValidationResult {
	var result ValidationResult

	addError := func(format string, args ...any) {
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	// Structural
	if dag.Name == "" {
		addError("pipeline name is required")
	}
	if len(dag.Steps) == 0 {
		addError("pipeline must define at least one step")
		result.Valid = len(result.Errors) == 0
		return result
	}

	// Per-step
	seen := make(map[string]bool, len(dag.Steps))
	for i, s := range dag.Steps {
		if s == nil {
			addError("step %d is empty", i)
			continue
		}
		if s.ID == "" {
			addError("step %d is missing an id", i)
			continue
		}
		if s.Action == "" {
			addError("step %q is missing an action", s.ID)
		}
		if seen[s.ID] {
			addError("duplicate step id: %s", s.ID)
			continue
		}
		seen[s.ID] = true
		if s.OnFailure != "" && s.OnFailure != FailureFail && s.OnFailure != FailureContinue {
			addError("step %q has invalid on_failure %q", s.ID, s.OnFailure)
		}
		if s.Retry != nil && s.Retry.MaxAttempts < 0 {
			addError("step %q has negative retry max_attempts", s.ID)
		}
	}

	// References
	for _, s := range dag.Steps {
		if s == nil || s.ID == "" {
			continue
		}
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				addError("step %q depends on itself", s.ID)
				continue
			}
			if !seen[dep] {
				addError("step %q depends on unknown step %q", s.ID, dep)
			}
		}
	}

	// Cycles, only once the reference set is sound enough to walk.
	if len(result.Errors) == 0 {
		if _, cyclic := topologicalSort(dag.Steps); cyclic {
			result.HasCycles = true
			addError("dependency graph contains a cycle")
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}
