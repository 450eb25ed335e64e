// Package workflow defines the DAG data model for declarative pipelines:
// parsing JSON/YAML definitions into an immutable, validated graph and
// answering structural queries (roots, leaves, dependents, topological
// order) the scheduler needs.
//
// A definition looks like:
//
//	name: nightly-report
//	parameters:
//	  - {name: input_message, type: string, required: true}
//	settings:
//	  max_parallel_steps: 4
//	steps:
//	  - id: fetch
//	    action: log
//	  - id: transform
//	    action: transform
//	    depends_on: [fetch]
//	    condition: "{{ params.transform_enabled }}"
//	outputs:
//	  result: "{{ steps.transform.outputs.value | default('SKIPPED') }}"
//
// Parse validates structure, per-step fields, dependency references, and
// acyclicity; Validate performs the same checks without failing, for
// pre-submission linting.
package workflow
