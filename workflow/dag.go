package workflow

// FailurePolicy defines how a step failure affects the rest of the run.
type FailurePolicy string

const (
	// FailureFail fails the whole execution once running steps drain.
	FailureFail FailurePolicy = "fail"
	// FailureContinue keeps evaluating the failed step's dependents;
	// its outputs stay unavailable to downstream templates.
	FailureContinue FailurePolicy = "continue"
)

// ParameterDef declares a workflow-level input parameter.
type ParameterDef struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Settings holds execution-level tunables.
type Settings struct {
	// TimeoutSeconds bounds the whole execution (0 = no bound).
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	// FailFast stops dispatching new steps once any step fails hard.
	FailFast bool `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty"`
	// MaxParallelSteps bounds concurrent steps in one ready set (0 = unbounded).
	MaxParallelSteps int `json:"max_parallel_steps,omitempty" yaml:"max_parallel_steps,omitempty"`
}

// RetryPolicy configures per-step retry behavior.
type RetryPolicy struct {
	MaxAttempts    int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	BackoffSeconds int `json:"backoff_seconds,omitempty" yaml:"backoff_seconds,omitempty"`
}

// Step is a single node in the workflow graph.
type Step struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name,omitempty" yaml:"name,omitempty"`
	Action         string         `json:"action" yaml:"action"`
	Params         map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	DependsOn      []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Condition      string         `json:"condition,omitempty" yaml:"condition,omitempty"`
	Outputs        []string       `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Retry          *RetryPolicy   `json:"retry,omitempty" yaml:"retry,omitempty"`
	OnFailure      FailurePolicy  `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// ContinueOnFailure reports whether a failure of this step still
// satisfies its dependents.
func (s *Step) ContinueOnFailure() bool {
	return s.OnFailure == FailureContinue
}

// WorkflowDAG is the validated, in-memory form of a pipeline definition.
// It is immutable once returned by Parse; every index below is built
// exactly once.
type WorkflowDAG struct {
	Name        string            `json:"name" yaml:"name"`
	Version     string            `json:"version,omitempty" yaml:"version,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  []ParameterDef    `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Settings    Settings          `json:"settings,omitempty" yaml:"settings,omitempty"`
	Steps       []*Step           `json:"steps" yaml:"steps"`
	Outputs     map[string]string `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// steps maps step ids to step instances
	steps map[string]*Step
	// dependents maps step ids to the ids that depend on them
	dependents map[string][]string
	// order is the topological order of step ids
	order []string
	// rank maps step ids to their 1-based topological rank
	rank map[string]int
}

// GetStep retrieves a step by id.
func (d *WorkflowDAG) GetStep(id string) (*Step, bool) {
	s, ok := d.steps[id]
	return s, ok
}

// RootSteps returns the steps with no dependencies, in declaration order.
func (d *WorkflowDAG) RootSteps() []*Step {
	var roots []*Step
	for _, s := range d.Steps {
		if len(s.DependsOn) == 0 {
			roots = append(roots, s)
		}
	}
	return roots
}

// LeafSteps returns the steps no other step depends on, in declaration order.
func (d *WorkflowDAG) LeafSteps() []*Step {
	var leaves []*Step
	for _, s := range d.Steps {
		if len(d.dependents[s.ID]) == 0 {
			leaves = append(leaves, s)
		}
	}
	return leaves
}

// Dependents returns the ids of the steps that depend on the given step.
func (d *WorkflowDAG) Dependents(id string) []string {
	return d.dependents[id]
}

// RequiredParameters returns the names of parameters declared required
// without a default.
func (d *WorkflowDAG) RequiredParameters() []string {
	var names []string
	for _, p := range d.Parameters {
		if p.Required && p.Default == nil {
			names = append(names, p.Name)
		}
	}
	return names
}

// ParameterDefaults returns declared defaults keyed by parameter name.
func (d *WorkflowDAG) ParameterDefaults() map[string]any {
	defaults := make(map[string]any)
	for _, p := range d.Parameters {
		if p.Default != nil {
			defaults[p.Name] = p.Default
		}
	}
	return defaults
}

// TopologicalOrder returns step ids in dependency order. Steps at the
// same depth keep their declaration order.
func (d *WorkflowDAG) TopologicalOrder() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Rank returns the 1-based topological rank of a step, used as the
// persisted sequence number. Unknown ids return 0.
func (d *WorkflowDAG) Rank(id string) int {
	return d.rank[id]
}

// StepCount returns the number of steps in the graph.
func (d *WorkflowDAG) StepCount() int {
	return len(d.Steps)
}

// buildIndexes populates the adjacency indexes. Called by Parse after
// validation guarantees ids are unique and references resolve.
func (d *WorkflowDAG) buildIndexes() {
	d.steps = make(map[string]*Step, len(d.Steps))
	d.dependents = make(map[string][]string)
	for _, s := range d.Steps {
		d.steps[s.ID] = s
	}
	for _, s := range d.Steps {
		for _, dep := range s.DependsOn {
			d.dependents[dep] = append(d.dependents[dep], s.ID)
		}
	}
	d.order, _ = topologicalSort(d.Steps)
	d.rank = make(map[string]int, len(d.order))
	for i, id := range d.order {
		d.rank[id] = i + 1
	}
}

// topologicalSort runs Kahn's algorithm over the steps. The second
// return value is true when the graph contains a cycle. O(V+E).
func topologicalSort(steps []*Step) ([]string, bool) {
	indegree := make(map[string]int, len(steps))
	adjacency := make(map[string][]string, len(steps))
	for _, s := range steps {
		indegree[s.ID] += 0
		for _, dep := range s.DependsOn {
			adjacency[dep] = append(adjacency[dep], s.ID)
			indegree[s.ID]++
		}
	}

	// Seed the queue in declaration order for a stable result.
	var queue []string
	for _, s := range steps {
		if indegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}

	order := make([]string, 0, len(steps))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adjacency[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	return order, len(order) != len(steps)
}
