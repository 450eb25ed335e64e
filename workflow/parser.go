package workflow

import (
	"encoding/json"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/pipeflow/types"
)

// Parse turns a raw pipeline definition into a validated WorkflowDAG.
// It accepts JSON or YAML text ([]byte or string), a decoded
// map[string]any, a *WorkflowDAG (validated as-is), or a WorkflowDAG
// value. Unknown keys are ignored for forward compatibility.
func Parse(raw any) (*WorkflowDAG, error) {
	dag, err := decode(raw)
	if err != nil {
		return nil, err
	}

	result := validateDAG(dag)
	if !result.Valid {
		return nil, types.NewError(types.ErrDAGValidation, strings.Join(result.Errors, "; "))
	}

	dag.buildIndexes()
	return dag, nil
}

// ParseFile reads and parses a definition file (JSON or YAML).
func ParseFile(path string) (*WorkflowDAG, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrDAGParse, "read definition file").WithCause(err)
	}
	return Parse(data)
}

// Validate checks a raw definition without failing on an invalid graph.
// Cycles are reported through HasCycles rather than an error, so callers
// can lint a definition before submission.
func Validate(raw any) ValidationResult {
	dag, err := decode(raw)
	if err != nil {
		return ValidationResult{Errors: []string{err.Error()}}
	}
	return validateDAG(dag)
}

func decode(raw any) (*WorkflowDAG, error) {
	switch v := raw.(type) {
	case nil:
		return nil, types.NewError(types.ErrDAGParse, "definition is empty")
	case *WorkflowDAG:
		if v == nil {
			return nil, types.NewError(types.ErrDAGParse, "definition is empty")
		}
		return cloneShallow(v), nil
	case WorkflowDAG:
		return cloneShallow(&v), nil
	case []byte:
		return decodeText(v)
	case string:
		return decodeText([]byte(v))
	case map[string]any:
		if len(v) == 0 {
			return nil, types.NewError(types.ErrDAGParse, "definition is empty")
		}
		// Round-trip through JSON so struct tags drive the mapping.
		data, err := json.Marshal(v)
		if err != nil {
			return nil, types.NewError(types.ErrDAGParse, "encode definition map").WithCause(err)
		}
		var dag WorkflowDAG
		if err := json.Unmarshal(data, &dag); err != nil {
			return nil, types.NewError(types.ErrDAGParse, "decode definition map").WithCause(err)
		}
		return &dag, nil
	default:
		return nil, types.Errorf(types.ErrDAGParse, "unsupported definition type %T", raw)
	}
}

func decodeText(data []byte) (*WorkflowDAG, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "{}" || trimmed == "null" {
		return nil, types.NewError(types.ErrDAGParse, "definition is empty")
	}

	var dag WorkflowDAG
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &dag); err != nil {
			return nil, types.NewError(types.ErrDAGParse, "parse JSON definition").WithCause(err)
		}
		return &dag, nil
	}
	if err := yaml.Unmarshal(data, &dag); err != nil {
		return nil, types.NewError(types.ErrDAGParse, "parse YAML definition").WithCause(err)
	}
	return &dag, nil
}

// cloneShallow copies the definition fields so Parse never mutates a
// caller-owned value while building indexes.
func cloneShallow(src *WorkflowDAG) *WorkflowDAG {
	dst := &WorkflowDAG{
		Name:        src.Name,
		Version:     src.Version,
		Description: src.Description,
		Parameters:  src.Parameters,
		Settings:    src.Settings,
		Outputs:     src.Outputs,
	}
	dst.Steps = make([]*Step, len(src.Steps))
	copy(dst.Steps, src.Steps)
	return dst
}
