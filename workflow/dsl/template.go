package dsl

import (
	"errors"
	"strings"

	"github.com/BaSui01/pipeflow/types"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Resolver resolves {{ }} template expressions inside step parameters
// and workflow outputs against the current binding set.
type Resolver struct{}

// NewResolver creates a template resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve resolves value recursively: strings are template-expanded,
// maps and lists are resolved per element, other scalars pass through
// untouched. A string that is exactly one template expression keeps
// the referenced value's native type; a template embedded in
// surrounding text is rendered into the string.
//
// Missing references resolve through a chained default(...) filter when
// present; otherwise strict mode fails with PARAMETER_RESOLUTION and
// non-strict mode degrades to an empty value. Malformed template syntax
// fails in both modes.
func (r *Resolver) Resolve(value any, params, stepOutputs map[string]any, strict bool) (any, error) {
	b := Bindings{Params: params, StepOutputs: stepOutputs, Strict: strict}
	return r.resolve(value, b)
}

// ResolveMap resolves every templated leaf of a map, leaving
// non-templated values untouched.
func (r *Resolver) ResolveMap(m map[string]any, params, stepOutputs map[string]any, strict bool) (map[string]any, error) {
	resolved, err := r.Resolve(m, params, stepOutputs, strict)
	if err != nil {
		return nil, err
	}
	out, _ := resolved.(map[string]any)
	return out, nil
}

// ResolveList resolves every templated element of a list.
func (r *Resolver) ResolveList(l []any, params, stepOutputs map[string]any, strict bool) ([]any, error) {
	resolved, err := r.Resolve(l, params, stepOutputs, strict)
	if err != nil {
		return nil, err
	}
	out, _ := resolved.([]any)
	return out, nil
}

func (r *Resolver) resolve(value any, b Bindings) (any, error) {
	switch v := value.(type) {
	case string:
		return r.resolveString(v, b)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			resolved, err := r.resolve(item, b)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := r.resolve(item, b)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func (r *Resolver) resolveString(s string, b Bindings) (any, error) {
	if !strings.Contains(s, openDelim) {
		return s, nil
	}

	if expr, pure := pureTemplate(s); pure {
		value, err := evalTemplateExpr(expr, b)
		if err != nil {
			return nil, err
		}
		if isUndefined(value) {
			return "", nil
		}
		return value, nil
	}

	// Embedded: render every expression into the surrounding text.
	var sb strings.Builder
	rest := s
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:start])
		end := strings.Index(rest[start:], closeDelim)
		if end < 0 {
			return nil, types.Errorf(types.ErrParameterResolution,
				"unclosed template expression in %q", s)
		}
		expr := rest[start+len(openDelim) : start+end]
		value, err := evalTemplateExpr(expr, b)
		if err != nil {
			return nil, err
		}
		sb.WriteString(stringify(value))
		rest = rest[start+end+len(closeDelim):]
	}
	return sb.String(), nil
}

// pureTemplate reports whether s consists of exactly one template
// expression (ignoring surrounding whitespace) and returns its body.
func pureTemplate(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, openDelim) || !strings.HasSuffix(trimmed, closeDelim) {
		return "", false
	}
	body := trimmed[len(openDelim) : len(trimmed)-len(closeDelim)]
	// A second opening delimiter means two expressions, not one.
	if strings.Contains(body, openDelim) || strings.Contains(body, closeDelim) {
		return "", false
	}
	return body, true
}

func evalTemplateExpr(expr string, b Bindings) (any, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, types.NewError(types.ErrParameterResolution, "empty template expression")
	}
	n, err := parseExpression(expr)
	if err != nil {
		return nil, types.Errorf(types.ErrParameterResolution,
			"invalid template expression %q", expr).WithCause(err)
	}
	value, err := n.eval(b)
	if err != nil {
		var undefErr *undefinedRefError
		if errors.As(err, &undefErr) {
			return nil, types.Errorf(types.ErrParameterResolution,
				"unresolvable reference %q", undefErr.path)
		}
		return nil, types.Errorf(types.ErrParameterResolution,
			"evaluate template expression %q", expr).WithCause(err)
	}
	return value, nil
}

// HasTemplates reports whether value contains any template expression,
// recursively, without resolving anything.
func HasTemplates(value any) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, openDelim)
	case map[string]any:
		for _, item := range v {
			if HasTemplates(item) {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if HasTemplates(item) {
				return true
			}
		}
	}
	return false
}

// ExtractVariables lists every params.* / steps.* reference used by
// templates in value, in first-appearance order without duplicates.
// Unparseable expressions contribute nothing.
func ExtractVariables(value any) []string {
	var refs []string
	seen := make(map[string]bool)
	extractInto(value, &refs, seen)
	return refs
}

func extractInto(value any, refs *[]string, seen map[string]bool) {
	switch v := value.(type) {
	case string:
		rest := v
		for {
			start := strings.Index(rest, openDelim)
			if start < 0 {
				return
			}
			end := strings.Index(rest[start:], closeDelim)
			if end < 0 {
				return
			}
			expr := rest[start+len(openDelim) : start+end]
			if n, err := parseExpression(strings.TrimSpace(expr)); err == nil {
				var found []string
				collectRefs(n, &found)
				for _, ref := range found {
					if (strings.HasPrefix(ref, "params.") || strings.HasPrefix(ref, "steps.")) && !seen[ref] {
						seen[ref] = true
						*refs = append(*refs, ref)
					}
				}
			}
			rest = rest[start+end+len(closeDelim):]
		}
	case map[string]any:
		for _, item := range v {
			extractInto(item, refs, seen)
		}
	case []any:
		for _, item := range v {
			extractInto(item, refs, seen)
		}
	}
}
