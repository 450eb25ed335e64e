package dsl

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Bindings is the evaluation scope: workflow parameters plus the
// outputs of completed steps keyed by step id. Strict makes a missing
// reference an error instead of a falsy value; default(...) recovers
// it in either mode.
type Bindings struct {
	Params      map[string]any
	StepOutputs map[string]any
	Strict      bool
}

// undefined marks a reference that did not resolve. It flows through
// evaluation so default(...) and "is defined" can observe it; any other
// consumption surfaces it via demand.
type undefined struct {
	path string
}

func isUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// lookupPath resolves a dot path against the bindings. Supported roots:
// params.<name>[...] and steps.<id>.outputs.<name>[...].
func lookupPath(path string, b Bindings) any {
	parts := strings.Split(path, ".")

	switch parts[0] {
	case "params":
		if len(parts) < 2 {
			return undefined{path}
		}
		return walk(b.Params, parts[1:], path)
	case "steps":
		// steps.<id>.outputs.<name...>
		if len(parts) < 4 || parts[2] != "outputs" {
			return undefined{path}
		}
		outputs, ok := b.StepOutputs[parts[1]]
		if !ok {
			return undefined{path}
		}
		m, ok := asMap(outputs)
		if !ok {
			return undefined{path}
		}
		return walk(m, parts[3:], path)
	default:
		return undefined{path}
	}
}

func walk(m map[string]any, parts []string, full string) any {
	var current any = m
	for _, part := range parts {
		cm, ok := asMap(current)
		if !ok {
			return undefined{full}
		}
		current, ok = cm[part]
		if !ok {
			return undefined{full}
		}
	}
	return current
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// truthy converts a value to boolean: nil, undefined, false, zero,
// empty string/list/map are falsy; everything else is truthy.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case undefined:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float32:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Map, reflect.Array:
			return rv.Len() > 0
		}
		return true
	}
}

// toFloat attempts to convert a value to float64.
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}

// looseEqual compares two values: numerics numerically, booleans as
// booleans, everything else by string rendering. nil equals only nil
// or undefined.
func looseEqual(left, right any) bool {
	if isUndefined(left) {
		left = nil
	}
	if isUndefined(right) {
		right = nil
	}
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if lb, ok := left.(bool); ok {
		if rb, ok := right.(bool); ok {
			return lb == rb
		}
		return lb == truthy(right)
	}
	if rb, ok := right.(bool); ok {
		return rb == truthy(left)
	}
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		return lf == rf
	}
	return stringify(left) == stringify(right)
}

// compareOrdered evaluates an ordering comparison, numerically when
// both sides convert, lexicographically otherwise.
func compareOrdered(left any, op string, right any) bool {
	if left == nil || right == nil || isUndefined(left) || isUndefined(right) {
		return false
	}
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		switch op {
		case ">":
			return lf > rf
		case ">=":
			return lf >= rf
		case "<":
			return lf < rf
		case "<=":
			return lf <= rf
		}
		return false
	}
	ls, rs := stringify(left), stringify(right)
	switch op {
	case ">":
		return ls > rs
	case ">=":
		return ls >= rs
	case "<":
		return ls < rs
	case "<=":
		return ls <= rs
	}
	return false
}

// contains implements the "in" operator over strings (substring),
// lists (membership by loose equality), and maps (key presence).
func contains(needle, haystack any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, stringify(needle))
	case []any:
		for _, item := range h {
			if looseEqual(needle, item) {
				return true
			}
		}
		return false
	case map[string]any:
		_, ok := h[stringify(needle)]
		return ok
	default:
		rv := reflect.ValueOf(haystack)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				if looseEqual(needle, rv.Index(i).Interface()) {
					return true
				}
			}
		}
		return false
	}
}

// stringify renders a value the way templates embed it in text.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case undefined:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		// Render whole floats without a trailing .0 so numbers coming
		// out of JSON decode embed as integers.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return stringify(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
