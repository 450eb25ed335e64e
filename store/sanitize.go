package store

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// credentialKey matches output keys whose values must never reach the
// database in clear text.
var credentialKey = regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key|credential|private[_-]?key|authorization)`)

// credentialValue matches values that embed a credential assignment,
// for scrubbing error messages.
var credentialValue = regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key|credential|authorization)\s*[=:]\s*\S+`)

// SanitizeOutputs returns a copy of outputs with credential-looking
// keys redacted, recursing into nested maps and lists.
func SanitizeOutputs(outputs map[string]any) map[string]any {
	if outputs == nil {
		return nil
	}
	clean := make(map[string]any, len(outputs))
	for k, v := range outputs {
		if credentialKey.MatchString(k) {
			clean[k] = redacted
			continue
		}
		clean[k] = sanitizeValue(v)
	}
	return clean
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return SanitizeOutputs(val)
	case []any:
		clean := make([]any, len(val))
		for i, item := range val {
			clean[i] = sanitizeValue(item)
		}
		return clean
	default:
		return v
	}
}

// SanitizeMessage scrubs credential assignments out of an error
// message before it is persisted.
func SanitizeMessage(msg string) string {
	if msg == "" {
		return msg
	}
	return strings.TrimSpace(credentialValue.ReplaceAllString(msg, "$1="+redacted))
}
