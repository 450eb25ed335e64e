package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeOutputs(t *testing.T) {
	outputs := map[string]any{
		"result":       "fine",
		"api_key":      "sk-live-1234",
		"apiKey":       "sk-live-5678",
		"DB_PASSWORD":  "hunter2",
		"accessToken":  "eyJhbGciOi",
		"nested":       map[string]any{"secret_value": "s3cret", "count": float64(2)},
		"list":         []any{map[string]any{"credential": "x"}, "plain"},
		"token_bucket": "not actually a credential but matches",
	}

	clean := SanitizeOutputs(outputs)

	assert.Equal(t, "fine", clean["result"])
	assert.Equal(t, redacted, clean["api_key"])
	assert.Equal(t, redacted, clean["apiKey"])
	assert.Equal(t, redacted, clean["DB_PASSWORD"])
	assert.Equal(t, redacted, clean["accessToken"])
	assert.Equal(t, redacted, clean["token_bucket"])

	nested := clean["nested"].(map[string]any)
	assert.Equal(t, redacted, nested["secret_value"])
	assert.Equal(t, float64(2), nested["count"])

	list := clean["list"].([]any)
	assert.Equal(t, redacted, list[0].(map[string]any)["credential"])
	assert.Equal(t, "plain", list[1])

	// Original untouched.
	assert.Equal(t, "sk-live-1234", outputs["api_key"])
}

func TestSanitizeOutputsNil(t *testing.T) {
	assert.Nil(t, SanitizeOutputs(nil))
}

func TestSanitizeMessage(t *testing.T) {
	tests := []struct {
		in       string
		contains string
		excludes string
	}{
		{"connect failed: password=hunter2 at host", redacted, "hunter2"},
		{"auth: token: abc.def.ghi rejected", redacted, "abc.def.ghi"},
		{"plain failure without credentials", "plain failure", redacted},
		{"", "", "x"},
	}

	for _, tt := range tests {
		out := SanitizeMessage(tt.in)
		if tt.contains != "" {
			assert.Contains(t, out, tt.contains)
		}
		assert.NotContains(t, out, tt.excludes)
	}
}
