package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestDefaultSections(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "pipeflow", cfg.Metrics.Namespace)
	assert.Equal(t, "pipeflow.events", cfg.Publisher.Channel)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.False(t, cfg.Retention.Enabled)
	assert.NotEmpty(t, cfg.Database.DSN())
}
