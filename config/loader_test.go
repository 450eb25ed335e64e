package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.Engine.DefaultStepTimeout)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  metrics_port: 9999
engine:
  default_step_timeout: 2m
  non_strict_templates: true
database:
  driver: sqlite
  name: pipeflow.db
publisher:
  channel: custom.events
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.MetricsPort)
	assert.Equal(t, 2*time.Minute, cfg.Engine.DefaultStepTimeout)
	assert.True(t, cfg.Engine.NonStrictTemplates)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "custom.events", cfg.Publisher.Channel)
	// Untouched sections keep defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PIPEFLOW_SERVER_METRICS_PORT", "8888")
	t.Setenv("PIPEFLOW_DATABASE_DRIVER", "mysql")
	t.Setenv("PIPEFLOW_ENGINE_DEFAULT_STEP_TIMEOUT", "45s")
	t.Setenv("PIPEFLOW_ENGINE_NON_STRICT_TEMPLATES", "true")
	t.Setenv("PIPEFLOW_TELEMETRY_SAMPLE_RATE", "0.5")
	t.Setenv("PIPEFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/pipeflow.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.MetricsPort)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 45*time.Second, cfg.Engine.DefaultStepTimeout)
	assert.True(t, cfg.Engine.NonStrictTemplates)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
	assert.Equal(t, []string{"stdout", "/var/log/pipeflow.log"}, cfg.Log.OutputPaths)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  metrics_port: 9999\n"), 0o600))
	t.Setenv("PIPEFLOW_SERVER_METRICS_PORT", "7777")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.MetricsPort)
}

func TestCustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_METRICS_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.MetricsPort)
}

func TestValidatorHookRuns(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return assert.AnError }).
		Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults pass", func(c *Config) {}, ""},
		{"bad metrics port", func(c *Config) { c.Server.MetricsPort = 0 }, "invalid metrics port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, "unsupported database driver"},
		{"zero step timeout", func(c *Config) { c.Engine.DefaultStepTimeout = 0 }, "default_step_timeout"},
		{"bad sample rate", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.SampleRate = 2
		}, "sample_rate"},
		{"negative retries", func(c *Config) { c.Publisher.MaxRetries = -1 }, "max_retries"},
		{"retention without max age", func(c *Config) {
			c.Retention.Enabled = true
			c.Retention.MaxAge = 0
		}, "max_age"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432,
		User: "u", Password: "p", Name: "pipeflow", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=pipeflow sslmode=disable", d.DSN())

	d.Driver = "mysql"
	assert.Equal(t, "u:p@tcp(db:5432)/pipeflow?parseTime=true", d.DSN())

	d.Driver = "sqlite"
	assert.Equal(t, "pipeflow", d.DSN())

	d.Driver = "oracle"
	assert.Empty(t, d.DSN())
}

func TestMustLoadPanicsOnBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0o600))

	assert.Panics(t, func() { MustLoad(path) })
}
