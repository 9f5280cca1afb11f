package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgov/evaluator"
	"github.com/BaSui01/agentgov/penalty"
)

// ---- defaults ----

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, float64(100), cfg.Server.RateLimitRPS)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "agentgov", cfg.Database.Name)

	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	assert.False(t, cfg.JWT.Enabled)
	assert.Equal(t, "agentgov", cfg.Telemetry.ServiceName)
}

func TestDefaultGovernanceConfigMatchesPackages(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5*time.Minute, cfg.Governance.EvaluateInterval)
	assert.Equal(t, evaluator.DefaultConfig().ErrorRateThreshold, cfg.Governance.Evaluator.ErrorRateThreshold)
	assert.Equal(t, penalty.DefaultConfig().AppealWindow, cfg.Governance.Penalty.AppealWindow)
	assert.Equal(t, 4, len(cfg.Governance.Retraining.Stages))
	assert.Equal(t, 256, cfg.Governance.Dispatcher.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.Governance.Notify.WriteTimeout)
}

// ---- loader ----

func TestLoaderDefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoaderLoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

database:
  driver: sqlite
  name: /tmp/archive.db

governance:
  evaluate_interval: 1m
  penalty:
    appeal_window: 2h
    restore_steps: 3
  evaluator:
    error_rate_threshold: 0.25
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o600))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, 9091, cfg.Server.MetricsPort)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/archive.db", cfg.Database.Name)

	assert.Equal(t, time.Minute, cfg.Governance.EvaluateInterval)
	assert.Equal(t, 2*time.Hour, cfg.Governance.Penalty.AppealWindow)
	assert.Equal(t, 3, cfg.Governance.Penalty.RestoreSteps)
	assert.Equal(t, 0.25, cfg.Governance.Evaluator.ErrorRateThreshold)
}

func TestLoaderMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoaderRejectsMalformedYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [not a map"), 0o600))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config from file")
}

// ---- environment overrides ----

func TestLoaderEnvOverrides(t *testing.T) {
	t.Setenv("AGENTGOV_SERVER_HTTP_PORT", "9999")
	t.Setenv("AGENTGOV_SERVER_READ_TIMEOUT", "45s")
	t.Setenv("AGENTGOV_SERVER_RATE_LIMIT_RPS", "50.5")
	t.Setenv("AGENTGOV_DATABASE_DRIVER", "mysql")
	t.Setenv("AGENTGOV_REDIS_ENABLED", "true")
	t.Setenv("AGENTGOV_LOG_OUTPUT_PATHS", "stdout, /var/log/agentgov.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 50.5, cfg.Server.RateLimitRPS)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"stdout", "/var/log/agentgov.log"}, cfg.Log.OutputPaths)
}

func TestLoaderEnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8888\n"), 0o600))

	t.Setenv("AGENTGOV_SERVER_HTTP_PORT", "7777")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.HTTPPort, "environment wins over the file")
}

func TestLoaderCustomEnvPrefix(t *testing.T) {
	t.Setenv("CUSTOM_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("CUSTOM").Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoaderRejectsBadEnvValue(t *testing.T) {
	t.Setenv("AGENTGOV_SERVER_HTTP_PORT", "not-a-number")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENTGOV_SERVER_HTTP_PORT")
}

// ---- validators ----

func TestLoaderRunsValidators(t *testing.T) {
	sentinel := errors.New("boom")
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return sentinel }).
		Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.HTTPPort = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")

	cfg = DefaultConfig()
	cfg.Database.Driver = "oracle"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.TLSCertFile = "cert.pem"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.JWT.Enabled = true
	require.Error(t, cfg.Validate())
	cfg.JWT.Secret = "s3cret"
	require.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	require.Error(t, cfg.Validate())
}

// ---- DSN ----

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432,
		User: "gov", Password: "pw", Name: "archive", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=gov password=pw dbname=archive sslmode=disable", d.DSN())

	d.Driver = "mysql"
	assert.Equal(t, "gov:pw@tcp(db:5432)/archive?parseTime=true", d.DSN())

	d.Driver = "sqlite"
	assert.Equal(t, "archive", d.DSN())

	d.Driver = "oracle"
	assert.Equal(t, "", d.DSN())
}

func TestMustLoadPanicsOnError(t *testing.T) {
	t.Setenv("AGENTGOV_SERVER_HTTP_PORT", "bad")
	assert.Panics(t, func() { MustLoad("") })
}
