package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  dbname: quantfolio
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "quantfolio", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 0.02, cfg.Analytics.RiskFreeRate, 1e-15)
	assert.InDelta(t, 0.02, cfg.Analytics.GridStep, 1e-15)
	assert.Equal(t, 252, cfg.Scheduler.Lookback)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  dbname: quantfolio
analytics:
  risk_free_rate: 0.03
  grid_step: 0.05
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 0.03, cfg.Analytics.RiskFreeRate, 1e-15)
	assert.InDelta(t, 0.05, cfg.Analytics.GridStep, 1e-15)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUANTFOLIO_SERVER_PORT", "7070")
	t.Setenv("QUANTFOLIO_DB_PASSWORD", "hunter2")
	t.Setenv("QUANTFOLIO_JWT_SECRET", "top-secret")

	path := writeConfig(t, `
database:
  dbname: quantfolio
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, "top-secret", cfg.JWT.SecretKey)
}

func TestValidateRejectsBadGridStep(t *testing.T) {
	path := writeConfig(t, `
database:
  dbname: quantfolio
analytics:
  grid_step: 1.5
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRequiresDBName(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
