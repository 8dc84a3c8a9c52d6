package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.70, cfg.Matching.FuzzyFloor)
	assert.Equal(t, "0.01", cfg.Matching.ExactTolerance)
	assert.Equal(t, 85.0, cfg.Scoring.PassThreshold)
	assert.Equal(t, 4, cfg.Scoring.DateDecayPeriods)
	assert.Equal(t, 4, cfg.Session.Workers)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.True(t, cfg.Features.FuzzyMatching)
	assert.True(t, cfg.Features.InferredMatching)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	engine, err := cfg.Matching.Engine()
	require.NoError(t, err)
	assert.Equal(t, "0.01", engine.ExactTolerance.String())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
matching:
  fuzzy_floor: 0.8
session:
  workers: 8
storage:
  backend: badger
  dir: /var/lib/recon
features:
  inferred_matching: false
log:
  level: debug
  pretty: true
`), 0o600))

	t.Setenv("RECON_SESSION_WORKERS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Matching.FuzzyFloor)
	assert.Equal(t, 2, cfg.Session.Workers)
	assert.Equal(t, StorageBadger, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/recon", cfg.Storage.Dir)
	assert.True(t, cfg.Features.FuzzyMatching)
	assert.False(t, cfg.Features.InferredMatching)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad tolerance", func(c *Config) { c.Matching.ExactTolerance = "cent" }},
		{"floor out of range", func(c *Config) { c.Matching.FuzzyFloor = 1.5 }},
		{"fuzzy weights", func(c *Config) { c.Matching.NameWeight = 0.9 }},
		{"scoring weights", func(c *Config) { c.Scoring.DateWeight = 0.3 }},
		{"thresholds", func(c *Config) { c.Scoring.WarningThreshold = 90 }},
		{"workers", func(c *Config) { c.Session.Workers = 0 }},
		{"backend", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"sql dsn", func(c *Config) { c.Storage.Backend = StorageSQL; c.Storage.DSN = "" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
