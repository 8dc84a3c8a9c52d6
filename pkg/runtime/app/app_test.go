package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/recon-atlas/pkg/config"
	"github.com/de-tools/recon-atlas/pkg/models/domain"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		name    string
		backend config.StorageBackend
	}{
		{"memory", config.StorageMemory},
		{"badger", config.StorageBadger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadConfig(t)
			cfg.Storage.Backend = tt.backend
			cfg.Storage.Dir = filepath.Join(t.TempDir(), "data")

			a, err := New(context.Background(), cfg)
			require.NoError(t, err)
			defer func() { assert.NoError(t, a.Close()) }()

			assert.NotEmpty(t, a.Registry.Enabled())
			_, err = a.Sessions.Get(context.Background(), "missing")
			assert.True(t, errors.Is(err, domain.ErrNotFound))
		})
	}
}

func TestNew_BadHistoryFile(t *testing.T) {
	cfg := loadConfig(t)
	cfg.History.File = filepath.Join(t.TempDir(), "absent.ini")

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(config.RulesConfig{Disabled: []string{"A-1.1"}})
	require.NoError(t, err)
	rule, ok := r.Get("A-1.1")
	require.True(t, ok)
	assert.False(t, rule.Enabled)

	_, err = NewRegistry(config.RulesConfig{Disabled: []string{"Z-9"}})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`rules:
  - code: B-1.1
    name: Security deposits
    relationship: equality
    source: {document: balance_sheet, account_codes: ["2300"], account_name: Security Deposits}
    target: {document: rent_roll, account_codes: ["RR-DEP"], account_name: Deposits Held}
    materiality_threshold: "1.00"
    enabled: true
`), 0o600))
	r, err = NewRegistry(config.RulesConfig{File: path, Disabled: []string{"B-1.1"}})
	require.NoError(t, err)
	rule, ok = r.Get("B-1.1")
	require.True(t, ok)
	assert.False(t, rule.Enabled)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn"}, &buf)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
