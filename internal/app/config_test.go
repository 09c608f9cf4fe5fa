package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")
	t.Setenv("CATALOG_API_URL", "http://catalog.local:5000")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 10*time.Second, cfg.CatalogAPITimeout)
	assert.Equal(t, "session-secret", cfg.SealSecret)
	assert.Equal(t, "0 7 * * *", cfg.LowStockScanCron)
	assert.False(t, cfg.HasServiceAccount())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsRelativeAPIURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CATALOG_API_URL", "catalog.local")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigServiceAccount(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CATALOG_API_USERNAME", "bot")
	t.Setenv("CATALOG_API_PASSWORD", "pw")
	t.Setenv("SEAL_SECRET", "seal")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.HasServiceAccount())
	assert.Equal(t, "seal", cfg.SealSecret)
}
