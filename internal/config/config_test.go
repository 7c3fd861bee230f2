package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.ImportSyncThreshold)
	assert.Equal(t, 100, cfg.ImportBatchSize)
	assert.Equal(t, 5*time.Minute, cfg.ImportTimeout)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.Greater(t, cfg.WriteTimeout, cfg.ImportTimeout)
	assert.Equal(t, "dev-secret-change-in-production", cfg.JWTSecret)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("IMPORT_TIMEOUT", "90s")
	t.Setenv("IMPORT_SYNC_THRESHOLD", "50")
	t.Setenv("TEMP_FILE_MAX_AGE", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.ImportTimeout)
	assert.Equal(t, 50, cfg.ImportSyncThreshold)
	assert.Equal(t, time.Hour, cfg.TempFileMaxAge)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RequiresSecretInProduction(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}
