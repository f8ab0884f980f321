package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, 10, cfg.Drafts.PageSize)
	assert.Equal(t, "drafts:", cfg.Redis.KeyPrefix)
	assert.Equal(t, time.Hour, cfg.Worker.SweepInterval)
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := `
environment: production
storage:
  backend: redis
drafts:
  page_size: 25
  other_reason_ids: [7, 12]
redis:
  host: cache.internal
  snapshot_ttl: 24h
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, StorageRedis, cfg.Storage.Backend)
	assert.Equal(t, 25, cfg.Drafts.PageSize)
	assert.Equal(t, []int64{7, 12}, cfg.Drafts.OtherReasonIDs)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, 24*time.Hour, cfg.Redis.SnapshotTTL)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("DRAFTS_STORAGE_BACKEND", "postgres")
	t.Setenv("DRAFTS_SERVER_ADDRESS", "127.0.0.1:9000")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Storage.Backend)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("DRAFTS_STORAGE_BACKEND", "sqlite")

	_, err := LoadConfig(t.TempDir())
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestFormatIndex(t *testing.T) {
	assert.Equal(t, "logistics-materials", FormatIndex(ElasticConfig{Prefix: "logistics"}, "materials"))
	assert.Equal(t, "materials", FormatIndex(ElasticConfig{}, "materials"))
}
