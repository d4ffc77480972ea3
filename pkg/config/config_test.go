package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Database.TxTimeout)
	assert.Equal(t, 5*time.Second, cfg.Database.TxMaxWait)
	assert.Equal(t, []string{"休暇", "leave"}, cfg.Leave.TemplateKeywords)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: db.internal
  tx_timeout: 3s
leave:
  template_keywords: ["vacation"]
redis:
  addr: cache:6379
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DB_HOST", "db.override")
	t.Setenv("LEAVE_TEMPLATE_KEYWORDS", "休暇, leave ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.override", cfg.Database.Host)
	assert.Equal(t, 3*time.Second, cfg.Database.TxTimeout)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"休暇", "leave"}, cfg.Leave.TemplateKeywords)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.TxTimeout = 0
	cfg.Leave.TemplateKeywords = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tx_timeout")
	assert.Contains(t, err.Error(), "leave template keyword")
}
