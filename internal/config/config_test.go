package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "vault-cache", c.CacheDir)
	assert.Equal(t, "fileinfo.db", c.RegistryDSN)
	assert.Equal(t, 500, c.FileChangeSyncMillis)
	assert.Equal(t, 3, c.MaxLoadMergeAttempts)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	cfg := LoadConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, "vault-cache", cfg.CacheDir)
	assert.Equal(t, 3, cfg.MaxLoadMergeAttempts)
}
