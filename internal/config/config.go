// Package config loads runtime configuration for the sync engine.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJSON), selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
package config

import "time"

// Config holds the engine's runtime settings.
type Config struct {
	// CacheDir is the directory backing the content-addressed cache
	// backend, always registered under the name "cache".
	CacheDir string

	// RegistryDSN is the sql.Open data source name for the FileInfo
	// registry database.
	RegistryDSN string

	// FileChangeSyncMillis is the debounce window, in milliseconds,
	// applied to local filesystem watch callbacks before they trigger a
	// sync.
	FileChangeSyncMillis int

	// MaxLoadMergeAttempts bounds the stat/load/merge retry loop in the
	// sync state machine. Exceeding it yields ErrTooManyLoadAttempts.
	MaxLoadMergeAttempts int

	// OnlineCheckInterval controls how often the controller probes remote
	// backend reachability for UI status purposes.
	OnlineCheckInterval time.Duration

	// S3Region, S3Bucket, S3BaseEndpoint, S3AccessKey, S3SecretKey
	// configure the optional S3-compatible remote backend.
	S3Region       string
	S3Bucket       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.CacheDir = "vault-cache"
	c.RegistryDSN = "fileinfo.db"
	c.FileChangeSyncMillis = 500
	c.MaxLoadMergeAttempts = 3
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg)
	parseFlags(cfg)
	return cfg
}
