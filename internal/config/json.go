package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/grinsted/keeweb/internal/flagx"
	"github.com/grinsted/keeweb/internal/timex"
)

// jsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so intervals can be specified either as strings like "3s"
// or as integer nanoseconds; values are copied into the runtime Config
// (which uses time.Duration and plain ints) after parsing.
type jsonConfig struct {
	CacheDir             string         `json:"cache_dir"`
	RegistryDSN          string         `json:"registry_dsn"`
	FileChangeSyncMillis int            `json:"file_change_sync_millis"`
	MaxLoadMergeAttempts int            `json:"max_load_merge_attempts"`
	OnlineCheckInterval  timex.Duration `json:"online_check_interval"`
	S3Region             string         `json:"s3_region"`
	S3Bucket             string         `json:"s3_bucket"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
	S3AccessKey          string         `json:"s3_access_key"`
	S3SecretKey          string         `json:"s3_secret_key"`
}

// parseJSON overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags.
//  2. If empty, no JSON is loaded and the function returns.
//
// Panics on read or unmarshal errors, matching parseFlags' own panic-on-
// misconfiguration behavior; callers at process start are expected to let
// this terminate startup rather than run with a half-applied config.
func parseJSON(cfg *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	var jc jsonConfig

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.CacheDir != "" {
		cfg.CacheDir = jc.CacheDir
	}
	if jc.RegistryDSN != "" {
		cfg.RegistryDSN = jc.RegistryDSN
	}
	if jc.FileChangeSyncMillis != 0 {
		cfg.FileChangeSyncMillis = jc.FileChangeSyncMillis
	}
	if jc.MaxLoadMergeAttempts != 0 {
		cfg.MaxLoadMergeAttempts = jc.MaxLoadMergeAttempts
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
	if jc.S3BaseEndpoint != "" {
		cfg.S3BaseEndpoint = jc.S3BaseEndpoint
	}
	if jc.S3AccessKey != "" {
		cfg.S3AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3SecretKey = jc.S3SecretKey
	}
}
