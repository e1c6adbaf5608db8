// Package config loads the sync engine's runtime configuration.
//
// # JSON schema
//
//	{
//	  "cache_dir": "vault-cache",
//	  "registry_dsn": "fileinfo.db",
//	  "file_change_sync_millis": 500,
//	  "max_load_merge_attempts": 3,
//	  "online_check_interval": "3s",
//	  "s3_region": "us-east-1",
//	  "s3_bucket": "my-vaults",
//	  "s3_base_endpoint": "https://s3.example.com"
//	}
//
// Note: this package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
