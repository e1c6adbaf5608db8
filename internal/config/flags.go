package config

import (
	"flag"
	"os"

	"github.com/grinsted/keeweb/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-cache string    cache directory (default from Config)
//	-registry string registry DSN (default from Config)
//	-debounce int    FileChangeSync debounce window in milliseconds
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-cache", "-registry", "-debounce"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.CacheDir, "cache", cfg.CacheDir, "cache directory")
	fs.StringVar(&cfg.RegistryDSN, "registry", cfg.RegistryDSN, "registry database DSN")
	fs.IntVar(&cfg.FileChangeSyncMillis, "debounce", cfg.FileChangeSyncMillis, "file-change debounce window (ms)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
