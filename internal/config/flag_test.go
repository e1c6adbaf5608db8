package config

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name:        "overrides cache/registry/debounce",
			args:        []string{"cmd", "-cache", "/tmp/cache", "-registry", "/tmp/reg.db", "-debounce", "750"},
			expectPanic: false,
			expected:    &Config{CacheDir: "/tmp/cache", RegistryDSN: "/tmp/reg.db", FileChangeSyncMillis: 750},
		},
		{
			name:        "invalid debounce panics",
			args:        []string{"cmd", "-debounce", "abc"},
			expectPanic: true,
			expected:    &Config{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)
			os.Args = tt.args

			cfg := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(cfg) })
				assert.Equal(t, tt.expected, cfg)
			} else {
				require.Panics(t, func() { parseFlags(cfg) })
			}
		})
	}
}
