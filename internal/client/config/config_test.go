package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *Config {
	c := &Config{}
	c.LoadDefaults()
	return c
}

func TestLoadDefaults(t *testing.T) {
	c := defaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, "127.0.0.1:50051", c.HealthAddr)
	assert.Equal(t, 30*time.Second, c.SyncInterval)
	assert.Equal(t, 3, c.MaxAttempts)
	assert.Equal(t, "latest_wins", c.ConflictStrategy)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Empty(t, cmp.Diff(defaults(), cfg))
}

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    func() *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd", "-a", "http://srv:1", "-g", "srv:2", "-d", "x.db", "-k", "KEY", "-x", "server_wins",
				"-i", "5", "-s", "60", "-l", "120", "-n", "7", "-m", "4"},
			expected: func() *Config {
				c := defaults()
				c.ServerURL = "http://srv:1"
				c.HealthAddr = "srv:2"
				c.DatabasePath = "x.db"
				c.LicensePublicKey = "KEY"
				c.ConflictStrategy = "server_wins"
				c.OnlineCheckInterval = 5 * time.Second
				c.SyncInterval = time.Minute
				c.PullInterval = 2 * time.Minute
				c.BatchSize = 7
				c.MaxAttempts = 4
				return c
			},
		},
		{
			name:     "foreign flags ignored",
			args:     []string{"cmd", "-config", "x.json", "-n", "9"},
			expected: func() *Config { c := defaults(); c.BatchSize = 9; return c },
		},
		{name: "bad interval", args: []string{"cmd", "-s", "abc"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			cfg := defaults()

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(cfg) })
				return
			}
			require.NotPanics(t, func() { parseFlags(cfg) })
			assert.Empty(t, cmp.Diff(tt.expected(), cfg))
		})
	}
}
