package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranshuparmar/whosock/internal/proc"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whosock.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		content   string
		assertCfg func(t *testing.T, cfg Config)
		wantErr   string
	}{
		"empty file keeps defaults": {
			content: "",
			assertCfg: func(t *testing.T, cfg Config) {
				assert.Equal(t, Default(), cfg)
			},
		},
		"backend and unowned": {
			content: `
backend = "lsof"
include_unowned = true
unknown_process = "kernel"
`,
			assertCfg: func(t *testing.T, cfg Config) {
				assert.Equal(t, "lsof", cfg.Backend)
				assert.True(t, cfg.IncludeUnowned)
				assert.Equal(t, "kernel", cfg.UnknownProcess)
				assert.Equal(t, "/proc", cfg.ProcPath)
			},
		},
		"intervals": {
			content: `
[watch]
interval = "500ms"

[serve]
listen = "127.0.0.1:9999"
interval = "1m"
`,
			assertCfg: func(t *testing.T, cfg Config) {
				assert.Equal(t, Duration(500*time.Millisecond), cfg.Watch.Interval)
				assert.Equal(t, Duration(time.Minute), cfg.Serve.Interval)
				assert.Equal(t, "127.0.0.1:9999", cfg.Serve.Listen)
			},
		},
		"log": {
			content: "[log]\nlevel = \"debug\"\nformat = \"json\"\n",
			assertCfg: func(t *testing.T, cfg Config) {
				assert.Equal(t, "debug", cfg.Log.Level)
				assert.Equal(t, "json", cfg.Log.Format)
			},
		},
		"unknown backend": {
			content: `backend = "ebpf"`,
			wantErr: "unknown connection backend",
		},
		"bad duration": {
			content: "[watch]\ninterval = \"soon\"\n",
			wantErr: "config",
		},
		"negative interval": {
			content: "[serve]\ninterval = \"-1s\"\n",
			wantErr: "serve.interval must be positive",
		},
		"unknown key": {
			content: `colour = "blue"`,
			wantErr: "config",
		},
		"bad log format": {
			content: "[log]\nformat = \"xml\"\n",
			wantErr: "log.format",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tc.content))
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.assertCfg(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Backend = "nope"
	cfg.Serve.Listen = ""
	cfg.Watch.Interval = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, proc.ErrUnknownBackend)
	assert.Contains(t, err.Error(), "serve.listen")
	assert.Contains(t, err.Error(), "watch.interval")
}

func TestProcOptions(t *testing.T) {
	cfg := Default()
	cfg.IncludeUnowned = true
	cfg.ProcPath = "/host/proc"

	opts := cfg.ProcOptions()
	assert.True(t, opts.IncludeUnowned)
	assert.Equal(t, "/host/proc", opts.ProcPath)
	assert.Equal(t, proc.UnknownProcess, opts.UnknownProcess)
}
