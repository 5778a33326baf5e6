package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atinyakov/GophFill/internal/directory"
	"github.com/atinyakov/GophFill/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (*Options, error) {
	t.Helper()
	o := NewOptions()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	o.RegisterFlags(fs)
	return o, o.Load(fs, args)
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"CONFIG", "SERVER_ADDRESS", "DATABASE_DSN", "AUTOFILL_DIRECTORY_STRUCTURE", "MATCH_BACKEND", "LOG_LEVEL", "AUTOFILL_STRICT_WEB", "AUTOFILL_BRIDGES"} {
		t.Setenv(k, "")
	}
	t.Setenv("PASSWORD_STORE_DIR", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	o, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", o.Addr)
	assert.Equal(t, directory.FileBased, o.Structure())
	assert.Equal(t, repository.BackendSQLite, o.Backend())
	assert.Equal(t, 100, o.ResultLimit)
	assert.True(t, o.StrictWebDefault)
	assert.Equal(t, Duration(time.Hour), o.PruneInterval)
	assert.Equal(t, DefaultMatchDBPath(repository.BackendSQLite), o.DatabaseDSN)
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfg := filepath.Join(dir, "gophfill.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{
		"address": "127.0.0.1:9000",
		"directory_structure": "directory-per-site",
		"match_backend": "bolt",
		"database_dsn": "/tmp/from-file.db",
		"result_limit": 50,
		"strict_web_default": false,
		"flow_idle_timeout": "90s"
	}`), 0o600))

	t.Setenv("MATCH_BACKEND", "memory")

	o, err := load(t, "-c", cfg, "-a", "127.0.0.1:9100", "-limit", "20")
	require.NoError(t, err)

	// flag beats file
	assert.Equal(t, "127.0.0.1:9100", o.Addr)
	assert.Equal(t, 20, o.ResultLimit)
	// file beats default
	assert.Equal(t, directory.DirectoryBased, o.Structure())
	assert.False(t, o.StrictWebDefault)
	assert.Equal(t, Duration(90*time.Second), o.FlowIdleTimeout)
	assert.Equal(t, "/tmp/from-file.db", o.DatabaseDSN)
	// env beats everything
	assert.Equal(t, repository.BackendMemory, o.Backend())
}

func TestLoad_AllowedBridges(t *testing.T) {
	clearEnv(t)
	cfg := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{
		"cert_file": "server.crt",
		"key_file": "server.key",
		"ca_file": "ca.crt",
		"allowed_bridges": ["from-file"]
	}`), 0o600))

	o, err := load(t, "-c", cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"from-file"}, o.AllowedBridges)

	o, err = load(t, "-c", cfg, "-tls-bridges", "firefox, chromium,")
	require.NoError(t, err)
	assert.Equal(t, []string{"firefox", "chromium"}, o.AllowedBridges)

	t.Setenv("AUTOFILL_BRIDGES", "cli")
	o, err = load(t, "-c", cfg, "-tls-bridges", "firefox")
	require.NoError(t, err)
	assert.Equal(t, []string{"cli"}, o.AllowedBridges)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	clearEnv(t)
	cfg := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{"log_level":"debug"}`), 0o600))
	t.Setenv("CONFIG", cfg)

	o, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "debug", o.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
		file string
	}{
		{name: "unknown structure", args: []string{"-structure", "nested"}},
		{name: "unknown backend", env: map[string]string{"MATCH_BACKEND": "redis"}},
		{name: "limit too high", args: []string{"-limit", "5000"}},
		{name: "postgres without dsn", args: []string{"-backend", "postgres"}},
		{name: "half tls", args: []string{"-tls-cert", "server.crt"}},
		{name: "bridges without ca", args: []string{"-tls-bridges", "firefox"}},
		{name: "bad strict env", env: map[string]string{"AUTOFILL_STRICT_WEB": "maybe"}},
		{name: "bad file", file: `{"result_limit": "many"}`},
		{name: "bad duration", file: `{"prune_interval": "soon"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			args := tt.args
			if tt.file != "" {
				cfg := filepath.Join(t.TempDir(), "c.json")
				require.NoError(t, os.WriteFile(cfg, []byte(tt.file), 0o600))
				args = append(args, "-config", cfg)
			}
			_, err := load(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	clearEnv(t)
	_, err := load(t, "-c", filepath.Join(t.TempDir(), "absent.json"))
	assert.NoError(t, err)
}
