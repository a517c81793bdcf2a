package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
	assert.Equal(t, 30*time.Second, c.SyncInterval)
	assert.Equal(t, PolicyReport, c.FailurePolicy)
	assert.True(t, c.UseSnapshot)
	require.NoError(t, c.Validate())
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	want := &Config{}
	want.LoadDefaults()
	assert.Equal(t, want, cfg)
}

func TestLoad_JSONFileThenFlags(t *testing.T) {
	path := writeFile(t, "client.json", `{
		"server_endpoint_addr": "sync.local:9000",
		"access_token": "from-file",
		"sync_interval": "5s",
		"request_timeout": 2000000000,
		"use_snapshot": false
	}`)

	cfg, err := Load(newFlags(t, "-c", path, "--token", "from-flag", "--failure-policy", "requeue"))
	require.NoError(t, err)

	assert.Equal(t, "sync.local:9000", cfg.ServerEndpointAddr)
	assert.Equal(t, "from-flag", cfg.AccessToken, "flags override the file")
	assert.Equal(t, 5*time.Second, cfg.SyncInterval)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.UseSnapshot)
	assert.Equal(t, PolicyRequeue, cfg.FailurePolicy)
	assert.Equal(t, "offsync.db", cfg.DatabasePath, "absent keys keep defaults")
}

func TestLoad_TOMLFile(t *testing.T) {
	path := writeFile(t, "client.toml", `
database_path = "/var/lib/offsync/local.db"
sync_interval = "1m"
log_level = "debug"
`)

	cfg, err := Load(newFlags(t, "--config", path, "--interval", "10s"))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/offsync/local.db", cfg.DatabasePath)
	assert.Equal(t, 10*time.Second, cfg.SyncInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(newFlags(t, "-c", filepath.Join(t.TempDir(), "missing.json")))
	require.Error(t, err)

	_, err = Load(newFlags(t, "-c", writeFile(t, "bad.json", "{")))
	require.ErrorContains(t, err, "invalid json config")

	_, err = Load(newFlags(t, "--failure-policy", "retry"))
	require.ErrorIs(t, err, common.ErrorValidation)

	_, err = Load(newFlags(t, "--log-level", "loud"))
	require.ErrorIs(t, err, common.ErrorValidation)

	_, err = Load(newFlags(t, "--interval", "0s"))
	require.ErrorIs(t, err, common.ErrorValidation)
}

func TestInitializeOnce(t *testing.T) {
	t.Cleanup(func() {
		mu.Lock()
		current = nil
		mu.Unlock()
	})

	first := &Config{ServerEndpointAddr: "a"}
	require.NoError(t, Initialize(first))
	require.ErrorIs(t, Initialize(&Config{ServerEndpointAddr: "b"}), common.ErrConfigInitialized)
	assert.Same(t, first, current)
}
