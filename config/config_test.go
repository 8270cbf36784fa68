package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcology-network/unbase/config"
)

func TestWriteDefaultThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, config.WriteDefault(path))

	got, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.DefaultConfig(), got)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[slab]
target_peers = 9

[peering]
listen_address = "tcp://0.0.0.0:9999"
seeds = ["tcp://1.2.3.4:26700"]
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	got, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 9, got.Slab.TargetPeers)
	require.Equal(t, "tcp://0.0.0.0:9999", got.Peering.ListenAddress)
	require.Equal(t, []string{"tcp://1.2.3.4:26700"}, got.Peering.Seeds)
	require.Equal(t, 30*time.Second, got.Slab.RemediationInterval, "unset fields keep their default")
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
