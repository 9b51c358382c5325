package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "toppy.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFileParsesValidConfig(t *testing.T) {
	path := writeTemp(t, `
gateway = "gw.example.com"
port = 4433
mtu = 1350

[policy]
[[policy.allow]]
cidr = "10.0.0.0/24"
ports = [22, 443]
`)

	cfg, loadedPath, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, loadedPath)
	assert.Equal(t, "gw.example.com", cfg.Gateway)
	assert.Equal(t, 4433, cfg.Port)
	assert.Equal(t, 1350, cfg.MTU)
	require.Len(t, cfg.Rules, 1)
}

func TestLoadFileDefaultsServerNameToGateway(t *testing.T) {
	path := writeTemp(t, `
gateway = "gw.example.com"
port = 4433
`)
	cfg, _, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "gw.example.com", cfg.SNIName())
}

func TestLoadFileHonorsExplicitServerName(t *testing.T) {
	path := writeTemp(t, `
gateway = "gw.example.com"
server_name = "override.example.com"
port = 4433
`)
	cfg, _, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "override.example.com", cfg.SNIName())
}

func TestLoadFileRejectsEmptyGateway(t *testing.T) {
	path := writeTemp(t, `
gateway = ""
port = 4433
`)
	_, _, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileRejectsOutOfRangePort(t *testing.T) {
	path := writeTemp(t, `
gateway = "gw.example.com"
port = 0
`)
	_, _, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileRejectsUnreadableCACertPath(t *testing.T) {
	path := writeTemp(t, `
gateway = "gw.example.com"
port = 4433
ca_cert_path = "/nonexistent/ca.pem"
`)
	_, _, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ca_cert_path")
}

func TestLoadFileRejectsMissingFile(t *testing.T) {
	_, _, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadFileRejectsInvalidRulePorts(t *testing.T) {
	path := writeTemp(t, `
gateway = "gw.example.com"
port = 4433

[[policy.allow]]
cidr = "10.0.0.0/24"
ports = []
`)
	_, _, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadReadsPathFromEnv(t *testing.T) {
	path := writeTemp(t, `
gateway = "gw.example.com"
port = 4433
`)
	t.Setenv(EnvConfigPath, path)

	cfg, loadedPath, err := Load()
	require.NoError(t, err)
	assert.Equal(t, path, loadedPath)
	assert.Equal(t, "gw.example.com", cfg.Gateway)
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	_, _, err := Load()
	require.Error(t, err)
}
