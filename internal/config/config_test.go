package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inspector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
token_file: /etc/inspector/tokens.json
output_dir: out
scan:
  rate: 2.5
  concurrency: 3
  timeout: 1500ms
  ports: "22,80"
dns:
  servers: ["9.9.9.9"]
http:
  insecure_skip_verify: true
scope:
  domains: ["*.example.com"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/inspector/tokens.json", cfg.TokenFile)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, "inspector.db", cfg.DBPath)
	assert.Equal(t, 2.5, cfg.Scan.Rate)
	assert.Equal(t, 3, cfg.Scan.Concurrency)
	assert.Equal(t, 1500*time.Millisecond, cfg.Scan.Timeout)
	assert.Equal(t, "22,80", cfg.Scan.Ports)
	assert.Equal(t, []string{"9.9.9.9"}, cfg.DNS.Servers)
	assert.True(t, cfg.HTTP.InsecureSkipVerify)
	assert.Equal(t, 10, cfg.HTTP.MaxRedirects)
	assert.Equal(t, []string{"*.example.com"}, cfg.Scope.Domains)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "output_dir: from-file\n")
	t.Setenv("INSPECTOR_OUTPUT_DIR", "from-env")
	t.Setenv("INSPECTOR_SCAN_TIMEOUT", "750ms")
	t.Setenv("INSPECTOR_SCAN_CONCURRENCY", "9")
	t.Setenv("INSPECTOR_DNS_SERVERS", "1.1.1.1,8.8.8.8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.OutputDir)
	assert.Equal(t, 750*time.Millisecond, cfg.Scan.Timeout)
	assert.Equal(t, 9, cfg.Scan.Concurrency)
	assert.Equal(t, []string{"1.1.1.1", "8.8.8.8"}, cfg.DNS.Servers)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().ScanConfig(), cfg.ScanConfig())
	assert.Equal(t, "authorized_tokens.json", cfg.TokenFile)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
scan:
  rate: 0
  concurrency: -1
  ports: "99999"
log:
  level: chatty
`)

	_, err := Load(path)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "rate limit must be positive")
	assert.Contains(t, msg, "max concurrency must be positive")
	assert.Contains(t, msg, "scan.ports")
	assert.Contains(t, msg, "log.level")
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestValidate_EmptyPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TokenFile = ""
	cfg.OutputDir = ""
	cfg.DBPath = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_file")
	assert.Contains(t, err.Error(), "output_dir")
	assert.Contains(t, err.Error(), "db_path")
}

func TestScanConfig(t *testing.T) {
	cfg := DefaultConfig()
	sc := cfg.ScanConfig()
	assert.Equal(t, 10.0, sc.RateLimit)
	assert.Equal(t, 5, sc.MaxConcurrency)
	assert.Equal(t, 5*time.Second, sc.Timeout)
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inspector.yaml")
	require.NoError(t, WriteDefault(afero.NewOsFs(), path, false))

	cfg, err := Load(path)
	require.NoError(t, err)

	want := DefaultConfig()
	assert.Equal(t, want.TokenFile, cfg.TokenFile)
	assert.Equal(t, want.OutputDir, cfg.OutputDir)
	assert.Equal(t, want.ScanConfig(), cfg.ScanConfig())
	assert.Equal(t, want.HTTP, cfg.HTTP)
	assert.Equal(t, want.Log, cfg.Log)
	assert.Empty(t, cfg.DNS.Servers)
}

func TestWriteDefault_RefusesOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "inspector.yaml", []byte("custom: true\n"), 0644))

	err := WriteDefault(fs, "inspector.yaml", false)
	assert.ErrorIs(t, err, os.ErrExist)

	data, _ := afero.ReadFile(fs, "inspector.yaml")
	assert.Equal(t, "custom: true\n", string(data))

	require.NoError(t, WriteDefault(fs, "inspector.yaml", true))
	data, _ = afero.ReadFile(fs, "inspector.yaml")
	assert.Contains(t, string(data), "token_file: authorized_tokens.json")
}
