package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ".md", cfg.Vault.Extension)
	assert.Equal(t, 5, cfg.Agent.MaxIterations)
	assert.Equal(t, 10, cfg.Agent.UndoCapacity)
	assert.Equal(t, 120, cfg.Agent.TimeoutSeconds)
	assert.Equal(t, "local", cfg.Provider.Kind)
	assert.Equal(t, "http://127.0.0.1:1234", cfg.Provider.BaseURL)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 27123, cfg.Server.Port)
	assert.True(t, filepath.IsAbs(cfg.Vault.Path))
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vault:
  path: `+dir+`
  extension: .markdown
agent:
  max_iterations: 8
provider:
  kind: claude
  model: claude-sonnet-4-5-20250929
server:
  enabled: true
  port: 9999
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Vault.Path)
	assert.Equal(t, ".markdown", cfg.Vault.Extension)
	assert.Equal(t, 8, cfg.Agent.MaxIterations)
	assert.Equal(t, "claude", cfg.Provider.Kind)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, 9999, cfg.Server.Port)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.Agent.UndoCapacity)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Provider.Kind)
}

func TestMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vault: [unclosed"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  kind: claude\n"), 0o644))

	t.Setenv("VAULTCLAW_PROVIDER", "openai")
	t.Setenv("VAULTCLAW_MODEL", "gpt-4.1")
	t.Setenv("VAULTCLAW_MAX_ITERATIONS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider.Kind)
	assert.Equal(t, "gpt-4.1", cfg.Provider.Model)
	assert.Equal(t, 3, cfg.Agent.MaxIterations)
}

func TestNormalize(t *testing.T) {
	t.Setenv("VAULTCLAW_VAULT_EXTENSION", "md")
	t.Setenv("VAULTCLAW_MAX_ITERATIONS", "-1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ".md", cfg.Vault.Extension, "extension gains a leading dot")
	assert.Equal(t, 5, cfg.Agent.MaxIterations, "non-positive values fall back to defaults")
}
