package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DecodesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 0.0.0.0
  port: "9090"
registry:
  root: my-tapes
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "my-tapes", cfg.Registry.Root)
}

func TestApplyDefaults_FillsZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowOrigins)
	assert.Equal(t, "tapes", cfg.Registry.Root)
	assert.Equal(t, 8, cfg.Scheduler.MaxRetries)
	assert.NotEmpty(t, cfg.Scheduler.Shards)
	assert.Equal(t, "agent:c", cfg.Swarm.FallbackAgent)
	require.NotEmpty(t, cfg.Swarm.Keywords)
	assert.Equal(t, "agent:a", cfg.Swarm.Keywords[0].Agent)
}

func TestApplyEnvOverrides_PortAndHost(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "4321")

	cfg := &Config{}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "4321", cfg.Server.Port)
}
