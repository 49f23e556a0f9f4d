package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vkbind.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[signature]
path = "assets/signatures/main.toml"
root = "ComputeMain"
watch = true

[temporary]
size = 65536
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "assets/signatures/main.toml", cfg.Signature.Path)
	assert.True(t, cfg.Signature.Watch)
	assert.Equal(t, "ComputeMain", cfg.Signature.Root)
	assert.Equal(t, "vfgc", cfg.Signature.Stages)
	assert.Equal(t, uint64(65536), cfg.Temporary.Size)
	assert.Equal(t, uint64(256), cfg.Temporary.Alignment)
	assert.Equal(t, 32, cfg.Pools.PendingWrites)
	assert.Equal(t, BackendHeadless, cfg.Device.Backend)
}

func TestLoadConfigDevice(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "[device]\nbackend = \"vulkan\"\nvalidation = true\n"))
	require.NoError(t, err)
	assert.Equal(t, BackendVulkan, cfg.Device.Backend)
	assert.True(t, cfg.Device.Validation)
	assert.Equal(t, "vkbind", cfg.Device.ApplicationName)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "colour = \"red\"\n"},
		{"alignment not a power of two", "[temporary]\nalignment = 48\n"},
		{"no pending writes", "[pools]\npending_writes = 0\n"},
		{"no descriptor sets", "[pools]\ndescriptor_sets = 0\n"},
		{"unknown backend", "[device]\nbackend = \"metal\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
