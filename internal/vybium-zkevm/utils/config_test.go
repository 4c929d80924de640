package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig tests the DefaultConfig function
func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NotNil(t, config)

	assert.Equal(t, uint64(21000), config.GasAllocation)
	assert.Equal(t, 1024, config.MaxStackLen)
	assert.Equal(t, 3, config.MaxConstraintDegree)
	assert.NoError(t, config.Validate())
}

// TestConfigValidate tests the Validate method
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		expectErr bool
	}{
		{"valid default config", func(c *Config) {}, false},
		{"allocation at 2^32", func(c *Config) { c.GasAllocation = GasBound }, true},
		{"allocation just below 2^32", func(c *Config) { c.GasAllocation = GasBound - 1 }, false},
		{"zero stack bound", func(c *Config) { c.MaxStackLen = 0 }, true},
		{"zero trace length", func(c *Config) { c.MaxTraceLength = 0 }, true},
		{"degree ceiling too low", func(c *Config) { c.MaxConstraintDegree = 1 }, true},
		{"unknown hash", func(c *Config) { c.HashFunction = "md5" }, true},
		{"negative parallelism", func(c *Config) { c.Parallelism = -1 }, true},
		{"trace long enough to wrap gas", func(c *Config) { c.MaxTraceLength = 1 << 62 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigBuildersAndClone(t *testing.T) {
	c := DefaultConfig().
		WithGasAllocation(10).
		WithMaxStackLen(16).
		WithMaxTraceLength(64).
		WithMaxConstraintDegree(4).
		WithHintField("bn254_base").
		WithHashFunction("sha256").
		WithParallelism(2)

	clone := c.Clone()
	clone.GasAllocation = 99

	assert.Equal(t, uint64(10), c.GasAllocation)
	assert.Equal(t, uint64(99), clone.GasAllocation)
	assert.Equal(t, "bn254_base", clone.HintField)
	assert.Equal(t, 2, clone.Parallelism)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zkevm.toml")
	body := "GasAllocation = 10\nMaxStackLen = 8\nHashFunction = \"sha256\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), cfg.GasAllocation)
	assert.Equal(t, 8, cfg.MaxStackLen)
	assert.Equal(t, "sha256", cfg.HashFunction)
	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.MaxConstraintDegree)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("HashFunction = \"md5\"\n"), 0o600))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestLoadConfigRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.toml")
	require.NoError(t, os.WriteFile(path, []byte("GasAlocation = 5\n"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
