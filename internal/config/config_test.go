package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20, cfg.Compositing.FeatherRadius)
	assert.Equal(t, 3, cfg.Compositing.SampleRadius)
	assert.Equal(t, 800, cfg.Preview.MaxWidth)
	assert.Len(t, cfg.SequencerOptions(), 3)
	assert.Equal(t, 90, cfg.ExportOptions().Quality)
}

func TestLoadFromFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compositing:\n  feather_radius: 35\nexport:\n  format: webp\n  lossless: true\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 35, cfg.Compositing.FeatherRadius)
	assert.Equal(t, 3, cfg.Compositing.SampleRadius)
	assert.Equal(t, "webp", cfg.Export.Format)
	assert.True(t, cfg.Export.Lossless)
	assert.Equal(t, 90, cfg.Export.Quality)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Preview.MaxWidth = 1024
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compositing: [1, 2"), 0644))
	_, err = LoadFromFile(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"negative feather":        func(c *Config) { c.Compositing.FeatherRadius = -1 },
		"negative export feather": func(c *Config) { c.Compositing.ExportFeatherRadius = -5 },
		"negative sample radius":  func(c *Config) { c.Compositing.SampleRadius = -1 },
		"negative cache":          func(c *Config) { c.Compositing.CacheSize = -1 },
		"negative max width":      func(c *Config) { c.Preview.MaxWidth = -1 },
		"bad preview format":      func(c *Config) { c.Preview.Format = "heic" },
		"bad export format":       func(c *Config) { c.Export.Format = "gif" },
		"quality too high":        func(c *Config) { c.Export.Quality = 101 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
