package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"inversecrop/internal/codec"
	"inversecrop/internal/crop"
)

// Config holds the application configuration
type Config struct {
	Compositing CompositingConfig `yaml:"compositing"`
	Preview     PreviewConfig     `yaml:"preview"`
	Export      ExportConfig      `yaml:"export"`
}

// CompositingConfig holds the parameters of the crop engine
type CompositingConfig struct {
	FeatherRadius       int `yaml:"feather_radius"`
	ExportFeatherRadius int `yaml:"export_feather_radius"`
	SampleRadius        int `yaml:"sample_radius"`
	CacheSize           int `yaml:"cache_size"`
}

// PreviewConfig controls the images sent back for live display
type PreviewConfig struct {
	MaxWidth int    `yaml:"max_width"`
	Format   string `yaml:"format"`
}

// ExportConfig controls final renders
type ExportConfig struct {
	Format   string `yaml:"format"`
	Quality  int    `yaml:"quality"`
	Lossless bool   `yaml:"lossless"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Compositing: CompositingConfig{
			FeatherRadius:       crop.DefaultFeatherRadius,
			ExportFeatherRadius: crop.DefaultFeatherRadius,
			SampleRadius:        crop.DefaultSampleRadius,
			CacheSize:           crop.DefaultCacheSize,
		},
		Preview: PreviewConfig{
			MaxWidth: 800,
			Format:   "png",
		},
		Export: ExportConfig{
			Format:  "png",
			Quality: codec.DefaultQuality,
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Fields missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Compositing.FeatherRadius < 0 {
		return fmt.Errorf("compositing.feather_radius must not be negative")
	}

	if c.Compositing.ExportFeatherRadius < 0 {
		return fmt.Errorf("compositing.export_feather_radius must not be negative")
	}

	if c.Compositing.SampleRadius < 0 {
		return fmt.Errorf("compositing.sample_radius must not be negative")
	}

	if c.Compositing.CacheSize < 0 {
		return fmt.Errorf("compositing.cache_size must not be negative")
	}

	if c.Preview.MaxWidth < 0 {
		return fmt.Errorf("preview.max_width must not be negative")
	}

	if err := validFormat(c.Preview.Format); err != nil {
		return fmt.Errorf("preview.format: %w", err)
	}

	if err := validFormat(c.Export.Format); err != nil {
		return fmt.Errorf("export.format: %w", err)
	}

	if c.Export.Quality < 1 || c.Export.Quality > 100 {
		return fmt.Errorf("export.quality must be between 1 and 100")
	}

	return nil
}

// SequencerOptions returns the crop engine options described by the
// compositing section.
func (c *Config) SequencerOptions() []crop.SequencerOption {
	return []crop.SequencerOption{
		crop.WithFeatherRadius(c.Compositing.FeatherRadius),
		crop.WithCompositor(crop.NewCompositor(c.Compositing.SampleRadius)),
		crop.WithCacheSize(c.Compositing.CacheSize),
	}
}

// ExportOptions returns the encoder options of the export section.
func (c *Config) ExportOptions() codec.Options {
	return codec.Options{Quality: c.Export.Quality, Lossless: c.Export.Lossless}
}

func validFormat(format string) error {
	switch codec.NormalizeMime(format) {
	case codec.MimePNG, codec.MimeJPEG, codec.MimeWebP:
		return nil
	}
	return fmt.Errorf("unsupported format %q (use png, jpeg or webp)", format)
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./inversecrop.yaml"
	}
	return filepath.Join(home, ".config", "inversecrop", "config.yaml")
}
