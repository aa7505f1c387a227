// Package config provides configuration loading and management for rockct3d.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// FilterConfig describes one denoising filter to run. Only the fields that
// belong to Kind are read; the rest are ignored.
type FilterConfig struct {
	// Name labels the filtered variant in metrics and figures
	Name string `yaml:"name"`

	// Kind is one of gaussian, median, uniform, maximum, minimum, percentile, rank
	Kind string `yaml:"kind"`

	// Size is the edge length of the cubic window
	Size int `yaml:"size,omitempty"`

	// Sigma is the Gaussian standard deviation in voxels
	Sigma float64 `yaml:"sigma,omitempty"`

	// Percentile is used by the percentile filter, in [-100, 100]
	Percentile float64 `yaml:"percentile,omitempty"`

	// Rank is used by the rank filter; negative values count from the top
	Rank int `yaml:"rank,omitempty"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input locates the grayscale stack
	Input struct {
		// Path is a local stack file or a directory of numbered slices
		Path string `yaml:"path"`

		// URL is fetched when Path does not exist (http, https or gs)
		URL string `yaml:"url"`

		// CacheDownload stores fetched bytes at Path for the next run
		CacheDownload bool `yaml:"cacheDownload"`

		// TimeoutSeconds bounds the remote fetch
		TimeoutSeconds int `yaml:"timeoutSeconds"`
	} `yaml:"input"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores the filters may use
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Filters lists the denoising variants to compute and compare
	Filters []FilterConfig `yaml:"filters"`

	// Threshold parameters
	Threshold struct {
		// Method selects the policy used for segmentation: otsu, yen or local
		Method string `yaml:"method"`

		// Source names the filtered variant to segment, or "original" (also when empty)
		Source string `yaml:"source"`

		// Bins is the histogram resolution for the global methods
		Bins int `yaml:"bins"`

		// BlockSize is the odd in-plane window of the local method
		BlockSize int `yaml:"blockSize"`

		// Offset is subtracted from the local threshold map
		Offset float64 `yaml:"offset"`

		// LocalMethod is gaussian or mean
		LocalMethod string `yaml:"localMethod"`
	} `yaml:"threshold"`

	// Cleanup parameters for the binary volume
	Cleanup struct {
		// MinSize removes components with fewer voxels
		MinSize int `yaml:"minSize"`

		// Connectivity is 1 (faces), 2 (edges) or 3 (vertices)
		Connectivity int `yaml:"connectivity"`

		// FillHoles fills background regions enclosed by foreground
		FillHoles bool `yaml:"fillHoles"`
	} `yaml:"cleanup"`

	// Adjust parameters for the brightness/contrast grid
	Adjust struct {
		// Slice is the depth index to adjust; negative selects the centre slice
		Slice int `yaml:"slice"`

		// Brightness factors, one grid row each
		Brightness []float64 `yaml:"brightness"`

		// Contrast factors, one grid column each
		Contrast []float64 `yaml:"contrast"`
	} `yaml:"adjust"`

	// Render parameters for the boundary-face view
	Render struct {
		// Scale is the number of output pixels per voxel
		Scale float64 `yaml:"scale"`

		// Angle is the receding axis angle in degrees
		Angle float64 `yaml:"angle"`

		// Depth foreshortens the receding axis
		Depth float64 `yaml:"depth"`

		// Colormap is gray or viridis
		Colormap string `yaml:"colormap"`
	} `yaml:"render"`

	// Output parameters
	Output struct {
		// Dir receives the binary stack and figures
		Dir string `yaml:"dir"`

		// BinaryFile is the file name of the cleaned binary stack
		BinaryFile string `yaml:"binaryFile"`

		// SaveFigures enables the PNG figures
		SaveFigures bool `yaml:"saveFigures"`

		// SaveIntermediaryResults writes each filtered volume as a stack
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is relative to Dir
		IntermediaryDir string `yaml:"intermediaryDir"`

		// ExtractSlices saves every x, y and z slice of the cleaned mask and
		// of the threshold source as PNG sequences
		ExtractSlices bool `yaml:"extractSlices"`

		// SlicesDir is relative to Dir
		SlicesDir string `yaml:"slicesDir"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// LogFile also writes logs to a rotating file when set
		LogFile string `yaml:"logFile"`

		// LogMaxSize is the rotation size of LogFile in megabytes
		LogMaxSize int `yaml:"logMaxSize"`

		// LogMaxAge is how many days rotated logs are kept
		LogMaxAge int `yaml:"logMaxAge"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Input.Path = "rock_sample.tif"
	cfg.Input.CacheDownload = true
	cfg.Input.TimeoutSeconds = 120

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Filters = []FilterConfig{
		{Name: "gaussian", Kind: "gaussian", Sigma: 1},
		{Name: "median", Kind: "median", Size: 3},
		{Name: "mean", Kind: "uniform", Size: 3},
		{Name: "maximum", Kind: "maximum", Size: 3},
		{Name: "minimum", Kind: "minimum", Size: 3},
		{Name: "percentile", Kind: "percentile", Size: 3, Percentile: 75},
		{Name: "rank", Kind: "rank", Size: 3, Rank: 5},
	}

	cfg.Threshold.Method = "otsu"
	cfg.Threshold.Source = "median"
	cfg.Threshold.Bins = 256
	cfg.Threshold.BlockSize = 35
	cfg.Threshold.Offset = 10
	cfg.Threshold.LocalMethod = "gaussian"

	cfg.Cleanup.MinSize = 64
	cfg.Cleanup.Connectivity = 1
	cfg.Cleanup.FillHoles = true

	cfg.Adjust.Slice = -1
	cfg.Adjust.Brightness = []float64{0.8, 1.0, 1.2}
	cfg.Adjust.Contrast = []float64{0.8, 1.0, 1.5}

	cfg.Render.Scale = 2
	cfg.Render.Angle = 35
	cfg.Render.Depth = 0.6
	cfg.Render.Colormap = "gray"

	cfg.Output.Dir = "."
	cfg.Output.BinaryFile = "segmented_rock.tif"
	cfg.Output.SaveFigures = true
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.ExtractSlices = false
	cfg.Output.SlicesDir = "slices"
	cfg.Output.Verbose = false
	cfg.Output.LogMaxSize = 100
	cfg.Output.LogMaxAge = 28

	return cfg
}

// Validate checks that the configuration values are usable
func (c *Config) Validate() error {
	if c.Input.Path == "" && c.Input.URL == "" {
		return fmt.Errorf("input: path or url is required")
	}
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("processing: numCores must be at least 1, got %d", c.Processing.NumCores)
	}

	seen := make(map[string]bool, len(c.Filters))
	for i, f := range c.Filters {
		if f.Name == "" {
			return fmt.Errorf("filters[%d]: name is required", i)
		}
		if f.Name == "original" {
			return fmt.Errorf("filters[%d]: name %q is reserved", i, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("filters[%d]: duplicate name %q", i, f.Name)
		}
		seen[f.Name] = true
	}

	switch strings.ToLower(c.Threshold.Method) {
	case "otsu", "yen", "local":
	default:
		return fmt.Errorf("threshold: unknown method %q", c.Threshold.Method)
	}
	// an empty source means the original volume
	if c.Threshold.Source != "" && c.Threshold.Source != "original" && !seen[c.Threshold.Source] {
		return fmt.Errorf("threshold: source %q is neither \"original\" nor a configured filter", c.Threshold.Source)
	}
	if c.Threshold.Bins < 2 {
		return fmt.Errorf("threshold: bins must be at least 2, got %d", c.Threshold.Bins)
	}
	if c.Threshold.BlockSize < 3 || c.Threshold.BlockSize%2 == 0 {
		return fmt.Errorf("threshold: blockSize must be odd and at least 3, got %d", c.Threshold.BlockSize)
	}
	switch strings.ToLower(c.Threshold.LocalMethod) {
	case "gaussian", "mean":
	default:
		return fmt.Errorf("threshold: unknown localMethod %q", c.Threshold.LocalMethod)
	}

	if c.Cleanup.MinSize < 0 {
		return fmt.Errorf("cleanup: minSize must not be negative")
	}
	if c.Cleanup.Connectivity < 1 || c.Cleanup.Connectivity > 3 {
		return fmt.Errorf("cleanup: connectivity must be 1, 2 or 3, got %d", c.Cleanup.Connectivity)
	}

	if c.Render.Scale <= 0 {
		return fmt.Errorf("render: scale must be positive")
	}
	if c.Output.LogFile != "" && (c.Output.LogMaxSize < 1 || c.Output.LogMaxAge < 0) {
		return fmt.Errorf("output: logMaxSize must be positive and logMaxAge not negative")
	}
	if c.Output.ExtractSlices && c.Output.SlicesDir == "" {
		return fmt.Errorf("output: slicesDir is required when extractSlices is set")
	}
	if c.Output.BinaryFile == "" {
		return fmt.Errorf("output: binaryFile is required")
	}

	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
