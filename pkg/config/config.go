// Package config provides configuration loading and management for mesoactivity.
// It handles loading configuration from YAML files, applies overrides from the
// environment and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Analysis holds the parameters of the reduction pipeline
type Analysis struct {
	// ImageWidth and ImageHeight are the frame dimensions in pixels. Both
	// must evenly divide the 512x512 canonical region space.
	ImageWidth  int `yaml:"imageWidth" env:"IMAGE_WIDTH"`
	ImageHeight int `yaml:"imageHeight" env:"IMAGE_HEIGHT"`

	// Frames is the number of frames to read from the image file
	Frames int `yaml:"frames" env:"FRAMES"`

	// FPS is the acquisition frame rate, used for spectrum frequency axes.
	// Zero leaves frequencies unlabeled.
	FPS float64 `yaml:"fps" env:"FPS"`

	// NumCores specifies how many goroutines reduce frames and regions
	NumCores int `yaml:"numCores" env:"NUM_CORES"`

	// EmptyRegion is "nan" or "error" and controls regions without pixels
	EmptyRegion string `yaml:"emptyRegion" env:"EMPTY_REGION"`
}

// Correlation holds the significant-pair thresholds
type Correlation struct {
	// Lower and Upper are exclusive bounds on a significant correlation
	Lower float64 `yaml:"lower" env:"LOWER"`
	Upper float64 `yaml:"upper" env:"UPPER"`
}

// Frames describes the raw frame stack layout
type Frames struct {
	// Sample is the raw sample type: float32, float64 or uint16
	Sample string `yaml:"sample" env:"SAMPLE"`

	// BigEndian selects big endian byte order for raw stacks
	BigEndian bool `yaml:"bigEndian" env:"BIG_ENDIAN"`
}

// Landmarks locates the bregma point inside landmark CSV files
type Landmarks struct {
	BregmaRow     int `yaml:"bregmaRow" env:"BREGMA_ROW"`
	BregmaXColumn int `yaml:"bregmaXColumn" env:"BREGMA_X_COLUMN"`
	BregmaYColumn int `yaml:"bregmaYColumn" env:"BREGMA_Y_COLUMN"`
}

// Output holds reporting parameters
type Output struct {
	// SaveDir is the directory results are written to
	SaveDir string `yaml:"saveDir" env:"SAVE_DIR"`

	// Verbose controls the level of logging output
	Verbose bool `yaml:"verbose" env:"VERBOSE"`

	// PrintMatrix prints the full correlation matrix to standard output
	PrintMatrix bool `yaml:"printMatrix" env:"PRINT_MATRIX"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	Analysis    Analysis    `yaml:"analysis" envPrefix:"ANALYSIS_"`
	Correlation Correlation `yaml:"correlation" envPrefix:"CORRELATION_"`
	Frames      Frames      `yaml:"frames" envPrefix:"FRAMES_"`
	Landmarks   Landmarks   `yaml:"landmarks" envPrefix:"LANDMARKS_"`
	Output      Output      `yaml:"output" envPrefix:"OUTPUT_"`
}

// EnvPrefix prefixes every environment override, e.g.
// MESOACTIVITY_ANALYSIS_IMAGE_WIDTH
const EnvPrefix = "MESOACTIVITY_"

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default analysis parameters
	cfg.Analysis.ImageWidth = 128
	cfg.Analysis.ImageHeight = 128
	cfg.Analysis.Frames = 2000
	cfg.Analysis.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Analysis.EmptyRegion = "nan"

	// Set default correlation thresholds
	cfg.Correlation.Lower = 0.95
	cfg.Correlation.Upper = 1.0

	// Set default frame layout
	cfg.Frames.Sample = "float32"

	// Set default landmark layout, matching the pose tracker's CSV
	cfg.Landmarks.BregmaRow = 3
	cfg.Landmarks.BregmaXColumn = 13
	cfg.Landmarks.BregmaYColumn = 14

	// Set default output parameters
	cfg.Output.SaveDir = "results"
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

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

// ApplyEnv loads a .env file from the working directory if there is one,
// then overrides cfg with any MESOACTIVITY_* environment variables
func ApplyEnv(cfg *Config) error {
	// A missing .env file is not an error
	_ = godotenv.Load()

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
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
