// Package config provides configuration loading and management for tomoimport.
// It handles loading configuration from YAML (or TOML) files and provides default values.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"tomoimport/internal/logging"
	"tomoimport/pkg/mdoc"
)

// Config represents the application configuration loaded from YAML or TOML
type Config struct {
	// Acquisition values entered by the user. Each one set here wins over
	// the value found in the mdoc files.
	Acquisition struct {
		// Voltage of the microscope in kV
		Voltage *float64 `yaml:"voltage,omitempty" toml:"voltage,omitempty"`

		// Magnification of the acquisition
		Magnification *float64 `yaml:"magnification,omitempty" toml:"magnification,omitempty"`

		// PixelSpacing is the sampling rate in Å/px
		PixelSpacing *float64 `yaml:"pixelSpacing,omitempty" toml:"pixelSpacing,omitempty"`

		// DosePerImage is the dose of every tilt image in e-/Å²
		DosePerImage *float64 `yaml:"dosePerImage,omitempty" toml:"dosePerImage,omitempty"`

		// TiltAxisAngle is the angle from the vertical to the tilt axis in degrees
		TiltAxisAngle *float64 `yaml:"tiltAxisAngle,omitempty" toml:"tiltAxisAngle,omitempty"`
	} `yaml:"acquisition" toml:"acquisition"`

	// Import parameters
	Import struct {
		// Movies selects per-tilt movies (true) or already stacked tilt series (false)
		Movies bool `yaml:"movies" toml:"movies"`

		// IgnoreFileValidation skips checking that per-tilt movies exist
		IgnoreFileValidation bool `yaml:"ignoreFileValidation" toml:"ignoreFileValidation"`

		// AllowIncomplete keeps mdoc files that have validation deficiencies
		AllowIncomplete bool `yaml:"allowIncomplete" toml:"allowIncomplete"`

		// NumWorkers is how many mdoc files are read in parallel
		NumWorkers int `yaml:"numWorkers" toml:"numWorkers"`

		// StackFile forces the tilt-series stack of a stacked import
		StackFile string `yaml:"stackFile,omitempty" toml:"stackFile,omitempty"`
	} `yaml:"import" toml:"import"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level" toml:"level"`

		// Format is console, json or auto
		Format string `yaml:"format" toml:"format"`
	} `yaml:"logging" toml:"logging"`

	// Output parameters
	Output struct {
		// Format is table or json
		Format string `yaml:"format" toml:"format"`
	} `yaml:"output" toml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Import.Movies = true
	cfg.Import.IgnoreFileValidation = false
	cfg.Import.AllowIncomplete = false
	cfg.Import.NumWorkers = runtime.NumCPU()

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "auto"

	cfg.Output.Format = "table"

	return cfg
}

// LoadConfig loads configuration from a YAML or TOML file.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if isTOML(configPath) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	var err error
	if isTOML(configPath) {
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

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

// Validate checks values that cannot be fixed up silently.
func (c *Config) Validate() error {
	if c.Import.NumWorkers < 0 {
		return fmt.Errorf("import.numWorkers must not be negative, got %d", c.Import.NumWorkers)
	}
	if c.Import.NumWorkers == 0 {
		c.Import.NumWorkers = runtime.NumCPU()
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Output.Format) {
	case "", "table", "json":
	default:
		return fmt.Errorf("output.format: unsupported value %q", c.Output.Format)
	}
	for name, v := range map[string]*float64{
		"voltage":       c.Acquisition.Voltage,
		"magnification": c.Acquisition.Magnification,
		"pixelSpacing":  c.Acquisition.PixelSpacing,
		"dosePerImage":  c.Acquisition.DosePerImage,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("acquisition.%s must not be negative, got %g", name, *v)
		}
	}
	return nil
}

// Overrides converts the acquisition section into mdoc overrides.
func (c *Config) Overrides() mdoc.Overrides {
	return mdoc.Overrides{
		Voltage:       c.Acquisition.Voltage,
		Magnification: c.Acquisition.Magnification,
		SamplingRate:  c.Acquisition.PixelSpacing,
		DosePerImage:  c.Acquisition.DosePerImage,
		TiltAxisAngle: c.Acquisition.TiltAxisAngle,
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
