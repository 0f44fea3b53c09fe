// Package config provides configuration loading and management for lungperfusion.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lungperfusion/internal/models"
	"lungperfusion/pkg/segmentation"
)

// Kernel is a structuring element size and shape
type Kernel struct {
	Shape string `yaml:"shape"`
	Rows  int    `yaml:"rows"`
	Cols  int    `yaml:"cols"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Segmentation parameters
	Segmentation struct {
		// Threshold is the intensity above which a pixel is foreground
		Threshold uint16 `yaml:"threshold"`

		// High is the value written for foreground mask pixels
		High uint8 `yaml:"high"`

		// Opening and Closing are the morphological cleanup kernels
		Opening Kernel `yaml:"opening"`
		Closing Kernel `yaml:"closing"`

		// Policy names the component selection rule ("skip-largest" or "largest")
		Policy string `yaml:"policy"`

		// RequireSkippedOnBorder rejects scans whose skipped component
		// does not touch the image edge
		RequireSkippedOnBorder bool `yaml:"requireSkippedOnBorder"`

		// Ordering is "left-to-right" (default) or "rank". Left/right lung
		// labels are only accepted with left-to-right.
		Ordering string `yaml:"ordering"`
	} `yaml:"segmentation"`

	// Labels maps each projection to the names of the two extracted lungs,
	// in extraction order
	Labels map[models.Projection]models.LabelPair `yaml:"labels"`

	// Processing parameters
	Processing struct {
		// NumCores bounds how many lungs or projections are processed at once
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults writes every stage mask as a PNG
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where stage images are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Chart is the path of the sector bar chart; empty disables it
		Chart string `yaml:"chart"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// LogLevel is a logrus level name
		LogLevel string `yaml:"logLevel"`
	} `yaml:"output"`

	// Server parameters for perfusiond
	Server struct {
		Host           string        `yaml:"host"`
		Port           int           `yaml:"port"`
		MaxUploadBytes int64         `yaml:"maxUploadBytes"`
		RequestTimeout time.Duration `yaml:"requestTimeout"`
	} `yaml:"server"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Segmentation.Threshold = segmentation.DefaultThreshold
	cfg.Segmentation.High = segmentation.DefaultHigh
	cfg.Segmentation.Opening = Kernel{Shape: segmentation.ShapeEllipse, Rows: segmentation.DefaultOpenRows, Cols: segmentation.DefaultOpenCols}
	cfg.Segmentation.Closing = Kernel{Shape: segmentation.ShapeEllipse, Rows: segmentation.DefaultCloseRows, Cols: segmentation.DefaultCloseCols}
	cfg.Segmentation.Policy = segmentation.PolicySkipLargest
	cfg.Segmentation.Ordering = string(segmentation.OrderLeftToRight)

	// Lungs are reported in image column order. In an anterior view the
	// patient's right lung is on the viewer's left; the posterior view
	// mirrors it.
	cfg.Labels = map[models.Projection]models.LabelPair{
		models.Anterior:  {First: "Right Lung", Second: "Left Lung"},
		models.Posterior: {First: "Left Lung", Second: "Right Lung"},
	}

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = false
	cfg.Output.LogLevel = "info"

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.MaxUploadBytes = 32 << 20
	cfg.Server.RequestTimeout = 30 * time.Second

	return cfg
}

// Validate checks that the configuration can build a pipeline
func (c *Config) Validate() error {
	for name, k := range map[string]Kernel{"opening": c.Segmentation.Opening, "closing": c.Segmentation.Closing} {
		if _, err := segmentation.NewStructuringElement(k.Shape, k.Rows, k.Cols); err != nil {
			return fmt.Errorf("invalid %s kernel: %w", name, err)
		}
	}
	if c.Segmentation.High == 0 {
		return fmt.Errorf("segmentation.high must be non-zero")
	}
	if _, err := segmentation.PolicyByName(c.Segmentation.Policy); err != nil {
		return err
	}
	ordering := c.LungOrdering()
	switch ordering {
	case segmentation.OrderByRank, segmentation.OrderLeftToRight:
	default:
		return fmt.Errorf("unknown lung ordering %q", c.Segmentation.Ordering)
	}
	for p, lp := range c.Labels {
		if !p.Valid() {
			return fmt.Errorf("labels configured for unknown projection %q", p)
		}
		if lp.IsZero() {
			continue
		}
		if lp.First == "" || lp.Second == "" || lp.First == lp.Second {
			return fmt.Errorf("%s labels must be two distinct names, got %q and %q", p, lp.First, lp.Second)
		}
		// Rank order follows component area, which says nothing about side.
		if ordering == segmentation.OrderByRank && (lateral(lp.First) || lateral(lp.Second)) {
			return fmt.Errorf("%s labels %q/%q name a side but ordering %q is by area; use %q or neutral labels",
				p, lp.First, lp.Second, segmentation.OrderByRank, segmentation.OrderLeftToRight)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// LungOrdering returns the configured ordering, left-to-right when unset.
func (c *Config) LungOrdering() segmentation.Ordering {
	if c.Segmentation.Ordering == "" {
		return segmentation.OrderLeftToRight
	}
	return segmentation.Ordering(strings.ToLower(strings.TrimSpace(c.Segmentation.Ordering)))
}

func lateral(label string) bool {
	l := strings.ToLower(label)
	return strings.Contains(l, "left") || strings.Contains(l, "right")
}

// LabelsFor returns the configured lung names for a projection, falling back
// to generic names.
func (c *Config) LabelsFor(p models.Projection) models.LabelPair {
	if lp, ok := c.Labels[p]; ok && !lp.IsZero() {
		return lp
	}
	return models.LabelPair{First: "Lung 1", Second: "Lung 2"}
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

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
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
