package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/qrharvest/internal/dedup"
	"github.com/MeKo-Tech/qrharvest/internal/journal"
	"github.com/MeKo-Tech/qrharvest/internal/pipeline"
	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	pc := pipeline.DefaultConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Output: OutputConfig{
			DefaultDirName: pc.DefaultDir,
			CropFormat:     pc.CropFormat,
			Padding:        pc.Padding,
			Lock:           pc.Lock,
			Format:         "text",
		},
		Capture: CaptureConfig{
			Enhance:        pc.Enhance,
			TryHarder:      pc.TryHarder,
			Annotate:       pc.Annotate,
			NewColor:       "#60A5FA",
			DuplicateColor: "#FFA500",
		},
		Source: SourceConfig{
			QueueSize: 1,
			SettleMs:  200,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     20,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			OverlayEnabled:  true,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "csv"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	if _, ok := utils.NormalizeExtension(c.Output.CropFormat); !ok {
		return fmt.Errorf("invalid crop format: %s (must be one of: png, jpg, jpeg, bmp)", c.Output.CropFormat)
	}
	if c.Output.Padding < 0 {
		return fmt.Errorf("invalid padding: %d (must not be negative)", c.Output.Padding)
	}
	if c.Output.Dir == "" && c.Output.DefaultDirName == "" {
		return fmt.Errorf("output.default_dir_name must be set when output.dir is empty")
	}

	if _, err := dedup.NewNormalizer(c.Capture.Normalize); err != nil {
		return fmt.Errorf("invalid capture.normalize: %w", err)
	}
	if _, err := pipeline.ParseHexColor(c.Capture.NewColor); err != nil {
		return fmt.Errorf("invalid capture.new_color: %w", err)
	}
	if _, err := pipeline.ParseHexColor(c.Capture.DuplicateColor); err != nil {
		return fmt.Errorf("invalid capture.duplicate_color: %w", err)
	}

	if c.Source.QueueSize <= 0 {
		return fmt.Errorf("invalid source queue size: %d (must be positive)", c.Source.QueueSize)
	}
	if c.Source.IntervalMs < 0 {
		return fmt.Errorf("invalid source interval: %d (must not be negative)", c.Source.IntervalMs)
	}
	if c.Source.SettleMs < 0 {
		return fmt.Errorf("invalid source settle time: %d (must not be negative)", c.Source.SettleMs)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	return nil
}

// OutputDir returns the configured output location, falling back to the
// default directory name.
func (c *Config) OutputDir() string {
	if c.Output.Dir != "" {
		return c.Output.Dir
	}
	return c.Output.DefaultDirName
}

// JournalPath returns where the capture journal lives for outputDir.
func (c *Config) JournalPath(outputDir string) string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(outputDir, journal.DefaultFile)
}

// Interval returns the source pacing as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Source.IntervalMs) * time.Millisecond
}

// Settle returns the watch settle delay as a duration.
func (c *Config) Settle() time.Duration {
	return time.Duration(c.Source.SettleMs) * time.Millisecond
}

// ToPipelineConfig converts the config to the capture pipeline configuration.
func (c *Config) ToPipelineConfig() (pipeline.Config, error) {
	pc := pipeline.DefaultConfig()
	pc.Padding = c.Output.Padding
	pc.CropFormat = c.Output.CropFormat
	pc.DefaultDir = c.OutputDir()
	pc.Lock = c.Output.Lock
	pc.Enhance = c.Capture.Enhance
	pc.TryHarder = c.Capture.TryHarder
	pc.Normalization = c.Capture.Normalize
	pc.Annotate = c.Capture.Annotate

	newColor, err := pipeline.ParseHexColor(c.Capture.NewColor)
	if err != nil {
		return pc, err
	}
	dupColor, err := pipeline.ParseHexColor(c.Capture.DuplicateColor)
	if err != nil {
		return pc, err
	}
	pc.NewColor = newColor
	pc.DuplicateColor = dupColor
	return pc, nil
}
