//nolint:lll
package config

// Config represents the complete configuration for qrharvest. It covers every
// command (image, replay, watch, pdf, index, history, serve) and is loaded
// from configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Output location and report settings
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Detection and capture behavior
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture" json:"capture"`

	// Frame acquisition
	Source SourceConfig `mapstructure:"source" yaml:"source" json:"source"`

	// Capture history
	Journal JournalConfig `mapstructure:"journal" yaml:"journal" json:"journal"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// OutputConfig contains output location and report settings.
type OutputConfig struct {
	Dir            string `mapstructure:"dir" yaml:"dir" json:"dir"`
	DefaultDirName string `mapstructure:"default_dir_name" yaml:"default_dir_name" json:"default_dir_name"`
	CropFormat     string `mapstructure:"crop_format" yaml:"crop_format" json:"crop_format"`
	Padding        int    `mapstructure:"padding" yaml:"padding" json:"padding"`
	Lock           bool   `mapstructure:"lock" yaml:"lock" json:"lock"`
	Format         string `mapstructure:"format" yaml:"format" json:"format"`
	File           string `mapstructure:"file" yaml:"file" json:"file"`
	OverlayDir     string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
}

// CaptureConfig contains detection and capture settings.
type CaptureConfig struct {
	Enhance        bool   `mapstructure:"enhance" yaml:"enhance" json:"enhance"`
	TryHarder      bool   `mapstructure:"try_harder" yaml:"try_harder" json:"try_harder"`
	Normalize      string `mapstructure:"normalize" yaml:"normalize" json:"normalize"`
	Annotate       bool   `mapstructure:"annotate" yaml:"annotate" json:"annotate"`
	NewColor       string `mapstructure:"new_color" yaml:"new_color" json:"new_color"`
	DuplicateColor string `mapstructure:"duplicate_color" yaml:"duplicate_color" json:"duplicate_color"`
}

// SourceConfig contains frame acquisition settings.
type SourceConfig struct {
	Mirror     bool `mapstructure:"mirror" yaml:"mirror" json:"mirror"`
	IntervalMs int  `mapstructure:"interval_ms" yaml:"interval_ms" json:"interval_ms"`
	QueueSize  int  `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size"`
	SettleMs   int  `mapstructure:"settle_ms" yaml:"settle_ms" json:"settle_ms"`
}

// JournalConfig contains capture history settings.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" json:"path"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	OverlayEnabled  bool   `mapstructure:"overlay_enabled" yaml:"overlay_enabled" json:"overlay_enabled"`
}
