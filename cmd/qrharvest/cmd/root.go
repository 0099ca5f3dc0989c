package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/qrharvest/internal/config"
	"github.com/MeKo-Tech/qrharvest/internal/version"
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "qrharvest",
	Short: "Capture QR codes from image streams without duplicates",
	Long: `qrharvest detects QR codes in frames, decodes them and saves a cropped image of
every code it has not seen before.

Codes are deduplicated against the current session and against the codes
already stored in the output location, so restarting a capture never saves
the same code twice. Frames can come from image files, a directory replayed
as a stream, a watched inbox directory, PDF documents or the HTTP server.

Examples:
  qrharvest image photo.jpg
  qrharvest replay ./frames --interval 100ms
  qrharvest watch ./inbox --output-dir ./codes
  qrharvest serve --port 8080`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	// Assigned here rather than in the rootCmd literal to avoid an
	// initialization cycle (loadConfig refers to rootCmd).
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		globalConfig = cfg
		slog.SetDefault(newLogger(cmd.ErrOrStderr(), logLevel(cfg)))
		return nil
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/qrharvest, /etc/qrharvest)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("output-dir", "o", "", "output location for captured codes (default ./qr_output)")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "report format: text, json, csv")
	rootCmd.PersistentFlags().String("output-file", "", "write the report to this file instead of stdout")
	rootCmd.PersistentFlags().String("overlay-dir", "", "save annotated frames into this directory")
	rootCmd.PersistentFlags().Bool("mirror", false, "flip frames left to right before detection")
	rootCmd.PersistentFlags().Bool("journal", false, "record capture events in the SQLite journal")
	rootCmd.PersistentFlags().Bool("no-lock", false, "do not lock the output location")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("output.dir", rootCmd.PersistentFlags().Lookup("output-dir"))
	_ = viper.BindPFlag("output.format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("output.file", rootCmd.PersistentFlags().Lookup("output-file"))
	_ = viper.BindPFlag("output.overlay_dir", rootCmd.PersistentFlags().Lookup("overlay-dir"))
	_ = viper.BindPFlag("source.mirror", rootCmd.PersistentFlags().Lookup("mirror"))
	_ = viper.BindPFlag("journal.enabled", rootCmd.PersistentFlags().Lookup("journal"))
}

// loadConfig reads the config file and ENV variables together with the
// bound flags.
func loadConfig() (*config.Config, error) {
	configLoader = config.NewLoader()

	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = configLoader.LoadWithFile(cfgFile)
	} else {
		cfg, err = configLoader.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if noLock, _ := rootCmd.PersistentFlags().GetBool("no-lock"); noLock {
		cfg.Output.Lock = false
	}
	return cfg, nil
}

// GetConfig returns the global configuration.
func GetConfig() *config.Config {
	if globalConfig == nil {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			d := config.DefaultConfig()
			return &d
		}
		globalConfig = cfg
	}
	return globalConfig
}

func logLevel(cfg *config.Config) slog.Level {
	if cfg.Verbose {
		return slog.LevelDebug
	}
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger logs JSON, or readable text when w is a terminal.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
