package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrharvest/internal/pipeline"
	"github.com/MeKo-Tech/qrharvest/internal/source"
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Capture QR codes from images dropped into a directory",
	Long: `Watch a directory and treat every image written into it as a new frame, until
interrupted. All frames belong to one session. In text format each frame is
reported as soon as it is processed.

Examples:
  qrharvest watch ./inbox
  qrharvest watch ./inbox --existing --output-dir ./codes --journal`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		dir := args[0]

		if same, err := sameDir(dir, cfg.OutputDir()); err != nil {
			return err
		} else if same {
			return errors.New("the watched directory cannot be the output location")
		}

		settle := cfg.Settle()
		if cmd.Flags().Changed("settle") {
			settle, _ = cmd.Flags().GetDuration("settle")
		}
		queueSize := cfg.Source.QueueSize
		if cmd.Flags().Changed("queue-size") {
			queueSize, _ = cmd.Flags().GetInt("queue-size")
		}
		existing, _ := cmd.Flags().GetBool("existing")

		env, err := newCaptureEnv(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = env.Close() }()

		src, err := source.NewWatchSource(dir, source.WatchOptions{
			Existing: existing,
			Settle:   settle,
			Logger:   env.logger,
		})
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		run := streamRun{env: env, queueSize: queueSize}
		streaming := cfg.Output.File == "" && (cfg.Output.Format == "" || cfg.Output.Format == "text")
		if streaming {
			run.onResult = func(res *pipeline.FrameResult) {
				if report, err := pipeline.Format([]*pipeline.FrameResult{res}, "text"); err == nil {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), report)
				}
			}
		}

		env.logger.Info("watching for frames", "dir", dir, "output", env.outputDir)
		out, err := run.run(ctx, cmd, src)
		if err != nil {
			return err
		}
		if !streaming {
			if err := writeReport(cmd, cfg, out.results); err != nil {
				return err
			}
		}
		printStreamStats(cmd.ErrOrStderr(), out.stream)
		printSessionStats(cmd.ErrOrStderr(), out.session)
		return nil
	},
}

func sameDir(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return filepath.Clean(absA) == filepath.Clean(absB), nil
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Bool("existing", false, "also process images already in the directory")
	watchCmd.Flags().Duration("settle", 0, "wait this long after a write before reading the file (default from source.settle_ms)")
	watchCmd.Flags().Int("queue-size", 1, "frames held while the capture step is busy")
}
