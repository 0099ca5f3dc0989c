package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrharvest/internal/source"
)

// replayCmd represents the replay command.
var replayCmd = &cobra.Command{
	Use:   "replay <dir>",
	Short: "Replay a directory of images as a live frame stream",
	Long: `Replay the images in a directory, in name order, as if they were frames from a
camera. Frames are handed to the capture step through a latest-frame queue:
when detection falls behind, the queued frame is replaced by the newest one.
All frames belong to one session.

Examples:
  qrharvest replay ./frames
  qrharvest replay ./frames --interval 100ms --mirror
  qrharvest replay ./frames --all --format csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		interval := cfg.Interval()
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
		}
		queueSize := cfg.Source.QueueSize
		if cmd.Flags().Changed("queue-size") {
			queueSize, _ = cmd.Flags().GetInt("queue-size")
		}

		src, err := source.NewDirSource(args[0], interval)
		if err != nil {
			return fmt.Errorf("open frame directory: %w", err)
		}
		defer func() { _ = src.Close() }()
		if src.Len() == 0 {
			return fmt.Errorf("no supported images in %s", args[0])
		}
		if all, _ := cmd.Flags().GetBool("all"); all {
			queueSize = src.Len()
		}

		env, err := newCaptureEnv(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = env.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out, err := streamRun{env: env, queueSize: queueSize, total: src.Len()}.run(ctx, cmd, src)
		if err != nil {
			return err
		}
		if err := writeReport(cmd, cfg, out.results); err != nil {
			return err
		}
		printStreamStats(cmd.ErrOrStderr(), out.stream)
		printSessionStats(cmd.ErrOrStderr(), out.session)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Duration("interval", 0, "delay between frames (e.g. 100ms)")
	replayCmd.Flags().Int("queue-size", 1, "frames held while the capture step is busy")
	replayCmd.Flags().Bool("all", false, "queue every frame so none are dropped")
}
