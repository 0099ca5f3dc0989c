package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrharvest/internal/pipeline"
)

// imageCmd represents the image command.
var imageCmd = &cobra.Command{
	Use:   "image [files...]",
	Short: "Capture QR codes from image files",
	Long: `Capture the QR codes in one or more image files.

Each file is handled as a fresh session: the output location index is
reloaded before the file is processed, so a code saved from an earlier file
is reported as already present.

Supported formats: JPEG, PNG, BMP

Examples:
  qrharvest image photo.jpg
  qrharvest image *.png --format json
  qrharvest image scan.png --overlay-dir overlays`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		env, err := newCaptureEnv(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = env.Close() }()

		sess := env.pipeline.NewSession(env.outputDir)
		defer func() { _ = sess.Close() }()

		progress := progressFor(cmd.ErrOrStderr(), env.logger)
		progress.OnStart(len(args))

		var (
			results []*pipeline.FrameResult
			errs    []error
		)
		for i, path := range args {
			res, err := env.pipeline.ProcessFile(cmd.Context(), path, sess)
			if err != nil {
				progress.OnError(i+1, err)
				errs = append(errs, err)
				continue
			}
			results = append(results, res)
			env.saveOverlay(res)
			progress.OnFrame(i+1, len(args), res)
		}
		progress.OnComplete()

		if err := writeReport(cmd, cfg, results); err != nil {
			return err
		}
		printSessionStats(cmd.ErrOrStderr(), tally(results))

		if len(errs) > 0 {
			return fmt.Errorf("%d of %d file(s) failed: %w", len(errs), len(args), errors.Join(errs...))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(imageCmd)
}
