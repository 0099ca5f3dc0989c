package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrharvest/internal/source"
)

// pdfCmd represents the pdf command.
var pdfCmd = &cobra.Command{
	Use:   "pdf <file>",
	Short: "Capture QR codes from images embedded in a PDF",
	Long: `Extract the images embedded in a PDF document and capture the QR codes they
show. Every extracted image is a frame of one session, in page order; no
frame is dropped.

Examples:
  qrharvest pdf tickets.pdf
  qrharvest pdf tickets.pdf --pages 1-3,5 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		pages, _ := cmd.Flags().GetString("pages")

		src, err := source.NewPDFSource(args[0], pages)
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()
		if src.Len() == 0 {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "No images found in %s\n", args[0])
			return nil
		}

		env, err := newCaptureEnv(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = env.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out, err := streamRun{env: env, queueSize: src.Len(), total: src.Len()}.run(ctx, cmd, src)
		if err != nil {
			return err
		}
		if err := writeReport(cmd, cfg, out.results); err != nil {
			return err
		}
		printSessionStats(cmd.ErrOrStderr(), out.session)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pdfCmd)
	pdfCmd.Flags().String("pages", "", "page range to process (e.g. 1-3,5); empty means all pages")
}
