package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"slices"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrharvest/internal/barcode"
	"github.com/MeKo-Tech/qrharvest/internal/journal"
)

const selftestPayload = "qrharvest selftest"

// selftestCmd represents the selftest command.
var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Check that decoding, the journal and the output location work",
	Long: `Run quick checks of the local setup:
- a generated QR code is detected and decoded
- the SQLite journal can be created and queried
- the output location can be created and written to`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, cmd.Short)
		_, _ = fmt.Fprintln(out)

		checks := []struct {
			name string
			run  func(context.Context) error
		}{
			{"decoder", func(ctx context.Context) error { return checkDecoder(ctx, barcode.NewDetector(nil)) }},
			{"journal", checkJournal},
			{"output location", func(context.Context) error { return checkWritable(cfg.OutputDir()) }},
		}

		var failed []error
		for _, c := range checks {
			if err := c.run(cmd.Context()); err != nil {
				_, _ = fmt.Fprintf(out, "FAIL  %s: %v\n", c.name, err)
				failed = append(failed, fmt.Errorf("%s: %w", c.name, err))
				continue
			}
			_, _ = fmt.Fprintf(out, "ok    %s\n", c.name)
		}
		if len(failed) > 0 {
			return errors.Join(failed...)
		}
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, "All checks passed.")
		return nil
	},
}

func checkDecoder(ctx context.Context, det *barcode.Detector) error {
	img, err := renderQR(selftestPayload, 200)
	if err != nil {
		return fmt.Errorf("render test code: %w", err)
	}
	got := det.Contents(ctx, img)
	if !slices.Contains(got, selftestPayload) {
		return fmt.Errorf("generated code not decoded (got %q)", got)
	}
	return nil
}

func checkJournal(ctx context.Context) error {
	dir, err := os.MkdirTemp("", "qrharvest-selftest-")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	j, err := journal.Open(filepath.Join(dir, journal.DefaultFile))
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()
	_, _, err = j.Counts(ctx)
	return err
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".qrharvest-selftest-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func renderQR(content string, size int) (*image.Gray, error) {
	matrix, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		return nil, err
	}
	img := image.NewGray(image.Rect(0, 0, matrix.GetWidth(), matrix.GetHeight()))
	for y := range matrix.GetHeight() {
		for x := range matrix.GetWidth() {
			if matrix.Get(x, y) {
				img.SetGray(x, y, color.Gray{})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img, nil
}

func init() {
	rootCmd.AddCommand(selftestCmd)
}
