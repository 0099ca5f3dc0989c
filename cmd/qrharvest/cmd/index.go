package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrharvest/internal/store"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect or rebuild the index of an output location",
	Long: `The index is the set of QR payloads already saved in an output location. It is
kept in ` + store.MetadataFile + ` and reconciled with the saved crops whenever a
capture session starts.`,
}

var indexListCmd = &cobra.Command{
	Use:   "list [dir]",
	Short: "List the payloads recorded for an output location",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		dir := locationArg(args, cfg.OutputDir())

		meta, err := store.ReadMetadata(filepath.Join(dir, store.MetadataFile))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No index recorded in %s\n", dir)
				return nil
			}
			return fmt.Errorf("read index: %w", err)
		}

		if cfg.Output.Format == "json" {
			return writeJSON(cmd.OutOrStdout(), meta)
		}
		rows := make([][]string, 0, len(meta.Contents))
		for i, c := range meta.Contents {
			rows = append(rows, []string{strconv.Itoa(i + 1), c})
		}
		updated := meta.LastUpdated
		if updated == "" {
			updated = "-"
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
			[]string{"#", "Content"}, rows, []columnAlignment{alignRight, alignLeft},
			"", fmt.Sprintf("%d code(s), updated %s", len(meta.Contents), updated)))
		return nil
	},
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild [dir]",
	Short: "Rebuild the index by decoding every saved crop",
	Long: `Read the recorded index, decode every saved crop in the output location and
write the reconciled index back. Payloads found only in crops are added;
unreadable crops are reported and skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		dir := locationArg(args, cfg.OutputDir())
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("output location: %w", err)
		}

		env, err := newCaptureEnv(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = env.Close() }()

		st, err := store.Open(dir, store.Options{
			Lock:    cfg.Output.Lock,
			Decoder: env.pipeline.Detector(),
			Logger:  env.logger,
		})
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		report, err := st.Load(cmd.Context())
		if err != nil {
			return err
		}
		if cfg.Output.Format == "json" {
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		} else {
			printLoadReport(cmd.OutOrStdout(), st.Dir(), report)
		}
		if report.PersistErr != nil {
			return fmt.Errorf("index rebuilt in memory but not saved: %w", report.PersistErr)
		}
		return nil
	},
}

func locationArg(args []string, fallback string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return fallback
}

func printLoadReport(w io.Writer, dir string, r *store.LoadReport) {
	rows := make([][]string, 0, len(r.Rescan.Files))
	for _, f := range r.Rescan.Files {
		detail := strings.Join(f.Contents, ", ")
		if f.Err != nil {
			detail = f.Err.Error()
		}
		rows = append(rows, []string{f.Name, string(f.Outcome), detail})
	}
	if len(rows) > 0 {
		_, _ = fmt.Fprintln(w, renderTable([]string{"File", "Outcome", "Content"}, rows, nil))
	}

	metadata := "missing"
	switch {
	case r.MetadataCorrupt:
		metadata = "malformed, rebuilt from crops"
	case r.MetadataFound:
		metadata = fmt.Sprintf("%d code(s)", r.FromMetadata)
	}
	_, _ = fmt.Fprintf(w, "Location:  %s\n", dir)
	_, _ = fmt.Fprintf(w, "Metadata:  %s\n", metadata)
	_, _ = fmt.Fprintf(w, "Crops:     %d decoded, %d without code, %d unreadable, %d skipped\n",
		r.Rescan.Decoded, r.Rescan.NoCode, r.Rescan.Unreadable, r.Rescan.Skipped)
	_, _ = fmt.Fprintf(w, "Recovered: %d\n", r.Recovered)
	_, _ = fmt.Fprintf(w, "Total:     %d\n", r.Total)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexListCmd)
	indexCmd.AddCommand(indexRebuildCmd)
}
