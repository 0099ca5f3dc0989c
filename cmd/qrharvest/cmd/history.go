package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/qrharvest/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show capture events recorded in the journal",
	Long: `Show the newest capture events recorded in the SQLite journal of the output
location. Events are only recorded by commands run with --journal (or
journal.enabled in the config file).

Examples:
  qrharvest history
  qrharvest history --decision new --limit 50
  qrharvest history --session 3f2a9c1e-0b6d-4c55-9a43-5d2e7f1a8b90 --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		path := cfg.JournalPath(cfg.OutputDir())
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No journal at %s (run a capture with --journal)\n", path)
				return nil
			}
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		sessionID, _ := cmd.Flags().GetString("session")
		decision, _ := cmd.Flags().GetString("decision")
		decision = strings.ToUpper(strings.TrimSpace(decision))
		if decision != "" && decision != "NEW" && decision != "DUPLICATE" {
			return fmt.Errorf("invalid decision %q (want new or duplicate)", decision)
		}

		j, err := journal.Open(path, journal.WithLogger(slog.Default()))
		if err != nil {
			return err
		}
		defer func() { _ = j.Close() }()

		entries, err := j.Recent(cmd.Context(), journal.Filter{SessionID: sessionID, Decision: decision, Limit: limit})
		if err != nil {
			return err
		}
		newCount, dupes, err := j.Counts(cmd.Context())
		if err != nil {
			return err
		}

		if cfg.Output.Format == "json" {
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"entries":    entries,
				"new":        newCount,
				"duplicates": dupes,
			})
		}
		if len(entries) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No matching events")
			return nil
		}

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			detail := e.SavedPath
			switch {
			case e.Error != "":
				detail = e.Error
			case e.Reason != "":
				detail = e.Reason
			}
			rows = append(rows, []string{
				e.RecordedAt.Local().Format(time.DateTime),
				shortID(e.SessionID),
				strconv.Itoa(e.Index),
				e.Decision,
				e.Content,
				detail,
			})
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
			[]string{"Time", "Session", "#", "Decision", "Content", "Detail"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight},
			"", "", "", "", fmt.Sprintf("%d saved, %d duplicates in total", newCount, dupes)))
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 20, "maximum number of events to show (0 shows all)")
	historyCmd.Flags().String("session", "", "only show events of this session")
	historyCmd.Flags().String("decision", "", "only show new or duplicate events")
}
