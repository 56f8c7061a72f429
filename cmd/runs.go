package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ate-cli/internal/results"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect sweep history in the results database",
	Long:  "Commands for listing and viewing sweeps recorded with --database.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sweeps",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		h, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer h.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := h.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a sweep and its best configurations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer h.Close() //nolint:errcheck

		run, err := h.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		rows, err := h.Results(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		top, _ := cmd.Flags().GetInt("top")
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return err
		}
		formatTopRows(os.Stdout, rows, top)
		return nil
	},
}

func init() {
	runsCmd.PersistentFlags().String("database", "", "results database (default: output.database from config)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsShowCmd.Flags().Int("top", 10, "number of configurations to print, largest matched count first")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func openHistory(cmd *cobra.Command) (*results.History, error) {
	dsn, _ := cmd.Flags().GetString("database")
	if dsn == "" {
		dsn = cfg.Output.Database
	}
	if dsn == "" {
		return nil, eris.New("runs: no results database, pass --database or set output.database")
	}
	return results.OpenHistory(cmd.Context(), dsn)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []results.RunRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMETRIC\tSTATUS\tTILES\tROWS\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-----\t----\t-------\t--------")

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Metric,
			r.Status,
			r.Tiles,
			r.Rows,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatTopRows prints the n configurations with the most matched pairs.
// Rows without an estimate are skipped.
func formatTopRows(out io.Writer, rows []results.Row, n int) {
	ranked := make([]results.Row, 0, len(rows))
	for _, r := range rows {
		if !math.IsNaN(r.ATE) {
			ranked = append(ranked, r)
		}
	}
	slices.SortStableFunc(ranked, func(a, b results.Row) int {
		return b.TreatmentCount - a.TreatmentCount
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MIN_DIST\tK\tRADIUS\tT_PCT\tC_PCT\tMATCH_R\tPAIRS\tATE\tATE_STD")
	for _, r := range ranked {
		_, _ = fmt.Fprintf(w, "%g\t%d\t%d\t%g\t%g\t%g\t%d\t%.4f\t%.4f\n",
			r.NeighborhoodMinDist, r.NumNeighbors, r.WindowRadius, r.TreatmentPct, r.ControlPct,
			r.MatchRadius, r.TreatmentCount, r.ATE, r.ATEStd)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
