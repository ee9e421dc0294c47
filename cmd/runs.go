package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect proposal run history",
	Long:  "Commands for listing, viewing, and summarizing proposal generation runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List generation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		tenant, _ := cmd.Flags().GetString("tenant-id")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:   model.RunStatus(status),
			TenantID: tenant,
			Limit:    limit,
		})
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
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		since, _ := cmd.Flags().GetDuration("since")
		filter := store.RunFilter{}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}
		filter.Limit = 10000 // high limit for stats

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		stats := computeRunStats(runs)
		formatRunStats(os.Stdout, stats)
		return nil
	},
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total       int
	Passed      int
	Exhausted   int
	Failed      int
	Cancelled   int
	Active      int
	AvgAttempts float64
	AvgConf     float64
	TotalCost   float64
	AvgDurSecs  float64
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	var s runStats
	s.Total = len(runs)

	var attemptSum, durMsSum int64
	var confSum float64
	var settled, scored, timed int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusPassed:
			s.Passed++
		case model.RunStatusExhausted:
			s.Exhausted++
		case model.RunStatusFailed:
			s.Failed++
		case model.RunStatusCancelled:
			s.Cancelled++
		default:
			s.Active++
		}

		if r.Result == nil {
			continue
		}
		s.TotalCost += r.Result.TotalCost
		if r.Status == model.RunStatusPassed || r.Status == model.RunStatusExhausted {
			attemptSum += int64(r.Result.AttemptCount)
			settled++
		}
		if r.Result.Metrics != nil {
			confSum += r.Result.Metrics.OverallConfidence
			scored++
		}
		if r.Result.DurationMs > 0 {
			durMsSum += r.Result.DurationMs
			timed++
		}
	}

	if settled > 0 {
		s.AvgAttempts = float64(attemptSum) / float64(settled)
	}
	if scored > 0 {
		s.AvgConf = confSum / float64(scored)
	}
	if timed > 0 {
		s.AvgDurSecs = float64(durMsSum) / float64(timed) / 1000
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROPOSAL\tTENANT\tSTATUS\tATTEMPTS\tCONF\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t------\t--------\t----\t-------")

	for _, r := range runs {
		attempts := ""
		conf := ""
		if r.Result != nil {
			attempts = fmt.Sprintf("%d", r.Result.AttemptCount)
			if r.Result.Metrics != nil {
				conf = fmt.Sprintf("%.2f", r.Result.Metrics.OverallConfidence)
			}
		}

		proposal := r.ProposalID
		if len(proposal) > 30 {
			proposal = proposal[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			proposal,
			r.TenantID,
			r.Status,
			attempts,
			conf,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Passed:\t%d\n", s.Passed)
	_, _ = fmt.Fprintf(w, "Exhausted:\t%d\n", s.Exhausted)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Cancelled:\t%d\n", s.Cancelled)
	_, _ = fmt.Fprintf(w, "Active:\t%d\n", s.Active)
	if s.AvgAttempts > 0 {
		_, _ = fmt.Fprintf(w, "Avg attempts:\t%.1f\n", s.AvgAttempts)
	}
	if s.AvgConf > 0 {
		_, _ = fmt.Fprintf(w, "Avg confidence:\t%.2f\n", s.AvgConf)
	}
	_, _ = fmt.Fprintf(w, "Total cost:\t$%.2f\n", s.TotalCost)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
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

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, extracting, generating, passed, exhausted, failed, cancelled)")
	runsListCmd.Flags().String("tenant-id", "", "filter by tenant")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}
