package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/store"
)

var learningsCmd = &cobra.Command{
	Use:   "learnings",
	Short: "List failure diagnoses from the learning log",
	Long:  "Lists the append-only log of diagnosed validation failures: what went wrong per attempt, which fields were involved, and what the analyzer recommended.",
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

		proposalID, _ := cmd.Flags().GetString("proposal-id")
		tenantID, _ := cmd.Flags().GetString("tenant-id")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.ListLearnings(ctx, store.LearningFilter{
			ProposalID: proposalID,
			TenantID:   tenantID,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "list learnings")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No learning entries found.")
			return nil
		}

		formatLearnings(os.Stdout, entries)
		return nil
	},
}

// formatLearnings writes a tabular list of learning entries to w.
func formatLearnings(out io.Writer, entries []model.LearningLogEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROPOSAL\tATTEMPT\tROOT_CAUSE\tFIELDS\tCONF\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t-------\t----------\t------\t----\t-------")

	for _, e := range entries {
		cause := e.RootCause
		if len(cause) > 40 {
			cause = cause[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\t%s\n",
			truncateID(e.ID),
			e.ProposalID,
			e.AttemptCount,
			cause,
			len(e.MissingFields)+len(e.MalformedFields),
			e.ConfidenceScore,
			e.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func init() {
	learningsCmd.Flags().String("proposal-id", "", "filter by proposal")
	learningsCmd.Flags().String("tenant-id", "", "filter by tenant")
	learningsCmd.Flags().Int("limit", 50, "max number of entries to display")
	rootCmd.AddCommand(learningsCmd)
}
