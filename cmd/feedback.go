package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/feedback"
	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/store"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record and import human feedback on generated proposals",
	Long:  "Commands for validating single feedback reactions and bulk-importing spreadsheet exports. Every record is trust-scored against the submitter's history before it is stored.",
}

// -- feedback validate --

var feedbackValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Trust-score one feedback reaction and store it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("feedback"); err != nil {
			return err
		}

		in, err := feedbackInputFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		history, err := st.ListFeedback(ctx, store.FeedbackFilter{
			UserID: in.UserID,
			Limit:  cfg.Feedback.HistoryLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list feedback history")
		}

		validator := feedback.NewValidator(cfg.Feedback.HistoryLimit)
		verdict := validator.Validate(in, history)

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if !dryRun {
			rec, err := st.CreateFeedback(ctx, in.Record(verdict))
			if err != nil {
				return eris.Wrap(err, "store feedback")
			}
			zap.L().Info("feedback stored",
				zap.String("feedback_id", rec.ID),
				zap.Float64("confidence", verdict.ConfidenceScore),
				zap.Bool("valid", verdict.IsValid),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(verdict)
	},
}

// -- feedback import --

var feedbackImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-import feedback from an XLSX export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("feedback"); err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("xlsx")
		inputs, rowErrs, err := feedback.ParseXLSX(path)
		if err != nil {
			return eris.Wrap(err, "parse xlsx")
		}
		for _, re := range rowErrs {
			zap.L().Warn("skipping malformed row",
				zap.Int("row", re.Row),
				zap.Error(re.Err),
			)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		validator := feedback.NewValidator(cfg.Feedback.HistoryLimit)

		recs := make([]model.FeedbackRecord, 0, len(inputs))
		suspect := 0
		for _, in := range inputs {
			history, err := st.ListFeedback(ctx, store.FeedbackFilter{
				UserID: in.UserID,
				Limit:  cfg.Feedback.HistoryLimit,
			})
			if err != nil {
				return eris.Wrap(err, "list feedback history")
			}
			verdict := validator.Validate(in, history)
			if !verdict.IsValid {
				suspect++
			}
			recs = append(recs, in.Record(verdict))
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		imported := 0
		if !dryRun {
			imported, err = st.ImportFeedback(ctx, recs)
			if err != nil {
				return eris.Wrap(err, "import feedback")
			}
		}

		zap.L().Info("import complete",
			zap.String("xlsx", path),
			zap.Int("parsed", len(inputs)),
			zap.Int("skipped_rows", len(rowErrs)),
			zap.Int("suspect", suspect),
			zap.Int("imported", imported),
			zap.Bool("dry_run", dryRun),
		)

		fmt.Printf("Parsed %d rows (%d skipped), %d suspect, %d imported.\n",
			len(inputs), len(rowErrs), suspect, imported)
		return nil
	},
}

// feedbackInputFromFlags assembles a FeedbackInput from the validate
// subcommand's flags. Optional signals stay nil unless their flag was set so
// the validator can tell "absent" from "zero".
func feedbackInputFromFlags(cmd *cobra.Command) (model.FeedbackInput, error) {
	flags := cmd.Flags()

	userID, _ := flags.GetString("user-id")
	tenantID, _ := flags.GetString("tenant-id")
	proposalID, _ := flags.GetString("proposal-id")
	edited, _ := flags.GetBool("edited")

	in := model.FeedbackInput{
		UserID:     userID,
		TenantID:   tenantID,
		ProposalID: proposalID,
		WasEdited:  edited,
		ProposalAt: time.Now().UTC(),
	}

	if flags.Changed("rating") {
		rating, _ := flags.GetFloat64("rating")
		in.UserRating = &rating
	}
	if flags.Changed("edit-magnitude") {
		mag, _ := flags.GetFloat64("edit-magnitude")
		in.EditMagnitude = &mag
	}
	if flags.Changed("outcome") {
		raw, _ := flags.GetString("outcome")
		outcome := model.Outcome(raw)
		if outcome != model.OutcomeWon && outcome != model.OutcomeLost {
			return in, eris.Errorf("unknown outcome %q (want won or lost)", raw)
		}
		in.Outcome = &outcome
		at := time.Now().UTC()
		in.OutcomeAt = &at
	}
	if flags.Changed("proposal-at") {
		raw, _ := flags.GetString("proposal-at")
		at, err := parseTimeFlag(raw)
		if err != nil {
			return in, err
		}
		in.ProposalAt = at
	}
	if flags.Changed("outcome-at") {
		raw, _ := flags.GetString("outcome-at")
		at, err := parseTimeFlag(raw)
		if err != nil {
			return in, err
		}
		in.OutcomeAt = &at
	}

	return in, nil
}

// parseTimeFlag accepts RFC 3339 timestamps or bare dates.
func parseTimeFlag(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, eris.Errorf("unparseable time %q (want RFC 3339 or YYYY-MM-DD)", s)
	}
	return t, nil
}

func init() {
	feedbackValidateCmd.Flags().String("user-id", "", "submitting user (required)")
	feedbackValidateCmd.Flags().String("tenant-id", "", "tenant identifier (required)")
	feedbackValidateCmd.Flags().String("proposal-id", "", "proposal the feedback is about (required)")
	feedbackValidateCmd.Flags().Float64("rating", 0, "user rating, 1-5")
	feedbackValidateCmd.Flags().Bool("edited", false, "the user edited the generated document")
	feedbackValidateCmd.Flags().Float64("edit-magnitude", 0, "fraction of the document edited, 0-1")
	feedbackValidateCmd.Flags().String("outcome", "", "deal outcome: won or lost")
	feedbackValidateCmd.Flags().String("outcome-at", "", "when the outcome landed (RFC 3339 or YYYY-MM-DD)")
	feedbackValidateCmd.Flags().String("proposal-at", "", "when the proposal was generated (RFC 3339 or YYYY-MM-DD)")
	feedbackValidateCmd.Flags().Bool("dry-run", false, "validate without storing")
	_ = feedbackValidateCmd.MarkFlagRequired("user-id")
	_ = feedbackValidateCmd.MarkFlagRequired("tenant-id")
	_ = feedbackValidateCmd.MarkFlagRequired("proposal-id")

	feedbackImportCmd.Flags().String("xlsx", "", "path to XLSX file (required)")
	feedbackImportCmd.Flags().Bool("dry-run", false, "parse and validate without storing")
	_ = feedbackImportCmd.MarkFlagRequired("xlsx")

	feedbackCmd.AddCommand(feedbackValidateCmd)
	feedbackCmd.AddCommand(feedbackImportCmd)
	rootCmd.AddCommand(feedbackCmd)
}
