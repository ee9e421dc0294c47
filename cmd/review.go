package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/review"
	"github.com/sells-group/proposal-cli/internal/store"
	"github.com/sells-group/proposal-cli/pkg/notion"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Route runs to the human review queue",
}

// -- review push --

var reviewPushCmd = &cobra.Command{
	Use:   "push [run-id]",
	Short: "Publish runs that need human review to the Notion review database",
	Long:  "Publishes one run by ID, or with --all every stored run that needs review: exhausted and failed runs, plus passed runs whose quality gate missed.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("review"); err != nil {
			return err
		}

		all, _ := cmd.Flags().GetBool("all")
		if len(args) == 0 && !all {
			return eris.New("pass a run ID or --all")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		notionClient := notion.NewClient(cfg.Notion.Token)
		publisher := review.NewPublisher(notionClient, cfg.Notion.ReviewDB)

		if len(args) == 1 {
			return pushOne(cmd, st, publisher, args[0])
		}

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: limit})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		pushed := 0
		for _, run := range runs {
			if !review.Needed(run) {
				continue
			}
			pageID, err := publisher.Publish(ctx, run)
			if err != nil {
				// Keep going; a single bad run should not block the sweep.
				zap.L().Warn("review publish failed",
					zap.String("run_id", run.ID),
					zap.Error(err),
				)
				continue
			}
			pushed++
			fmt.Printf("%s  %s  %s\n", truncateID(run.ID), pageID, review.Reason(run))
		}

		zap.L().Info("review sweep complete",
			zap.Int("considered", len(runs)),
			zap.Int("pushed", pushed),
		)
		return nil
	},
}

// pushOne publishes a single run by ID, honoring --force for runs the
// routing rules would skip.
func pushOne(cmd *cobra.Command, st store.Store, publisher *review.Publisher, runID string) error {
	ctx := cmd.Context()

	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return eris.Wrap(err, "get run")
	}

	force, _ := cmd.Flags().GetBool("force")
	if !review.Needed(*run) && !force {
		fmt.Fprintf(os.Stderr, "Run %s does not need review (status %s); use --force to push anyway.\n",
			truncateID(run.ID), run.Status)
		return nil
	}

	pageID, err := publisher.Publish(ctx, *run)
	if err != nil {
		return eris.Wrap(err, "publish review")
	}

	zap.L().Info("review page created",
		zap.String("run_id", run.ID),
		zap.String("page_id", pageID),
		zap.String("reason", review.Reason(*run)),
	)
	fmt.Println(pageID)
	return nil
}

func init() {
	reviewPushCmd.Flags().Bool("all", false, "push every stored run that needs review")
	reviewPushCmd.Flags().Bool("force", false, "push even when routing rules would skip the run")
	reviewPushCmd.Flags().Int("limit", 100, "max runs to consider with --all")

	reviewCmd.AddCommand(reviewPushCmd)
	rootCmd.AddCommand(reviewCmd)
}
