package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/config"
)

// version is stamped by the build; local builds report dev.
var version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:     "proposal-cli",
	Version: version,
	Short:   "Quality-assured proposal generation pipeline",
	Long: `proposal-cli turns discovery-call transcripts into validated proposal drafts.

It extracts insights over multiple passes, drafts each section against its
registered schema, and retries failed sections with a failure diagnosis until
the draft passes or the attempt budget runs out. Drafts that still miss the
quality gate land in the human review queue.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
