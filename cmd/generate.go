package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/generator"
	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/transcript"
)

var (
	genProposalID string
	genTenantID   string
	genClient     string
	genCompany    string
	genIndustry   string
	genTranscript string
	genCharset    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a quality-assured proposal from a call transcript",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "generate")
		if err != nil {
			return err
		}
		defer env.Close()

		var opts []transcript.Option
		if genCharset != "" {
			opts = append(opts, transcript.WithCharset(genCharset))
		}
		tr, err := transcript.Load(genTranscript, opts...)
		if err != nil {
			return eris.Wrap(err, "load transcript")
		}

		pctx := model.ProposalContext{
			ProposalID:  genProposalID,
			TenantID:    genTenantID,
			ClientName:  genClient,
			CompanyName: genCompany,
			Industry:    genIndustry,
			Transcript:  fitTranscript(tr, cfg.Extraction.MaxTranscriptChars),
		}

		result, err := env.Pipeline.Run(ctx, pctx)
		switch {
		case errors.Is(err, generator.ErrExhausted):
			// The run settled with its best attempt; the result below says so.
			zap.L().Warn("retry budget exhausted",
				zap.String("proposal_id", genProposalID),
				zap.Int("attempts", result.Attempts),
			)
		case err != nil:
			return eris.Wrap(err, "pipeline run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	generateCmd.Flags().StringVar(&genProposalID, "proposal-id", "", "proposal identifier (required)")
	generateCmd.Flags().StringVar(&genTenantID, "tenant-id", "", "tenant identifier (required)")
	generateCmd.Flags().StringVar(&genClient, "client", "", "client contact name")
	generateCmd.Flags().StringVar(&genCompany, "company", "", "client company name")
	generateCmd.Flags().StringVar(&genIndustry, "industry", "", "client industry")
	generateCmd.Flags().StringVar(&genTranscript, "transcript", "", "path to the discovery call transcript (required)")
	generateCmd.Flags().StringVar(&genCharset, "charset", "", "transcript character encoding (default UTF-8)")
	_ = generateCmd.MarkFlagRequired("proposal-id")
	_ = generateCmd.MarkFlagRequired("tenant-id")
	_ = generateCmd.MarkFlagRequired("transcript")
	rootCmd.AddCommand(generateCmd)
}
