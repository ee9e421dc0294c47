package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/cost"
	"github.com/sells-group/proposal-cli/internal/extractor"
	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/transcript"
	anthropicpkg "github.com/sells-group/proposal-cli/pkg/anthropic"
)

var (
	extractTranscript string
	extractDir        string
	extractCharset    string
	extractIndustry   string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run multi-pass insight extraction on a transcript without drafting",
	Long: `Run insight extraction without drafting a proposal.

With --transcript, runs the full multi-pass extraction on one file and
prints the extraction state as JSON. With --dir, screens every .txt and
.md transcript in the directory through a single Batch API round trip
(one broad pass each, at batch rates) and prints a triage table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("generate"); err != nil {
			return err
		}
		if (extractTranscript == "") == (extractDir == "") {
			return eris.New("pass exactly one of --transcript or --dir")
		}

		var opts []transcript.Option
		if extractCharset != "" {
			opts = append(opts, transcript.WithCharset(extractCharset))
		}

		var aiOpts []anthropicpkg.ClientOption
		if cfg.Anthropic.MaxRPS > 0 {
			aiOpts = append(aiOpts, anthropicpkg.WithMaxRPS(cfg.Anthropic.MaxRPS))
		}
		aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key, aiOpts...)
		costs := cost.NewCalculator(pricingRates())
		ext := extractor.New(aiClient, costs, cfg.Anthropic.ExtractModel, cfg.Extraction)

		if extractDir != "" {
			return runScreen(cmd, ext, opts)
		}

		tr, err := transcript.Load(extractTranscript, opts...)
		if err != nil {
			return eris.Wrap(err, "load transcript")
		}

		state, err := ext.Run(ctx, model.ProposalContext{
			Industry:   extractIndustry,
			Transcript: fitTranscript(tr, cfg.Extraction.MaxTranscriptChars),
		})
		if err != nil {
			return eris.Wrap(err, "extract")
		}

		zap.L().Info("extraction complete",
			zap.Int("passes", len(state.Passes)),
			zap.Float64("coverage", state.CoverageScore),
			zap.Float64("confidence", state.OverallConfidence),
			zap.Int("remaining_gaps", len(state.RemainingGaps)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	},
}

// fitTranscript fits a long call into the extraction budget, keeping the
// utterances most relevant to the insight categories instead of just the
// head of the call.
func fitTranscript(tr *transcript.Transcript, limit int) string {
	if limit <= 0 || len(tr.Text) <= limit {
		return tr.Text
	}
	focus := make([]string, 0, len(model.AllCategories))
	for _, cat := range model.AllCategories {
		focus = append(focus, strings.ReplaceAll(string(cat), "_", " "))
	}
	return tr.TruncateByRelevance(strings.Join(focus, " "), limit)
}

// runScreen triages every transcript under --dir in one batch.
func runScreen(cmd *cobra.Command, ext *extractor.Extractor, opts []transcript.Option) error {
	pctxs, err := loadScreenDir(extractDir, opts)
	if err != nil {
		return err
	}

	report, err := ext.Screen(cmd.Context(), pctxs)
	if err != nil {
		return eris.Wrap(err, "screen transcripts")
	}

	fmt.Print(formatScreenReport(report))
	return nil
}

// loadScreenDir reads every .txt and .md file in dir into a proposal
// context, keyed by file name. Unreadable files are skipped with a warning
// so one bad file does not sink the backlog.
func loadScreenDir(dir string, opts []transcript.Option) ([]model.ProposalContext, error) {
	var paths []string
	for _, pattern := range []string{"*.txt", "*.md"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, eris.Wrap(err, "list transcripts")
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, eris.Errorf("no .txt or .md transcripts in %s", dir)
	}

	pctxs := make([]model.ProposalContext, 0, len(paths))
	for _, p := range paths {
		tr, err := transcript.Load(p, opts...)
		if err != nil {
			zap.L().Warn("skipping unreadable transcript",
				zap.String("path", p),
				zap.Error(err),
			)
			continue
		}
		pctxs = append(pctxs, model.ProposalContext{
			ProposalID: strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)),
			Industry:   extractIndustry,
			Transcript: fitTranscript(tr, cfg.Extraction.MaxTranscriptChars),
		})
	}
	if len(pctxs) == 0 {
		return nil, eris.Errorf("no readable transcripts in %s", dir)
	}
	return pctxs, nil
}

// formatScreenReport renders the triage table, best-covered transcripts
// first.
func formatScreenReport(report *extractor.ScreenReport) string {
	results := make([]extractor.ScreenResult, len(report.Results))
	copy(results, report.Results)
	sort.Slice(results, func(i, j int) bool {
		if results[i].Coverage != results[j].Coverage {
			return results[i].Coverage > results[j].Coverage
		}
		return results[i].ProposalID < results[j].ProposalID
	})

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROPOSAL\tCOVERAGE\tCONF\tGAPS\tCOST")
	fmt.Fprintln(w, "--------\t--------\t----\t----\t----")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%d\t$%.4f\n",
			r.ProposalID, r.Coverage, r.Confidence, len(r.Gaps), r.Usage.Cost)
	}
	w.Flush() //nolint:errcheck

	for _, f := range report.Failures {
		fmt.Fprintf(&b, "skipped %s: %s\n", f.ProposalID, f.Reason)
	}
	fmt.Fprintf(&b, "Screened %d transcripts (%d skipped), $%.4f total.\n",
		len(report.Results), len(report.Failures), report.Usage.Cost)
	return b.String()
}

func init() {
	extractCmd.Flags().StringVar(&extractTranscript, "transcript", "", "path to the discovery call transcript")
	extractCmd.Flags().StringVar(&extractDir, "dir", "", "screen every .txt/.md transcript in this directory via the Batch API")
	extractCmd.Flags().StringVar(&extractCharset, "charset", "", "transcript character encoding (default UTF-8)")
	extractCmd.Flags().StringVar(&extractIndustry, "industry", "", "client industry, used to focus extraction")
	rootCmd.AddCommand(extractCmd)
}
