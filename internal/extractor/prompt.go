package extractor

import (
	"fmt"
	"strings"

	"github.com/sells-group/proposal-cli/internal/model"
)

const extractionSystemPrompt = `You are a sales analyst extracting structured insights from discovery-call transcripts.
Only report what the transcript supports; never invent facts. Cite verbatim quotes as sources. Respond with JSON only.`

// categoryGuidance tells the model what each category means. Keys must stay
// aligned with model.AllCategories.
var categoryGuidance = map[model.InsightCategory]string{
	model.CategoryPainPoints:           "operational problems, frustrations, and inefficiencies the client describes",
	model.CategoryGoals:                "desired outcomes and business objectives",
	model.CategoryBudget:               "stated amounts, ranges, and funding status",
	model.CategoryTimeline:             "deadlines, target dates, and urgency signals",
	model.CategoryDecisionMakers:       "people named with roles and authority over the purchase",
	model.CategoryCompetitiveLandscape: "competitors, alternative vendors, and incumbent solutions mentioned",
	model.CategorySuccessMetrics:       "how the client will measure whether the project succeeded",
}

const responseContract = `For every category return:
- "items": distinct findings as short strings (empty array if the transcript says nothing)
- "confidence": 0.0-1.0 for the category as a whole
- "sources": at least one supporting citation when confidence is 0.6 or higher, each {"insight": "<verbatim quote>", "location": "<speaker or position in the call>"}
- "reasoning": one sentence on how you judged the confidence

Respond with ONLY a JSON object keyed by category name:
{"pain_points": {"items": ["..."], "confidence": 0.8, "sources": [{"insight": "...", "location": "..."}], "reasoning": "..."}, ...}`

// transcriptBlock renders the transcript as a standalone system block. The
// block is identical across every pass of a run, so follow-up passes read it
// from the prompt cache.
func transcriptBlock(pctx model.ProposalContext, maxTranscriptChars int) string {
	var b strings.Builder
	b.WriteString("Transcript of the discovery call")
	if pctx.CompanyName != "" {
		fmt.Fprintf(&b, " with %s", pctx.CompanyName)
	}
	if pctx.Industry != "" {
		fmt.Fprintf(&b, " (%s)", pctx.Industry)
	}
	b.WriteString(":\n")
	b.WriteString(truncateTranscript(pctx.Transcript, maxTranscriptChars))
	return b.String()
}

func buildBroadPrompt(pctx model.ProposalContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Extract sales insights from the discovery-call transcript for %s.\n\nInsight categories:\n", pctx.CompanyName)
	for _, cat := range model.AllCategories {
		fmt.Fprintf(&b, "- %s: %s\n", cat, categoryGuidance[cat])
	}

	b.WriteString("\n")
	b.WriteString(responseContract)

	return b.String()
}

func buildTargetedPrompt(pctx model.ProposalContext, gaps []model.Gap) string {
	var b strings.Builder

	fmt.Fprintf(&b, "An earlier extraction pass over the discovery-call transcript for %s left gaps.\n", pctx.CompanyName)
	b.WriteString("Re-examine the full transcript focusing ONLY on these categories:\n")
	for _, g := range gaps {
		fmt.Fprintf(&b, "- %s (%s): %s\n", g.Category, g.Reason, categoryGuidance[g.Category])
	}

	b.WriteString("\nLook for indirect signals this time: implied amounts, approximate dates, names mentioned in passing, offhand comparisons.\n\n")
	b.WriteString(responseContract)
	b.WriteString("\nInclude only the categories listed above.")

	return b.String()
}

func truncateTranscript(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n[truncated]"
}
