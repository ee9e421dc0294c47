package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/proposal-cli/internal/model"
)

const (
	// maxInsightChars bounds the serialized extraction insights embedded in
	// a section prompt.
	maxInsightChars = 6000
	// maxTranscriptChars bounds the raw transcript excerpt. Sections lean on
	// the extracted insights first, so this is tighter than extraction's cap.
	maxTranscriptChars = 16000
)

const generationSystemPrompt = `You are a senior proposal writer at a B2B consulting firm. You draft one section of a business proposal at a time, grounded strictly in the discovery material provided. Never invent facts, figures, names, or commitments the material does not support; when the material is thin, say so in your reasoning and lower your confidence. Respond with a single JSON object and no other text.`

const sectionResponseContract = `Respond with a JSON object of this exact shape:
{
  "content": <the section body: an object, array, or string as the section demands>,
  "confidence": {"overall": <0.0-1.0>, "completeness": <0.0-1.0>, "specificity": <0.0-1.0>, "grounding": <0.0-1.0>},
  "sources": [{"insight": "the discovery material this section relies on", "confidence": <0.0-1.0>, "location": "where it appears"}],
  "reasoning": "one short paragraph on how the material supports this section",
  "smart_checks": {"specific": true, "measurable": true, "achievable": true, "relevant": true, "time_bound": true}
}
Include smart_checks only when the section states goals or deliverables.`

// discoveryBlock renders the material every section draws on: extracted
// insights plus the transcript excerpt. It is identical for every section of
// every attempt, so it rides in a cached system block and the fan-out rereads
// it at cache rates.
func discoveryBlock(pctx model.ProposalContext) string {
	var b strings.Builder
	if block := insightsBlock(pctx.Extracted); block != "" {
		b.WriteString("Extracted discovery insights:\n")
		b.WriteString(block)
		b.WriteString("\n")
	}
	if pctx.Transcript != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Discovery transcript:\n")
		b.WriteString(truncate(pctx.Transcript, maxTranscriptChars))
	}
	return b.String()
}

// buildSectionPrompt assembles the drafting prompt for one section:
// template guidance and any corrective instructions from a prior failed
// attempt. The discovery material itself lives in the system blocks.
func buildSectionPrompt(pctx model.ProposalContext, tpl model.SectionTemplate, instruction string) string {
	var b strings.Builder

	title := tpl.Title
	if title == "" {
		title = tpl.Name
	}

	fmt.Fprintf(&b, "Draft the %q section of a business proposal for %s", title, pctx.CompanyName)
	if pctx.Industry != "" {
		fmt.Fprintf(&b, " (%s)", pctx.Industry)
	}
	if pctx.ClientName != "" {
		fmt.Fprintf(&b, ", prepared for %s", pctx.ClientName)
	}
	b.WriteString(".\n")

	if tpl.Description != "" {
		fmt.Fprintf(&b, "\nSection purpose: %s\n", tpl.Description)
	}
	if len(tpl.RequiredFields) > 0 {
		b.WriteString("\nThe content object MUST include these fields:\n")
		for _, f := range tpl.RequiredFields {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if tpl.PromptHints != "" {
		fmt.Fprintf(&b, "\nGuidance: %s\n", tpl.PromptHints)
	}

	if instruction != "" {
		b.WriteString("\n")
		b.WriteString(instruction)
	}

	b.WriteString("\n")
	b.WriteString(sectionResponseContract)
	return b.String()
}

// insightsBlock serializes the extraction output for prompt embedding.
// Marshal failures degrade to omitting the block; the transcript still
// grounds the section.
func insightsBlock(extracted map[string]any) string {
	if len(extracted) == 0 {
		return ""
	}
	data, err := json.MarshalIndent(extracted, "", "  ")
	if err != nil {
		return ""
	}
	return truncate(string(data), maxInsightChars)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n[truncated]"
}
