package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/proposal-cli/internal/model"
)

const (
	maxPayloadChars    = 8000
	maxTranscriptChars = 20000
)

const diagnosisSystemPrompt = `You are a quality-control analyst for generated business proposals.
Given the validation errors, the failing output, and the source transcript, diagnose why generation failed and what the next attempt must change.
Be specific: name exact field paths from the validation errors. Respond with JSON only.`

func buildDiagnosisPrompt(req Request, past []model.LearningLogEntry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "A generated proposal for %s failed validation on attempt %d.\n\n",
		req.Proposal.CompanyName, req.Attempt)

	b.WriteString("Validation errors:\n")
	for _, e := range req.Errors {
		fmt.Fprintf(&b, "- %s\n", e.String())
	}

	if len(req.Payload) > 0 {
		if payloadJSON, err := json.MarshalIndent(req.Payload, "", "  "); err == nil {
			b.WriteString("\nFailing output:\n")
			b.WriteString(truncate(string(payloadJSON), maxPayloadChars))
			b.WriteString("\n")
		}
	}

	if req.Proposal.Transcript != "" {
		b.WriteString("\nSource transcript:\n")
		b.WriteString(truncate(req.Proposal.Transcript, maxTranscriptChars))
		b.WriteString("\n")
	}

	if len(past) > 0 {
		b.WriteString("\nPast failures for this tenant:\n")
		for _, e := range past {
			fmt.Fprintf(&b, "- attempt %d: %s\n", e.AttemptCount, e.RootCause)
		}
	}

	b.WriteString(`
Respond with ONLY a JSON object:
{
  "rootCause": "<one-sentence diagnosis>",
  "missingFields": ["<field paths that must be added>"],
  "malformedFields": ["<field paths with format problems>"],
  "recommendations": ["<specific corrective actions>"],
  "suggestedPromptAdjustments": ["<wording changes for the next generation prompt>"],
  "confidenceScore": <0-100>
}`)

	return b.String()
}

// InstructionBlock renders a diagnosis as corrective instructions for the
// next generation prompt. Empty diagnosis fields omit their block entirely;
// a nil diagnosis renders to an empty string.
func InstructionBlock(diag *model.Diagnosis) string {
	if diag == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("IMPORTANT: a previous attempt failed validation.")
	if diag.RootCause != "" {
		fmt.Fprintf(&b, " Root cause: %s", diag.RootCause)
	}
	b.WriteString("\n")

	if len(diag.MissingFields) > 0 {
		b.WriteString("\nYou MUST include these fields:\n")
		for _, f := range diag.MissingFields {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	if len(diag.MalformedFields) > 0 {
		b.WriteString("\nYou MUST fix the format of these fields:\n")
		for _, f := range diag.MalformedFields {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	if len(diag.Recommendations) > 0 {
		b.WriteString("\nApply these corrections:\n")
		for _, r := range diag.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	if len(diag.SuggestedPromptAdjustments) > 0 {
		b.WriteString("\nAdditional instructions:\n")
		for _, s := range diag.SuggestedPromptAdjustments {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n[truncated]"
}
