package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/proposal-cli/internal/model"
)

func TestBuildBroadPrompt(t *testing.T) {
	prompt := buildBroadPrompt(testContext())

	assert.Contains(t, prompt, "Acme Manufacturing")
	for _, cat := range model.AllCategories {
		assert.Contains(t, prompt, string(cat))
	}
	assert.Contains(t, prompt, "Respond with ONLY a JSON object")
	assert.Contains(t, prompt, "at least one supporting citation when confidence is 0.6 or higher")
}

func TestBuildTargetedPrompt(t *testing.T) {
	gaps := []model.Gap{
		{Category: model.CategoryBudget, Reason: "confidence 0.30 below threshold 0.60", Pass: 1},
		{Category: model.CategorySuccessMetrics, Reason: "no items extracted", Pass: 1},
	}

	prompt := buildTargetedPrompt(testContext(), gaps)

	assert.Contains(t, prompt, "left gaps")
	assert.Contains(t, prompt, "- budget (confidence 0.30 below threshold 0.60)")
	assert.Contains(t, prompt, "- success_metrics (no items extracted)")
	assert.Contains(t, prompt, "Include only the categories listed above.")
	assert.NotContains(t, prompt, "- pain_points (")
}

func TestTranscriptBlock(t *testing.T) {
	block := transcriptBlock(testContext(), defaultMaxTranscriptChars)

	assert.Contains(t, block, "Acme Manufacturing (industrial automation)")
	assert.Contains(t, block, "packaging line keeps jamming")
}

func TestTranscriptBlock_Truncates(t *testing.T) {
	pctx := testContext()
	pctx.Transcript = strings.Repeat("budget talk ", 4000)

	block := transcriptBlock(pctx, 1000)

	assert.Contains(t, block, "[truncated]")
	assert.Less(t, len(block), 2000)
}
