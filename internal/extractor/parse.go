package extractor

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/pkg/anthropic"
)

// extractionDefaultConfidence is the conservative score assigned when the
// model returns a confidence that is not a number.
const extractionDefaultConfidence = 0.5

type rawInsight struct {
	Items      []string      `json:"items"`
	Confidence any           `json:"confidence"`
	Sources    []rawCitation `json:"sources"`
	Reasoning  string        `json:"reasoning"`
}

type rawCitation struct {
	Insight  string `json:"insight"`
	Location string `json:"location"`
}

// parsePassResponse decodes one extraction response. Category keys are
// matched loosely (painPoints, pain-points, and pain_points all land on
// pain_points); categories outside the allowed set are dropped.
func parsePassResponse(text string, allowed []model.InsightCategory) (map[model.InsightCategory]model.ExtractedInsight, error) {
	text = anthropic.CleanJSON(text)

	var raw map[string]rawInsight
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, eris.Wrap(err, "extractor: unmarshal extraction")
	}
	if len(raw) == 0 {
		return nil, eris.New("extractor: empty extraction payload")
	}

	allowedSet := make(map[model.InsightCategory]bool, len(allowed))
	for _, cat := range allowed {
		allowedSet[cat] = true
	}

	out := make(map[model.InsightCategory]model.ExtractedInsight, len(raw))
	for name, ri := range raw {
		cat, ok := canonicalCategory(name)
		if !ok || !allowedSet[cat] {
			continue
		}

		confidence := normalizeConfidence(ri.Confidence)
		out[cat] = model.ExtractedInsight{
			Category:   cat,
			Items:      cleanItems(ri.Items),
			Confidence: confidence,
			Sources:    convertCitations(ri.Sources, confidence),
			Reasoning:  ri.Reasoning,
		}
	}
	if len(out) == 0 {
		return nil, eris.New("extractor: no recognized categories in extraction")
	}
	return out, nil
}

// canonicalCategory maps a loosely spelled category key onto the canonical
// InsightCategory, ignoring case and separators.
func canonicalCategory(name string) (model.InsightCategory, bool) {
	key := foldKey(name)
	for _, cat := range model.AllCategories {
		if foldKey(string(cat)) == key {
			return cat, true
		}
	}
	return "", false
}

func foldKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, s)
}

// normalizeConfidence coerces the duck-typed confidence value. Non-numeric
// input defaults to the conservative 0.5; numeric input clamps to [0,1].
func normalizeConfidence(v any) float64 {
	switch n := v.(type) {
	case float64:
		return clamp01(n)
	case int:
		return clamp01(float64(n))
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return extractionDefaultConfidence
		}
		return clamp01(f)
	default:
		return extractionDefaultConfidence
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func cleanItems(items []string) []string {
	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// convertCitations maps raw citations onto SourceCitation, inheriting the
// category confidence since extraction citations are not scored per quote.
func convertCitations(raw []rawCitation, confidence float64) []model.SourceCitation {
	var sources []model.SourceCitation
	for _, c := range raw {
		if strings.TrimSpace(c.Insight) == "" {
			continue
		}
		sources = append(sources, model.SourceCitation{
			Insight:    c.Insight,
			Confidence: confidence,
			Location:   c.Location,
		})
	}
	return sources
}
