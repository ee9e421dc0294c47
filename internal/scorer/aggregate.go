// Package scorer normalizes per-section confidence payloads and rolls them
// up into proposal-level quality metrics. Scoring never fails: corrupt
// input degrades to conservative defaults so a scoring problem cannot block
// proposal generation.
package scorer

import (
	"sort"

	"github.com/sells-group/proposal-cli/internal/model"
)

const (
	// lowConfidenceThreshold is the per-section bar; sections below it are
	// flagged and excluded from coverage.
	lowConfidenceThreshold = 0.6
	// coverageGate and confidenceGate form the dual acceptance gate. Both
	// must hold: one strong section must not mask shallow coverage, and
	// broad mediocre coverage must not pass either.
	coverageGate   = 0.8
	confidenceGate = 0.6
	// defaultConfidence replaces scores that could not be read as numbers.
	defaultConfidence = 0.5
	// legacyConfidence stands in for sections with no scoring metadata.
	legacyConfidence = 0.7
)

// Aggregate rolls section quality records up into proposal-level metrics.
// The weighted average is order-independent, always lands in [0,1], and an
// empty section list yields zeroed metrics with the gate closed.
func Aggregate(sections []model.SectionQuality, weights Weights) model.ProposalQualityMetrics {
	m := model.ProposalQualityMetrics{
		SectionScores: make(map[string]float64, len(sections)),
	}
	if len(sections) == 0 {
		return m
	}

	var (
		weightedSum float64
		totalWeight float64
		covered     int
		availSum    float64
		availCount  int
	)

	for _, s := range sections {
		score := s.Overall()
		m.SectionScores[s.SectionName] = score

		w := weights.For(s.SectionName)
		weightedSum += score * w
		totalWeight += w

		if score >= lowConfidenceThreshold {
			covered++
		} else {
			m.LowConfidenceSections = append(m.LowConfidenceSections, s.SectionName)
		}
		if len(s.Flags) > 0 {
			m.FlaggedForReview = append(m.FlaggedForReview, s.SectionName)
		}
		if len(s.Sources) > 0 {
			availSum += meanSourceConfidence(s.Sources)
			availCount++
		}
	}

	if totalWeight > 0 {
		m.OverallConfidence = clamp01(weightedSum / totalWeight)
	}
	m.CoverageScore = float64(covered) / float64(len(sections))
	if availCount > 0 {
		m.DataAvailabilityScore = availSum / float64(availCount)
	}
	m.ValidationPassed = m.CoverageScore >= coverageGate && m.OverallConfidence >= confidenceGate

	sort.Strings(m.LowConfidenceSections)
	sort.Strings(m.FlaggedForReview)
	return m
}

// ScoreSections normalizes raw section payloads, derives their quality
// records, and aggregates them in one step. Normalization warnings surface
// on the returned metrics.
func ScoreSections(parsed []ParsedSection, weights Weights) ([]model.SectionQuality, model.ProposalQualityMetrics) {
	qualities := make([]model.SectionQuality, 0, len(parsed))
	var warnings []string
	for _, p := range parsed {
		qualities = append(qualities, p.Quality())
		warnings = append(warnings, p.Warnings...)
	}
	metrics := Aggregate(qualities, weights)
	metrics.Warnings = warnings
	return qualities, metrics
}

func meanSourceConfidence(sources []model.SourceCitation) float64 {
	var sum float64
	for _, s := range sources {
		sum += s.Confidence
	}
	return sum / float64(len(sources))
}
