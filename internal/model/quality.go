package model

// Quality-warning flag tokens attached to sections by the aggregator.
// LOW_<DIMENSION> and SMART_FAILED:<criteria> variants are derived at
// runtime from the offending dimension or criterion name.
const (
	FlagLowConfidence = "LOW_CONFIDENCE"
	FlagNoReasoning   = "NO_REASONING"
	FlagNoSources     = "NO_SOURCES"
	FlagLegacyFormat  = "LEGACY_FORMAT"
)

// SourceCitation ties a generated claim back to extracted insight.
type SourceCitation struct {
	Insight    string  `json:"insight"`
	Confidence float64 `json:"confidence"`
	Location   string  `json:"location"`
}

// SectionQuality is one generated section's quality envelope. The confidence
// map always contains key "overall"; other keys are named sub-dimensions.
// Records are immutable once computed and superseded by later attempts.
type SectionQuality struct {
	SectionName string             `json:"section_name"`
	Confidence  map[string]float64 `json:"confidence"`
	Sources     []SourceCitation   `json:"sources,omitempty"`
	Reasoning   string             `json:"reasoning,omitempty"`
	Flags       []string           `json:"flags,omitempty"`
}

// Overall returns the section's overall confidence score.
func (s SectionQuality) Overall() float64 {
	return s.Confidence["overall"]
}

// HasFlag reports whether the section carries the given warning token.
func (s SectionQuality) HasFlag(flag string) bool {
	for _, f := range s.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// ProposalQualityMetrics is the proposal-level rollup over section records.
// It is derived on demand; the SectionQuality records stay the source of
// truth.
type ProposalQualityMetrics struct {
	OverallConfidence     float64            `json:"overall_confidence"`
	SectionScores         map[string]float64 `json:"section_scores"`
	LowConfidenceSections []string           `json:"low_confidence_sections,omitempty"`
	FlaggedForReview      []string           `json:"flagged_for_review,omitempty"`
	CoverageScore         float64            `json:"coverage_score"`
	DataAvailabilityScore float64            `json:"data_availability_score"`
	ValidationPassed      bool               `json:"validation_passed"`
	Warnings              []string           `json:"warnings,omitempty"`
}
