package model

// InsightCategory names one extraction target within the transcript.
type InsightCategory string

const (
	CategoryPainPoints           InsightCategory = "pain_points"
	CategoryGoals                InsightCategory = "goals"
	CategoryBudget               InsightCategory = "budget"
	CategoryTimeline             InsightCategory = "timeline"
	CategoryDecisionMakers       InsightCategory = "decision_makers"
	CategoryCompetitiveLandscape InsightCategory = "competitive_landscape"
	CategorySuccessMetrics       InsightCategory = "success_metrics"
)

// AllCategories lists every extraction category in broad-pass order.
var AllCategories = []InsightCategory{
	CategoryPainPoints,
	CategoryGoals,
	CategoryBudget,
	CategoryTimeline,
	CategoryDecisionMakers,
	CategoryCompetitiveLandscape,
	CategorySuccessMetrics,
}

// ExtractedInsight holds one category's extraction result after a pass.
type ExtractedInsight struct {
	Category   InsightCategory  `json:"category"`
	Items      []string         `json:"items"`
	Confidence float64          `json:"confidence"`
	Sources    []SourceCitation `json:"sources,omitempty"`
	Reasoning  string           `json:"reasoning,omitempty"`
}

// Gap marks a category whose extraction is missing or below the coverage
// threshold after a pass.
type Gap struct {
	Category InsightCategory `json:"category"`
	Reason   string          `json:"reason"`
	Pass     int             `json:"pass"`
}

// PassRecord summarizes one extraction pass.
type PassRecord struct {
	Number     int               `json:"number"`
	Targeted   []InsightCategory `json:"targeted,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Usage      TokenUsage        `json:"usage"`
	Touched    []InsightCategory `json:"touched,omitempty"`
}

// ConsistencyIssue records a cross-category contradiction found after
// merging. Issues never block termination; they ride along for review.
type ConsistencyIssue struct {
	Categories  []InsightCategory `json:"categories"`
	Description string            `json:"description"`
}

// MultiPassState is the orchestrator's working memory for one extraction
// run. Only the summary and FinalSections survive the run.
type MultiPassState struct {
	Passes            []PassRecord                         `json:"passes"`
	GapsIdentified    []Gap                                `json:"gaps_identified,omitempty"`
	GapsResolved      []Gap                                `json:"gaps_resolved,omitempty"`
	RemainingGaps     []Gap                                `json:"remaining_gaps,omitempty"`
	OverallConfidence float64                              `json:"overall_confidence"`
	CoverageScore     float64                              `json:"coverage_score"`
	FinalSections     map[InsightCategory]ExtractedInsight `json:"final_sections"`
	ConsistencyIssues []ConsistencyIssue                   `json:"consistency_issues,omitempty"`
}

// ExtractionSummary is the portion of MultiPassState persisted with a run.
type ExtractionSummary struct {
	PassCount         int                `json:"pass_count"`
	GapsIdentified    int                `json:"gaps_identified"`
	GapsResolved      int                `json:"gaps_resolved"`
	RemainingGaps     []Gap              `json:"remaining_gaps,omitempty"`
	OverallConfidence float64            `json:"overall_confidence"`
	CoverageScore     float64            `json:"coverage_score"`
	ConsistencyIssues []ConsistencyIssue `json:"consistency_issues,omitempty"`
	Usage             TokenUsage         `json:"usage"`
}
