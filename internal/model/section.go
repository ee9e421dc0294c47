package model

// SectionClass groups sections by importance for confidence weighting.
type SectionClass string

const (
	// ClassExecutive marks decision-driving sections (executive summary,
	// pricing); they weigh more in the proposal rollup.
	ClassExecutive SectionClass = "executive"
	// ClassStandard is the default weight class.
	ClassStandard SectionClass = "standard"
	// ClassBoilerplate marks legal and template sections that say little
	// about generation quality.
	ClassBoilerplate SectionClass = "boilerplate"
)

// SectionTemplate describes one section the generated document must
// contain. Templates come from the section registry (Notion database or
// fixture file).
type SectionTemplate struct {
	Name           string       `json:"name"`
	Title          string       `json:"title"`
	Class          SectionClass `json:"class"`
	Description    string       `json:"description,omitempty"`
	RequiredFields []string     `json:"required_fields,omitempty"`
	PromptHints    string       `json:"prompt_hints,omitempty"`
	Status         string       `json:"status,omitempty"`
}

// FilterActive returns only templates whose status marks them in use.
// Templates with an empty status are treated as active.
func FilterActive(templates []SectionTemplate) []SectionTemplate {
	var out []SectionTemplate
	for _, t := range templates {
		if t.Status == "" || t.Status == "Active" {
			out = append(out, t)
		}
	}
	return out
}
