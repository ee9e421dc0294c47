package registry

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/proposal-cli/internal/model"
)

// LoadSectionsFromFile reads a JSON array of model.SectionTemplate from the
// given path. Inactive templates are filtered out, matching the Notion load.
func LoadSectionsFromFile(path string) ([]model.SectionTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read sections fixture")
	}

	var templates []model.SectionTemplate
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal sections fixture")
	}

	for i := range templates {
		if templates[i].Class == "" {
			templates[i].Class = model.ClassStandard
		}
	}
	return model.FilterActive(templates), nil
}

// DefaultTemplates returns the compiled-in section set for the stock
// proposal document shape, used when neither a registry database nor a
// fixture file is configured.
func DefaultTemplates() []model.SectionTemplate {
	return []model.SectionTemplate{
		{
			Name:           "coverPageData",
			Title:          "Cover Page",
			Class:          model.ClassBoilerplate,
			Description:    "Client and project identity for the title page.",
			RequiredFields: []string{"clientName", "projectName"},
		},
		{
			Name:        "executiveSummary",
			Title:       "Executive Summary",
			Class:       model.ClassExecutive,
			Description: "The business case in the client's own terms.",
			PromptHints: "Lead with the client's stated pain; avoid generic value language.",
		},
		{
			Name:           "scopeOfWork",
			Title:          "Scope of Work",
			Class:          model.ClassStandard,
			Description:    "Work items with hour estimates and key activities.",
			RequiredFields: []string{"estimatedHours", "keyActivities"},
		},
		{
			Name:        "proposedProjectPhases",
			Title:       "Project Phases",
			Class:       model.ClassStandard,
			Description: "Two to three delivery phases with highlight bullets.",
		},
		{
			Name:           "timeline",
			Title:          "Timeline",
			Class:          model.ClassStandard,
			Description:    "Work items and phases laid out against dates.",
			RequiredFields: []string{"workItems", "phases"},
		},
		{
			Name:        "pricing",
			Title:       "Pricing",
			Class:       model.ClassExecutive,
			Description: "Line items and totals.",
			PromptHints: "Use figures stated in the transcript; never invent amounts.",
		},
		{
			Name:        "termsAndConditions",
			Title:       "Terms and Conditions",
			Class:       model.ClassBoilerplate,
			Description: "Standard engagement terms.",
		},
	}
}
