// Package registry loads the section templates a proposal document must
// contain, either from a Notion database or from a JSON fixture file.
package registry

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/pkg/notion"
)

// LoadSectionRegistry queries the Notion section-template database for all
// active templates and returns them as model.SectionTemplate values.
func LoadSectionRegistry(ctx context.Context, client notion.Client, dbID string) ([]model.SectionTemplate, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status: &notionapi.StatusFilterCondition{
				Equals: "Active",
			},
		},
	}

	pages, err := notion.QueryAll(ctx, client, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "registry: load section registry")
	}

	var templates []model.SectionTemplate
	for _, p := range pages {
		t, err := parseSectionPage(p)
		if err != nil {
			zap.L().Warn("registry: skipping malformed section page",
				zap.String("page_id", string(p.ID)),
				zap.Error(err),
			)
			continue
		}
		templates = append(templates, t)
	}

	return templates, nil
}

func parseSectionPage(p notionapi.Page) (model.SectionTemplate, error) {
	t := model.SectionTemplate{}

	// Name (title): the document key, e.g. "executiveSummary".
	if prop, ok := p.Properties["Name"]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			t.Name = plainText(tp.Title)
		}
	}

	// Title (rich_text): the human-facing heading.
	if prop, ok := p.Properties["Title"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			t.Title = plainText(rtp.RichText)
		}
	}

	// Class (select)
	if prop, ok := p.Properties["Class"]; ok {
		if sp, ok := prop.(*notionapi.SelectProperty); ok {
			t.Class = parseClass(sp.Select.Name)
		}
	}

	// RequiredFields (multi_select)
	if prop, ok := p.Properties["RequiredFields"]; ok {
		if msp, ok := prop.(*notionapi.MultiSelectProperty); ok {
			for _, opt := range msp.MultiSelect {
				t.RequiredFields = append(t.RequiredFields, opt.Name)
			}
		}
	}

	// Description (rich_text)
	if prop, ok := p.Properties["Description"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			t.Description = plainText(rtp.RichText)
		}
	}

	// PromptHints (rich_text)
	if prop, ok := p.Properties["PromptHints"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			t.PromptHints = plainText(rtp.RichText)
		}
	}

	// Status (status)
	if prop, ok := p.Properties["Status"]; ok {
		if sp, ok := prop.(*notionapi.StatusProperty); ok {
			t.Status = sp.Status.Name
		}
	}

	if t.Name == "" {
		return t, eris.New("missing Name property")
	}
	if t.Class == "" {
		t.Class = model.ClassStandard
	}

	return t, nil
}

// parseClass normalizes a weight-class label; unknown labels fall back to
// the standard class.
func parseClass(name string) model.SectionClass {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "executive":
		return model.ClassExecutive
	case "boilerplate":
		return model.ClassBoilerplate
	case "":
		return ""
	default:
		return model.ClassStandard
	}
}

// plainText concatenates the plain_text values from a slice of RichText.
func plainText(rts []notionapi.RichText) string {
	var s string
	for _, rt := range rts {
		s += rt.PlainText
	}
	return s
}
