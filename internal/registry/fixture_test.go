package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/proposal-cli/internal/model"
)

func TestLoadSectionsFromFile_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sections.json")
	content := `[
		{"name": "executiveSummary", "title": "Executive Summary", "class": "executive", "prompt_hints": "lead with pain"},
		{"name": "customAppendix", "title": "Appendix"},
		{"name": "retired", "title": "Old Section", "status": "Archived"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	templates, err := LoadSectionsFromFile(path)
	require.NoError(t, err)
	require.Len(t, templates, 2) // archived template filtered out

	assert.Equal(t, "executiveSummary", templates[0].Name)
	assert.Equal(t, model.ClassExecutive, templates[0].Class)
	assert.Equal(t, "lead with pain", templates[0].PromptHints)

	// Missing class defaults to standard.
	assert.Equal(t, "customAppendix", templates[1].Name)
	assert.Equal(t, model.ClassStandard, templates[1].Class)
}

func TestLoadSectionsFromFile_MissingFile(t *testing.T) {
	_, err := LoadSectionsFromFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read sections fixture")
}

func TestLoadSectionsFromFile_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not": "an array"`), 0o644))

	_, err := LoadSectionsFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal sections fixture")
}

func TestDefaultTemplates(t *testing.T) {
	templates := DefaultTemplates()
	require.NotEmpty(t, templates)

	byName := make(map[string]model.SectionTemplate, len(templates))
	for _, tpl := range templates {
		require.NotEmpty(t, tpl.Name)
		require.NotEmpty(t, tpl.Class)
		byName[tpl.Name] = tpl
	}

	// Decision-driving sections carry the executive class.
	assert.Equal(t, model.ClassExecutive, byName["executiveSummary"].Class)
	assert.Equal(t, model.ClassExecutive, byName["pricing"].Class)
	assert.Equal(t, model.ClassBoilerplate, byName["coverPageData"].Class)

	// The stock document shape is fully covered.
	for _, name := range []string{"coverPageData", "executiveSummary", "scopeOfWork", "proposedProjectPhases", "timeline", "pricing"} {
		assert.Contains(t, byName, name)
	}
}
