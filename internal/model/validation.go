package model

import "fmt"

// ValidationError describes one violated structural or semantic rule.
// Field is the dotted path of the offending field, with [i] marking the
// array element when the rule applied per element.
type ValidationError struct {
	Field          string `json:"field"`
	Issue          string `json:"issue"`
	ExpectedFormat string `json:"expected_format,omitempty"`
	ReceivedValue  string `json:"received_value,omitempty"`
}

func (e ValidationError) String() string {
	s := fmt.Sprintf("%s: %s", e.Field, e.Issue)
	if e.ExpectedFormat != "" {
		s += fmt.Sprintf(" (expected %s)", e.ExpectedFormat)
	}
	return s
}

// FieldNames returns the distinct offending field paths, array indices
// stripped, in first-seen order. The fallback diagnosis builds its
// missing-fields list from this.
func FieldNames(errs []ValidationError) []string {
	seen := make(map[string]bool, len(errs))
	var names []string
	for _, e := range errs {
		name := stripIndices(e.Field)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// stripIndices removes [i] markers from a field path.
func stripIndices(path string) string {
	out := make([]byte, 0, len(path))
	depth := 0
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
				continue
			}
		}
		if depth == 0 && path[i] != ']' {
			out = append(out, path[i])
		}
	}
	return string(out)
}
