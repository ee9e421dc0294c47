package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/proposal-cli/internal/model"
)

// receivedValueLimit bounds how much of an offending value is echoed back
// in a ValidationError.
const receivedValueLimit = 120

// Validate checks a document against the rule set and returns every
// violation found. An empty result means the document is valid. Validation
// is deterministic: the same document and rules always produce the same
// error list in the same order.
func Validate(doc map[string]any, rules RuleSet) []model.ValidationError {
	var errs []model.ValidationError
	for _, rule := range rules.Rules {
		errs = append(errs, applyRule(doc, rule)...)
	}
	return errs
}

// applyRule resolves the rule's field path and checks each resolved value.
// A rule whose wildcard ancestors are absent produces no errors; reporting
// the missing ancestor belongs to that ancestor's own rule.
func applyRule(doc map[string]any, rule Rule) []model.ValidationError {
	var errs []model.ValidationError
	resolvePath(doc, strings.Split(rule.Field, "."), "", func(path string, value any, found bool) {
		if rule.Kind == RuleAggregate {
			errs = append(errs, checkAggregate(rule, path, value, found)...)
			return
		}
		if e := checkValue(rule, path, value, found); e != nil {
			errs = append(errs, *e)
		}
	})
	return errs
}

// resolvePath walks a dotted path through nested maps, fanning out over
// array elements at segments suffixed with []. The visit callback receives
// the concrete path (indices substituted) for each terminal value.
func resolvePath(value any, segments []string, prefix string, visit func(path string, v any, found bool)) {
	if len(segments) == 0 {
		visit(prefix, value, true)
		return
	}

	seg := segments[0]
	wildcard := strings.HasSuffix(seg, "[]")
	name := strings.TrimSuffix(seg, "[]")

	obj, ok := value.(map[string]any)
	if !ok {
		if !wildcard {
			visit(joinPath(prefix, name), nil, false)
		}
		return
	}
	child, found := obj[name]
	if !found {
		// An absent array under a wildcard is not this rule's finding; the
		// array's own presence or cardinality rule reports it.
		if !wildcard {
			visit(joinPath(prefix, name), nil, false)
		}
		return
	}

	if !wildcard {
		resolvePath(child, segments[1:], joinPath(prefix, name), visit)
		return
	}

	list, ok := child.([]any)
	if !ok {
		// Wildcard over a non-array: nothing to fan out over. The array
		// field's own presence or cardinality rule reports the shape
		// problem.
		return
	}
	for i, el := range list {
		resolvePath(el, segments[1:], fmt.Sprintf("%s[%d]", joinPath(prefix, name), i), visit)
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func checkValue(rule Rule, path string, value any, found bool) *model.ValidationError {
	switch rule.Kind {
	case RulePresence:
		if !found || isEmpty(value) {
			return &model.ValidationError{
				Field:          path,
				Issue:          "required field is missing or empty",
				ExpectedFormat: rule.Format,
			}
		}
	case RuleCardinality:
		return checkCardinality(rule, path, value, found)
	case RuleNumeric:
		return checkNumeric(rule, path, value, found)
	case RuleRichness:
		if !found {
			return &model.ValidationError{
				Field:          path,
				Issue:          "required list is missing",
				ExpectedFormat: rule.Format,
			}
		}
		list, ok := value.([]any)
		if !ok {
			return &model.ValidationError{
				Field:          path,
				Issue:          "expected a list",
				ExpectedFormat: rule.Format,
				ReceivedValue:  describe(value),
			}
		}
		if len(list) < rule.Min {
			return &model.ValidationError{
				Field:          path,
				Issue:          fmt.Sprintf("has %d items, needs at least %d", len(list), rule.Min),
				ExpectedFormat: rule.Format,
			}
		}
	}
	return nil
}

// checkCardinality enforces an inclusive [min, max] array length.
func checkCardinality(rule Rule, path string, value any, found bool) *model.ValidationError {
	bounds := fmt.Sprintf("array of %d-%d items", rule.Min, rule.Max)
	if rule.Format != "" {
		bounds = rule.Format
	}
	if !found || value == nil {
		return &model.ValidationError{
			Field:          path,
			Issue:          "required array is missing",
			ExpectedFormat: bounds,
		}
	}
	list, ok := value.([]any)
	if !ok {
		return &model.ValidationError{
			Field:          path,
			Issue:          "expected an array",
			ExpectedFormat: bounds,
			ReceivedValue:  describe(value),
		}
	}
	if len(list) < rule.Min || len(list) > rule.Max {
		return &model.ValidationError{
			Field:          path,
			Issue:          fmt.Sprintf("has %d items, expected between %d and %d", len(list), rule.Min, rule.Max),
			ExpectedFormat: bounds,
		}
	}
	return nil
}

// checkNumeric rejects numeric strings explicitly: "40" is a formatting
// failure the generator can correct, so the error says so.
func checkNumeric(rule Rule, path string, value any, found bool) *model.ValidationError {
	if !found {
		// The element exists but omitted this field.
		return &model.ValidationError{
			Field:          path,
			Issue:          "required numeric field is missing",
			ExpectedFormat: rule.Format,
		}
	}
	switch v := value.(type) {
	case float64, int, int64:
		return nil
	case string:
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return &model.ValidationError{
				Field:          path,
				Issue:          "numeric value encoded as string",
				ExpectedFormat: rule.Format,
				ReceivedValue:  describe(v),
			}
		}
		return &model.ValidationError{
			Field:          path,
			Issue:          "expected a number",
			ExpectedFormat: rule.Format,
			ReceivedValue:  describe(v),
		}
	default:
		return &model.ValidationError{
			Field:          path,
			Issue:          "expected a number",
			ExpectedFormat: rule.Format,
			ReceivedValue:  describe(value),
		}
	}
}

// checkAggregate verifies each named child list independently so a document
// missing both lists yields two errors, not one.
func checkAggregate(rule Rule, path string, value any, found bool) []model.ValidationError {
	if !found || value == nil {
		return []model.ValidationError{{
			Field:          path,
			Issue:          "required field is missing or empty",
			ExpectedFormat: rule.Format,
		}}
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return []model.ValidationError{{
			Field:          path,
			Issue:          "expected an object",
			ExpectedFormat: rule.Format,
			ReceivedValue:  describe(value),
		}}
	}
	var errs []model.ValidationError
	for _, child := range rule.Children {
		childPath := path + "." + child
		v, found := obj[child]
		list, isList := v.([]any)
		switch {
		case !found || v == nil:
			errs = append(errs, model.ValidationError{
				Field:          childPath,
				Issue:          "required list is missing",
				ExpectedFormat: "non-empty array",
			})
		case !isList:
			errs = append(errs, model.ValidationError{
				Field:          childPath,
				Issue:          "expected a list",
				ExpectedFormat: "non-empty array",
				ReceivedValue:  describe(v),
			})
		case len(list) == 0:
			errs = append(errs, model.ValidationError{
				Field:          childPath,
				Issue:          "list is empty",
				ExpectedFormat: "non-empty array",
			})
		}
	}
	return errs
}

// isEmpty reports whether a value counts as empty for presence checks.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// describe renders a received value compactly for error payloads.
func describe(v any) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > receivedValueLimit {
		s = s[:receivedValueLimit] + "..."
	}
	return s
}
