// Package schema checks generated proposal documents against a declarative
// rule set. The validator collects every violation in one pass so a single
// retry can address all of them.
package schema

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// RuleKind names one class of structural or semantic check.
type RuleKind string

const (
	// RulePresence requires the field to exist and be non-empty.
	RulePresence RuleKind = "presence"
	// RuleCardinality requires an array length within [Min, Max] inclusive.
	RuleCardinality RuleKind = "cardinality"
	// RuleNumeric requires an actual JSON number, not a numeric string.
	RuleNumeric RuleKind = "numeric"
	// RuleRichness requires a list to carry at least Min elements.
	RuleRichness RuleKind = "richness"
	// RuleAggregate requires a nested object to contain every named child
	// list, each independently present and non-empty.
	RuleAggregate RuleKind = "aggregate"
)

// Rule is one declarative check. Field is a dotted path; a segment suffixed
// with [] applies the rule to every element of that array.
type Rule struct {
	Field    string   `yaml:"field" json:"field"`
	Kind     RuleKind `yaml:"kind" json:"kind"`
	Min      int      `yaml:"min,omitempty" json:"min,omitempty"`
	Max      int      `yaml:"max,omitempty" json:"max,omitempty"`
	Children []string `yaml:"children,omitempty" json:"children,omitempty"`
	Format   string   `yaml:"format,omitempty" json:"format,omitempty"`
}

// RuleSet is an ordered list of rules. Order determines error order, which
// keeps validation output deterministic.
type RuleSet struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// DefaultProposalRules returns the compiled-in rule set for the stock
// proposal document shape.
func DefaultProposalRules() RuleSet {
	return RuleSet{Rules: []Rule{
		{Field: "coverPageData", Kind: RulePresence, Format: "object with client and project identity"},
		{Field: "executiveSummary", Kind: RulePresence, Format: "non-empty string"},
		{Field: "scopeOfWork", Kind: RuleRichness, Min: 1, Format: "array of work items"},
		{Field: "scopeOfWork[].estimatedHours", Kind: RuleNumeric, Format: "number of hours"},
		{Field: "scopeOfWork[].keyActivities", Kind: RuleRichness, Min: 2, Format: "array with at least 2 activities"},
		{Field: "proposedProjectPhases", Kind: RuleCardinality, Min: 2, Max: 3, Format: "array of 2-3 phases"},
		{Field: "proposedProjectPhases[].highlights", Kind: RuleCardinality, Min: 2, Max: 4, Format: "array of 2-4 highlight bullets"},
		{Field: "timeline", Kind: RuleAggregate, Children: []string{"workItems", "phases"}, Format: "object with workItems and phases lists"},
		{Field: "pricing", Kind: RulePresence, Format: "object with line items and totals"},
	}}
}

// LoadRules reads a rule set from a YAML file. The file has a top-level
// "schema" key:
//
//	schema:
//	  rules:
//	    - field: coverPageData
//	      kind: presence
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, eris.Wrapf(err, "schema: read rules %s", path)
	}

	var wrapper struct {
		Schema RuleSet `yaml:"schema"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return RuleSet{}, eris.Wrap(err, "schema: parse rules")
	}
	if len(wrapper.Schema.Rules) == 0 {
		return RuleSet{}, eris.Errorf("schema: no rules in %s", path)
	}
	return wrapper.Schema, nil
}
