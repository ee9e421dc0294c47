package scorer

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/proposal-cli/internal/model"
)

// Class weight multipliers. Decision-driving sections count more toward the
// proposal rollup than template boilerplate.
const (
	WeightExecutive   = 1.5
	WeightStandard    = 1.0
	WeightBoilerplate = 0.8
)

// defaultSectionClasses maps the stock proposal sections to their weight
// class. The section registry overrides this mapping when templates carry
// an explicit class.
var defaultSectionClasses = map[string]model.SectionClass{
	"coverPageData":         model.ClassBoilerplate,
	"executiveSummary":      model.ClassExecutive,
	"overview":              model.ClassStandard,
	"scopeOfWork":           model.ClassStandard,
	"proposedProjectPhases": model.ClassStandard,
	"timeline":              model.ClassStandard,
	"pricing":               model.ClassExecutive,
	"caseStudies":           model.ClassStandard,
	"aboutUs":               model.ClassBoilerplate,
	"termsAndConditions":    model.ClassBoilerplate,
}

// Weights resolves a per-section importance multiplier: an explicit
// per-section override wins, then the section's class weight, then 1.0.
type Weights struct {
	Classes  map[model.SectionClass]float64 `yaml:"classes"`
	Sections map[string]float64             `yaml:"sections,omitempty"`

	classOf map[string]model.SectionClass
}

// DefaultWeights returns the stock class multipliers over the stock section
// classes.
func DefaultWeights() Weights {
	return Weights{
		Classes: map[model.SectionClass]float64{
			model.ClassExecutive:   WeightExecutive,
			model.ClassStandard:    WeightStandard,
			model.ClassBoilerplate: WeightBoilerplate,
		},
		classOf: defaultSectionClasses,
	}
}

// NewWeights builds weights whose section classes come from registry
// templates. Sections the registry does not know keep their stock class.
func NewWeights(templates []model.SectionTemplate) Weights {
	w := DefaultWeights()
	if len(templates) == 0 {
		return w
	}
	classOf := make(map[string]model.SectionClass, len(defaultSectionClasses)+len(templates))
	for name, class := range defaultSectionClasses {
		classOf[name] = class
	}
	for _, t := range templates {
		if t.Name != "" && t.Class != "" {
			classOf[t.Name] = t.Class
		}
	}
	w.classOf = classOf
	return w
}

// For returns the weight for a section name.
func (w Weights) For(section string) float64 {
	if override, ok := w.Sections[section]; ok && override > 0 {
		return override
	}
	if class, ok := w.classOf[section]; ok {
		if mult, ok := w.Classes[class]; ok && mult > 0 {
			return mult
		}
	}
	return WeightStandard
}

// LoadWeights reads weight overrides from a YAML file and merges them over
// the defaults. The file has a top-level "scoring" key:
//
//	scoring:
//	  classes:
//	    executive: 1.5
//	    boilerplate: 0.8
//	  sections:
//	    pricing: 2.0
func LoadWeights(path string) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, eris.Wrapf(err, "scorer: read weights %s", path)
	}

	var wrapper struct {
		Scoring Weights `yaml:"scoring"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Weights{}, eris.Wrap(err, "scorer: parse weights")
	}

	w := DefaultWeights()
	for class, mult := range wrapper.Scoring.Classes {
		if mult > 0 {
			w.Classes[class] = mult
		}
	}
	if len(wrapper.Scoring.Sections) > 0 {
		w.Sections = wrapper.Scoring.Sections
	}
	return w, nil
}
