package scorer

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/model"
)

// SectionKind tags how a section's quality metadata arrived.
type SectionKind int

const (
	// KindScored marks a section that carried a confidence block.
	KindScored SectionKind = iota
	// KindLegacy marks a section with no scoring metadata at all. Absence
	// of metadata is not evidence of bad content, so these score 0.7.
	KindLegacy
)

// ParsedSection is the normalized form of one generated section. All
// coercion of the LLM's duck-typed payload happens here, once, so
// downstream consumers never touch raw maps.
type ParsedSection struct {
	Name        string
	Kind        SectionKind
	Content     any
	Confidence  map[string]float64
	Sources     []model.SourceCitation
	Reasoning   string
	SmartChecks map[string]bool
	Warnings    []string
}

// ParseSection normalizes one raw section payload. Non-numeric confidence
// values default to 0.5, out-of-range values clamp to [0,1], and a missing
// confidence block yields the legacy variant; every repair is recorded as a
// warning. The function never fails.
func ParseSection(name string, raw any) ParsedSection {
	p := ParsedSection{Name: name}

	obj, ok := raw.(map[string]any)
	if !ok {
		// Bare payload (string or array): the whole value is content.
		p.Kind = KindLegacy
		p.Content = raw
		p.Confidence = map[string]float64{"overall": legacyConfidence}
		return p
	}

	if content, found := obj["content"]; found {
		p.Content = content
	} else {
		// No content envelope: the object itself is the section body.
		p.Content = obj
	}

	p.Reasoning, _ = obj["reasoning"].(string)
	p.Sources = parseSources(name, obj["sources"], &p.Warnings)
	p.SmartChecks = parseSmartChecks(obj)
	p.Confidence, p.Kind = parseConfidence(name, obj["confidence"], &p.Warnings)

	if len(p.Warnings) > 0 {
		zap.L().Warn("scorer: normalized degraded section payload",
			zap.String("section", name),
			zap.Strings("warnings", p.Warnings),
		)
	}
	return p
}

// parseConfidence normalizes the confidence block into a dimension map that
// always contains "overall".
func parseConfidence(section string, raw any, warnings *[]string) (map[string]float64, SectionKind) {
	switch c := raw.(type) {
	case nil:
		return map[string]float64{"overall": legacyConfidence}, KindLegacy
	case map[string]any:
		if len(c) == 0 {
			return map[string]float64{"overall": legacyConfidence}, KindLegacy
		}
		dims := make(map[string]float64, len(c))
		for dim, v := range c {
			dims[dim] = normalizeScore(section, dim, v, warnings)
		}
		if _, ok := dims["overall"]; !ok {
			// Derive overall from the named dimensions rather than dropping
			// the section to legacy scoring.
			var sum float64
			for _, v := range dims {
				sum += v
			}
			dims["overall"] = sum / float64(len(dims))
			*warnings = append(*warnings, fmt.Sprintf("%s: confidence block missing overall, derived from %d dimensions", section, len(c)))
		}
		return dims, KindScored
	default:
		return map[string]float64{"overall": normalizeScore(section, "overall", raw, warnings)}, KindScored
	}
}

// normalizeScore coerces one raw score. Non-numeric input defaults to 0.5,
// numeric input clamps to [0,1]; both repairs append a warning.
func normalizeScore(section, dim string, v any, warnings *[]string) float64 {
	f, ok := toFloat64(v)
	if !ok {
		*warnings = append(*warnings, fmt.Sprintf("%s: non-numeric %s confidence %v, defaulted to %.1f", section, dim, v, defaultConfidence))
		return defaultConfidence
	}
	if f < 0 || f > 1 {
		*warnings = append(*warnings, fmt.Sprintf("%s: %s confidence %.2f out of range, clamped", section, dim, f))
		return clamp01(f)
	}
	return f
}

func parseSources(section string, raw any, warnings *[]string) []model.SourceCitation {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var sources []model.SourceCitation
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		insight, _ := m["insight"].(string)
		location, _ := m["location"].(string)
		conf, ok := toFloat64(m["confidence"])
		if !ok {
			*warnings = append(*warnings, fmt.Sprintf("%s: non-numeric source confidence, defaulted to %.1f", section, defaultConfidence))
			conf = defaultConfidence
		}
		sources = append(sources, model.SourceCitation{
			Insight:    insight,
			Confidence: clamp01(conf),
			Location:   location,
		})
	}
	return sources
}

func parseSmartChecks(obj map[string]any) map[string]bool {
	raw, ok := obj["smart_checks"].(map[string]any)
	if !ok {
		// LLMs drift toward camelCase regardless of the requested shape.
		raw, ok = obj["smartChecks"].(map[string]any)
	}
	if !ok {
		return nil
	}
	checks := make(map[string]bool, len(raw))
	for criteria, v := range raw {
		b, ok := v.(bool)
		if !ok {
			continue
		}
		checks[criteria] = b
	}
	return checks
}

// Quality derives the immutable SectionQuality record for a parsed section,
// attaching warning flags independent of the numeric score.
func (p ParsedSection) Quality() model.SectionQuality {
	q := model.SectionQuality{
		SectionName: p.Name,
		Confidence:  p.Confidence,
		Sources:     p.Sources,
		Reasoning:   p.Reasoning,
	}

	if p.Kind == KindLegacy {
		q.Flags = append(q.Flags, model.FlagLegacyFormat)
	}
	if strings.TrimSpace(p.Reasoning) == "" {
		q.Flags = append(q.Flags, model.FlagNoReasoning)
	}
	if len(p.Sources) == 0 {
		q.Flags = append(q.Flags, model.FlagNoSources)
	}
	if q.Overall() < lowConfidenceThreshold {
		q.Flags = append(q.Flags, model.FlagLowConfidence)
	}

	var dims []string
	for dim, score := range p.Confidence {
		if dim != "overall" && score < lowConfidenceThreshold {
			dims = append(dims, dim)
		}
	}
	sort.Strings(dims)
	for _, dim := range dims {
		q.Flags = append(q.Flags, "LOW_"+strings.ToUpper(dim))
	}

	var failed []string
	for criteria, passed := range p.SmartChecks {
		if !passed {
			failed = append(failed, criteria)
		}
	}
	sort.Strings(failed)
	for _, criteria := range failed {
		q.Flags = append(q.Flags, "SMART_FAILED:"+criteria)
	}

	return q
}

// toFloat64 attempts to convert an any value to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
