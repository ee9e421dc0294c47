package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/proposal-cli/internal/model"
)

// amountSpreadFactor flags budget figures whose largest stated amount
// exceeds the smallest by this ratio.
const amountSpreadFactor = 20.0

var (
	urgencyPattern  = regexp.MustCompile(`(?i)\basap\b|urgent|immediate|right away|as soon as|this week|by end of|hard deadline|cannot slip`)
	deferralPattern = regexp.MustCompile(`(?i)no budget|not (yet )?approved|next (fiscal )?year|to be determined|\btbd\b|not sure|no funding|haven't (allocated|secured)`)

	// Matches "$250,000", "$1.5m", and bare "250k" (a bare number needs a
	// magnitude suffix so plain counts like "3 weeks" never parse).
	amountPattern = regexp.MustCompile(`(?i)\$\s*(\d[\d,]*(?:\.\d+)?)\s*(k|m|mm|million|thousand|grand)?|\b(\d[\d,]*(?:\.\d+)?)\s*(k|m|mm|million|thousand|grand)\b`)
)

// checkConsistency scans merged sections for cross-category contradictions.
// Issues annotate the run summary; they never block extraction.
func checkConsistency(sections map[model.InsightCategory]model.ExtractedInsight) []model.ConsistencyIssue {
	var issues []model.ConsistencyIssue

	budget, hasBudget := sections[model.CategoryBudget]
	timeline, hasTimeline := sections[model.CategoryTimeline]

	if hasBudget && hasTimeline {
		urgent := firstMatch(timeline.Items, urgencyPattern)
		deferred := firstMatch(budget.Items, deferralPattern)
		if urgent != "" && deferred != "" {
			issues = append(issues, model.ConsistencyIssue{
				Categories:  []model.InsightCategory{model.CategoryBudget, model.CategoryTimeline},
				Description: fmt.Sprintf("urgent timeline (%q) contradicts uncommitted budget (%q)", urgent, deferred),
			})
		}
	}

	if hasBudget {
		if lo, hi, ok := amountSpread(budget.Items); ok && hi >= lo*amountSpreadFactor {
			issues = append(issues, model.ConsistencyIssue{
				Categories:  []model.InsightCategory{model.CategoryBudget},
				Description: fmt.Sprintf("stated budget figures span an implausible range ($%.0f to $%.0f)", lo, hi),
			})
		}
	}

	return issues
}

func firstMatch(items []string, re *regexp.Regexp) string {
	for _, item := range items {
		if re.MatchString(item) {
			return item
		}
	}
	return ""
}

// amountSpread returns the smallest and largest dollar amounts stated
// across the items. Needs at least two parsed amounts to mean anything.
func amountSpread(items []string) (lo, hi float64, ok bool) {
	amounts := parseAmounts(items)
	if len(amounts) < 2 {
		return 0, 0, false
	}
	lo, hi = amounts[0], amounts[0]
	for _, v := range amounts[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, lo > 0
}

func parseAmounts(items []string) []float64 {
	var amounts []float64
	for _, item := range items {
		for _, m := range amountPattern.FindAllStringSubmatch(item, -1) {
			num, suffix := m[1], m[2]
			if num == "" {
				num, suffix = m[3], m[4]
			}
			v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
			if err != nil {
				continue
			}
			switch strings.ToLower(suffix) {
			case "k", "thousand", "grand":
				v *= 1e3
			case "m", "mm", "million":
				v *= 1e6
			}
			amounts = append(amounts, v)
		}
	}
	return amounts
}
