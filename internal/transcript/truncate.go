package transcript

import (
	"strings"
	"unicode/utf8"
)

// TruncateByRelevance fits the transcript into a character budget. Instead
// of cutting at the limit, it scores each utterance (or paragraph, when the
// source had no speaker structure) by keyword overlap with focus and keeps
// the highest-scoring ones, reassembled in original order. It falls back to
// a hard cut when focus yields no keywords or no block fits.
func (t *Transcript) TruncateByRelevance(focus string, limit int) string {
	text := t.Text
	if limit <= 0 || len(text) <= limit {
		return text
	}

	keywords := extractKeywords(focus)
	if len(keywords) == 0 {
		return hardCut(text, limit)
	}

	blocks := t.blocks()
	if len(blocks) <= 1 {
		return hardCut(text, limit)
	}

	type scoredBlock struct {
		idx   int
		text  string
		score int
	}
	scored := make([]scoredBlock, len(blocks))
	for i, b := range blocks {
		lower := strings.ToLower(b)
		score := 0
		for _, kw := range keywords {
			score += strings.Count(lower, kw)
		}
		scored[i] = scoredBlock{idx: i, text: b, score: score}
	}

	// Sort by score descending (insertion sort; block count is small).
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && scored[j].score > scored[j-1].score; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}

	// Greedily keep the highest-scoring blocks within the budget, counting
	// the joiner that reassembly will add between blocks.
	selected := make(map[int]bool)
	total := 0
	for _, s := range scored {
		need := len(s.text)
		if total > 0 {
			need++ // "\n"
		}
		if total+need > limit {
			continue
		}
		selected[s.idx] = true
		total += need
	}
	if len(selected) == 0 {
		return hardCut(text, limit)
	}

	var b strings.Builder
	for i, blk := range blocks {
		if !selected[i] {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(blk)
	}
	return b.String()
}

// blocks returns the scoring units: rendered "Speaker: text" lines when the
// transcript carries segments, paragraph chunks otherwise.
func (t *Transcript) blocks() []string {
	if len(t.Segments) > 0 {
		out := make([]string, len(t.Segments))
		for i, s := range t.Segments {
			if s.Speaker != "" {
				out[i] = s.Speaker + ": " + s.Text
			} else {
				out[i] = s.Text
			}
		}
		return out
	}
	var out []string
	for _, p := range strings.Split(t.Text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// hardCut truncates at the byte limit without splitting a rune.
func hardCut(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"were": true, "been": true, "have": true, "has": true, "had": true,
	"this": true, "that": true, "with": true, "from": true, "what": true,
	"how": true, "does": true, "which": true, "where": true, "when": true,
	"who": true, "why": true, "can": true, "will": true, "not": true,
}

// extractKeywords returns lowercase words of 3+ characters from text,
// excluding common stop words.
func extractKeywords(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	var keywords []string
	seen := make(map[string]bool)
	for _, w := range words {
		w = strings.Trim(w, "?.,!;:'\"()[]{}")
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}
