// Package transcript loads discovery-call transcripts and normalizes them
// into UTF-8 plaintext suitable for LLM extraction. It understands WebVTT,
// SRT, and plain "Speaker: text" exports, and offers relevance-ranked
// truncation for fitting long calls into a model context budget.
package transcript

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Segment is one attributed utterance. Speaker is empty when the source
// carried no attribution for the block.
type Segment struct {
	Speaker string
	Text    string
}

// Transcript is a normalized transcript: per-speaker segments when the
// source format carried them, plus the flattened text used for prompts.
type Transcript struct {
	Segments []Segment
	Text     string
}

// Option configures parsing.
type Option func(*parseOptions)

type parseOptions struct {
	charset string
}

// WithCharset forces a source charset by IANA/WHATWG name (e.g.
// "windows-1252"). Without it the input is treated as UTF-8, honoring a
// UTF-8/UTF-16 byte-order mark when present.
func WithCharset(name string) Option {
	return func(o *parseOptions) { o.charset = name }
}

// Load reads and parses a transcript file.
func Load(path string, opts ...Option) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "transcript: read file")
	}
	t, err := Parse(data, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "transcript: parse %s", path)
	}
	return t, nil
}

// Parse decodes raw transcript bytes to UTF-8, collapses noise, and splits
// the text into speaker segments where the format allows.
func Parse(data []byte, opts ...Option) (*Transcript, error) {
	var o parseOptions
	for _, opt := range opts {
		opt(&o)
	}

	text, err := decode(data, o.charset)
	if err != nil {
		return nil, err
	}

	text = collapseNoise(text)
	if text == "" {
		return nil, eris.New("transcript: empty after normalization")
	}

	segs := parseSegments(text)
	t := &Transcript{Segments: segs, Text: text}
	if len(segs) > 0 {
		t.Text = renderSegments(segs)
	}
	return t, nil
}

// Speakers returns distinct speaker names in order of first appearance.
func (t *Transcript) Speakers() []string {
	var names []string
	seen := make(map[string]bool)
	for _, s := range t.Segments {
		if s.Speaker == "" || seen[s.Speaker] {
			continue
		}
		seen[s.Speaker] = true
		names = append(names, s.Speaker)
	}
	return names
}

// decode converts data to NFC-normalized UTF-8. An explicit charset is
// resolved through the WHATWG index; otherwise the bytes are read as UTF-8
// with a BOM override so UTF-16 exports from call-recording tools still load.
func decode(data []byte, charset string) (string, error) {
	var dec transform.Transformer
	if charset == "" {
		dec = unicode.BOMOverride(unicode.UTF8.NewDecoder())
	} else {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return "", eris.Wrapf(err, "transcript: unsupported charset %q", charset)
		}
		dec = enc.NewDecoder()
	}

	out, _, err := transform.Bytes(transform.Chain(dec, norm.NFC), data)
	if err != nil {
		return "", eris.Wrap(err, "transcript: decode")
	}
	return string(out), nil
}

var (
	spaceRe = regexp.MustCompile(`[ \t]+`)
	nlRe    = regexp.MustCompile(`\n{3,}`)
)

// collapseNoise normalizes line endings, collapses runs of spaces and blank
// lines, and trims per-line and outer whitespace.
func collapseNoise(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = nlRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// renderSegments flattens segments back into "Speaker: text" lines.
func renderSegments(segs []Segment) string {
	var b strings.Builder
	for i, s := range segs {
		if i > 0 {
			b.WriteString("\n")
		}
		if s.Speaker != "" {
			b.WriteString(s.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(s.Text)
	}
	return b.String()
}
