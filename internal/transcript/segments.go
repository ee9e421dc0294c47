package transcript

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// Timing lines shared by WebVTT ("00:00:01.000 --> 00:00:04.000") and
	// SRT ("00:00:01,000 --> 00:00:04,000"), with or without the hour field.
	timingRe = regexp.MustCompile(`^(?:\d{1,2}:)?\d{1,2}:\d{2}[.,]\d{3}\s+-->\s+`)

	// WebVTT voice span opening a cue payload: <v Ann> or <v.class Ann>.
	voiceRe = regexp.MustCompile(`^<v(?:\.[^ >]+)* ([^>]+)>`)

	// Any remaining inline cue markup (<c>, </v>, <i>, ...).
	tagRe = regexp.MustCompile(`<[^>]*>`)

	// Leading wall-clock stamp on a dialogue line: "[00:12:03]", "(12:03)",
	// or a bare "00:12:03" as emitted by some call-recording exports.
	stampRe = regexp.MustCompile(`^[\[(]?\d{1,2}:\d{2}(?::\d{2})?[\])]?\s+`)

	// "Speaker Name: text" attribution at the start of a line.
	speakerRe = regexp.MustCompile(`^([^:]{1,40}):\s+(.+)$`)
)

// parseSegments splits normalized transcript text into attributed segments.
// It recognizes WebVTT (header or timing cues), SRT (timing cues), and plain
// "Speaker: text" dialogue. Unrecognized text yields no segments and the
// caller keeps the flattened form.
func parseSegments(text string) []Segment {
	if strings.HasPrefix(text, "WEBVTT") || hasTimingCue(text) {
		return parseCues(text)
	}
	return parseDialogue(text)
}

// hasTimingCue reports whether a cue timing line appears near the top of the
// text, which identifies SRT exports that carry no file header.
func hasTimingCue(text string) bool {
	lines := strings.SplitN(text, "\n", 21)
	if len(lines) == 21 {
		lines = lines[:20]
	}
	for _, line := range lines {
		if timingRe.MatchString(line) {
			return true
		}
	}
	return false
}

// parseCues walks WebVTT/SRT lines, collecting payload lines that follow a
// timing line. Cue identifiers, indexes, NOTE/STYLE blocks, and header lines
// never follow a timing line inside a block, so they fall out naturally.
// Consecutive cues from the same speaker merge into one segment.
func parseCues(text string) []Segment {
	var segs []Segment
	inCue := false
	for _, line := range strings.Split(text, "\n") {
		switch {
		case line == "":
			inCue = false
		case timingRe.MatchString(line):
			inCue = true
		case inCue:
			speaker, payload := splitCuePayload(line)
			if payload == "" {
				continue
			}
			if n := len(segs); n > 0 && segs[n-1].Speaker == speaker {
				segs[n-1].Text += " " + payload
				continue
			}
			segs = append(segs, Segment{Speaker: speaker, Text: payload})
		}
	}
	return segs
}

// splitCuePayload extracts the speaker from a cue payload line, via a WebVTT
// voice span or a "Name: text" prefix, and strips remaining markup.
func splitCuePayload(line string) (speaker, payload string) {
	if m := voiceRe.FindStringSubmatch(line); m != nil {
		speaker = strings.TrimSpace(m[1])
		line = line[len(m[0]):]
	}
	line = strings.TrimSpace(tagRe.ReplaceAllString(line, ""))
	if speaker != "" {
		return speaker, line
	}
	if m := speakerRe.FindStringSubmatch(line); m != nil && plausibleSpeaker(m[1]) {
		return strings.TrimSpace(m[1]), m[2]
	}
	return "", line
}

// parseDialogue handles plain "Speaker: text" exports. Lines without an
// attribution continue the previous utterance. The text is only treated as
// dialogue when at least two attributed lines exist; otherwise it stays
// freeform.
func parseDialogue(text string) []Segment {
	var segs []Segment
	attributed := 0
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		line = stampRe.ReplaceAllString(line, "")
		if m := speakerRe.FindStringSubmatch(line); m != nil && plausibleSpeaker(m[1]) {
			segs = append(segs, Segment{Speaker: strings.TrimSpace(m[1]), Text: m[2]})
			attributed++
			continue
		}
		if n := len(segs); n > 0 {
			segs[n-1].Text += " " + line
		} else {
			segs = append(segs, Segment{Text: line})
		}
	}
	if attributed < 2 {
		return nil
	}
	return segs
}

// plausibleSpeaker filters out colon-bearing prose ("Budget: unknown", URLs,
// clock times) so only name-like prefixes become speakers: it must start
// with a letter, stay short, and avoid URL/path characters.
func plausibleSpeaker(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 40 {
		return false
	}
	r := []rune(name)[0]
	if !unicode.IsLetter(r) {
		return false
	}
	if strings.Count(name, " ") > 3 {
		return false
	}
	return !strings.ContainsAny(name, "/\\@")
}
