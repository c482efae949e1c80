package autosense

import (
	"image"
	"regexp"
	"strings"
)

const (
	DefaultMinLineLength      = 3
	DefaultMinCandidateLength = 5
	DefaultMaxCandidateLength = 10
)

var (
	nonPlateChars = regexp.MustCompile(`[^A-Z0-9]`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// RawTextLine is one line of text as returned by an OCR backend.
// Scored is set when the backend reports per-line metadata (confidence),
// only those lines are subject to the minimum line length pre-filter.
type RawTextLine struct {
	Text       string          `json:"text"`
	Region     image.Rectangle `json:"region"`
	Confidence float64         `json:"confidence,omitempty"`
	Scored     bool            `json:"scored,omitempty"`
}

type ExtractorOptions struct {
	MinLineLength int
	MinLength     int
	MaxLength     int
}

func DefaultExtractorOptions() ExtractorOptions {
	return ExtractorOptions{
		MinLineLength: DefaultMinLineLength,
		MinLength:     DefaultMinCandidateLength,
		MaxLength:     DefaultMaxCandidateLength,
	}
}

// ExtractCandidates reduces raw OCR lines to registration / VIN shaped strings.
// This is a shape filter only: no check digits, no regional formats.
func ExtractCandidates(lines []RawTextLine, opts ExtractorOptions) []string {
	candidates := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))

	for _, line := range lines {
		if line.Scored && len(line.Text) < opts.MinLineLength {
			continue
		}
		candidate := nonPlateChars.ReplaceAllString(strings.ToUpper(line.Text), "")
		if len(candidate) < opts.MinLength || len(candidate) > opts.MaxLength {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		candidates = append(candidates, candidate)
	}

	return candidates
}

// NormalizeManualRegistration is applied to typed input, which never goes
// through the candidate filter and so has no length bound.
func NormalizeManualRegistration(manual string) string {
	return whitespace.ReplaceAllString(strings.ToUpper(strings.TrimSpace(manual)), "")
}

// JoinRawText concatenates line texts for display.
func JoinRawText(lines []RawTextLine) string {
	texts := make([]string, 0, len(lines))
	for _, line := range lines {
		texts = append(texts, line.Text)
	}
	return strings.Join(texts, "\n")
}

// TextLines wraps plain strings, e.g. from a backend without line metadata.
func TextLines(texts ...string) []RawTextLine {
	lines := make([]RawTextLine, 0, len(texts))
	for _, t := range texts {
		lines = append(lines, RawTextLine{Text: t})
	}
	return lines
}
