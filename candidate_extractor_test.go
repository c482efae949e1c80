package autosense

import (
	"testing"

	"github.com/couchbaselabs/go.assert"
)

func TestExtractCandidatesShapeFilter(t *testing.T) {
	lines := TextLines(
		"kt68 xyz",          // lowercase and a space
		"AB12",              // 4 characters, too short
		"WBA8BFAKEV",        // exactly 10
		"WBA8BFAKEVIN12345", // 17 characters, too long
		"AB123",             // exactly 5
		"-- K T 6 8 X Y Z",  // punctuation only adds noise
	)
	candidates := ExtractCandidates(lines, DefaultExtractorOptions())
	assert.DeepEquals(t, candidates, []string{"KT68XYZ", "WBA8BFAKEV", "AB123"})
}

func TestExtractCandidatesBoundaries(t *testing.T) {
	opts := DefaultExtractorOptions()
	assert.Equals(t, len(ExtractCandidates(TextLines("ABCD"), opts)), 0)
	assert.Equals(t, len(ExtractCandidates(TextLines("ABCDE"), opts)), 1)
	assert.Equals(t, len(ExtractCandidates(TextLines("ABCDEFGHIJ"), opts)), 1)
	assert.Equals(t, len(ExtractCandidates(TextLines("ABCDEFGHIJK"), opts)), 0)
}

func TestExtractCandidatesKeepsFirstSeenOrder(t *testing.T) {
	lines := TextLines("ZZ99ZZZ", "AA11AAA", "zz99 zzz", "BB22BBB", "AA11AAA")
	candidates := ExtractCandidates(lines, DefaultExtractorOptions())
	assert.DeepEquals(t, candidates, []string{"ZZ99ZZZ", "AA11AAA", "BB22BBB"})
}

func TestExtractCandidatesEmpty(t *testing.T) {
	candidates := ExtractCandidates(nil, DefaultExtractorOptions())
	assert.True(t, candidates != nil)
	assert.Equals(t, len(candidates), 0)
}

func TestExtractCandidatesMixedOcrOutput(t *testing.T) {
	texts := []string{"KT68 XYZ", "ab", "random!!text123456789012", "KT68XYZ"}

	unscored := TextLines(texts...)
	assert.DeepEquals(t, ExtractCandidates(unscored, DefaultExtractorOptions()), []string{"KT68XYZ"})

	scored := make([]RawTextLine, 0, len(texts))
	for _, text := range texts {
		scored = append(scored, RawTextLine{Text: text, Confidence: 90, Scored: true})
	}
	assert.DeepEquals(t, ExtractCandidates(scored, DefaultExtractorOptions()), []string{"KT68XYZ"})
}

func TestExtractCandidatesLinePrefilterOnlyForScoredLines(t *testing.T) {
	opts := DefaultExtractorOptions()
	// a line shorter than the pre-filter but long enough for a candidate is
	// impossible with the defaults, so raise the bound to make it visible
	opts.MinLineLength = 8

	unscored := []RawTextLine{{Text: "AB 123"}}
	scored := []RawTextLine{{Text: "AB 123", Scored: true, Confidence: 91}}

	assert.DeepEquals(t, ExtractCandidates(unscored, opts), []string{"AB123"})
	assert.Equals(t, len(ExtractCandidates(scored, opts)), 0)
}

func TestNormalizeManualRegistration(t *testing.T) {
	assert.Equals(t, NormalizeManualRegistration(" kt68 xyz "), "KT68XYZ")
	assert.Equals(t, NormalizeManualRegistration("ab\t1"), "AB1")
	// no length bound and no character stripping for typed input
	assert.Equals(t, NormalizeManualRegistration("wba8bfakevin12345"), "WBA8BFAKEVIN12345")
	assert.Equals(t, NormalizeManualRegistration("ab-12"), "AB-12")
	assert.Equals(t, NormalizeManualRegistration("   "), "")
}

func TestJoinRawText(t *testing.T) {
	assert.Equals(t, JoinRawText(TextLines("KT68 XYZ", "MOT")), "KT68 XYZ\nMOT")
	assert.Equals(t, JoinRawText(nil), "")
}
