package narrator

import (
	"regexp"
	"strings"
)

// Localize prepares a narration line for natural Indonesian speech:
// a small token-substitution table for common English words, a softening
// "ya" before question marks, and punctuation spacing normalization.
//
// The transform is idempotent (re-localizing changes nothing) but not
// reversible. It runs exactly once per line, at the synthesis boundary;
// the unmodified line is what appears in the outbound transcript.
func Localize(text string) string {
	for _, s := range substitutions {
		text = s.re.ReplaceAllString(text, s.repl)
	}

	text = questionRe.ReplaceAllStringFunc(text, func(m string) string {
		// Lines already ending in "ya?" are left alone, so applying the
		// transform twice cannot stack softeners.
		if strings.Contains(strings.ToLower(m), "ya") {
			return strings.TrimSpace(m)
		}
		return " ya?"
	})

	text = strings.ReplaceAll(text, ".", ". ")
	text = strings.ReplaceAll(text, ",", ", ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var (
	questionRe = regexp.MustCompile(`(?i)(ya)?\s*\?`)
	spaceRe    = regexp.MustCompile(`\s+`)

	substitutions = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`(?i)\bhi\b`), "hai"},
		{regexp.MustCompile(`(?i)\bthanks\b`), "terima kasih"},
		{regexp.MustCompile(`(?i)\bok\b`), "oke"},
		{regexp.MustCompile(`(?i)\bplease\b`), "tolong ya"},
		{regexp.MustCompile(`\bI\b`), "saya"},
		{regexp.MustCompile(`(?i)\byou\b`), "kamu"},
	}
)
