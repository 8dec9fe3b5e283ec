package transcript

import (
	"regexp"
	"strings"
)

const DefaultStopPhrase = "stop now"

// StopPhrase is a case-insensitive spoken terminator.
type StopPhrase struct {
	phrase string
	re     *regexp.Regexp
}

func NewStopPhrase(phrase string) *StopPhrase {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		phrase = DefaultStopPhrase
	}
	return &StopPhrase{
		phrase: phrase,
		re:     regexp.MustCompile("(?i)" + regexp.QuoteMeta(phrase)),
	}
}

func (p *StopPhrase) String() string { return p.phrase }

// Check reports whether text contains the phrase.
func (p *StopPhrase) Check(text string) bool {
	return p.re.MatchString(text)
}

// Strip removes every occurrence of the phrase and trims the result.
// Removal repeats until nothing matches, so the output never contains the
// phrase and Strip(Strip(s)) == Strip(s).
func (p *StopPhrase) Strip(text string) string {
	for p.re.MatchString(text) {
		text = p.re.ReplaceAllLiteralString(text, "")
	}
	return strings.TrimSpace(text)
}
