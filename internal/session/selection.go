package session

import (
	"strings"

	"github.com/emmett/voxtask/internal/stt"
)

// near-ties within this factor go to an alternative that sounds like a command
const keywordBias = 0.9

var commandKeywords = map[string]bool{
	"add": true, "create": true, "new": true, "todo": true,
	"complete": true, "done": true, "delete": true, "remove": true, "clear": true,
}

// Candidate is one transcript hypothesis
type Candidate struct {
	Text       string
	Confidence float64
}

// SelectBest picks the transcript to interpret from a final result.
// Starting from the first alternative, a later one wins if it is more
// confident, or nearly as confident and contains a command keyword.
// Without alternatives the primary transcript is used.
func SelectBest(r stt.Result) Candidate {
	if len(r.Alternatives) == 0 {
		return Candidate{Text: r.Text, Confidence: r.Confidence}
	}

	best := Candidate{Text: r.Alternatives[0].Text, Confidence: r.Alternatives[0].Confidence}
	for _, alt := range r.Alternatives[1:] {
		if alt.Confidence > best.Confidence ||
			(alt.Confidence >= best.Confidence*keywordBias && HasCommandKeyword(alt.Text)) {
			best = Candidate{Text: alt.Text, Confidence: alt.Confidence}
		}
	}
	return best
}

// HasCommandKeyword reports whether text contains a command word
func HasCommandKeyword(text string) bool {
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if commandKeywords[strings.Trim(w, ".,!?;:")] {
			return true
		}
	}
	return false
}
