// Package endpoint holds the turn-taking heuristics as a standalone,
// injectable policy so the empirical thresholds can be tuned and tested
// without touching the coordinator's state machine.
package endpoint

import "strings"

// Inputs is everything the policy needs to decide whether the user has
// finished their turn.
type Inputs struct {
	SpeechProb        float64
	MeanProb          float64
	SilenceRatioShort float64
	SilenceRatioLong  float64
	SilenceDuration   float64 // seconds
	UnhandledText     string
}

// Policy decides when accumulated user text should be committed as a turn.
type Policy interface {
	ShouldTakeTurn(in Inputs) bool
}

// Default is the policy grounded on the original system's empirical table.
type Default struct{}

func NewDefault() Default { return Default{} }

// IsQuietNow is the shared "no one is talking" check used both by the
// policy's own decision table and by the coordinator's silence-duration
// tracker.
func IsQuietNow(speechProb, meanProb float64) bool {
	return (speechProb < 0.1 && meanProb < 0.05) ||
		(speechProb < 0.01 && meanProb < 0.01)
}

func isQuietNow(in Inputs) bool {
	return IsQuietNow(in.SpeechProb, in.MeanProb)
}

var whWords = []string{"what", "where", "when", "why", "how", "who", "which", "whose"}
var auxWords = []string{"do", "does", "did", "is", "are", "was", "were", "can", "could",
	"should", "would", "will", "shall", "have", "has", "had"}

// IsQuestion reports whether text's last sentence reads as a question.
func IsQuestion(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	last := text
	for i := len(text) - 1; i >= 0; i-- {
		if c := text[i]; c == '.' || c == '!' || c == '?' {
			if i+1 < len(text) {
				last = text[i+1:]
			}
			break
		}
	}
	last = strings.TrimSpace(last)
	if last == "" {
		return false
	}

	if strings.HasSuffix(last, "?") {
		return true
	}

	lower := strings.ToLower(last)
	firstWord := lower
	if sp := strings.IndexAny(lower, " \t,"); sp >= 0 {
		firstWord = lower[:sp]
	}

	for _, w := range whWords {
		if firstWord == w {
			return true
		}
	}
	for _, w := range auxWords {
		if firstWord == w {
			return true
		}
	}

	if strings.Contains(lower, "right?") || strings.Contains(lower, "isn't it") ||
		strings.Contains(lower, "don't you think") {
		return true
	}

	return false
}

var stallPhrases = []string{"let me think", "let me explain", "let me finish"}

// ShouldTakeTurn implements the decision table from the component design.
func (Default) ShouldTakeTurn(in Inputs) bool {
	text := strings.TrimSpace(in.UnhandledText)
	if text == "" {
		return false
	}

	quiet := isQuietNow(in)
	question := IsQuestion(text)

	if len(text) < 50 {
		if question && quiet && in.SilenceDuration > 0.5 {
			return true
		}
		if quiet && in.SilenceRatioShort > 0.9 && in.SilenceDuration > 1 {
			return true
		}
		return false
	}

	threshold := 3.0
	switch {
	case question:
		threshold = 1
	case strings.HasSuffix(text, ".") || strings.HasSuffix(text, "!"):
		threshold = 2
	}

	tail := text
	if len(tail) > 300 {
		tail = tail[len(tail)-300:]
	}
	tailLower := strings.ToLower(tail)
	for _, phrase := range stallPhrases {
		if strings.Contains(tailLower, phrase) {
			threshold = 3
			break
		}
	}

	return quiet && in.SilenceRatioLong > 0.9 && in.SilenceDuration > threshold
}
