package tagmatch

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/mgoltzsche/sobub/internal/textnorm"
)

const defaultPhoneticThreshold = 0.85

// Correction describes a transcript span that was replaced with a tag.
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// PhoneticOption configures a PhoneticCorrector.
type PhoneticOption func(*PhoneticCorrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler similarity a
// phonetically matching span needs to be replaced. Default: 0.85.
func WithPhoneticThreshold(threshold float64) PhoneticOption {
	return func(c *PhoneticCorrector) {
		c.threshold = threshold
	}
}

// PhoneticCorrector rewrites transcript spans that sound like a tag of the
// vocabulary into that tag, compensating for misheard words.
// Candidate tags need to share a Double Metaphone code with the span for
// every word and are ranked by Jaro-Winkler similarity.
type PhoneticCorrector struct {
	threshold float64
}

// NewPhoneticCorrector returns a corrector configured with the given options.
func NewPhoneticCorrector(opts ...PhoneticOption) *PhoneticCorrector {
	c := &PhoneticCorrector{threshold: defaultPhoneticThreshold}
	for _, o := range opts {
		o(c)
	}
	return c
}

type vocabEntry struct {
	tag    string
	tokens []string
	codes  []map[string]struct{}
}

// Correct returns the transcript with misheard tag spans replaced, walking
// the normalized transcript and preferring the longest matching window.
func (c *PhoneticCorrector) Correct(text string, vocabulary []string) (string, []Correction) {
	tokens := textnorm.Tokens(text, false)
	if len(tokens) == 0 || len(vocabulary) == 0 {
		return text, nil
	}

	entries, maxWords := prepareVocabulary(vocabulary)
	if maxWords == 0 {
		return text, nil
	}

	output := make([]string, 0, len(tokens))
	var corrections []Correction

	for i := 0; i < len(tokens); {
		n := min(maxWords, len(tokens)-i)
		consumed := 0

		for ; n >= 1; n-- {
			window := tokens[i : i+n]
			tag, confidence, ok := c.match(window, entries)
			if !ok {
				continue
			}

			output = append(output, tag)
			if joined := strings.Join(window, " "); joined != strings.Join(textnorm.Tokens(tag, false), " ") {
				corrections = append(corrections, Correction{
					Original:   joined,
					Corrected:  tag,
					Confidence: confidence,
				})
			}
			consumed = n
			break
		}

		if consumed == 0 {
			output = append(output, tokens[i])
			consumed = 1
		}

		i += consumed
	}

	if len(corrections) == 0 {
		return text, nil
	}

	return strings.Join(output, " "), corrections
}

func (c *PhoneticCorrector) match(window []string, entries []vocabEntry) (string, float64, bool) {
	if len(window) == 1 && (len(window[0]) <= 2 || textnorm.IsStopWord(window[0])) {
		return "", 0, false
	}

	windowCodes := make([]map[string]struct{}, len(window))
	for i, t := range window {
		windowCodes[i] = codes(t)
	}

	joined := strings.Join(window, " ")
	bestTag := ""
	bestScore := 0.0

	for _, e := range entries {
		if len(e.tokens) != len(window) {
			continue
		}

		phonetic := true
		for i := range window {
			if !overlaps(windowCodes[i], e.codes[i]) {
				phonetic = false
				break
			}
		}

		if !phonetic {
			continue
		}

		score := matchr.JaroWinkler(joined, strings.Join(e.tokens, " "), false)
		if score >= c.threshold && score > bestScore {
			bestTag = e.tag
			bestScore = score
		}
	}

	return bestTag, bestScore, bestTag != ""
}

func prepareVocabulary(vocabulary []string) ([]vocabEntry, int) {
	entries := make([]vocabEntry, 0, len(vocabulary))
	maxWords := 0

	for _, tag := range vocabulary {
		tokens := textnorm.Tokens(tag, false)
		if len(tokens) == 0 {
			continue
		}

		e := vocabEntry{tag: tag, tokens: tokens, codes: make([]map[string]struct{}, len(tokens))}
		for i, t := range tokens {
			e.codes[i] = codes(t)
		}

		entries = append(entries, e)
		maxWords = max(maxWords, len(tokens))
	}

	return entries, maxWords
}

func codes(token string) map[string]struct{} {
	m := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(token)
	if p != "" {
		m[p] = struct{}{}
	}
	if s != "" {
		m[s] = struct{}{}
	}
	return m
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
