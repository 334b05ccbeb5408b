// Package textnorm turns transcripts and tags into a comparable,
// accent-insensitive and case-insensitive form.
package textnorm

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"github.com/mozillazg/go-unidecode"
)

const maxStemRounds = 4

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"of": {}, "on": {}, "that": {}, "the": {}, "to": {}, "was": {}, "will": {}, "with": {},
	"this": {}, "but": {}, "they": {}, "have": {}, "had": {}, "what": {}, "when": {},
	"where": {}, "who": {}, "which": {}, "why": {}, "how": {},
}

// Normalize transliterates text to ASCII, lowercases it, replaces everything
// but letters, digits and whitespace with spaces, optionally stems every token
// and collapses whitespace.
func Normalize(text string, stem bool) string {
	return strings.Join(Tokens(text, stem), " ")
}

// Tokens returns the whitespace separated tokens of the normalized text.
func Tokens(text string, stem bool) []string {
	if text == "" {
		return nil
	}

	folded := strings.ToLower(unidecode.Unidecode(text))
	folded = strings.Map(func(r rune) rune {
		if isASCIIAlnum(r) {
			return r
		}

		return ' '
	}, folded)

	tokens := strings.Fields(folded)

	if stem {
		for i, t := range tokens {
			tokens[i] = stemToFixpoint(t)
		}
	}

	return tokens
}

// stemToFixpoint stems until the token no longer changes so that
// normalizing an already normalized text is a no-op.
func stemToFixpoint(token string) string {
	for range maxStemRounds {
		stemmed := english.Stem(token, false)
		if stemmed == token || stemmed == "" {
			return token
		}

		token = stemmed
	}

	return token
}

// Keywords returns the set of meaningful tokens within text,
// omitting stop words and tokens of up to two characters.
func Keywords(text string, stem bool) map[string]struct{} {
	keywords := map[string]struct{}{}

	for _, t := range Tokens(text, stem) {
		if len(t) <= 2 {
			continue
		}

		if _, ok := stopWords[t]; ok {
			continue
		}

		keywords[t] = struct{}{}
	}

	return keywords
}

// IsStopWord reports whether the given lowercase word is ignored by Keywords.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

func isASCIIAlnum(r rune) bool {
	return r < unicode.MaxASCII && (r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
}
