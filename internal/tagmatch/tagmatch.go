// Package tagmatch matches transcripts against the tag vocabulary of the
// clip library.
//
// Single-word tags match whole tokens of the normalized transcript only, so
// that the tag "art" does not fire on "article". Multi-word tags match when
// the complete normalized phrase is contained within the normalized
// transcript. Matched tags are scored by specificity: a tag whose literal
// phrase occurs in the transcript scores its word count, any other match
// scores half of that (at least 1).
package tagmatch

import (
	"slices"
	"strings"

	"github.com/mgoltzsche/sobub/internal/model"
	"github.com/mgoltzsche/sobub/internal/textnorm"
)

// Result holds the tags matched within a transcript and their scores.
type Result struct {
	Tags   []string       `json:"matched_tags"`
	Scores map[string]int `json:"scores"`
}

// Matched reports whether at least one tag matched.
func (r Result) Matched() bool {
	return len(r.Tags) > 0
}

// Match returns the tags of the given vocabulary that occur within text.
// Tags that normalize to the same form are reported once using their first
// spelling while every spelling receives the form's score.
func Match(text string, tags []string, stem bool) Result {
	result := Result{Scores: map[string]int{}}

	if text == "" || len(tags) == 0 {
		return result
	}

	tokens := textnorm.Tokens(text, stem)
	if len(tokens) == 0 {
		return result
	}

	normalizedText := strings.Join(tokens, " ")
	lowerText := strings.ToLower(text)
	forms := []string{}
	spellings := make(map[string][]string, len(tags))

	for _, tag := range tags {
		form := normalizedForm(tag, stem)
		if form == "" {
			continue
		}

		if _, ok := spellings[form]; !ok {
			forms = append(forms, form)
		}

		spellings[form] = append(spellings[form], tag)
	}

	for _, form := range forms {
		var matched bool

		if strings.Contains(form, " ") {
			matched = strings.Contains(normalizedText, form)
		} else {
			matched = slices.Contains(tokens, form)
		}

		if !matched {
			continue
		}

		variants := spellings[form]
		formScore := 0

		for _, tag := range variants {
			formScore = max(formScore, score(tag, lowerText))
		}

		for _, tag := range variants {
			result.Scores[tag] = formScore
		}

		result.Tags = append(result.Tags, variants[0])
	}

	return result
}

// Candidates returns the clips carrying a tag that normalizes to the same
// form as one of the matched tags, preserving the order of clips.
func Candidates(clips []model.Clip, matched []string, stem bool) []model.Clip {
	wanted := make(map[string]struct{}, len(matched))

	for _, tag := range matched {
		if form := normalizedForm(tag, stem); form != "" {
			wanted[form] = struct{}{}
		}
	}

	candidates := []model.Clip{}

	if len(wanted) == 0 {
		return candidates
	}

	for _, c := range clips {
		for _, tag := range c.Tags {
			if _, ok := wanted[normalizedForm(tag, stem)]; ok {
				candidates = append(candidates, c)
				break
			}
		}
	}

	return candidates
}

func normalizedForm(tag string, stem bool) string {
	return strings.Join(textnorm.Tokens(tag, stem), " ")
}

func score(tag, lowerText string) int {
	wordCount := len(strings.Fields(tag))
	if wordCount == 0 {
		wordCount = 1
	}

	if strings.Contains(lowerText, strings.ToLower(strings.TrimSpace(tag))) {
		return wordCount
	}

	return max(1, wordCount/2)
}

// Vocabulary returns the unique tags of the given clips.
// Tags are compared case-insensitively, the first spelling wins.
func Vocabulary(clips []model.Clip) []string {
	seen := map[string]struct{}{}
	tags := make([]string, 0, len(clips))

	for _, c := range clips {
		for _, tag := range c.Tags {
			key := strings.ToLower(strings.TrimSpace(tag))
			if key == "" {
				continue
			}

			if _, ok := seen[key]; ok {
				continue
			}

			seen[key] = struct{}{}
			tags = append(tags, tag)
		}
	}

	return tags
}
