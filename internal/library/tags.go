package library

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxTagLength   = 50
	MaxTagsPerClip = 20
)

var ErrInvalidTags = errors.New("invalid tags")

// ParseTags splits a comma separated tag list, trims every tag, drops empty
// ones and removes case-insensitive duplicates keeping the first spelling.
func ParseTags(s string) []string {
	return CleanTags(strings.Split(s, ","))
}

// CleanTags trims the given tags, drops empty ones and removes
// case-insensitive duplicates keeping the first spelling.
func CleanTags(tags []string) []string {
	seen := map[string]struct{}{}
	result := []string{}

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}

		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		result = append(result, tag)
	}

	return result
}

// ValidateTags returns an error wrapping ErrInvalidTags unless there are
// between 1 and MaxTagsPerClip tags of up to MaxTagLength characters.
func ValidateTags(tags []string) error {
	if len(tags) == 0 {
		return fmt.Errorf("%w: at least one tag is required", ErrInvalidTags)
	}

	if len(tags) > MaxTagsPerClip {
		return fmt.Errorf("%w: maximum %d tags allowed", ErrInvalidTags, MaxTagsPerClip)
	}

	for _, tag := range tags {
		n := utf8.RuneCountInString(tag)
		if n == 0 {
			return fmt.Errorf("%w: empty tag", ErrInvalidTags)
		}

		if n > MaxTagLength {
			return fmt.Errorf("%w: tag %q exceeds %d characters", ErrInvalidTags, tag, MaxTagLength)
		}
	}

	return nil
}
