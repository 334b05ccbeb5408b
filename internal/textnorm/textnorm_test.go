package textnorm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	for _, tc := range []struct {
		name     string
		input    string
		stem     bool
		expected string
	}{
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
		{
			name:     "accents",
			input:    "café niño",
			expected: "cafe nino",
		},
		{
			name:     "cyrillic",
			input:    "café niño Москва",
			expected: "cafe nino moskva",
		},
		{
			name:     "case and punctuation",
			input:    "Hello, World!",
			expected: "hello world",
		},
		{
			name:     "collapse whitespace",
			input:    "  what\ta \n\n goal!!! ",
			expected: "what a goal",
		},
		{
			name:     "digits are kept",
			input:    "Top-10 goals of 2024",
			expected: "top 10 goals of 2024",
		},
		{
			name:     "stemming",
			input:    "Running goals",
			stem:     true,
			expected: "run goal",
		},
		{
			name:     "punctuation only",
			input:    "?!...",
			expected: "",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			actual := Normalize(tc.input, tc.stem)
			require.Equal(t, tc.expected, actual)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, input := range []string{
		"café niño",
		"Hello, World!",
		"that was an INCREDIBLE goal",
		"Running goals and jumping players",
		"Москва, São Paulo & Zürich",
	} {
		for _, stem := range []bool{false, true} {
			once := Normalize(input, stem)
			twice := Normalize(once, stem)
			require.Equal(t, once, twice, "normalize(normalize(%q, %v))", input, stem)
		}
	}
}

func TestKeywords(t *testing.T) {
	actual := Keywords("What a goal, the keeper had NO chance at all and the goal was his", false)
	expected := map[string]struct{}{
		"goal":   {},
		"keeper": {},
		"chance": {},
		"all":    {},
		"his":    {},
	}
	require.Equal(t, expected, actual)
}

func TestKeywordsEmpty(t *testing.T) {
	require.Empty(t, Keywords("", false))
	require.Empty(t, Keywords("it is on", false))
}
