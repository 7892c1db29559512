package catalog

import (
	"strings"
	"unicode"
)

// dedupeKey folds a question to the form used to detect repeated items in
// one load: case-insensitive, punctuation and runs of whitespace collapse to
// a single space.
func dedupeKey(question string) string {
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}
