package analysis

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds text into the form trigger patterns are matched against:
// NFKC, lower case, single spaces, trimmed.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ToLower(text)
	return strings.Join(strings.Fields(text), " ")
}
