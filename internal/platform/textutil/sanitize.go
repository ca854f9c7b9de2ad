package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var plainTextPolicy = bluemonday.StrictPolicy()

// Sanitize strips markup from user supplied free text, collapses whitespace, and truncates to maxRunes
// (0 disables truncation).
func Sanitize(value string, maxRunes int) string {
	cleaned := html.UnescapeString(plainTextPolicy.Sanitize(value))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if maxRunes > 0 && utf8.RuneCountInString(cleaned) > maxRunes {
		cleaned = string([]rune(cleaned)[:maxRunes])
	}
	return cleaned
}

// TitleCase sanitizes value and title-cases each word.
func TitleCase(value string) string {
	// Casers keep state between calls and cannot be shared across goroutines.
	return cases.Title(language.English).String(Sanitize(value, 0))
}

// UpperCode trims value and upper-cases it for use as a case-insensitive lookup key.
func UpperCode(value string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(value))
}
