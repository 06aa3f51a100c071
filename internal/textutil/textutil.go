// Package textutil holds small text helpers shared by metadata building and
// CLI presentation.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English, cases.NoLower)

// StatusLabel turns a snake_case status into a human-readable label for
// tables and notifications ("dedup_checking" becomes "Dedup Checking").
func StatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

// TruncateOnWord shortens text to at most limit runes, cutting at a word
// boundary and appending an ellipsis when anything was removed.
func TruncateOnWord(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len([]rune(text)) <= limit {
		return text
	}
	runes := []rune(text)
	cut := limit - 3
	if cut < 1 {
		cut = 1
	}
	truncated := string(runes[:cut])
	if idx := strings.LastIndexFunc(truncated, unicode.IsSpace); idx > 0 {
		truncated = truncated[:idx]
	}
	return strings.TrimRight(truncated, " .,;:") + "..."
}

// NormalizeTag lowercases a tag and strips everything but letters and digits.
func NormalizeTag(tag string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(tag)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
