package library

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const maxSlugWords = 8

// Slug builds a URL-safe slug from a title with a short random suffix
func Slug(title string) string {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) > maxSlugWords {
		words = words[:maxSlugWords]
	}

	base := strings.Join(words, "-")
	if runes := []rune(base); len(runes) > 60 {
		base = strings.TrimRight(string(runes[:60]), "-")
	}
	if base == "" {
		base = "untitled"
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return base + "-" + suffix
}
