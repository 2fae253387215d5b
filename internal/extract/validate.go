package extract

import (
	"regexp"
	"strings"
)

// MaxAltTextLen is the longest alt text accepted from the model, in runes.
const MaxAltTextLen = 250

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`act\s+as\s+|pretend\s+|forget\s+(everything|all)|override|` +
		`new\s+instructions)`,
)

var labelPrefix = regexp.MustCompile(`(?i)^alt(\s*text)?\s*[:=]\s*`)

// ValidateAltText normalizes a model reply into alt text. Returns false if
// the reply is empty, too long, or looks like a prompt injection echo.
func ValidateAltText(s string) (string, bool) {
	s = strings.Join(strings.Fields(s), " ")
	s = labelPrefix.ReplaceAllString(s, "")
	s = trimQuotes(s)
	if s == "" {
		return "", false
	}
	if len([]rune(s)) > MaxAltTextLen {
		return "", false
	}
	if injectionPattern.MatchString(s) {
		return "", false
	}
	return s, true
}

func trimQuotes(s string) string {
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first != last || !strings.ContainsRune("\"'`", rune(first)) {
			break
		}
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
