package utils

import (
	"regexp"
	"strings"

	"github.com/asterixix/tecza/internal/ui"
)

// identityRegex accepts user names, email addresses and user@host forms.
// Whitespace, slashes and control characters are rejected.
var identityRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._%+@\-]*$`)

// FormatPaths formats a slice of paths into a readable string.
func FormatPaths(paths []string) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, path := range paths {
		b.WriteString("    - ")
		b.WriteString(ui.Path.Sprint(path))
		b.WriteString("\n")
	}
	return b.String()
}

// IsValidIdentity reports whether name can be used as a participant identity.
func IsValidIdentity(name string) bool {
	if name == "" || len(name) > 254 {
		return false
	}
	return identityRegex.MatchString(name)
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}
