package util

import "strings"

// TruncateString truncates a string to maxRunes characters (rune-based, not byte-based)
// If truncated, appends "..." to the result
func TruncateString(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// ContainsFold reports whether slice holds item, ignoring case and surrounding space.
func ContainsFold(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(item)) {
			return true
		}
	}
	return false
}
