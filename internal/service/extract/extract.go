// Package extract pulls Instagram post links out of chat messages and
// normalizes them to one canonical form.
package extract

import (
	"regexp"
	"strings"

	"github.com/kapu/reel-views-bot/internal/domain"
)

// CanonicalHost is the scheme+host every extracted URL is rewritten to.
const CanonicalHost = "https://www.instagram.com"

var (
	postURLPattern = regexp.MustCompile(`https?://(?:www\.)?instagram\.com/(?:reel|p)/[A-Za-z0-9_-]+`)
	hostPattern    = regexp.MustCompile(`^https?://(?:www\.)?instagram\.com`)
)

// Normalize rewrites a matched post URL: trailing slashes, query and fragment
// are stripped, the host is canonicalized and one trailing slash appended.
// Path case is preserved.
func Normalize(raw string) string {
	clean := strings.TrimRight(raw, "/")
	if i := strings.IndexByte(clean, '?'); i >= 0 {
		clean = clean[:i]
	}
	if i := strings.IndexByte(clean, '#'); i >= 0 {
		clean = clean[:i]
	}
	clean = hostPattern.ReplaceAllLiteralString(clean, CanonicalHost)
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	return clean
}

// FromText returns every normalized post URL found in text, in order of appearance.
// Duplicates are not removed.
func FromText(text string) []string {
	matches := postURLPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, Normalize(m))
	}
	return out
}

// Extract scans each message's text and returns the distinct canonical URLs.
// Order follows first appearance but callers should treat the result as a set.
func Extract(messages []domain.Message) []string {
	seen := make(map[string]struct{})
	urls := make([]string, 0)
	for _, msg := range messages {
		for _, u := range FromText(msg.Content) {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	}
	return urls
}

// ShortCode returns the last path segment of a canonical post URL.
func ShortCode(canonical string) string {
	trimmed := strings.TrimRight(canonical, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
