// Package dedup collapses enrichment results to one record per logical video.
package dedup

import (
	"strings"

	"github.com/kapu/reel-views-bot/internal/domain"
)

// NormalizeInputURL lowercases u, strips trailing slashes, query and fragment,
// and drops the first "www.".
func NormalizeInputURL(u string) string {
	s := strings.ToLower(u)
	s = strings.TrimRight(s, "/")
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	return strings.Replace(s, "www.", "", 1)
}

// Keys returns the identifier set of r: normalized input URL, lowercased short
// code and raw id, skipping empty values.
func Keys(r domain.EnrichmentRecord) []string {
	candidates := [...]string{
		NormalizeInputURL(r.InputURL),
		strings.ToLower(r.ShortCode),
		r.ID,
	}
	keys := make([]string, 0, len(candidates))
	for _, k := range candidates {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Dedup keeps the first record for each identifier, preserving input order.
// All identifiers share one namespace, so a record is dropped when any of its
// keys was claimed by an earlier record. Records without identifiers always pass.
func Dedup(records []domain.EnrichmentRecord) []domain.EnrichmentRecord {
	seen := make(map[string]struct{}, len(records)*3)
	out := make([]domain.EnrichmentRecord, 0, len(records))

	for _, r := range records {
		keys := Keys(r)
		duplicate := false
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}
