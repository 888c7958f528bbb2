// Package stats folds enrichment records into per-owner and global view totals.
package stats

import (
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/kapu/reel-views-bot/internal/domain"
)

// DefaultTopN is the size of the global top-videos list.
const DefaultTopN = 10

// PostURL builds the public reel URL for a short code.
func PostURL(shortCode string) string {
	return "https://instagram.com/reel/" + shortCode + "/"
}

// Qualifies reports whether r counts toward statistics: a view-count field is
// present and the owner is known.
func Qualifies(r domain.EnrichmentRecord) bool {
	return r.HasViews() && r.OwnerUsername != ""
}

// Aggregate folds records into owner and global totals. Non-qualifying records
// with an input URL are listed in FailedInputs; the rest are ignored.
func Aggregate(records []domain.EnrichmentRecord, topN int) *domain.AggregateResult {
	if topN <= 0 {
		topN = DefaultTopN
	}

	res := &domain.AggregateResult{
		OwnerStats:   make(map[string]*domain.OwnerStats),
		OwnerOrder:   make([]string, 0),
		FailedInputs: make([]string, 0),
	}
	all := make([]domain.VideoEntry, 0, len(records))

	for i := range records {
		r := records[i]
		if !Qualifies(r) {
			if r.InputURL != "" {
				res.FailedInputs = append(res.FailedInputs, r.InputURL)
			}
			continue
		}

		owner, ok := res.OwnerStats[r.OwnerUsername]
		if !ok {
			fullName := r.OwnerFullName
			if fullName == "" {
				fullName = r.OwnerUsername
			}
			owner = &domain.OwnerStats{
				Username: r.OwnerUsername,
				FullName: fullName,
			}
			res.OwnerStats[r.OwnerUsername] = owner
			res.OwnerOrder = append(res.OwnerOrder, r.OwnerUsername)
		}

		views := r.Views()
		entry := domain.VideoEntry{
			URL:       PostURL(r.ShortCode),
			Views:     views,
			ShortCode: r.ShortCode,
			Owner:     r.OwnerUsername,
		}

		owner.VideoCount++
		owner.TotalViews += views
		owner.TopVideos = append(owner.TopVideos, entry)

		res.TotalViews += views
		res.TotalVideos++
		all = append(all, entry)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Views > all[j].Views
	})
	if len(all) > topN {
		all = all[:topN]
	}
	res.TopVideos = all

	return res
}

// FormatCompact renders n as "1.2M", "3.4K" or a plain integer.
func FormatCompact(n int64) string {
	switch {
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1_000_000, 'f', 1, 64) + "M"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1_000, 'f', 1, 64) + "K"
	default:
		return strconv.FormatInt(n, 10)
	}
}

// FormatCommas renders n with thousands separators ("1,234,567").
func FormatCommas(n int64) string {
	return humanize.Comma(n)
}
