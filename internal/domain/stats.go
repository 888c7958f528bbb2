package domain

import "sort"

// VideoEntry is one counted video.
type VideoEntry struct {
	URL       string `json:"url"`
	Views     int64  `json:"views"`
	ShortCode string `json:"short_code"`
	Owner     string `json:"owner,omitempty"`
}

// OwnerStats accumulates per-owner totals within a single aggregation run.
type OwnerStats struct {
	Username   string       `json:"username"`
	FullName   string       `json:"full_name"`
	VideoCount int          `json:"video_count"`
	TotalViews int64        `json:"total_views"`
	TopVideos  []VideoEntry `json:"top_videos"`
}

// AggregateResult is the folded output of one aggregation run.
type AggregateResult struct {
	OwnerStats   map[string]*OwnerStats
	OwnerOrder   []string
	TotalViews   int64
	TotalVideos  int
	FailedInputs []string
	TopVideos    []VideoEntry
}

// OwnersByViews returns owners sorted by total views descending, first-seen order on ties.
func (a *AggregateResult) OwnersByViews() []*OwnerStats {
	if a == nil {
		return nil
	}
	owners := make([]*OwnerStats, 0, len(a.OwnerOrder))
	for _, name := range a.OwnerOrder {
		if s, ok := a.OwnerStats[name]; ok {
			owners = append(owners, s)
		}
	}
	sort.SliceStable(owners, func(i, j int) bool {
		return owners[i].TotalViews > owners[j].TotalViews
	})
	return owners
}
