package domain

import "time"

// AnalysisReport is the outcome of one full analysis run over a source channel.
type AnalysisReport struct {
	RunID          string
	Source         Channel
	Messages       int
	PartialHistory bool
	URLCount       int
	ItemsReceived  int
	ErroredItems   int
	Duplicates     int
	Result         *AggregateResult
	FailedURLs     []string
	PreviousViews  int64
	LedgerTotal    int64
	Progress       *ProgressState
	Duration       time.Duration
	Spreadsheet    *Attachment
	Published      bool
}

// Delta is the change in total views against the previous report for the same channel.
func (r *AnalysisReport) Delta() int64 {
	if r == nil || r.Result == nil {
		return 0
	}
	return r.Result.TotalViews - r.PreviousViews
}

// HasPrevious reports whether a previous report exists to compute a delta against.
func (r *AnalysisReport) HasPrevious() bool {
	return r != nil && r.PreviousViews > 0
}

// DeltaPercent is Delta relative to PreviousViews, or 0 without a previous report.
func (r *AnalysisReport) DeltaPercent() float64 {
	if !r.HasPrevious() {
		return 0
	}
	return float64(r.Delta()) / float64(r.PreviousViews) * 100
}

// ProgressSnapshot is what the campaign setup and refresh commands display.
type ProgressSnapshot struct {
	State   ProgressState
	Channel *Channel
	Ledger  Ledger
}

// VideoUpdate is one drip tick's fresh reading for a single video.
type VideoUpdate struct {
	ChannelLabel string
	URL          string
	Views        int64
	Previous     int64
	Owner        string
	ShortCode    string
}

// LeaderboardEntry is one tracked channel's standing.
type LeaderboardEntry struct {
	ChannelLabel string
	Views        int64
	Videos       int
}

// FinalReport summarizes a finished campaign.
type FinalReport struct {
	Campaign  ProgressState
	Standings []LeaderboardEntry
	TopVideos []VideoEntry
	Total     int64
}
