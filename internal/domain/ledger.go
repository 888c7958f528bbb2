package domain

import "sort"

// Ledger maps a channel label ("#name") to its latest reported total views.
type Ledger map[string]int64

// Total sums every channel's views.
func (l Ledger) Total() int64 {
	var total int64
	for _, v := range l {
		total += v
	}
	return total
}

// Clone returns an independent copy.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// LedgerEntry is one row of a sorted ledger view.
type LedgerEntry struct {
	ChannelLabel string
	TotalViews   int64
}

// Sorted returns entries by views descending, label ascending on ties.
func (l Ledger) Sorted() []LedgerEntry {
	entries := make([]LedgerEntry, 0, len(l))
	for k, v := range l {
		entries = append(entries, LedgerEntry{ChannelLabel: k, TotalViews: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalViews != entries[j].TotalViews {
			return entries[i].TotalViews > entries[j].TotalViews
		}
		return entries[i].ChannelLabel < entries[j].ChannelLabel
	})
	return entries
}

// VideoLedger maps a channel label to each tracked video URL's latest views.
type VideoLedger map[string]map[string]int64

// Set records views for url under label.
func (v VideoLedger) Set(label, url string, views int64) {
	videos, ok := v[label]
	if !ok {
		videos = make(map[string]int64)
		v[label] = videos
	}
	videos[url] = views
}

// Has reports whether url already has a value under label.
func (v VideoLedger) Has(label, url string) bool {
	_, ok := v[label][url]
	return ok
}

// ChannelTotals folds the video ledger into per-channel sums.
func (v VideoLedger) ChannelTotals() Ledger {
	out := make(Ledger, len(v))
	for label, videos := range v {
		var sum int64
		for _, views := range videos {
			sum += views
		}
		out[label] = sum
	}
	return out
}

func (v VideoLedger) Clone() VideoLedger {
	out := make(VideoLedger, len(v))
	for label, videos := range v {
		inner := make(map[string]int64, len(videos))
		for url, views := range videos {
			inner[url] = views
		}
		out[label] = inner
	}
	return out
}
