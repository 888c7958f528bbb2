package ledger

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/domain"
)

var (
	legacyChannelPattern = regexp.MustCompile(`\*\*Channel\*\*\s*[<#]*(\w+)[>#]*`)
	legacyViewsPattern   = regexp.MustCompile(`\*\*Total Views\*\*\s*([\d,]+)`)
	labelStripper        = strings.NewReplacer("<", "", ">", "", "#", "")
)

// ParseCount reads a comma-grouped integer. Invalid input yields 0.
func ParseCount(s string) int64 {
	n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ParseReport extracts the channel label and total views from a report embed.
// Structured fields are read first; the description is scanned as a fallback
// for older reports. ok is false unless the title carries the report marker,
// a label was found and views are positive.
func ParseReport(e domain.Embed) (label string, views int64, ok bool) {
	if !strings.Contains(e.Title, constants.ReportMarker) {
		return "", 0, false
	}

	var name string
	for _, f := range e.Fields {
		switch f.Name {
		case constants.ReportConfig.FieldChannel:
			name = labelStripper.Replace(f.Value)
		case constants.ReportConfig.FieldViews:
			views = ParseCount(f.Value)
		}
	}

	if name == "" && e.Description != "" {
		if m := legacyChannelPattern.FindStringSubmatch(e.Description); m != nil {
			name = m[1]
		}
		if m := legacyViewsPattern.FindStringSubmatch(e.Description); m != nil {
			views = ParseCount(m[1])
		}
	}

	name = strings.TrimSpace(name)
	if name == "" || views <= 0 {
		return "", 0, false
	}
	return domain.ChannelLabel(name), views, true
}

// VideoUpdate is one parsed per-video drip update.
type VideoUpdate struct {
	ChannelLabel string
	URL          string
	Views        int64
}

// ParseVideoUpdate extracts a per-video update embed written by the drip updater.
func ParseVideoUpdate(e domain.Embed) (VideoUpdate, bool) {
	cfg := constants.VideoUpdateConfig
	if !strings.Contains(e.Title, cfg.Marker) {
		return VideoUpdate{}, false
	}

	var u VideoUpdate
	var viewsSeen bool
	for _, f := range e.Fields {
		switch f.Name {
		case cfg.FieldChannel:
			u.ChannelLabel = domain.ChannelLabel(strings.TrimSpace(labelStripper.Replace(f.Value)))
		case cfg.FieldVideo:
			u.URL = strings.TrimSpace(f.Value)
		case cfg.FieldViews:
			u.Views = ParseCount(f.Value)
			viewsSeen = true
		}
	}
	if u.ChannelLabel == "" || u.URL == "" || !viewsSeen {
		return VideoUpdate{}, false
	}
	return u, true
}
