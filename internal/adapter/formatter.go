package adapter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/observability"
	"github.com/kapu/reel-views-bot/internal/service/progress"
	"github.com/kapu/reel-views-bot/internal/service/stats"
	"github.com/kapu/reel-views-bot/internal/util"
)

// StatusInfo is the runtime snapshot shown by /status.
type StatusInfo struct {
	Uptime     time.Duration
	Memory     observability.MemoryStatus
	Latency    time.Duration
	Guilds     int
	HealthPort int
	GoVersion  string
	Enrichment bool
	Redis      bool
}

// ReportFormatter builds every embed and text reply the bot sends.
type ReportFormatter struct {
	ledgerChannel    string
	executionChannel string
	now              func() time.Time
}

func NewReportFormatter(ledgerChannel, executionChannel string) *ReportFormatter {
	return &ReportFormatter{
		ledgerChannel:    ledgerChannel,
		executionChannel: executionChannel,
		now:              time.Now,
	}
}

// WithClock fixes the embed timestamp source.
func (f *ReportFormatter) WithClock(now func() time.Time) *ReportFormatter {
	f.now = now
	return f
}

func (f *ReportFormatter) timestamp() string {
	return f.now().UTC().Format(time.RFC3339)
}

func (f *ReportFormatter) render(name string, data any) string {
	out, err := executeFormatterTemplate(name, data)
	if err != nil {
		return "template " + name + " failed: " + err.Error()
	}
	return out
}

func field(name, value string, inline bool) domain.EmbedField {
	return domain.EmbedField{
		Name:   util.TruncateString(name, constants.StringLimits.EmbedFieldName),
		Value:  util.TruncateString(value, constants.StringLimits.EmbedFieldValue),
		Inline: inline,
	}
}

// AnalysisEmbed is the report posted to the ledger channel. The Channel and
// Total Views fields are what the ledger reader parses back.
func (f *ReportFormatter) AnalysisEmbed(r *domain.AnalysisReport) domain.Embed {
	cfg := constants.ReportConfig
	res := r.Result

	embed := domain.Embed{
		Title:     cfg.Title,
		Color:     cfg.Color,
		Timestamp: f.timestamp(),
		Fields: []domain.EmbedField{
			field(cfg.FieldChannel, r.Source.Label(), true),
			field(cfg.FieldVideos, strconv.Itoa(res.TotalVideos), true),
			field(cfg.FieldViews, stats.FormatCommas(res.TotalViews), true),
			field(cfg.FieldPages, strconv.Itoa(len(res.OwnerStats)), true),
			field(cfg.FieldFailed, strconv.Itoa(len(r.FailedURLs)), true),
			field(cfg.FieldProcessing, r.Duration.Round(time.Second).String(), true),
		},
	}

	owners := res.OwnersByViews()
	if len(owners) > cfg.TopPages {
		owners = owners[:cfg.TopPages]
	}
	if pages := f.render("top_pages", owners); pages != "" {
		embed.Fields = append(embed.Fields, field(cfg.FieldTopPages, pages, false))
	}

	top := res.TopVideos
	if len(top) > cfg.TopVideos {
		top = top[:cfg.TopVideos]
	}
	if videos := f.render("top_videos", top); videos != "" {
		embed.Fields = append(embed.Fields, field(cfg.FieldTopVideos, videos, false))
	}

	return embed
}

// AnalysisSummary is the reply text sent back to the invoking user.
func (f *ReportFormatter) AnalysisSummary(r *domain.AnalysisReport) string {
	return f.render("analysis_summary", struct {
		Videos       int
		Pages        int
		HasPrevious  bool
		Delta        int64
		DeltaPercent float64
	}{
		Videos:       r.Result.TotalVideos,
		Pages:        len(r.Result.OwnerStats),
		HasPrevious:  r.HasPrevious(),
		Delta:        r.Delta(),
		DeltaPercent: r.DeltaPercent(),
	})
}

// AnalysisMessage bundles summary, embed and spreadsheet into one message.
func (f *ReportFormatter) AnalysisMessage(r *domain.AnalysisReport) domain.OutgoingMessage {
	msg := domain.OutgoingMessage{
		Content: f.AnalysisSummary(r),
		Embeds:  []domain.Embed{f.AnalysisEmbed(r)},
	}
	if r.Spreadsheet != nil {
		msg.Attachments = []domain.Attachment{*r.Spreadsheet}
	}
	return msg
}

// FailedURLs lists failed inputs for the execution channel, capped at the preview size.
func (f *ReportFormatter) FailedURLs(failed []string) string {
	limit := constants.ReportConfig.FailedPreview
	shown := failed
	if len(shown) > limit {
		shown = shown[:limit]
	}
	text := f.render("failed_urls", struct {
		Total int
		Limit int
		Shown []string
	}{Total: len(failed), Limit: limit, Shown: shown})
	return util.TruncateString(text, constants.InteractionConfig.ReplyMaxChars)
}

// Bar draws a fixed-width bar of filled and empty cells.
func Bar(percent float64, length int) string {
	filled := int(percent/100*float64(length) + 0.5)
	if filled > length {
		filled = length
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", length-filled)
}

// ProgressEmbed is the reply to /progressbar and /refresh.
func (f *ReportFormatter) ProgressEmbed(snap domain.ProgressSnapshot) domain.Embed {
	cfg := constants.ProgressConfig
	st := snap.State
	pct := progress.Percentage(st.CurrentViews, st.TargetViews)
	remaining := st.TargetViews - st.CurrentViews
	if remaining < 0 {
		remaining = 0
	}

	color := cfg.ColorActive
	if pct >= 100 {
		color = cfg.ColorDone
	}

	embed := domain.Embed{
		Title:     "🎯 Progress Tracker Updated",
		Color:     color,
		Timestamp: f.timestamp(),
		Footer:    &domain.EmbedFooter{Text: "Progress updates automatically with each analysis"},
		Fields: []domain.EmbedField{
			field(fmt.Sprintf("**%s Campaign**", st.CampaignName), f.render("progress_campaign", struct {
				Current, Target, Remaining int64
				Percent                    float64
			}{st.CurrentViews, st.TargetViews, remaining, pct}), false),
		},
	}

	if snap.Channel != nil {
		embed.Fields = append(embed.Fields, field("**Voice Channel Status**", f.render("progress_channel", snap.Channel), false))
	}

	embed.Fields = append(embed.Fields, field("**Progress Bar**", f.render("progress_bar", struct {
		Bar     string
		Percent float64
	}{Bar(pct, cfg.BarLength), pct}), false))

	entries := snap.Ledger.Sorted()
	if len(entries) > constants.ReportConfig.BreakdownLimit {
		entries = entries[:constants.ReportConfig.BreakdownLimit]
	}
	if len(entries) > 0 {
		embed.Fields = append(embed.Fields, field("**Channel Breakdown**", f.render("channel_breakdown", entries), false))
	}

	return embed
}

// StatusEmbed is the reply to /status.
func (f *ReportFormatter) StatusEmbed(s StatusInfo) domain.Embed {
	latency := "n/a"
	if s.Latency >= 0 {
		latency = fmt.Sprintf("%dms", s.Latency.Milliseconds())
	}
	enabled := func(b bool) string {
		if b {
			return "✅ Enabled"
		}
		return "❌ Disabled"
	}

	return domain.Embed{
		Title:     "🤖 Bot Status",
		Color:     0x00FF00,
		Timestamp: f.timestamp(),
		Fields: []domain.EmbedField{
			field("🟢 Status", "Online & Healthy", true),
			field("📊 Memory", fmt.Sprintf("%dMB / %dMB", s.Memory.HeapAllocBytes>>20, s.Memory.HeapSysBytes>>20), true),
			field("⏱️ Uptime", util.FormatUptime(s.Uptime), true),
			field("📡 WebSocket", latency, true),
			field("🏠 Servers", strconv.Itoa(s.Guilds), true),
			field("🧵 Goroutines", strconv.Itoa(s.Memory.Goroutines), true),
			field("🌐 Health Endpoint", fmt.Sprintf("Port %d", s.HealthPort), true),
			field("🔎 Enrichment", enabled(s.Enrichment), true),
			field("🗄️ Redis", enabled(s.Redis), true),
			field("📈 Go", s.GoVersion, true),
		},
	}
}

// VideoUpdateEmbed records one drip reading. The ledger reader parses its
// Channel, Video and Views fields back.
func (f *ReportFormatter) VideoUpdateEmbed(u domain.VideoUpdate) domain.Embed {
	cfg := constants.VideoUpdateConfig
	embed := domain.Embed{
		Title:     cfg.Title,
		Color:     cfg.Color,
		Timestamp: f.timestamp(),
		Fields: []domain.EmbedField{
			field(cfg.FieldChannel, u.ChannelLabel, true),
			field(cfg.FieldViews, stats.FormatCommas(u.Views), true),
		},
	}
	if u.Owner != "" {
		embed.Fields = append(embed.Fields, field(cfg.FieldOwner, "@"+u.Owner, true))
	}
	if u.Previous > 0 {
		diff := u.Views - u.Previous
		sign := "+"
		if diff < 0 {
			sign = "-"
			diff = -diff
		}
		embed.Fields = append(embed.Fields, field("**Change**", sign+stats.FormatCommas(diff), true))
	}
	embed.Fields = append(embed.Fields, field(cfg.FieldVideo, u.URL, false))
	return embed
}

// LeaderboardEmbed ranks tracked channels, with the campaign progress in the description.
func (f *ReportFormatter) LeaderboardEmbed(entries []domain.LeaderboardEntry, state *domain.ProgressState) domain.Embed {
	cfg := constants.LeaderboardConfig
	if len(entries) > cfg.Limit {
		entries = entries[:cfg.Limit]
	}

	embed := domain.Embed{
		Title:       cfg.Title,
		Color:       cfg.Color,
		Timestamp:   f.timestamp(),
		Description: util.TruncateString(f.render("leaderboard", entries), constants.StringLimits.EmbedDescription),
	}
	if state != nil {
		pct := progress.Percentage(state.CurrentViews, state.TargetViews)
		embed.Fields = append(embed.Fields, field(
			fmt.Sprintf("**%s Campaign**", state.CampaignName),
			fmt.Sprintf("`%s` %s%%", Bar(pct, constants.ProgressConfig.BarLength), progress.FormatPercent(pct)),
			false,
		))
	}
	return embed
}

// FinalReportEmbed summarizes a campaign that reached its target.
func (f *ReportFormatter) FinalReportEmbed(r domain.FinalReport) domain.Embed {
	cfg := constants.LeaderboardConfig
	standings := r.Standings
	if len(standings) > cfg.Limit {
		standings = standings[:cfg.Limit]
	}

	embed := domain.Embed{
		Title:       cfg.FinalTitle,
		Color:       constants.ProgressConfig.ColorDone,
		Timestamp:   f.timestamp(),
		Description: f.render("final_summary", r),
		Footer:      &domain.EmbedFooter{Text: fmt.Sprintf(cfg.FinalFooter, r.Campaign.CampaignName)},
	}
	if board := f.render("leaderboard", standings); board != "" {
		embed.Fields = append(embed.Fields, field("**Final Standings**", board, false))
	}
	top := r.TopVideos
	if len(top) > constants.ReportConfig.TopVideos {
		top = top[:constants.ReportConfig.TopVideos]
	}
	if videos := f.render("top_videos", top); videos != "" {
		embed.Fields = append(embed.Fields, field(constants.ReportConfig.FieldTopVideos, videos, false))
	}
	return embed
}

// IsFinalReport reports whether e is the final report posted for campaign.
func IsFinalReport(e domain.Embed, campaign string) bool {
	cfg := constants.LeaderboardConfig
	return e.Title == cfg.FinalTitle && e.Footer != nil &&
		e.Footer.Text == fmt.Sprintf(cfg.FinalFooter, campaign)
}

func (f *ReportFormatter) Help() string {
	return f.render("help", struct {
		LedgerChannel    string
		ExecutionChannel string
	}{f.ledgerChannel, f.executionChannel})
}

// SoftWarning is the interim reply shown while a long analysis is still running.
func (f *ReportFormatter) SoftWarning() string {
	return fmt.Sprintf(constants.ReplyText.SoftWarning, f.executionChannel)
}

// Redirected prefixes a report that could not be delivered to an expired interaction.
func (f *ReportFormatter) Redirected(userID string) string {
	return fmt.Sprintf(constants.ReplyText.Redirected, userID)
}

func (f *ReportFormatter) FormatError(message string) string {
	return fmt.Sprintf("❌ %s", message)
}
