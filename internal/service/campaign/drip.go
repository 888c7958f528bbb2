package campaign

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/kapu/reel-views-bot/internal/adapter"
	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/observability"
	"github.com/kapu/reel-views-bot/internal/service/enrichment"
	"github.com/kapu/reel-views-bot/internal/service/extract"
	"github.com/kapu/reel-views-bot/internal/service/history"
	"github.com/kapu/reel-views-bot/internal/util"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const queueScanConcurrency = 3

// DripChannels is the chat surface the drip updater posts to.
type DripChannels interface {
	ChannelStore
	GetChannel(ctx context.Context, channelID string) (*domain.Channel, error)
	FindChannelsByNamePrefix(ctx context.Context, guildID, prefix string, channelType domain.ChannelType) ([]domain.Channel, error)
	EditMessage(ctx context.Context, channelID, messageID string, msg domain.OutgoingMessage) (*domain.Message, error)
}

// VideoLedgerStore reads both ledgers and stores locally updated video ledgers.
type VideoLedgerStore interface {
	LedgerSource
	ReadVideoLedger(ctx context.Context, channelID string, useCache bool) domain.VideoLedger
	Remember(ctx context.Context, channelID string, videos domain.VideoLedger)
}

// HistoryWalker replays a channel's messages newest first.
type HistoryWalker interface {
	Walk(ctx context.Context, channelID string, maxMessages int, visit history.Visitor) (int, error)
}

type DripConfig struct {
	GuildID                string
	Interval               time.Duration
	ChannelIDs             []string
	ChannelPrefix          string
	LedgerChannelName      string
	LeaderboardChannelName string
	FinalReportDelay       time.Duration
}

type dripItem struct {
	URL     string
	Channel domain.Channel
}

// DripUpdater re-checks one tracked video per tick and keeps the leaderboard
// and campaign progress current. Once the campaign target is reached it stops
// processing and schedules a single final report.
type DripUpdater struct {
	channels  DripChannels
	urls      URLSource
	enricher  enrichment.Enricher
	ledger    VideoLedgerStore
	history   HistoryWalker
	tracker   ProgressTracker
	formatter *adapter.ReportFormatter
	cfg       DripConfig
	logger    *zap.Logger

	tickMu sync.Mutex

	mu            sync.Mutex
	queue         []dripItem
	finished      map[string]bool
	leaderboardID string
	finalTimer    *time.Timer

	shuffle func([]dripItem)
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewDripUpdater builds the updater. A nil enricher leaves every tick idle.
func NewDripUpdater(
	channels DripChannels,
	urls URLSource,
	enricher enrichment.Enricher,
	ledger VideoLedgerStore,
	replay HistoryWalker,
	tracker ProgressTracker,
	formatter *adapter.ReportFormatter,
	cfg DripConfig,
	logger *zap.Logger,
) *DripUpdater {
	return &DripUpdater{
		channels:  channels,
		urls:      urls,
		enricher:  enricher,
		ledger:    ledger,
		history:   replay,
		tracker:   tracker,
		formatter: formatter,
		cfg:       cfg,
		logger:    util.OrNop(logger).With(zap.String("component", "drip")),
		finished:  make(map[string]bool),
		shuffle: func(items []dripItem) {
			rand.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
		},
	}
}

// Start runs Tick on every interval until ctx is done or Stop is called.
func (d *DripUpdater) Start(ctx context.Context) {
	d.mu.Lock()
	if d.stopCh != nil {
		d.mu.Unlock()
		return
	}
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	d.logger.Info("Drip updater started", zap.Duration("interval", d.cfg.Interval))

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				d.safeTick(ctx)
			}
		}
	}()
}

// safeTick keeps a panicking tick from taking the process down.
func (d *DripUpdater) safeTick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			observability.DripUpdates.WithLabelValues("error").Inc()
			d.logger.Error("Drip tick panicked", zap.Any("panic", rec), zap.Stack("stack"))
		}
	}()
	if _, err := d.Tick(ctx); err != nil {
		d.logger.Warn("Drip tick failed", zap.Error(err))
	}
}

// Stop halts the ticker and cancels a pending final report.
func (d *DripUpdater) Stop() {
	d.mu.Lock()
	stopCh, doneCh := d.stopCh, d.doneCh
	d.stopCh, d.doneCh = nil, nil
	if d.finalTimer != nil {
		d.finalTimer.Stop()
		d.finalTimer = nil
	}
	d.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
	d.logger.Info("Drip updater stopped")
}

// QueueLen is the number of videos waiting to be re-checked.
func (d *DripUpdater) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Tick processes at most one queued video. It reports whether a video was updated.
func (d *DripUpdater) Tick(ctx context.Context) (bool, error) {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	if d.enricher == nil {
		observability.DripUpdates.WithLabelValues("disabled").Inc()
		return false, nil
	}

	settings, active, err := d.tracker.Settings(ctx, d.cfg.GuildID, false)
	if err != nil {
		d.logger.Warn("Progress settings unavailable", zap.Error(err))
	}
	if active {
		done, err := d.campaignDone(ctx, settings)
		if err != nil {
			observability.DripUpdates.WithLabelValues("error").Inc()
			return false, err
		}
		if done {
			observability.DripUpdates.WithLabelValues("finished").Inc()
			return false, nil
		}
	}

	item, ok, err := d.next(ctx)
	if err != nil {
		observability.DripUpdates.WithLabelValues("error").Inc()
		return false, err
	}
	if !ok {
		observability.DripUpdates.WithLabelValues("empty").Inc()
		return false, nil
	}

	log := d.logger.With(zap.String("url", item.URL), zap.String("channel", item.Channel.Label()))

	records, err := d.enricher.Run(ctx, []string{item.URL})
	if err != nil {
		observability.DripUpdates.WithLabelValues("error").Inc()
		return false, fmt.Errorf("enrich %s: %w", item.URL, err)
	}
	record, ok := firstValid(records)
	if !ok {
		log.Info("No usable data for video")
		observability.DripUpdates.WithLabelValues("skipped").Inc()
		return false, nil
	}

	ledgerCh, err := d.channels.FindTextChannelByName(ctx, d.cfg.GuildID, d.cfg.LedgerChannelName)
	if err != nil {
		observability.DripUpdates.WithLabelValues("error").Inc()
		return false, fmt.Errorf("find ledger channel: %w", err)
	}
	if ledgerCh == nil {
		observability.DripUpdates.WithLabelValues("error").Inc()
		return false, fmt.Errorf("ledger channel #%s not found", d.cfg.LedgerChannelName)
	}

	label := item.Channel.Label()
	videos := d.ledger.ReadVideoLedger(ctx, ledgerCh.ID, true)
	if videos == nil {
		videos = make(domain.VideoLedger)
	}
	previous := videos[label][item.URL]
	videos.Set(label, item.URL, record.Views())
	d.ledger.Remember(ctx, ledgerCh.ID, videos)

	update := domain.VideoUpdate{
		ChannelLabel: label,
		URL:          item.URL,
		Views:        record.Views(),
		Previous:     previous,
		Owner:        record.OwnerUsername,
		ShortCode:    record.ShortCode,
	}
	msg := domain.OutgoingMessage{Embeds: []domain.Embed{d.formatter.VideoUpdateEmbed(update)}}
	if _, err := d.channels.SendMessage(ctx, ledgerCh.ID, msg); err != nil {
		log.Warn("Failed to post video update to ledger", zap.Error(err))
	}
	if _, err := d.channels.SendMessage(ctx, item.Channel.ID, msg); err != nil {
		log.Warn("Failed to post video update to source channel", zap.Error(err))
	}

	merged := mergeLedgers(d.ledger.ReadLedger(ctx, ledgerCh.ID, true), videos)
	total := merged.Total()
	observability.LedgerTotalViews.Set(float64(total))

	_, state, tracked, err := d.tracker.Update(ctx, d.cfg.GuildID, total)
	if err != nil {
		log.Warn("Progress update failed", zap.Error(err))
	}
	var statePtr *domain.ProgressState
	if tracked {
		statePtr = &state
	}
	d.publishLeaderboard(ctx, standings(merged, videos), statePtr)

	log.Info("Video updated",
		zap.Int64("views", update.Views),
		zap.Int64("previous", previous),
		zap.Int64("grand_total", total),
	)
	observability.DripUpdates.WithLabelValues("ok").Inc()

	if tracked && state.TargetViews > 0 && total >= state.TargetViews {
		d.finish(state)
	}
	return true, nil
}

// next pops the head of the queue, rebuilding it first when empty.
func (d *DripUpdater) next(ctx context.Context) (dripItem, bool, error) {
	d.mu.Lock()
	empty := len(d.queue) == 0
	d.mu.Unlock()

	if empty {
		items, err := d.buildQueue(ctx)
		if err != nil {
			return dripItem{}, false, err
		}
		d.mu.Lock()
		d.queue = items
		d.mu.Unlock()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		observability.DripQueueSize.Set(0)
		return dripItem{}, false, nil
	}
	item := d.queue[0]
	d.queue = d.queue[1:]
	observability.DripQueueSize.Set(float64(len(d.queue)))
	return item, true, nil
}

func (d *DripUpdater) trackedChannels(ctx context.Context) ([]domain.Channel, error) {
	if len(d.cfg.ChannelIDs) == 0 {
		return d.channels.FindChannelsByNamePrefix(ctx, d.cfg.GuildID, d.cfg.ChannelPrefix, domain.ChannelTypeText)
	}

	out := make([]domain.Channel, 0, len(d.cfg.ChannelIDs))
	for _, id := range d.cfg.ChannelIDs {
		ch, err := d.channels.GetChannel(ctx, id)
		if err != nil {
			d.logger.Warn("Tracked channel unavailable", zap.String("channel_id", id), zap.Error(err))
			continue
		}
		out = append(out, *ch)
	}
	return out, nil
}

// buildQueue scans every tracked channel once and shuffles the pairs found.
func (d *DripUpdater) buildQueue(ctx context.Context) ([]dripItem, error) {
	channels, err := d.trackedChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tracked channels: %w", err)
	}
	if len(channels) == 0 {
		return nil, nil
	}

	p := pool.New().WithMaxGoroutines(queueScanConcurrency)
	results := make([][]dripItem, len(channels))
	var resultsMu sync.Mutex

	for idx, ch := range channels {
		p.Go(func() {
			res, err := d.urls.ChannelURLs(ctx, ch.ID, true)
			if err != nil {
				d.logger.Warn("Tracked channel scan failed", zap.String("channel", ch.Label()), zap.Error(err))
				return
			}
			items := make([]dripItem, 0, len(res.URLs))
			for _, u := range res.URLs {
				items = append(items, dripItem{URL: u, Channel: ch})
			}
			resultsMu.Lock()
			results[idx] = items
			resultsMu.Unlock()
		})
	}
	p.Wait()

	var queue []dripItem
	for _, items := range results {
		queue = append(queue, items...)
	}
	d.shuffle(queue)

	d.logger.Info("Drip queue rebuilt", zap.Int("channels", len(channels)), zap.Int("videos", len(queue)))
	return queue, nil
}

func (d *DripUpdater) publishLeaderboard(ctx context.Context, entries []domain.LeaderboardEntry, state *domain.ProgressState) {
	ch := d.leaderboardChannel(ctx)
	if ch == nil {
		return
	}
	msg := domain.OutgoingMessage{Embeds: []domain.Embed{d.formatter.LeaderboardEmbed(entries, state)}}

	d.mu.Lock()
	msgID := d.leaderboardID
	d.mu.Unlock()

	if msgID != "" {
		_, err := d.channels.EditMessage(ctx, ch.ID, msgID, msg)
		if err == nil {
			return
		}
		d.logger.Warn("Leaderboard edit failed, posting a new one", zap.Error(err))
	}

	sent, err := d.channels.SendMessage(ctx, ch.ID, msg)
	if err != nil {
		d.logger.Warn("Failed to post leaderboard", zap.Error(err))
		return
	}
	d.mu.Lock()
	d.leaderboardID = sent.ID
	d.mu.Unlock()
}

func (d *DripUpdater) leaderboardChannel(ctx context.Context) *domain.Channel {
	if d.cfg.LeaderboardChannelName == "" {
		return nil
	}
	ch, err := d.channels.FindTextChannelByName(ctx, d.cfg.GuildID, d.cfg.LeaderboardChannelName)
	if err != nil {
		d.logger.Warn("Leaderboard channel lookup failed", zap.Error(err))
		return nil
	}
	return ch
}

// campaignDone reports whether the active campaign has already reached its
// target. A campaign found complete here, typically after a restart, gets a
// final report only when channel history does not hold one yet.
func (d *DripUpdater) campaignDone(ctx context.Context, settings domain.ProgressSettings) (bool, error) {
	if d.isFinished(settings.CampaignName) {
		return true, nil
	}
	if settings.Target <= 0 {
		return false, nil
	}

	ledgerCh, err := d.channels.FindTextChannelByName(ctx, d.cfg.GuildID, d.cfg.LedgerChannelName)
	if err != nil {
		return false, fmt.Errorf("find ledger channel: %w", err)
	}
	if ledgerCh == nil {
		return false, nil
	}
	total := mergeLedgers(
		d.ledger.ReadLedger(ctx, ledgerCh.ID, true),
		d.ledger.ReadVideoLedger(ctx, ledgerCh.ID, true),
	).Total()
	if total < settings.Target {
		return false, nil
	}

	posted, err := d.finalReportPosted(ctx, settings.CampaignName, ledgerCh)
	if err != nil {
		return false, err
	}
	state := domain.ProgressState{CampaignName: settings.CampaignName, CurrentViews: total, TargetViews: settings.Target}
	if posted {
		d.markFinished(state.CampaignName)
		d.logger.Info("Campaign already complete, final report found",
			zap.String("campaign", state.CampaignName),
			zap.Int64("total", total),
		)
		return true, nil
	}
	d.finish(state)
	return true, nil
}

// finalReportPosted scans the leaderboard channel, then the ledger channel, for
// a final report of campaign.
func (d *DripUpdater) finalReportPosted(ctx context.Context, campaign string, ledgerCh *domain.Channel) (bool, error) {
	if d.history == nil {
		return false, nil
	}
	channelIDs := []string{ledgerCh.ID}
	if ch := d.leaderboardChannel(ctx); ch != nil && ch.ID != ledgerCh.ID {
		channelIDs = []string{ch.ID, ledgerCh.ID}
	}

	for _, id := range channelIDs {
		found := false
		_, err := d.history.Walk(ctx, id, constants.LeaderboardConfig.FinalScanLimit, func(msg domain.Message) bool {
			for _, e := range msg.Embeds {
				if adapter.IsFinalReport(e, campaign) {
					found = true
					return false
				}
			}
			return true
		})
		if err != nil {
			return false, fmt.Errorf("scan %s for final report: %w", id, err)
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

func (d *DripUpdater) markFinished(campaign string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finished[campaign] = true
	d.queue = nil
	observability.DripQueueSize.Set(0)
}

func (d *DripUpdater) isFinished(campaign string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finished[campaign]
}

// finish marks the campaign done and schedules its final report once.
func (d *DripUpdater) finish(state domain.ProgressState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished[state.CampaignName] {
		return
	}
	d.finished[state.CampaignName] = true
	d.queue = nil
	observability.DripQueueSize.Set(0)

	d.logger.Info("Campaign target reached, scheduling final report",
		zap.String("campaign", state.CampaignName),
		zap.Int64("target", state.TargetViews),
		zap.Duration("delay", d.cfg.FinalReportDelay),
	)
	d.finalTimer = time.AfterFunc(d.cfg.FinalReportDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := d.SendFinalReport(ctx, state); err != nil {
			d.logger.Error("Final report failed", zap.String("campaign", state.CampaignName), zap.Error(err))
		}
	})
}

// SendFinalReport posts per-channel totals and top videos for a finished campaign.
func (d *DripUpdater) SendFinalReport(ctx context.Context, state domain.ProgressState) error {
	ledgerCh, err := d.channels.FindTextChannelByName(ctx, d.cfg.GuildID, d.cfg.LedgerChannelName)
	if err != nil {
		return fmt.Errorf("find ledger channel: %w", err)
	}
	if ledgerCh == nil {
		return fmt.Errorf("ledger channel #%s not found", d.cfg.LedgerChannelName)
	}

	videos := d.ledger.ReadVideoLedger(ctx, ledgerCh.ID, true)
	merged := mergeLedgers(d.ledger.ReadLedger(ctx, ledgerCh.ID, false), videos)
	report := domain.FinalReport{
		Campaign:  state,
		Standings: standings(merged, videos),
		TopVideos: topVideos(videos, constants.ReportConfig.TopVideos),
		Total:     merged.Total(),
	}

	target := ledgerCh
	if ch := d.leaderboardChannel(ctx); ch != nil {
		target = ch
	}
	msg := domain.OutgoingMessage{Embeds: []domain.Embed{d.formatter.FinalReportEmbed(report)}}
	if _, err := d.channels.SendMessage(ctx, target.ID, msg); err != nil {
		return fmt.Errorf("post final report: %w", err)
	}
	d.logger.Info("Final report posted", zap.String("campaign", state.CampaignName), zap.Int64("total", report.Total))
	return nil
}

func firstValid(records []domain.EnrichmentRecord) (domain.EnrichmentRecord, bool) {
	for _, r := range records {
		if r.IsValid() {
			return r, true
		}
	}
	return domain.EnrichmentRecord{}, false
}

// mergeLedgers takes, per channel, the larger of the last full report and the
// sum of its individually re-checked videos.
func mergeLedgers(reports domain.Ledger, videos domain.VideoLedger) domain.Ledger {
	merged := reports.Clone()
	for label, total := range videos.ChannelTotals() {
		if total > merged[label] {
			merged[label] = total
		}
	}
	return merged
}

func standings(merged domain.Ledger, videos domain.VideoLedger) []domain.LeaderboardEntry {
	sorted := merged.Sorted()
	out := make([]domain.LeaderboardEntry, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, domain.LeaderboardEntry{
			ChannelLabel: e.ChannelLabel,
			Views:        e.TotalViews,
			Videos:       len(videos[e.ChannelLabel]),
		})
	}
	return out
}

func topVideos(videos domain.VideoLedger, n int) []domain.VideoEntry {
	var out []domain.VideoEntry
	for _, byURL := range videos {
		for u, views := range byURL {
			out = append(out, domain.VideoEntry{URL: u, Views: views, ShortCode: extract.ShortCode(u)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].URL < out[j].URL
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
