// Package campaign runs the analysis pipeline and keeps campaign progress in
// step with the ledger channel.
package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/reel-views-bot/internal/adapter"
	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/observability"
	"github.com/kapu/reel-views-bot/internal/service/dedup"
	"github.com/kapu/reel-views-bot/internal/service/enrichment"
	"github.com/kapu/reel-views-bot/internal/service/export"
	"github.com/kapu/reel-views-bot/internal/service/extract"
	"github.com/kapu/reel-views-bot/internal/service/stats"
	"github.com/kapu/reel-views-bot/internal/util"
	"github.com/kapu/reel-views-bot/pkg/errors"
	"go.uber.org/zap"
)

// ChannelStore is the slice of the chat platform the orchestrator needs.
type ChannelStore interface {
	SendMessage(ctx context.Context, channelID string, msg domain.OutgoingMessage) (*domain.Message, error)
	FindTextChannelByName(ctx context.Context, guildID, name string) (*domain.Channel, error)
}

type URLSource interface {
	ChannelURLs(ctx context.Context, channelID string, refresh bool) (extract.Result, error)
}

type LedgerSource interface {
	ReadLedger(ctx context.Context, channelID string, useCache bool) domain.Ledger
}

type ProgressTracker interface {
	Settings(ctx context.Context, guildID string, refresh bool) (domain.ProgressSettings, bool, error)
	Setup(ctx context.Context, guildID, campaignName string, target, current int64) (*domain.Channel, error)
	Update(ctx context.Context, guildID string, current int64) (*domain.Channel, domain.ProgressState, bool, error)
}

// chunkedEnricher reports progress between enrichment chunks.
type chunkedEnricher interface {
	WithProgress(fn enrichment.ChunkFunc) *enrichment.BatchRunner
}

type Config struct {
	LedgerChannelName    string
	ExecutionChannelName string
	TopN                 int
}

// ProgressFunc receives interim status lines while a run is in flight.
type ProgressFunc func(status string)

type Orchestrator struct {
	channels  ChannelStore
	urls      URLSource
	enricher  enrichment.Enricher
	ledger    LedgerSource
	tracker   ProgressTracker
	exporter  export.Exporter
	formatter *adapter.ReportFormatter
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrchestrator wires the pipeline. enricher may be nil when no scraping
// token is configured; analysis runs then stop with a user-visible reason.
func NewOrchestrator(
	channels ChannelStore,
	urls URLSource,
	enricher enrichment.Enricher,
	ledger LedgerSource,
	tracker ProgressTracker,
	exporter export.Exporter,
	formatter *adapter.ReportFormatter,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.TopN <= 0 {
		cfg.TopN = stats.DefaultTopN
	}
	return &Orchestrator{
		channels:  channels,
		urls:      urls,
		enricher:  enricher,
		ledger:    ledger,
		tracker:   tracker,
		exporter:  exporter,
		formatter: formatter,
		cfg:       cfg,
		logger:    util.OrNop(logger),
		now:       time.Now,
	}
}

// RunAnalysis counts the views of every reel posted in source, publishes the
// report to the ledger channel and re-renders campaign progress from the
// refreshed ledger. Terminal outcomes such as "no URLs" are *errors.InputError.
func (o *Orchestrator) RunAnalysis(ctx context.Context, guildID string, source domain.Channel, progressFn ProgressFunc) (*domain.AnalysisReport, error) {
	start := o.now()
	runID := uuid.NewString()
	log := o.logger.With(
		zap.String("run_id", runID),
		zap.String("channel_id", source.ID),
		zap.String("channel", source.Name),
	)
	notify := func(status string) {
		if progressFn != nil {
			progressFn(status)
		}
	}
	defer func() {
		observability.AnalysisDurationSeconds.Observe(o.now().Sub(start).Seconds())
	}()

	log.Info("Starting analysis")

	scan, err := o.urls.ChannelURLs(ctx, source.ID, false)
	if err != nil {
		return nil, fmt.Errorf("extract urls: %w", err)
	}
	observability.URLsExtracted.Add(float64(len(scan.URLs)))
	if len(scan.URLs) == 0 {
		return nil, errors.NewInputError(constants.ReplyText.NoURLs)
	}
	if o.enricher == nil {
		return nil, errors.NewInputError(constants.ReplyText.NoEnrichment)
	}

	notify(fmt.Sprintf(constants.ReplyText.Processing, len(scan.URLs)))
	log.Info("Enriching URLs", zap.Int("urls", len(scan.URLs)), zap.Bool("partial_history", scan.Partial))

	enricher := o.enricher
	if chunked, ok := enricher.(chunkedEnricher); ok && progressFn != nil {
		enricher = chunked.WithProgress(func(done, total int) {
			if total > 1 && done < total {
				notify(fmt.Sprintf(constants.ReplyText.BatchProgress, done, total))
			}
		})
	}

	records, err := enricher.Run(ctx, scan.URLs)
	if err != nil {
		return nil, fmt.Errorf("enrichment: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.NewInputError(constants.ReplyText.NoData)
	}
	notify(fmt.Sprintf(constants.ReplyText.EnrichmentDone, len(records)))

	valid, errored := partition(records)
	observability.EnrichmentRecords.WithLabelValues("valid").Add(float64(len(valid)))
	observability.EnrichmentRecords.WithLabelValues("errored").Add(float64(len(errored)))
	log.Info("Enrichment results", zap.Int("valid", len(valid)), zap.Int("errored", len(errored)))

	if len(valid) == 0 {
		return nil, errors.NewInputError(fmt.Sprintf(constants.ReplyText.AllErrored, len(errored)))
	}

	unique := dedup.Dedup(valid)
	agg := stats.Aggregate(unique, o.cfg.TopN)
	if agg.TotalVideos == 0 {
		return nil, errors.NewInputError(constants.ReplyText.NoValidVideos)
	}

	report := &domain.AnalysisReport{
		RunID:          runID,
		Source:         source,
		Messages:       scan.Messages,
		PartialHistory: scan.Partial,
		URLCount:       len(scan.URLs),
		ItemsReceived:  len(records),
		ErroredItems:   len(errored),
		Duplicates:     len(valid) - len(unique),
		Result:         agg,
		FailedURLs:     failedInputs(errored, agg.FailedInputs),
	}

	ledgerCh := o.findChannel(ctx, guildID, o.cfg.LedgerChannelName, log)
	if ledgerCh != nil {
		report.PreviousViews = previousTotal(o.ledger.ReadLedger(ctx, ledgerCh.ID, true), source)
		log.Info("Previous total", zap.Int64("views", report.PreviousViews))
	}

	if data, err := o.exporter.Build(unique, nil); err != nil {
		log.Warn("Spreadsheet export failed", zap.Error(err))
	} else {
		report.Spreadsheet = &domain.Attachment{Name: export.FileName(source.Name, o.now()), Data: data}
	}
	report.Duration = o.now().Sub(start)

	if ledgerCh != nil {
		o.publish(ctx, ledgerCh, report, log)
		o.refreshProgress(ctx, guildID, ledgerCh, report, log)
	}

	o.ReportFailures(ctx, guildID, report.FailedURLs)

	log.Info("Analysis complete",
		zap.Int("videos", agg.TotalVideos),
		zap.Int64("views", agg.TotalViews),
		zap.Int("pages", len(agg.OwnerStats)),
		zap.Int("failed", len(report.FailedURLs)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (o *Orchestrator) publish(ctx context.Context, ledgerCh *domain.Channel, report *domain.AnalysisReport, log *zap.Logger) {
	msg := domain.OutgoingMessage{Embeds: []domain.Embed{o.formatter.AnalysisEmbed(report)}}
	if report.Spreadsheet != nil {
		msg.Attachments = []domain.Attachment{*report.Spreadsheet}
	}
	if _, err := o.channels.SendMessage(ctx, ledgerCh.ID, msg); err != nil {
		log.Error("Failed to publish report", zap.String("ledger_channel", ledgerCh.Name), zap.Error(err))
		return
	}
	report.Published = true
}

// refreshProgress re-reads the whole ledger, bypassing the cache, so progress
// reflects the total across every source channel.
func (o *Orchestrator) refreshProgress(ctx context.Context, guildID string, ledgerCh *domain.Channel, report *domain.AnalysisReport, log *zap.Logger) {
	current := o.ledger.ReadLedger(ctx, ledgerCh.ID, false)
	report.LedgerTotal = current.Total()
	observability.LedgerTotalViews.Set(float64(report.LedgerTotal))

	_, state, ok, err := o.tracker.Update(ctx, guildID, report.LedgerTotal)
	if err != nil {
		log.Warn("Progress update failed", zap.Error(err))
		return
	}
	if ok {
		report.Progress = &state
		log.Info("Progress updated",
			zap.String("campaign", state.CampaignName),
			zap.Int64("current", state.CurrentViews),
			zap.Int64("target", state.TargetViews),
		)
	}
}

// SetupProgress starts or replaces the campaign shown in the progress channel.
func (o *Orchestrator) SetupProgress(ctx context.Context, guildID, campaignName string, target int64) (*domain.ProgressSnapshot, error) {
	campaignName = strings.TrimSpace(campaignName)
	if campaignName == "" || strings.ContainsAny(campaignName, "()") {
		return nil, errors.NewValidationError("campaign name must be non-empty and free of parentheses", "campaign", campaignName)
	}
	if target <= 0 {
		return nil, errors.NewValidationError("target must be positive", "target", target)
	}

	ledgerCh, ledger, err := o.currentLedger(ctx, guildID)
	if err != nil {
		return nil, err
	}

	ch, err := o.tracker.Setup(ctx, guildID, campaignName, target, ledger.Total())
	if err != nil {
		return nil, fmt.Errorf("setup progress: %w", err)
	}

	o.logger.Info("Progress tracker set up",
		zap.String("guild_id", guildID),
		zap.String("campaign", campaignName),
		zap.Int64("target", target),
		zap.Int64("current", ledger.Total()),
		zap.String("ledger_channel", ledgerCh.Name),
	)
	return &domain.ProgressSnapshot{
		State: domain.ProgressState{
			CampaignName: campaignName,
			CurrentViews: ledger.Total(),
			TargetViews:  target,
		},
		Channel: ch,
		Ledger:  ledger,
	}, nil
}

// Refresh rebuilds the ledger and re-renders the existing campaign.
func (o *Orchestrator) Refresh(ctx context.Context, guildID string) (*domain.ProgressSnapshot, error) {
	_, ledger, err := o.currentLedger(ctx, guildID)
	if err != nil {
		return nil, err
	}

	ch, state, ok, err := o.tracker.Update(ctx, guildID, ledger.Total())
	if err != nil {
		return nil, fmt.Errorf("refresh progress: %w", err)
	}
	if !ok {
		return nil, errors.NewInputError(constants.ReplyText.NoProgress)
	}
	return &domain.ProgressSnapshot{State: state, Channel: ch, Ledger: ledger}, nil
}

func (o *Orchestrator) currentLedger(ctx context.Context, guildID string) (*domain.Channel, domain.Ledger, error) {
	ledgerCh, err := o.channels.FindTextChannelByName(ctx, guildID, o.cfg.LedgerChannelName)
	if err != nil {
		return nil, nil, fmt.Errorf("find ledger channel: %w", err)
	}
	if ledgerCh == nil {
		return nil, nil, errors.NewInputError(fmt.Sprintf(constants.ReplyText.NoLedger, o.cfg.LedgerChannelName))
	}
	ledger := o.ledger.ReadLedger(ctx, ledgerCh.ID, false)
	observability.LedgerTotalViews.Set(float64(ledger.Total()))
	return ledgerCh, ledger, nil
}

// ExecutionChannel returns the operational log channel, or nil when the guild has none.
func (o *Orchestrator) ExecutionChannel(ctx context.Context, guildID string) (*domain.Channel, error) {
	return o.channels.FindTextChannelByName(ctx, guildID, o.cfg.ExecutionChannelName)
}

// ReportFailures posts failed inputs to the execution channel, capped to the preview size.
func (o *Orchestrator) ReportFailures(ctx context.Context, guildID string, failed []string) {
	if len(failed) == 0 {
		return
	}
	ch := o.findChannel(ctx, guildID, o.cfg.ExecutionChannelName, o.logger)
	if ch == nil {
		return
	}
	msg := domain.OutgoingMessage{Content: o.formatter.FailedURLs(failed)}
	if _, err := o.channels.SendMessage(ctx, ch.ID, msg); err != nil {
		o.logger.Warn("Failed to report failed URLs", zap.Int("count", len(failed)), zap.Error(err))
	}
}

func (o *Orchestrator) findChannel(ctx context.Context, guildID, name string, log *zap.Logger) *domain.Channel {
	ch, err := o.channels.FindTextChannelByName(ctx, guildID, name)
	if err != nil {
		log.Warn("Channel lookup failed", zap.String("name", name), zap.Error(err))
		return nil
	}
	if ch == nil {
		log.Warn("Channel not found", zap.String("name", name))
	}
	return ch
}

// partition splits records into valid ones (no error flag, views present) and errored ones.
func partition(records []domain.EnrichmentRecord) (valid, errored []domain.EnrichmentRecord) {
	for _, r := range records {
		switch {
		case r.HasError():
			errored = append(errored, r)
		case r.HasViews():
			valid = append(valid, r)
		}
	}
	return valid, errored
}

func failedInputs(errored []domain.EnrichmentRecord, skipped []string) []string {
	out := make([]string, 0, len(errored)+len(skipped))
	for _, r := range errored {
		if r.InputURL != "" {
			out = append(out, r.InputURL)
		}
	}
	return append(out, skipped...)
}

// previousTotal looks the source up by "#name" first, then by "#id" for
// reports that stored the channel mention.
func previousTotal(ledger domain.Ledger, source domain.Channel) int64 {
	if v, ok := ledger[source.Label()]; ok {
		return v
	}
	return ledger[domain.ChannelLabel(source.ID)]
}
