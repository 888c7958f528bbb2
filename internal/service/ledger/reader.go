// Package ledger rebuilds the latest known view totals per source channel by
// replaying the report channel's history.
package ledger

import (
	"context"
	"time"

	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/service/cache"
	"github.com/kapu/reel-views-bot/internal/service/history"
	"github.com/kapu/reel-views-bot/internal/util"
	"go.uber.org/zap"
)

// Walker pages through history newest to oldest.
type Walker interface {
	Walk(ctx context.Context, channelID string, maxMessages int, visit history.Visitor) (int, error)
}

type Config struct {
	MaxMessages int
	LedgerTTL   time.Duration
	VideoTTL    time.Duration
}

// Reader reads channel and per-video ledgers, caching snapshots in a cache.Store.
type Reader struct {
	walker Walker
	store  cache.Store
	cfg    Config
	logger *zap.Logger
}

func NewReader(walker Walker, store cache.Store, cfg Config, logger *zap.Logger) *Reader {
	return &Reader{
		walker: walker,
		store:  store,
		cfg:    cfg,
		logger: util.OrNop(logger),
	}
}

func ledgerKey(channelID string) string      { return constants.CacheKeys.Ledger + channelID }
func videoLedgerKey(channelID string) string { return constants.CacheKeys.VideoLedger + channelID }

// scanFirstEmbeds walks history and hands each message's first embed to visit.
func (r *Reader) scanFirstEmbeds(ctx context.Context, channelID string, visit func(domain.Embed)) (int, error) {
	return r.walker.Walk(ctx, channelID, r.cfg.MaxMessages, func(msg domain.Message) bool {
		if len(msg.Embeds) > 0 {
			visit(msg.Embeds[0])
		}
		return true
	})
}

// load runs the cache-or-scan cycle shared by both ledgers. Scans that ended
// in an error are returned but not cached.
func load[T any](ctx context.Context, r *Reader, key string, ttl time.Duration, useCache bool, scan func() (T, error)) T {
	data, _ := cache.GetOrLoad(ctx, r.store, key, ttl, !useCache, func(context.Context) (T, bool, error) {
		data, err := scan()
		if err != nil {
			r.logger.Error("Ledger scan ended early, returning partial ledger",
				zap.String("key", key),
				zap.Error(err),
			)
			return data, false, nil
		}
		return data, true, nil
	}, r.logger)
	return data
}

// ReadLedger returns the latest total per channel label. The newest report for
// a label wins; older ones are ignored. Fetch errors never propagate: whatever
// was read before the failure is returned. The caller owns the returned map.
func (r *Reader) ReadLedger(ctx context.Context, channelID string, useCache bool) domain.Ledger {
	return load(ctx, r, ledgerKey(channelID), r.cfg.LedgerTTL, useCache, func() (domain.Ledger, error) {
		ledger := make(domain.Ledger)
		reports := 0
		n, err := r.scanFirstEmbeds(ctx, channelID, func(e domain.Embed) {
			label, views, ok := ParseReport(e)
			if !ok {
				return
			}
			reports++
			if _, seen := ledger[label]; !seen {
				ledger[label] = views
			}
		})
		r.logger.Info("Ledger replayed",
			zap.String("channel_id", channelID),
			zap.Int("messages", n),
			zap.Int("reports", reports),
			zap.Int("channels", len(ledger)),
		)
		return ledger, err
	})
}

// ReadVideoLedger returns the latest views per (channel, video) from drip updates.
func (r *Reader) ReadVideoLedger(ctx context.Context, channelID string, useCache bool) domain.VideoLedger {
	return load(ctx, r, videoLedgerKey(channelID), r.cfg.VideoTTL, useCache, func() (domain.VideoLedger, error) {
		videos := make(domain.VideoLedger)
		_, err := r.scanFirstEmbeds(ctx, channelID, func(e domain.Embed) {
			u, ok := ParseVideoUpdate(e)
			if !ok || videos.Has(u.ChannelLabel, u.URL) {
				return
			}
			videos.Set(u.ChannelLabel, u.URL, u.Views)
		})
		return videos, err
	})
}

// Remember stores a video ledger after the caller has updated it locally.
func (r *Reader) Remember(ctx context.Context, channelID string, videos domain.VideoLedger) {
	if err := r.store.Set(ctx, videoLedgerKey(channelID), videos, r.cfg.VideoTTL); err != nil {
		r.logger.Warn("Video ledger cache write failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// Invalidate drops both cached ledgers for channelID.
func (r *Reader) Invalidate(ctx context.Context, channelID string) {
	_ = r.store.Invalidate(ctx, ledgerKey(channelID))
	_ = r.store.Invalidate(ctx, videoLedgerKey(channelID))
}
