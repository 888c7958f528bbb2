package extract

import (
	"context"
	"time"

	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/service/cache"
	"github.com/kapu/reel-views-bot/internal/util"
	"go.uber.org/zap"
)

// MessageSource fetches a channel's history, returning partial results on error.
type MessageSource interface {
	FetchAll(ctx context.Context, channelID string, maxMessages int) ([]domain.Message, error)
}

// Result is the outcome of scanning one channel.
type Result struct {
	URLs     []string `json:"urls"`
	Messages int      `json:"messages"`
	Partial  bool     `json:"partial"`
}

// CachedExtractor extracts URLs per source channel and caches them with a TTL.
type CachedExtractor struct {
	source      MessageSource
	store       cache.Store
	ttl         time.Duration
	maxMessages int
	logger      *zap.Logger
}

func NewCachedExtractor(source MessageSource, store cache.Store, ttl time.Duration, maxMessages int, logger *zap.Logger) *CachedExtractor {
	return &CachedExtractor{
		source:      source,
		store:       store,
		ttl:         ttl,
		maxMessages: maxMessages,
		logger:      util.OrNop(logger),
	}
}

func urlCacheKey(channelID string) string {
	return constants.CacheKeys.URLs + channelID
}

// ChannelURLs returns the canonical URLs posted in channelID. A fetch error is
// logged and whatever was read before it is used. Partial scans are not cached.
func (e *CachedExtractor) ChannelURLs(ctx context.Context, channelID string, refresh bool) (Result, error) {
	log := e.logger.With(zap.String("channel_id", channelID))
	return cache.GetOrLoad(ctx, e.store, urlCacheKey(channelID), e.ttl, refresh, func(ctx context.Context) (Result, bool, error) {
		res, err := e.scan(ctx, channelID)
		return res, !res.Partial, err
	}, log)
}

func (e *CachedExtractor) scan(ctx context.Context, channelID string) (Result, error) {
	messages, fetchErr := e.source.FetchAll(ctx, channelID, e.maxMessages)
	if fetchErr != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		e.logger.Warn("History fetch ended early, using partial messages",
			zap.String("channel_id", channelID),
			zap.Int("messages", len(messages)),
			zap.Error(fetchErr),
		)
	}

	res := Result{
		URLs:     Extract(messages),
		Messages: len(messages),
		Partial:  fetchErr != nil,
	}
	e.logger.Info("Extracted URLs",
		zap.String("channel_id", channelID),
		zap.Int("messages", res.Messages),
		zap.Int("urls", len(res.URLs)),
	)
	return res, nil
}

// Invalidate drops the cached URLs for channelID.
func (e *CachedExtractor) Invalidate(ctx context.Context, channelID string) error {
	return e.store.Invalidate(ctx, urlCacheKey(channelID))
}
