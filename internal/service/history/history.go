// Package history pages backward through a channel's message history.
package history

import (
	"context"
	"time"

	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/util"
	"go.uber.org/zap"
)

// PageFetcher returns up to limit messages older than before, newest first.
// An empty before starts from the newest message.
type PageFetcher interface {
	FetchMessagesPage(ctx context.Context, channelID string, limit int, before string) ([]domain.Message, error)
}

// Visitor is called for every fetched message in newest-to-oldest order.
// Returning false stops the walk.
type Visitor func(msg domain.Message) bool

// Fetcher walks history page by page, newest to oldest.
type Fetcher struct {
	pages     PageFetcher
	pageSize  int
	pageDelay time.Duration
	logEvery  int
	logger    *zap.Logger
}

func NewFetcher(pages PageFetcher, pageDelay time.Duration, logger *zap.Logger) *Fetcher {
	if pageDelay < 0 {
		pageDelay = constants.FetchConfig.PageDelay
	}
	return &Fetcher{
		pages:     pages,
		pageSize:  constants.FetchConfig.PageSize,
		pageDelay: pageDelay,
		logEvery:  constants.FetchConfig.ProgressLogEvery,
		logger:    util.OrNop(logger),
	}
}

// Walk visits up to maxMessages messages. Pages are requested with the oldest id
// of the previous page as cursor, and a full page is followed by the configured
// delay. It returns the number of messages visited and the error that ended the
// walk, if any; messages visited before an error remain valid.
func (f *Fetcher) Walk(ctx context.Context, channelID string, maxMessages int, visit Visitor) (int, error) {
	fetched := 0
	before := ""

	for fetched < maxMessages {
		limit := f.pageSize
		if remaining := maxMessages - fetched; remaining < limit {
			limit = remaining
		}

		batch, err := f.pages.FetchMessagesPage(ctx, channelID, limit, before)
		if err != nil {
			f.logger.Error("Message page fetch failed",
				zap.String("channel_id", channelID),
				zap.Int("fetched", fetched),
				zap.Error(err),
			)
			return fetched, err
		}
		if len(batch) == 0 {
			break
		}

		for _, msg := range batch {
			fetched++
			if !visit(msg) {
				return fetched, nil
			}
		}
		before = batch[len(batch)-1].ID

		if f.logEvery > 0 && fetched%f.logEvery == 0 {
			f.logger.Debug("Fetching history",
				zap.String("channel_id", channelID),
				zap.Int("fetched", fetched),
			)
		}

		if len(batch) == f.pageSize {
			if err := util.Sleep(ctx, f.pageDelay); err != nil {
				return fetched, err
			}
		}
	}

	f.logger.Info("History fetched",
		zap.String("channel_id", channelID),
		zap.Int("messages", fetched),
	)
	return fetched, nil
}

// FetchAll collects up to maxMessages messages. On error it returns the partial
// slice together with the error.
func (f *Fetcher) FetchAll(ctx context.Context, channelID string, maxMessages int) ([]domain.Message, error) {
	messages := make([]domain.Message, 0, min(maxMessages, 1024))
	_, err := f.Walk(ctx, channelID, maxMessages, func(msg domain.Message) bool {
		messages = append(messages, msg)
		return true
	})
	return messages, err
}
