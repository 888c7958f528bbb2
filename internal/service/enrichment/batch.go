package enrichment

import (
	"context"
	"time"

	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/util"
	"go.uber.org/zap"
)

// ChunkErrorCode marks records synthesized for URLs whose chunk failed.
const ChunkErrorCode = "chunk_failed"

// ChunkFunc is told how many chunks have completed.
type ChunkFunc func(done, total int)

// BatchRunner splits large URL lists into fixed-size chunks with a pause
// between them. A failed chunk is converted into per-URL error records so the
// remaining chunks still run.
type BatchRunner struct {
	enricher  Enricher
	chunkSize int
	delay     time.Duration
	onChunk   ChunkFunc
	logger    *zap.Logger
}

func NewBatchRunner(enricher Enricher, chunkSize int, delay time.Duration, logger *zap.Logger) *BatchRunner {
	if chunkSize <= 0 {
		chunkSize = constants.EnrichmentConfig.ChunkSize
	}
	if delay < 0 {
		delay = constants.EnrichmentConfig.ChunkDelay
	}
	return &BatchRunner{
		enricher:  enricher,
		chunkSize: chunkSize,
		delay:     delay,
		logger:    util.OrNop(logger),
	}
}

// WithProgress returns a copy of the runner that reports chunk completion to fn.
func (b *BatchRunner) WithProgress(fn ChunkFunc) *BatchRunner {
	clone := *b
	clone.onChunk = fn
	return &clone
}

func (b *BatchRunner) Run(ctx context.Context, urls []string) ([]domain.EnrichmentRecord, error) {
	chunks := util.Chunk(urls, b.chunkSize)
	records := make([]domain.EnrichmentRecord, 0, len(urls))

	for i, chunk := range chunks {
		if i > 0 {
			if err := util.Sleep(ctx, b.delay); err != nil {
				return records, err
			}
		}

		got, err := b.enricher.Run(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			b.logger.Error("Enrichment chunk failed",
				zap.Int("chunk", i+1),
				zap.Int("chunks", len(chunks)),
				zap.Int("urls", len(chunk)),
				zap.Error(err),
			)
			for _, u := range chunk {
				records = append(records, domain.EnrichmentRecord{
					InputURL:  u,
					Error:     ChunkErrorCode,
					ErrorDesc: err.Error(),
				})
			}
		} else {
			records = append(records, got...)
		}

		if b.onChunk != nil {
			b.onChunk(i+1, len(chunks))
		}
	}

	return records, nil
}
