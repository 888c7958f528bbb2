package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Store is the key/value surface shared by the in-process and Redis caches.
// Values are JSON-encoded on Set and decoded into dest on Get, so callers
// always receive their own copy.
type Store interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// PrefixInvalidator is implemented by stores that can drop a key range.
type PrefixInvalidator interface {
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
}

// ClearPrefixes drops every key under the given prefixes and returns the total
// removed. It keeps going after a failure and returns the first error.
func ClearPrefixes(ctx context.Context, store PrefixInvalidator, prefixes ...string) (int, error) {
	var (
		total    int
		firstErr error
	)
	for _, prefix := range prefixes {
		n, err := store.InvalidatePrefix(ctx, prefix)
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}

// Loader produces a fresh value on a cache miss. keep=false hands the value to
// the caller without storing it, e.g. for a partial scan.
type Loader[T any] func(ctx context.Context) (value T, keep bool, err error)

// GetOrLoad returns the cached value for key unless refresh is set or the entry
// is absent or expired, in which case loader runs and its result is stored
// when the loader asks to keep it. Cache read/write failures are logged and
// never mask the loader result.
func GetOrLoad[T any](ctx context.Context, store Store, key string, ttl time.Duration, refresh bool, loader Loader[T], logger *zap.Logger) (T, error) {
	if !refresh {
		var cached T
		found, err := store.Get(ctx, key, &cached)
		if err != nil && logger != nil {
			logger.Warn("Cache read failed, reloading", zap.String("key", key), zap.Error(err))
		}
		if found && err == nil {
			return cached, nil
		}
	}

	value, keep, err := loader(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if !keep {
		return value, nil
	}

	if err := store.Set(ctx, key, value, ttl); err != nil && logger != nil {
		logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
