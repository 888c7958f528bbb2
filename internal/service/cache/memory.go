package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/kapu/reel-views-bot/pkg/errors"
	"go.uber.org/zap"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryCache is a process-local Store. Expired entries are treated as absent
// and dropped lazily on access.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
	logger  *zap.Logger
}

func NewMemoryCache(logger *zap.Logger) *MemoryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock replaces the time source. Used by tests to step past TTLs.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return false, nil
	}

	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		if current, still := c.entries[key]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return false, nil
	}

	if dest != nil {
		if err := json.Unmarshal(entry.data, dest); err != nil {
			return false, errors.NewCacheError("unmarshal failed", "get", key, err)
		}
	}
	return true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.NewCacheError("marshal failed", "set", key, err)
	}

	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// InvalidatePrefix drops every key starting with prefix and returns how many were removed.
func (c *MemoryCache) InvalidatePrefix(_ context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	count := len(c.entries)
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()

	c.logger.Info("Memory cache cleared", zap.Int("entries", count))
	return nil
}

// Len counts live (unexpired) entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	n := 0
	for _, entry := range c.entries {
		if entry.expiresAt.IsZero() || now.Before(entry.expiresAt) {
			n++
		}
	}
	return n
}
