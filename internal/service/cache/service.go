package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kapu/reel-views-bot/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyPrefix namespaces every key this bot writes to Redis.
const KeyPrefix = "reelviews:"

// CacheService is the Redis-backed Store, used when REDIS_ENABLED is set so
// ledgers and progress settings survive restarts.
type CacheService struct {
	client *redis.Client
	logger *zap.Logger
}

type CacheConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func NewCacheService(cfg CacheConfig, logger *zap.Logger) (*CacheService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.NewCacheError("failed to connect to Redis", "ping", "", err)
	}

	logger.Info("Redis connected",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("db", cfg.DB),
	)

	return NewCacheServiceFromClient(client, logger), nil
}

// NewCacheServiceFromClient wraps an existing client without pinging it.
func NewCacheServiceFromClient(client *redis.Client, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		client: client,
		logger: logger,
	}
}

func (c *CacheService) Get(ctx context.Context, key string, dest any) (bool, error) {
	value, err := c.client.Get(ctx, KeyPrefix+key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.logger.Error("Cache get failed", zap.String("key", key), zap.Error(err))
		return false, errors.NewCacheError("get failed", "get", key, err)
	}

	if dest != nil {
		if err := json.Unmarshal([]byte(value), dest); err != nil {
			c.logger.Error("Cache unmarshal failed", zap.String("key", key), zap.Error(err))
			return false, errors.NewCacheError("unmarshal failed", "get", key, err)
		}
	}

	return true, nil
}

func (c *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return errors.NewCacheError("marshal failed", "set", key, err)
	}

	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, KeyPrefix+key, jsonData, ttl).Err(); err != nil {
		c.logger.Error("Cache set failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("set failed", "set", key, err)
	}

	return nil
}

func (c *CacheService) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, KeyPrefix+key).Err(); err != nil {
		c.logger.Error("Cache delete failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("delete failed", "del", key, err)
	}
	return nil
}

// Clear removes every key under KeyPrefix.
func (c *CacheService) Clear(ctx context.Context) error {
	keys, err := c.keys(ctx, KeyPrefix+"*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	deleted, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		c.logger.Error("Cache clear failed", zap.Int("count", len(keys)), zap.Error(err))
		return errors.NewCacheError("clear failed", "del", fmt.Sprintf("%d keys", len(keys)), err)
	}

	c.logger.Info("Redis cache cleared", zap.Int64("deleted", deleted))
	return nil
}

// InvalidatePrefix removes every key starting with prefix and returns how many were deleted.
func (c *CacheService) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := c.keys(ctx, KeyPrefix+prefix+"*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, errors.NewCacheError("invalidate prefix failed", "del", prefix, err)
	}
	return int(deleted), nil
}

func (c *CacheService) keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.logger.Error("Cache keys search failed", zap.String("pattern", pattern), zap.Error(err))
			return nil, errors.NewCacheError("keys search failed", "scan", pattern, err)
		}
		out = append(out, batch...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

func (c *CacheService) HSet(ctx context.Context, key string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if err := c.client.HSet(ctx, KeyPrefix+key, fields).Err(); err != nil {
		c.logger.Error("Cache hset failed", zap.String("key", key), zap.Int("fields", len(fields)), zap.Error(err))
		return errors.NewCacheError("hset failed", "hset", key, err)
	}
	return nil
}

func (c *CacheService) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	values, err := c.client.HGetAll(ctx, KeyPrefix+key).Result()
	if err != nil {
		c.logger.Error("Cache hgetall failed", zap.String("key", key), zap.Error(err))
		return map[string]string{}, errors.NewCacheError("hgetall failed", "hgetall", key, err)
	}
	return values, nil
}

func (c *CacheService) Close() error {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis connection", zap.Error(err))
		return err
	}
	c.logger.Info("Redis disconnected")
	return nil
}

func (c *CacheService) IsConnected(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}
