package command

import (
	"context"
	"fmt"

	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/discord"
	"github.com/kapu/reel-views-bot/internal/domain"
	"go.uber.org/zap"
)

type ClearCacheCommand struct {
	deps *Dependencies
}

func NewClearCacheCommand(deps *Dependencies) *ClearCacheCommand {
	return &ClearCacheCommand{deps: deps}
}

func (c *ClearCacheCommand) Name() string {
	return string(domain.CommandClearCache)
}

func (c *ClearCacheCommand) Description() string {
	return "Drop cached URLs, ledgers and progress settings"
}

func (c *ClearCacheCommand) Options() []discord.CommandOption {
	return nil
}

func (c *ClearCacheCommand) AdminOnly() bool {
	return true
}

func (c *ClearCacheCommand) Execute(ctx context.Context, cmdCtx *domain.CommandContext, _ map[string]any) error {
	if c.deps.ClearCache == nil {
		return fmt.Errorf("cache clearing not configured")
	}
	n, err := c.deps.ClearCache(ctx)
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	c.deps.logger().Info("Caches cleared", zap.Int("entries", n), zap.String("user", cmdCtx.Username))
	return replyText(ctx, cmdCtx, fmt.Sprintf(constants.ReplyText.CacheCleared, n))
}
