package command

import (
	"context"
	"fmt"

	"github.com/kapu/reel-views-bot/internal/discord"
	"github.com/kapu/reel-views-bot/internal/domain"
)

type StatusCommand struct {
	deps *Dependencies
}

func NewStatusCommand(deps *Dependencies) *StatusCommand {
	return &StatusCommand{deps: deps}
}

func (c *StatusCommand) Name() string {
	return string(domain.CommandStatus)
}

func (c *StatusCommand) Description() string {
	return "Show bot uptime, memory and connection health"
}

func (c *StatusCommand) Options() []discord.CommandOption {
	return nil
}

func (c *StatusCommand) AdminOnly() bool {
	return false
}

func (c *StatusCommand) Execute(ctx context.Context, cmdCtx *domain.CommandContext, _ map[string]any) error {
	if c.deps.Status == nil {
		return fmt.Errorf("status source not configured")
	}
	return replyEmbed(ctx, cmdCtx, c.deps.Formatter.StatusEmbed(c.deps.Status(ctx)))
}
