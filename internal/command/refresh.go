package command

import (
	"context"

	"github.com/kapu/reel-views-bot/internal/discord"
	"github.com/kapu/reel-views-bot/internal/domain"
)

// RefreshCommand re-reads the ledger and re-renders the progress channel.
type RefreshCommand struct {
	deps *Dependencies
}

func NewRefreshCommand(deps *Dependencies) *RefreshCommand {
	return &RefreshCommand{deps: deps}
}

func (c *RefreshCommand) Name() string {
	return string(domain.CommandRefresh)
}

func (c *RefreshCommand) Description() string {
	return "Rebuild totals from the views channel and update progress"
}

func (c *RefreshCommand) Options() []discord.CommandOption {
	return nil
}

func (c *RefreshCommand) AdminOnly() bool {
	return true
}

func (c *RefreshCommand) Execute(ctx context.Context, cmdCtx *domain.CommandContext, _ map[string]any) error {
	snap, err := c.deps.Campaign.Refresh(ctx, cmdCtx.GuildID)
	if err != nil {
		return err
	}
	return replyEmbed(ctx, cmdCtx, c.deps.Formatter.ProgressEmbed(*snap))
}
