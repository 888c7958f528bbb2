package command

import (
	"context"

	"github.com/kapu/reel-views-bot/internal/discord"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/pkg/errors"
)

type ProgressBarCommand struct {
	deps *Dependencies
}

func NewProgressBarCommand(deps *Dependencies) *ProgressBarCommand {
	return &ProgressBarCommand{deps: deps}
}

func (c *ProgressBarCommand) Name() string {
	return string(domain.CommandProgressBar)
}

func (c *ProgressBarCommand) Description() string {
	return "Create or update the campaign progress channel"
}

func (c *ProgressBarCommand) Options() []discord.CommandOption {
	return []discord.CommandOption{
		{Type: discord.OptionTypeString, Name: "campaign", Description: "Campaign name", Required: true},
		{Type: discord.OptionTypeInteger, Name: "target", Description: "Target view count", Required: true},
	}
}

func (c *ProgressBarCommand) AdminOnly() bool {
	return true
}

func (c *ProgressBarCommand) Execute(ctx context.Context, cmdCtx *domain.CommandContext, params map[string]any) error {
	target, ok := paramInt64(params, "target")
	if !ok {
		return errors.NewValidationError("target must be a whole number", "target", params["target"])
	}

	snap, err := c.deps.Campaign.SetupProgress(ctx, cmdCtx.GuildID, paramString(params, "campaign"), target)
	if err != nil {
		return err
	}
	return replyEmbed(ctx, cmdCtx, c.deps.Formatter.ProgressEmbed(*snap))
}
