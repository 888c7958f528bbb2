package command

import (
	"context"
	"fmt"

	"github.com/kapu/reel-views-bot/internal/discord"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/pkg/errors"
	"go.uber.org/zap"
)

// ViewsCountCommand runs a full analysis over one source channel.
type ViewsCountCommand struct {
	deps *Dependencies
}

func NewViewsCountCommand(deps *Dependencies) *ViewsCountCommand {
	return &ViewsCountCommand{deps: deps}
}

func (c *ViewsCountCommand) Name() string {
	return string(domain.CommandViewsCount)
}

func (c *ViewsCountCommand) Description() string {
	return "Count Instagram reel views in a channel"
}

func (c *ViewsCountCommand) Options() []discord.CommandOption {
	return []discord.CommandOption{{
		Type:        discord.OptionTypeChannel,
		Name:        "channel",
		Description: "Channel to scan for Instagram links",
		Required:    true,
	}}
}

func (c *ViewsCountCommand) AdminOnly() bool {
	return true
}

func (c *ViewsCountCommand) Execute(ctx context.Context, cmdCtx *domain.CommandContext, params map[string]any) error {
	channelID := paramString(params, "channel")
	if channelID == "" {
		return errors.NewValidationError("a channel is required", "channel", channelID)
	}

	source, err := c.deps.Channels.GetChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("resolve source channel: %w", err)
	}
	if source.Type != domain.ChannelTypeText {
		return errors.NewValidationError("please pick a text channel", "channel", source.Label())
	}

	c.deps.logger().Info("View count requested",
		zap.String("channel", source.Label()),
		zap.String("user", cmdCtx.Username),
	)

	report, err := c.deps.Campaign.RunAnalysis(ctx, cmdCtx.GuildID, *source, func(status string) {
		cmdCtx.Reply.Status(ctx, status)
	})
	if err != nil {
		return err
	}

	return reply(ctx, cmdCtx, c.deps.Formatter.AnalysisMessage(report))
}
