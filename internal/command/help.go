package command

import (
	"context"

	"github.com/kapu/reel-views-bot/internal/discord"
	"github.com/kapu/reel-views-bot/internal/domain"
)

type HelpCommand struct {
	deps *Dependencies
}

func NewHelpCommand(deps *Dependencies) *HelpCommand {
	return &HelpCommand{deps: deps}
}

func (c *HelpCommand) Name() string {
	return string(domain.CommandHelp)
}

func (c *HelpCommand) Description() string {
	return "Show available commands"
}

func (c *HelpCommand) Options() []discord.CommandOption {
	return nil
}

func (c *HelpCommand) AdminOnly() bool {
	return false
}

func (c *HelpCommand) Execute(ctx context.Context, cmdCtx *domain.CommandContext, _ map[string]any) error {
	return replyText(ctx, cmdCtx, c.deps.Formatter.Help())
}
