package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kapu/reel-views-bot/internal/adapter"
	"github.com/kapu/reel-views-bot/internal/discord"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/service/campaign"
	"github.com/kapu/reel-views-bot/internal/util"
	"go.uber.org/zap"
)

type Command interface {
	Name() string
	Description() string
	Options() []discord.CommandOption
	// AdminOnly commands require an admin role or the ADMINISTRATOR permission.
	AdminOnly() bool
	Execute(ctx context.Context, cmdCtx *domain.CommandContext, params map[string]any) error
}

// Campaign is the analysis and progress surface commands drive.
type Campaign interface {
	RunAnalysis(ctx context.Context, guildID string, source domain.Channel, progress campaign.ProgressFunc) (*domain.AnalysisReport, error)
	SetupProgress(ctx context.Context, guildID, campaignName string, target int64) (*domain.ProgressSnapshot, error)
	Refresh(ctx context.Context, guildID string) (*domain.ProgressSnapshot, error)
}

type ChannelResolver interface {
	GetChannel(ctx context.Context, channelID string) (*domain.Channel, error)
}

type Dependencies struct {
	Campaign   Campaign
	Channels   ChannelResolver
	Formatter  *adapter.ReportFormatter
	Status     func(ctx context.Context) adapter.StatusInfo
	ClearCache func(ctx context.Context) (int, error)
	Logger     *zap.Logger
}

func (d *Dependencies) logger() *zap.Logger {
	return util.OrNop(d.Logger)
}

func paramString(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func paramInt64(params map[string]any, key string) (int64, bool) {
	switch v := params[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func reply(ctx context.Context, cmdCtx *domain.CommandContext, msg domain.OutgoingMessage) error {
	if cmdCtx == nil || cmdCtx.Reply == nil {
		return fmt.Errorf("command context has no reply handle")
	}
	return cmdCtx.Reply.Final(ctx, msg)
}

func replyText(ctx context.Context, cmdCtx *domain.CommandContext, text string) error {
	return reply(ctx, cmdCtx, domain.OutgoingMessage{Content: text})
}

func replyEmbed(ctx context.Context, cmdCtx *domain.CommandContext, embed domain.Embed) error {
	return reply(ctx, cmdCtx, domain.OutgoingMessage{Embeds: []domain.Embed{embed}})
}
