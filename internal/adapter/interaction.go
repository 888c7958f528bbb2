package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/discord"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/util"
	"github.com/kapu/reel-views-bot/pkg/errors"
	"go.uber.org/zap"
)

// ParsedCommand is a slash command reduced to its type and option values.
type ParsedCommand struct {
	Type   domain.CommandType
	Params map[string]any
}

// ParseInteraction maps an application command interaction to a command.
// Integer options decode to int64, everything else to string.
func ParseInteraction(in *discord.Interaction) *ParsedCommand {
	if in == nil || in.Type != discord.InteractionTypeApplicationCommand || in.Data == nil {
		return &ParsedCommand{Type: domain.CommandUnknown, Params: map[string]any{}}
	}

	cmdType := domain.CommandType(strings.ToLower(in.Data.Name))
	if !cmdType.IsValid() {
		cmdType = domain.CommandUnknown
	}

	params := make(map[string]any, len(in.Data.Options))
	for _, opt := range in.Data.Options {
		switch opt.Type {
		case discord.OptionTypeInteger:
			if n, ok := opt.Int64(); ok {
				params[opt.Name] = n
			}
		default:
			params[opt.Name] = strings.TrimSpace(opt.String())
		}
	}
	return &ParsedCommand{Type: cmdType, Params: params}
}

// Responder is the slice of the REST client replies need.
type Responder interface {
	DeferInteraction(ctx context.Context, interactionID, token string) error
	EditOriginalResponse(ctx context.Context, token string, msg domain.OutgoingMessage) error
	SendMessage(ctx context.Context, channelID string, msg domain.OutgoingMessage) (*domain.Message, error)
	FindTextChannelByName(ctx context.Context, guildID, name string) (*domain.Channel, error)
	ListGuildRoles(ctx context.Context, guildID string) ([]discord.Role, error)
}

type ReplyConfig struct {
	ExecutionChannel string
	SoftWarning      time.Duration
	HardExpiry       time.Duration
}

// InteractionAdapter turns gateway interactions into command contexts with a reply handle.
type InteractionAdapter struct {
	api       Responder
	formatter *ReportFormatter
	cfg       ReplyConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewInteractionAdapter(api Responder, formatter *ReportFormatter, cfg ReplyConfig, logger *zap.Logger) *InteractionAdapter {
	if cfg.SoftWarning <= 0 {
		cfg.SoftWarning = constants.InteractionConfig.SoftWarning
	}
	if cfg.HardExpiry <= 0 {
		cfg.HardExpiry = constants.InteractionConfig.HardExpiry
	}
	return &InteractionAdapter{
		api:       api,
		formatter: formatter,
		cfg:       cfg,
		logger:    util.OrNop(logger),
		now:       time.Now,
	}
}

// BuildContext fills a CommandContext from the interaction payload alone.
// RoleNames stay empty until Accept resolves them.
func (a *InteractionAdapter) BuildContext(in *discord.Interaction) *domain.CommandContext {
	user := in.Invoker()
	cmdCtx := domain.NewCommandContext(in.GuildID, in.ChannelID, user.ID, user.Username)
	cmdCtx.InteractionID = in.ID
	cmdCtx.InteractionToken = in.Token
	cmdCtx.Timestamp = a.now()

	if in.Member != nil {
		cmdCtx.Permissions = in.Member.PermissionBits()
	}
	cmdCtx.Reply = a.NewReply(cmdCtx)
	return cmdCtx
}

// Accept builds the context, acknowledges the interaction and only then
// resolves the invoker's role names, so a slow role lookup cannot overrun the
// acknowledgement window. The context is usable even when the returned defer
// error is non-nil; a failed role lookup leaves RoleNames empty.
func (a *InteractionAdapter) Accept(ctx context.Context, in *discord.Interaction) (*domain.CommandContext, error) {
	cmdCtx := a.BuildContext(in)
	deferErr := cmdCtx.Reply.(*Reply).Defer(ctx)

	if in.Member != nil && len(in.Member.Roles) > 0 && in.GuildID != "" {
		cmdCtx.RoleNames = a.roleNames(ctx, in.GuildID, in.Member.Roles)
	}
	return cmdCtx, deferErr
}

func (a *InteractionAdapter) roleNames(ctx context.Context, guildID string, ids []string) []string {
	roles, err := a.api.ListGuildRoles(ctx, guildID)
	if err != nil {
		a.logger.Warn("Failed to resolve member roles", zap.String("guild_id", guildID), zap.Error(err))
		return nil
	}
	byID := make(map[string]string, len(roles))
	for _, r := range roles {
		byID[r.ID] = r.Name
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		}
	}
	return names
}

// NewReply creates the reply handle for an already built context.
func (a *InteractionAdapter) NewReply(cmdCtx *domain.CommandContext) *Reply {
	return &Reply{
		adapter: a,
		cmdCtx:  cmdCtx,
		logger: a.logger.With(
			zap.String("interaction_id", cmdCtx.InteractionID),
			zap.String("user_id", cmdCtx.UserID),
		),
	}
}

// Reply answers one deferred interaction. Interim statuses edit the original
// response; the final message falls back to the execution channel once the
// interaction token has expired.
type Reply struct {
	adapter *InteractionAdapter
	cmdCtx  *domain.CommandContext
	logger  *zap.Logger

	mu        sync.Mutex
	done      bool
	softTimer *time.Timer
}

// Defer acknowledges the interaction and arms the soft warning.
func (r *Reply) Defer(ctx context.Context) error {
	if err := r.adapter.api.DeferInteraction(ctx, r.cmdCtx.InteractionID, r.cmdCtx.InteractionToken); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil
	}
	wait := r.adapter.cfg.SoftWarning - r.age()
	r.softTimer = time.AfterFunc(wait, func() {
		r.logger.Info("Interaction still running, sending soft warning")
		r.Status(context.Background(), r.adapter.formatter.SoftWarning())
	})
	return nil
}

func (r *Reply) age() time.Duration {
	if r.cmdCtx.Timestamp.IsZero() {
		return 0
	}
	return r.adapter.now().Sub(r.cmdCtx.Timestamp)
}

func (r *Reply) Status(ctx context.Context, text string) {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done || r.age() >= r.adapter.cfg.HardExpiry {
		return
	}

	msg := domain.OutgoingMessage{Content: util.TruncateString(text, constants.InteractionConfig.ReplyMaxChars)}
	if err := r.adapter.api.EditOriginalResponse(ctx, r.cmdCtx.InteractionToken, msg); err != nil {
		r.logger.Warn("Failed to update interim reply", zap.Error(err))
	}
}

// Final delivers msg exactly once. Later calls are ignored, so when the edit
// itself is rejected (oversized attachment, invalid embed) Final falls back to
// a plain failure notice rather than leaving the invoker without an answer.
// The original rejection is still returned.
func (r *Reply) Final(ctx context.Context, msg domain.OutgoingMessage) error {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return nil
	}
	r.done = true
	if r.softTimer != nil {
		r.softTimer.Stop()
	}
	r.mu.Unlock()

	msg.Content = util.TruncateString(msg.Content, constants.InteractionConfig.ReplyMaxChars)

	if r.age() < r.adapter.cfg.HardExpiry {
		err := r.adapter.api.EditOriginalResponse(ctx, r.cmdCtx.InteractionToken, msg)
		if err == nil {
			return nil
		}
		if !errors.IsInteractionExpired(err) {
			r.logger.Warn("Final reply rejected, sending failure notice", zap.Error(err))
			return r.failureNotice(ctx, err)
		}
		r.logger.Warn("Interaction expired, redirecting reply", zap.Error(err))
	}
	return r.redirect(ctx, msg)
}

// failureNotice replaces a rejected final reply with the generic failure text,
// editing the original response first and posting to a channel second.
func (r *Reply) failureNotice(ctx context.Context, cause error) error {
	notice := domain.OutgoingMessage{Content: constants.ReplyText.GenericFailure}
	editErr := r.adapter.api.EditOriginalResponse(ctx, r.cmdCtx.InteractionToken, notice)
	if editErr == nil {
		return fmt.Errorf("final reply rejected: %w", cause)
	}
	if err := r.redirect(ctx, notice); err != nil {
		r.logger.Error("Failure notice could not be delivered", zap.NamedError("edit_error", editErr), zap.Error(err))
	}
	return fmt.Errorf("final reply rejected: %w", cause)
}

// redirect posts to the execution channel, or to the invoking channel when
// the guild has none.
func (r *Reply) redirect(ctx context.Context, msg domain.OutgoingMessage) error {
	target := r.cmdCtx.ChannelID
	ch, err := r.adapter.api.FindTextChannelByName(ctx, r.cmdCtx.GuildID, r.adapter.cfg.ExecutionChannel)
	if err != nil {
		r.logger.Warn("Execution channel lookup failed", zap.Error(err))
	}
	if ch != nil {
		target = ch.ID
	}

	prefix := r.adapter.formatter.Redirected(r.cmdCtx.UserID)
	content := prefix
	if msg.Content != "" {
		content += "\n\n" + msg.Content
	}
	msg.Content = util.TruncateString(content, constants.InteractionConfig.ReplyMaxChars)

	if _, err := r.adapter.api.SendMessage(ctx, target, msg); err != nil {
		return err
	}
	r.logger.Info("Reply redirected", zap.String("channel_id", target))
	return nil
}
