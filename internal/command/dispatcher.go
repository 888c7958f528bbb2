package command

import (
	"context"
	stderrors "errors"

	"github.com/kapu/reel-views-bot/internal/adapter"
	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/observability"
	"github.com/kapu/reel-views-bot/internal/util"
	"github.com/kapu/reel-views-bot/pkg/errors"
	"go.uber.org/zap"
)

// CommandEvent is one parsed command waiting to run.
type CommandEvent struct {
	Type   domain.CommandType
	Params map[string]any
}

type Dispatcher interface {
	Publish(ctx context.Context, cmdCtx *domain.CommandContext, events ...CommandEvent) (int, error)
}

type sequentialDispatcher struct {
	registry  *Registry
	formatter *adapter.ReportFormatter
	logger    *zap.Logger
}

// NewSequentialDispatcher creates a dispatcher that executes command events in
// the order they are received. A failing command gets exactly one error reply.
func NewSequentialDispatcher(registry *Registry, formatter *adapter.ReportFormatter, logger *zap.Logger) Dispatcher {
	return &sequentialDispatcher{registry: registry, formatter: formatter, logger: util.OrNop(logger)}
}

func (d *sequentialDispatcher) Publish(ctx context.Context, cmdCtx *domain.CommandContext, events ...CommandEvent) (int, error) {
	if d == nil || d.registry == nil {
		return 0, nil
	}

	executed := 0
	for _, event := range events {
		if event.Type == domain.CommandUnknown {
			continue
		}

		name := event.Type.String()
		err := d.registry.Execute(ctx, cmdCtx, name, cloneParams(event.Params))
		if err != nil {
			observability.CommandsTotal.WithLabelValues(name, outcome(err)).Inc()
			d.replyError(ctx, cmdCtx, name, err)
			return executed, err
		}
		observability.CommandsTotal.WithLabelValues(name, "ok").Inc()
		executed++
	}
	return executed, nil
}

func (d *sequentialDispatcher) replyError(ctx context.Context, cmdCtx *domain.CommandContext, name string, err error) {
	text := d.errorText(err)
	log := d.logger.With(zap.String("command", name), zap.Error(err))
	if cmdCtx != nil {
		log = log.With(zap.String("guild_id", cmdCtx.GuildID), zap.String("user_id", cmdCtx.UserID))
	}

	if _, isInput := errors.AsInputError(err); isInput {
		log.Info("Command finished without result")
	} else {
		log.Error("Command failed")
	}

	if cmdCtx == nil || cmdCtx.Reply == nil {
		return
	}
	if replyErr := cmdCtx.Reply.Final(ctx, domain.OutgoingMessage{Content: text}); replyErr != nil {
		d.logger.Warn("Failed to deliver error reply", zap.String("command", name), zap.Error(replyErr))
	}
}

// errorText maps an error to the reply shown to the invoker. Only input and
// validation errors expose their own message.
func (d *sequentialDispatcher) errorText(err error) string {
	if inErr, ok := errors.AsInputError(err); ok {
		return inErr.Reason
	}
	var verr *errors.ValidationError
	if stderrors.As(err, &verr) {
		return d.formatter.FormatError(verr.Message)
	}
	switch {
	case stderrors.Is(err, ErrNotAuthorized):
		return constants.ReplyText.NotAuthorized
	case stderrors.Is(err, errors.ErrAmbiguousProgress):
		return constants.ReplyText.ProgressFailed
	}
	return constants.ReplyText.GenericFailure
}

func outcome(err error) string {
	switch {
	case stderrors.Is(err, ErrNotAuthorized):
		return "denied"
	case stderrors.As(err, new(*errors.InputError)):
		return "no_result"
	default:
		return "error"
	}
}

func cloneParams(src map[string]any) map[string]any {
	if len(src) == 0 {
		return map[string]any{}
	}
	clone := make(map[string]any, len(src))
	for k, v := range src {
		clone[k] = v
	}
	return clone
}
