package command

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/kapu/reel-views-bot/internal/discord"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/util"
	"go.uber.org/zap"
)

// ErrUnknownCommand is returned when a command dispatch is attempted for an
// unregistered key.
var ErrUnknownCommand = errors.New("unknown command")

// ErrNotAuthorized is returned when a non-admin invokes an admin command.
var ErrNotAuthorized = errors.New("not authorized")

// Registry stores command handlers keyed by their canonical names.
type Registry struct {
	mu         sync.RWMutex
	handlers   map[string]Command
	adminRoles []string
	logger     *zap.Logger
}

// NewRegistry constructs an empty registry. adminRoles are matched
// case-insensitively against the invoker's role names.
func NewRegistry(adminRoles []string, logger *zap.Logger) *Registry {
	return &Registry{
		handlers:   make(map[string]Command),
		adminRoles: adminRoles,
		logger:     util.OrNop(logger),
	}
}

// Register adds a command handler to the registry. The handler name is stored
// in lowercase form to provide case-insensitive lookups.
func (r *Registry) Register(handler Command) {
	if handler == nil {
		return
	}

	name := strings.ToLower(handler.Name())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Execute runs the handler registered for key. A panicking handler is
// recovered and reported as an error.
func (r *Registry) Execute(ctx context.Context, cmdCtx *domain.CommandContext, key string, params map[string]any) (err error) {
	if r == nil {
		return fmt.Errorf("command registry is nil")
	}

	handler := r.getHandler(key)
	if handler == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, key)
	}

	if handler.AdminOnly() && !r.IsAdmin(cmdCtx) {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, key)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Command panicked",
				zap.String("command", key),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("command %s panicked: %v", key, rec)
		}
	}()

	return handler.Execute(ctx, cmdCtx, params)
}

// IsAdmin reports whether the invoker holds an admin role or the ADMINISTRATOR permission.
func (r *Registry) IsAdmin(cmdCtx *domain.CommandContext) bool {
	if cmdCtx == nil {
		return false
	}
	if cmdCtx.Permissions&discord.PermissionAdministrator != 0 {
		return true
	}
	for _, role := range cmdCtx.RoleNames {
		if util.ContainsFold(r.adminRoles, role) {
			return true
		}
	}
	return false
}

// Count returns the number of registered command handlers.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// ApplicationCommands returns the slash command definitions sorted by name.
func (r *Registry) ApplicationCommands() []discord.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]discord.ApplicationCommand, 0, len(r.handlers))
	for name, h := range r.handlers {
		cmds = append(cmds, discord.ApplicationCommand{
			Name:        name,
			Description: h.Description(),
			Type:        1,
			Options:     h.Options(),
		})
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

func (r *Registry) getHandler(key string) Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key == "" {
		return nil
	}
	if handler, ok := r.handlers[strings.ToLower(key)]; ok {
		return handler
	}
	return nil
}
