package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/kapu/reel-views-bot/internal/adapter"
	"github.com/kapu/reel-views-bot/internal/command"
	"github.com/kapu/reel-views-bot/internal/config"
	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/discord"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/observability"
	"go.uber.org/zap"
)

// Gateway is the realtime connection the bot listens on.
type Gateway interface {
	Connect(ctx context.Context) error
	OnInteraction(callback discord.InteractionCallback) func()
	OnStateChange(callback discord.StateCallback) func()
	OnReady(callback discord.ReadyCallback) func()
	IsReady() bool
	Latency() time.Duration
	GuildCount() int
	Disconnect() error
}

// CommandRegistrar publishes slash command definitions.
type CommandRegistrar interface {
	SetApplicationID(id string)
	RegisterCommands(ctx context.Context, guildID string, cmds []discord.ApplicationCommand) error
}

// BackgroundWorker is a periodic job that runs for the bot's lifetime.
type BackgroundWorker interface {
	Start(ctx context.Context)
	Stop()
}

// HealthServer serves liveness and metrics over HTTP until ctx is done.
type HealthServer interface {
	Start(ctx context.Context) error
}

// Dependencies holds everything NewBot needs. Health and Drip are optional.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Gateway      Gateway
	Commands     CommandRegistrar
	Interactions *adapter.InteractionAdapter
	Registry     *command.Registry
	Dispatcher   command.Dispatcher
	Health       HealthServer
	Drip         BackgroundWorker
}

// ErrGatewayFailed is returned by Start when the gateway gave up reconnecting.
var ErrGatewayFailed = errors.New("gateway connection failed permanently")

type Bot struct {
	cfg          *config.Config
	logger       *zap.Logger
	gateway      Gateway
	commands     CommandRegistrar
	interactions *adapter.InteractionAdapter
	registry     *command.Registry
	dispatcher   command.Dispatcher
	health       HealthServer
	drip         BackgroundWorker

	registered    atomic.Bool
	registerDelay time.Duration

	mu          sync.Mutex
	runCtx      context.Context
	unsubscribe []func()
	inflight    sync.WaitGroup
	fatal       chan error
}

func NewBot(deps *Dependencies) (*Bot, error) {
	if deps == nil {
		return nil, fmt.Errorf("dependencies must not be nil")
	}
	switch {
	case deps.Config == nil:
		return nil, fmt.Errorf("config must not be nil")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger must not be nil")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("gateway must not be nil")
	case deps.Commands == nil:
		return nil, fmt.Errorf("command registrar must not be nil")
	case deps.Interactions == nil:
		return nil, fmt.Errorf("interaction adapter must not be nil")
	case deps.Registry == nil || deps.Dispatcher == nil:
		return nil, fmt.Errorf("command registry and dispatcher must not be nil")
	}

	return &Bot{
		cfg:           deps.Config,
		logger:        deps.Logger,
		gateway:       deps.Gateway,
		commands:      deps.Commands,
		interactions:  deps.Interactions,
		registry:      deps.Registry,
		dispatcher:    deps.Dispatcher,
		health:        deps.Health,
		drip:          deps.Drip,
		registerDelay: constants.RetryConfig.BaseDelay,
		runCtx:        context.Background(),
		fatal:         make(chan error, 1),
	}, nil
}

// Start connects the gateway and blocks until ctx is cancelled or the gateway
// fails for good. Slash commands are registered on the first READY.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	b.runCtx = ctx
	b.unsubscribe = append(b.unsubscribe,
		b.gateway.OnReady(b.handleReady),
		b.gateway.OnInteraction(b.handleInteraction),
		b.gateway.OnStateChange(b.handleState),
	)
	b.mu.Unlock()

	if b.health != nil {
		go func() {
			if err := b.health.Start(ctx); err != nil {
				b.logger.Error("Health server stopped", zap.Error(err))
			}
		}()
	}

	b.logger.Info("Connecting to gateway",
		zap.Int("commands", b.registry.Count()),
		zap.Bool("enrichment", b.cfg.EnrichmentEnabled()),
	)
	if err := b.gateway.Connect(ctx); err != nil {
		// the gateway schedules its own reconnects; a permanent failure arrives via handleState
		b.logger.Warn("Initial gateway connect failed", zap.Error(err))
	}

	if b.drip != nil && b.cfg.Drip.Enabled {
		b.drip.Start(ctx)
		b.logger.Info("Drip updater started", zap.Duration("interval", b.cfg.Drip.Interval))
	}

	if b.cfg.Bot.MemoryLogEvery > 0 {
		go b.logMemory(ctx, b.cfg.Bot.MemoryLogEvery)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-b.fatal:
		return err
	}
}

// Shutdown stops background work, closes the gateway and waits for in-flight
// commands until ctx expires.
func (b *Bot) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()
	for _, fn := range unsubscribe {
		fn()
	}

	if b.drip != nil {
		b.drip.Stop()
	}

	if err := b.gateway.Disconnect(); err != nil {
		b.logger.Warn("Gateway disconnect failed", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Bot shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight commands: %w", ctx.Err())
	}
}

func (b *Bot) context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runCtx
}

func (b *Bot) handleReady(info discord.ReadyInfo) {
	b.logger.Info("Gateway ready",
		zap.String("user", info.User.Username),
		zap.Int("guilds", info.GuildCount),
	)
	if info.ApplicationID != "" {
		b.commands.SetApplicationID(info.ApplicationID)
	}
	if !b.registered.CompareAndSwap(false, true) {
		return
	}

	go func() {
		if err := b.registerCommands(b.context()); err != nil {
			b.registered.Store(false)
			b.logger.Error("Failed to register slash commands", zap.Error(err))
		}
	}()
}

// registerCommands retries with exponential backoff, up to RetryConfig.MaxAttempts.
func (b *Bot) registerCommands(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.registerDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = constants.RetryConfig.MaxDelay

	attempts := uint64(constants.RetryConfig.MaxAttempts)
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, attempts-1), ctx)

	cmds := b.registry.ApplicationCommands()
	op := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return b.commands.RegisterCommands(reqCtx, b.cfg.Discord.GuildID, cmds)
	}
	notify := func(err error, wait time.Duration) {
		b.logger.Warn("Slash command registration failed, retrying",
			zap.Error(err),
			zap.Duration("retry_in", wait),
		)
	}
	return backoff.RetryNotify(op, bo, notify)
}

func (b *Bot) handleState(state discord.WebSocketState) {
	if state != discord.WSStateExhausted {
		return
	}
	select {
	case b.fatal <- ErrGatewayFailed:
	default:
	}
}

// handleInteraction runs on its own goroutine per interaction.
func (b *Bot) handleInteraction(in *discord.Interaction) {
	parsed := adapter.ParseInteraction(in)
	if parsed.Type == domain.CommandUnknown {
		b.logger.Debug("Ignoring interaction", zap.String("interaction_id", interactionID(in)))
		return
	}

	b.inflight.Add(1)
	defer b.inflight.Done()

	ctx := b.context()
	cmdCtx, err := b.interactions.Accept(ctx, in)
	if err != nil {
		// Final still redirects to the execution channel once the token is gone
		b.logger.Warn("Failed to defer interaction",
			zap.String("command", parsed.Type.String()),
			zap.Error(err),
		)
	}

	start := time.Now()
	_, err = b.dispatcher.Publish(ctx, cmdCtx, command.CommandEvent{Type: parsed.Type, Params: parsed.Params})
	log := b.logger.With(
		zap.String("command", parsed.Type.String()),
		zap.String("guild_id", cmdCtx.GuildID),
		zap.String("user", cmdCtx.Username),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err != nil {
		log.Debug("Command finished with error", zap.Error(err))
		return
	}
	log.Info("Command completed")
}

func (b *Bot) logMemory(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mem := observability.ReadMemory()
			b.logger.Info("Memory usage",
				zap.String("heap_alloc", humanize.IBytes(mem.HeapAllocBytes)),
				zap.String("heap_sys", humanize.IBytes(mem.HeapSysBytes)),
				zap.String("sys", humanize.IBytes(mem.SysBytes)),
				zap.Int("goroutines", mem.Goroutines),
				zap.Bool("gateway_ready", b.gateway.IsReady()),
			)
		}
	}
}

func interactionID(in *discord.Interaction) string {
	if in == nil {
		return ""
	}
	return in.ID
}
