package app

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/kapu/reel-views-bot/internal/adapter"
	"github.com/kapu/reel-views-bot/internal/bot"
	"github.com/kapu/reel-views-bot/internal/command"
	"github.com/kapu/reel-views-bot/internal/config"
	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/discord"
	"github.com/kapu/reel-views-bot/internal/observability"
	"github.com/kapu/reel-views-bot/internal/service/cache"
	"github.com/kapu/reel-views-bot/internal/service/campaign"
	"github.com/kapu/reel-views-bot/internal/service/enrichment"
	"github.com/kapu/reel-views-bot/internal/service/export"
	"github.com/kapu/reel-views-bot/internal/service/extract"
	"github.com/kapu/reel-views-bot/internal/service/history"
	"github.com/kapu/reel-views-bot/internal/service/ledger"
	"github.com/kapu/reel-views-bot/internal/service/progress"
	"github.com/kapu/reel-views-bot/internal/service/stats"
	"go.uber.org/zap"
)

const restTimeout = 30 * time.Second

// Container bundles assembled services for constructing runtime components like Bot.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	botDeps *bot.Dependencies
	closers []func()
}

// NewBot instantiates a bot using the pre-built dependency graph.
func (c *Container) NewBot() (*bot.Bot, error) {
	if c == nil || c.botDeps == nil {
		return nil, fmt.Errorf("bot dependencies not initialized")
	}
	return bot.NewBot(c.botDeps)
}

// Close releases infrastructure opened by Build, newest first.
func (c *Container) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build assembles all infrastructure services and returns a container capable of
// creating fully-wired bots. Redis is only dialled when REDIS_ENABLED is set;
// otherwise every cache lives in process memory.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	// Chat platform
	discordClient := discord.NewClient(discord.ClientConfig{
		BaseURL:       cfg.Discord.APIBaseURL,
		Token:         cfg.Discord.Token,
		ApplicationID: cfg.Discord.ApplicationID,
		RequestsPerS:  cfg.Discord.RequestsPerS,
		Timeout:       restTimeout,
	}, logger)
	gateway := discord.NewGateway(discord.GatewayConfig{
		URL:                  cfg.Discord.GatewayURL,
		Token:                cfg.Discord.Token,
		MaxReconnectAttempts: constants.GatewayConfig.MaxReconnectAttempts,
		ReconnectDelay:       constants.GatewayConfig.ReconnectDelay,
		Activity:             "reel views",
	}, logger)
	formatter := adapter.NewReportFormatter(cfg.Channels.ViewsChannelName, cfg.Channels.ExecutionChannelName)

	// Cache
	memCache := cache.NewMemoryCache(logger)
	var (
		store    cache.Store             = memCache
		clearer  cache.PrefixInvalidator = memCache
		cacheSvc *cache.CacheService
	)
	if cfg.Redis.Enabled {
		cacheSvc, err = cache.NewCacheService(cache.CacheConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache service: %w", err)
		}
		closers = append(closers, func() {
			_ = cacheSvc.Close()
		})
		store = cacheSvc
		clearer = cacheSvc
	}

	// History, URLs and ledgers
	fetcher := history.NewFetcher(discordClient, cfg.Fetch.PageDelay, logger)
	extractor := extract.NewCachedExtractor(fetcher, store, cfg.Cache.URLTTL, cfg.Fetch.MaxMessages, logger)
	ledgerReader := ledger.NewReader(fetcher, store, ledger.Config{
		MaxMessages: cfg.Fetch.LedgerMaxMessages,
		LedgerTTL:   cfg.Cache.LedgerTTL,
		VideoTTL:    constants.CacheTTL.VideoLedger,
	}, logger)

	// Campaign progress
	nameStore := progress.NewChannelNameStore(discordClient, cfg.Progress.Prefix, logger)
	var stateStore progress.StateStore = nameStore
	if cacheSvc != nil {
		stateStore = progress.NewRedisStore(cacheSvc, nameStore, logger)
	}
	tracker := progress.NewTracker(stateStore, store, logger)

	// Enrichment stays a nil interface without a token so runs stop with a reason.
	var enricher enrichment.Enricher
	if cfg.EnrichmentEnabled() {
		client := enrichment.NewClient(enrichment.ClientConfig{
			BaseURL:     cfg.Apify.BaseURL,
			Token:       cfg.Apify.Token,
			TaskID:      cfg.Apify.TaskID,
			Timeout:     cfg.Apify.Timeout,
			MaxAttempts: constants.EnrichmentConfig.MaxAttempts,
		}, logger)
		enricher = enrichment.NewBatchRunner(client, cfg.Apify.ChunkSize, cfg.Apify.ChunkDelay, logger)
	} else {
		logger.Warn("APIFY_TOKEN not set, /viewscount will report that enrichment is unavailable")
	}

	orchestrator := campaign.NewOrchestrator(
		discordClient,
		extractor,
		enricher,
		ledgerReader,
		tracker,
		export.NewXLSXExporter(logger),
		formatter,
		campaign.Config{
			LedgerChannelName:    cfg.Channels.ViewsChannelName,
			ExecutionChannelName: cfg.Channels.ExecutionChannelName,
			TopN:                 stats.DefaultTopN,
		},
		logger,
	)

	var drip bot.BackgroundWorker
	if cfg.Drip.Enabled {
		if enricher == nil {
			logger.Warn("Drip updater enabled without APIFY_TOKEN, it will skip every tick")
		}
		drip = campaign.NewDripUpdater(
			discordClient,
			extractor,
			enricher,
			ledgerReader,
			fetcher,
			tracker,
			formatter,
			campaign.DripConfig{
				GuildID:                cfg.Discord.GuildID,
				Interval:               cfg.Drip.Interval,
				ChannelIDs:             cfg.Drip.ChannelIDs,
				ChannelPrefix:          cfg.Drip.ChannelPrefix,
				LedgerChannelName:      cfg.Channels.ViewsChannelName,
				LeaderboardChannelName: cfg.Channels.LeaderboardName,
				FinalReportDelay:       cfg.Drip.FinalReportDelay,
			},
			logger,
		)
	}

	// Commands
	started := time.Now()
	cmdDeps := &command.Dependencies{
		Campaign:  orchestrator,
		Channels:  discordClient,
		Formatter: formatter,
		Status: func(ctx context.Context) adapter.StatusInfo {
			return adapter.StatusInfo{
				Uptime:     time.Since(started),
				Memory:     observability.ReadMemory(),
				Latency:    gateway.Latency(),
				Guilds:     gateway.GuildCount(),
				HealthPort: cfg.Health.Port,
				GoVersion:  runtime.Version(),
				Enrichment: enricher != nil,
				Redis:      cacheSvc != nil && cacheSvc.IsConnected(ctx),
			}
		},
		ClearCache: func(ctx context.Context) (int, error) {
			return cache.ClearPrefixes(ctx, clearer,
				constants.CacheKeys.URLs,
				constants.CacheKeys.Ledger,
				constants.CacheKeys.VideoLedger,
				constants.CacheKeys.ProgressSettings,
			)
		},
		Logger: logger,
	}

	registry := command.NewRegistry(cfg.Bot.AdminRoleNames, logger)
	for _, cmd := range []command.Command{
		command.NewViewsCountCommand(cmdDeps),
		command.NewProgressBarCommand(cmdDeps),
		command.NewRefreshCommand(cmdDeps),
		command.NewStatusCommand(cmdDeps),
		command.NewClearCacheCommand(cmdDeps),
		command.NewHelpCommand(cmdDeps),
	} {
		registry.Register(cmd)
	}
	logger.Info("Commands registered", zap.Int("count", registry.Count()))

	interactions := adapter.NewInteractionAdapter(discordClient, formatter, adapter.ReplyConfig{
		ExecutionChannel: cfg.Channels.ExecutionChannelName,
	}, logger)

	deps := &bot.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Gateway:      gateway,
		Commands:     discordClient,
		Interactions: interactions,
		Registry:     registry,
		Dispatcher:   command.NewSequentialDispatcher(registry, formatter, logger),
		Health:       observability.NewServer(gateway, cfg.Health.Port, logger),
		Drip:         drip,
	}

	return &Container{
		Config:  cfg,
		Logger:  logger,
		botDeps: deps,
		closers: closers,
	}, nil
}
