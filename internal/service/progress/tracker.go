package progress

import (
	"context"

	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/service/cache"
	"github.com/kapu/reel-views-bot/internal/util"
	"go.uber.org/zap"
)

// Tracker reads and applies campaign progress through a StateStore. Loaded
// settings are cached without TTL; Save and Invalidate keep the cache honest.
type Tracker struct {
	store  StateStore
	cache  cache.Store
	logger *zap.Logger
}

func NewTracker(store StateStore, settingsCache cache.Store, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:  store,
		cache:  settingsCache,
		logger: util.OrNop(logger),
	}
}

func settingsKey(guildID string) string {
	return constants.CacheKeys.ProgressSettings + guildID
}

// Settings returns the active campaign for guildID. refresh bypasses the cache.
// Only an active campaign is cached.
func (t *Tracker) Settings(ctx context.Context, guildID string, refresh bool) (domain.ProgressSettings, bool, error) {
	if t.cache == nil {
		return t.store.Load(ctx, guildID)
	}

	active := true
	settings, err := cache.GetOrLoad(ctx, t.cache, settingsKey(guildID), 0, refresh, func(ctx context.Context) (domain.ProgressSettings, bool, error) {
		loaded, ok, err := t.store.Load(ctx, guildID)
		active = ok
		return loaded, ok, err
	}, t.logger)
	if err != nil {
		return domain.ProgressSettings{}, false, err
	}
	return settings, active, nil
}

// Setup creates or renames the progress channel for a new campaign.
func (t *Tracker) Setup(ctx context.Context, guildID, campaignName string, target, current int64) (*domain.Channel, error) {
	return t.apply(ctx, guildID, domain.ProgressState{
		CampaignName: campaignName,
		CurrentViews: current,
		TargetViews:  target,
	})
}

// Update re-renders the existing campaign with a new current total. It does
// nothing and returns ok=false when no campaign is set up.
func (t *Tracker) Update(ctx context.Context, guildID string, current int64) (*domain.Channel, domain.ProgressState, bool, error) {
	settings, ok, err := t.Settings(ctx, guildID, true)
	if err != nil || !ok {
		return nil, domain.ProgressState{}, false, err
	}

	state := domain.ProgressState{
		CampaignName: settings.CampaignName,
		CurrentViews: current,
		TargetViews:  settings.Target,
	}
	ch, err := t.apply(ctx, guildID, state)
	if err != nil {
		return nil, state, true, err
	}
	return ch, state, true, nil
}

func (t *Tracker) apply(ctx context.Context, guildID string, state domain.ProgressState) (*domain.Channel, error) {
	ch, err := t.store.Save(ctx, guildID, state)
	if err != nil {
		_ = t.Invalidate(ctx, guildID)
		return nil, err
	}
	if t.cache != nil {
		settings := domain.ProgressSettings{CampaignName: state.CampaignName, Target: state.TargetViews}
		if err := t.cache.Set(ctx, settingsKey(guildID), settings, 0); err != nil {
			t.logger.Warn("Progress settings cache write failed", zap.Error(err))
		}
	}
	return ch, nil
}

// Invalidate forgets cached settings for guildID.
func (t *Tracker) Invalidate(ctx context.Context, guildID string) error {
	if t.cache == nil {
		return nil
	}
	return t.cache.Invalidate(ctx, settingsKey(guildID))
}
