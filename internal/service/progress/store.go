package progress

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/util"
	"github.com/kapu/reel-views-bot/pkg/errors"
	"go.uber.org/zap"
)

// StateStore persists campaign progress for a guild.
type StateStore interface {
	// Load returns the current settings, or ok=false when no campaign is set up.
	Load(ctx context.Context, guildID string) (settings domain.ProgressSettings, ok bool, err error)
	// Save applies state and returns the progress channel showing it.
	Save(ctx context.Context, guildID string, state domain.ProgressState) (*domain.Channel, error)
}

// ChannelAPI is the slice of the chat platform the channel-name store needs.
type ChannelAPI interface {
	FindChannelsByNamePrefix(ctx context.Context, guildID, prefix string, channelType domain.ChannelType) ([]domain.Channel, error)
	RenameChannel(ctx context.Context, channelID, name string) (*domain.Channel, error)
	CreateVoiceChannel(ctx context.Context, guildID, name string) (*domain.Channel, error)
}

// ChannelNameStore keeps progress in the name of a single voice channel.
type ChannelNameStore struct {
	api    ChannelAPI
	parser *Parser
	logger *zap.Logger
}

func NewChannelNameStore(api ChannelAPI, prefix string, logger *zap.Logger) *ChannelNameStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &ChannelNameStore{
		api:    api,
		parser: NewParser(prefix),
		logger: util.OrNop(logger),
	}
}

// find returns the single progress channel, nil when absent, or
// ErrAmbiguousProgress when several channels carry the prefix.
func (s *ChannelNameStore) find(ctx context.Context, guildID string) (*domain.Channel, error) {
	channels, err := s.api.FindChannelsByNamePrefix(ctx, guildID, s.parser.Prefix(), domain.ChannelTypeVoice)
	if err != nil {
		return nil, fmt.Errorf("find progress channel: %w", err)
	}
	switch len(channels) {
	case 0:
		return nil, nil
	case 1:
		ch := channels[0]
		return &ch, nil
	default:
		ids := make([]string, len(channels))
		for i, ch := range channels {
			ids[i] = ch.ID
		}
		s.logger.Error("Multiple progress channels found",
			zap.String("guild_id", guildID),
			zap.Strings("channel_ids", ids),
		)
		return nil, errors.ErrAmbiguousProgress
	}
}

func (s *ChannelNameStore) Load(ctx context.Context, guildID string) (domain.ProgressSettings, bool, error) {
	ch, err := s.find(ctx, guildID)
	if err != nil || ch == nil {
		return domain.ProgressSettings{}, false, err
	}
	settings, ok := s.parser.Parse(ch.Name)
	if !ok {
		s.logger.Warn("Progress channel name not recognised",
			zap.String("channel_id", ch.ID),
			zap.String("name", ch.Name),
		)
	}
	return settings, ok, nil
}

func (s *ChannelNameStore) Save(ctx context.Context, guildID string, state domain.ProgressState) (*domain.Channel, error) {
	name := Render(s.parser.Prefix(), state.CampaignName, state.CurrentViews, state.TargetViews)
	if utf8.RuneCountInString(name) > constants.StringLimits.ChannelName {
		return nil, errors.NewValidationError("campaign name is too long for a channel name", "campaign", state.CampaignName)
	}

	ch, err := s.find(ctx, guildID)
	if err != nil {
		return nil, err
	}

	if ch == nil {
		created, err := s.api.CreateVoiceChannel(ctx, guildID, name)
		if err != nil {
			return nil, fmt.Errorf("create progress channel: %w", err)
		}
		s.logger.Info("Progress channel created",
			zap.String("channel_id", created.ID),
			zap.String("name", name),
		)
		return created, nil
	}

	if ch.Name == name {
		return ch, nil
	}

	renamed, err := s.api.RenameChannel(ctx, ch.ID, name)
	if err != nil {
		return nil, fmt.Errorf("rename progress channel: %w", err)
	}
	s.logger.Info("Progress channel updated",
		zap.String("channel_id", renamed.ID),
		zap.String("name", name),
	)
	return renamed, nil
}

// HashStore is a field/value record store such as a Redis hash.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]any) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// RedisStore keeps exact settings in a hash and still renders the progress
// channel for display. Guilds set up before it was enabled fall back to the
// channel name on Load.
type RedisStore struct {
	hash    HashStore
	display *ChannelNameStore
	logger  *zap.Logger
}

func NewRedisStore(hash HashStore, display *ChannelNameStore, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		hash:    hash,
		display: display,
		logger:  util.OrNop(logger),
	}
}

func progressHashKey(guildID string) string {
	return constants.CacheKeys.ProgressState + guildID
}

func (s *RedisStore) Load(ctx context.Context, guildID string) (domain.ProgressSettings, bool, error) {
	fields, err := s.hash.HGetAll(ctx, progressHashKey(guildID))
	if err != nil {
		s.logger.Warn("Progress hash read failed, falling back to channel name",
			zap.String("guild_id", guildID),
			zap.Error(err),
		)
		return s.display.Load(ctx, guildID)
	}

	name := fields["campaign"]
	target, convErr := strconv.ParseInt(fields["target"], 10, 64)
	if name == "" || convErr != nil || target <= 0 {
		return s.display.Load(ctx, guildID)
	}
	return domain.ProgressSettings{CampaignName: name, Target: target}, true, nil
}

func (s *RedisStore) Save(ctx context.Context, guildID string, state domain.ProgressState) (*domain.Channel, error) {
	err := s.hash.HSet(ctx, progressHashKey(guildID), map[string]any{
		"campaign": state.CampaignName,
		"target":   strconv.FormatInt(state.TargetViews, 10),
		"current":  strconv.FormatInt(state.CurrentViews, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("save progress hash: %w", err)
	}
	return s.display.Save(ctx, guildID, state)
}
