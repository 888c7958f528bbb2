package progress

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"testing"

	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/service/cache"
	"github.com/kapu/reel-views-bot/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 100.0, Percentage(1_200_000, 1_000_000))
	assert.Equal(t, 50.0, Percentage(500, 1000))
	assert.Equal(t, 0.0, Percentage(10, 0))
	assert.Equal(t, "100.0", FormatPercent(Percentage(1_200_000, 1_000_000)))
}

func TestRender(t *testing.T) {
	assert.Equal(t,
		"📊 Progress: Summer (750.0K/1.5M) 50.0%",
		Render(DefaultPrefix, "Summer", 750_000, 1_500_000))
	assert.Equal(t,
		"📊 Progress: Big (1.2M/1.0M) 100.0%",
		Render(DefaultPrefix, "Big", 1_200_000, 1_000_000))
	assert.Equal(t,
		"📊 Progress: Tiny (12/900) 1.3%",
		Render(DefaultPrefix, "Tiny", 12, 900))
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		campaign   string
		current    int64
		target     int64
		wantTarget int64
	}{
		{"exact millions", "Summer Push", 10, 1_500_000, 1_500_000},
		{"lossy millions", "Launch", 0, 1_234_567, 1_200_000},
		{"thousands", "K camp", 999, 25_000, 25_000},
		{"small", "small", 5, 900, 900},
		{"parens in name", "Q3 (EU)", 100, 2_000, 2_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(Render(DefaultPrefix, tt.campaign, tt.current, tt.target))
			require.True(t, ok)
			assert.Equal(t, tt.campaign, got.CampaignName)
			assert.Equal(t, tt.wantTarget, got.Target)
		})
	}
}

func TestParseRejectsOtherNames(t *testing.T) {
	for _, name := range []string{
		"General",
		"📊 Progress: missing fraction",
		"Progress: X (1/2) 50.0%",
	} {
		_, ok := Parse(name)
		assert.False(t, ok, name)
	}
}

func TestDecodeCompact(t *testing.T) {
	cases := map[string]int64{"1.5M": 1_500_000, "12.0K": 12_000, "1,234": 1234, "0": 0}
	for in, want := range cases {
		got, ok := DecodeCompact(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := DecodeCompact("x.yM")
	assert.False(t, ok)
}

type fakeChannels struct {
	channels []domain.Channel
	renames  int
	creates  int
	nextID   int
}

func (f *fakeChannels) FindChannelsByNamePrefix(_ context.Context, _ string, prefix string, typ domain.ChannelType) ([]domain.Channel, error) {
	var out []domain.Channel
	for _, ch := range f.channels {
		if ch.Type == typ && strings.HasPrefix(ch.Name, prefix) {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeChannels) RenameChannel(_ context.Context, id, name string) (*domain.Channel, error) {
	f.renames++
	for i := range f.channels {
		if f.channels[i].ID == id {
			f.channels[i].Name = name
			ch := f.channels[i]
			return &ch, nil
		}
	}
	return nil, stderrors.New("unknown channel")
}

func (f *fakeChannels) CreateVoiceChannel(_ context.Context, guildID, name string) (*domain.Channel, error) {
	f.creates++
	f.nextID++
	ch := domain.Channel{ID: "v" + strconv.Itoa(f.nextID), GuildID: guildID, Name: name, Type: domain.ChannelTypeVoice}
	f.channels = append(f.channels, ch)
	return &ch, nil
}

func TestChannelNameStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	api := &fakeChannels{}
	store := NewChannelNameStore(api, DefaultPrefix, nil)

	_, ok, err := store.Load(ctx, "g")
	require.NoError(t, err)
	assert.False(t, ok, "absent before setup")

	state := domain.ProgressState{CampaignName: "Summer", CurrentViews: 100, TargetViews: 1_000}
	ch, err := store.Save(ctx, "g", state)
	require.NoError(t, err)
	assert.Equal(t, 1, api.creates)

	_, err = store.Save(ctx, "g", state)
	require.NoError(t, err)
	assert.Equal(t, 0, api.renames, "identical name is a no-op")

	state.CurrentViews = 500
	renamed, err := store.Save(ctx, "g", state)
	require.NoError(t, err)
	assert.Equal(t, ch.ID, renamed.ID)
	assert.Equal(t, 1, api.renames)

	settings, ok, err := store.Load(ctx, "g")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.ProgressSettings{CampaignName: "Summer", Target: 1_000}, settings)
}

func TestChannelNameStoreAmbiguous(t *testing.T) {
	ctx := context.Background()
	api := &fakeChannels{channels: []domain.Channel{
		{ID: "1", Name: DefaultPrefix + "A (1/2) 50.0%", Type: domain.ChannelTypeVoice},
		{ID: "2", Name: DefaultPrefix + "B (1/2) 50.0%", Type: domain.ChannelTypeVoice},
		{ID: "3", Name: DefaultPrefix + "text twin", Type: domain.ChannelTypeText},
	}}
	store := NewChannelNameStore(api, DefaultPrefix, nil)

	_, _, err := store.Load(ctx, "g")
	assert.ErrorIs(t, err, errors.ErrAmbiguousProgress)

	_, err = store.Save(ctx, "g", domain.ProgressState{CampaignName: "C", TargetViews: 10})
	assert.ErrorIs(t, err, errors.ErrAmbiguousProgress)
	assert.Zero(t, api.creates+api.renames)
}

func TestChannelNameStoreRejectsLongNames(t *testing.T) {
	api := &fakeChannels{}
	store := NewChannelNameStore(api, DefaultPrefix, nil)

	_, err := store.Save(context.Background(), "g", domain.ProgressState{
		CampaignName: strings.Repeat("x", 90),
		TargetViews:  1_000_000,
	})
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "campaign", verr.Field)
	assert.Zero(t, api.creates)
}

type fakeHash struct {
	data map[string]map[string]string
}

func (f *fakeHash) HSet(_ context.Context, key string, fields map[string]any) error {
	if f.data == nil {
		f.data = map[string]map[string]string{}
	}
	m := f.data[key]
	if m == nil {
		m = map[string]string{}
		f.data[key] = m
	}
	for k, v := range fields {
		m[k] = v.(string)
	}
	return nil
}

func (f *fakeHash) HGetAll(_ context.Context, key string) (map[string]string, error) {
	return f.data[key], nil
}

func TestRedisStoreKeepsExactTarget(t *testing.T) {
	ctx := context.Background()
	api := &fakeChannels{}
	hash := &fakeHash{}
	store := NewRedisStore(hash, NewChannelNameStore(api, DefaultPrefix, nil), nil)

	_, err := store.Save(ctx, "g", domain.ProgressState{CampaignName: "Launch", CurrentViews: 1, TargetViews: 1_234_567})
	require.NoError(t, err)
	assert.Equal(t, 1, api.creates, "display channel still rendered")

	settings, ok, err := store.Load(ctx, "g")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1_234_567), settings.Target)
}

func TestRedisStoreFallsBackToChannelName(t *testing.T) {
	ctx := context.Background()
	api := &fakeChannels{channels: []domain.Channel{
		{ID: "1", Name: Render(DefaultPrefix, "Old", 5, 2_000), Type: domain.ChannelTypeVoice},
	}}
	store := NewRedisStore(&fakeHash{}, NewChannelNameStore(api, DefaultPrefix, nil), nil)

	settings, ok, err := store.Load(ctx, "g")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Old", settings.CampaignName)
}

func TestTrackerUpdate(t *testing.T) {
	ctx := context.Background()
	api := &fakeChannels{}
	tracker := NewTracker(NewChannelNameStore(api, DefaultPrefix, nil), cache.NewMemoryCache(nil), nil)

	_, _, ok, err := tracker.Update(ctx, "g", 100)
	require.NoError(t, err)
	assert.False(t, ok, "no campaign yet")
	assert.Zero(t, api.creates)

	_, err = tracker.Setup(ctx, "g", "Summer", 1_000_000, 0)
	require.NoError(t, err)

	ch, state, ok, err := tracker.Update(ctx, "g", 1_200_000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1_000_000), state.TargetViews)
	assert.Equal(t, "📊 Progress: Summer (1.2M/1.0M) 100.0%", ch.Name)

	settings, ok, err := tracker.Settings(ctx, "g", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Summer", settings.CampaignName)
}

type countingStore struct {
	settings *domain.ProgressSettings
	loads    int
}

func (s *countingStore) Load(context.Context, string) (domain.ProgressSettings, bool, error) {
	s.loads++
	if s.settings == nil {
		return domain.ProgressSettings{}, false, nil
	}
	return *s.settings, true, nil
}

func (s *countingStore) Save(context.Context, string, domain.ProgressState) (*domain.Channel, error) {
	return &domain.Channel{ID: "v"}, nil
}

func TestTrackerSettingsCachesOnlyActiveCampaigns(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{}
	tracker := NewTracker(store, cache.NewMemoryCache(nil), nil)

	_, ok, err := tracker.Settings(ctx, "g", false)
	require.NoError(t, err)
	assert.False(t, ok)

	store.settings = &domain.ProgressSettings{CampaignName: "Summer", Target: 10}
	for range 2 {
		settings, ok, err := tracker.Settings(ctx, "g", false)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Summer", settings.CampaignName)
	}
	assert.Equal(t, 2, store.loads, "second active read is served from cache")

	_, _, err = tracker.Settings(ctx, "g", true)
	require.NoError(t, err)
	assert.Equal(t, 3, store.loads)
}
