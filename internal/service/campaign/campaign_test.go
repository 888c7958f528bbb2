package campaign

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kapu/reel-views-bot/internal/adapter"
	"github.com/kapu/reel-views-bot/internal/constants"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/service/export"
	"github.com/kapu/reel-views-bot/internal/service/extract"
	"github.com/kapu/reel-views-bot/internal/service/history"
	"github.com/kapu/reel-views-bot/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guildID = "g1"

type sentMessage struct {
	ChannelID string
	MessageID string
	Msg       domain.OutgoingMessage
	Edit      bool
}

type fakeChannels struct {
	mu       sync.Mutex
	byName   map[string]*domain.Channel
	byID     map[string]*domain.Channel
	prefixed []domain.Channel
	sent     []sentMessage
	nextID   int
	editErr  error
}

func newFakeChannels(channels ...domain.Channel) *fakeChannels {
	f := &fakeChannels{byName: map[string]*domain.Channel{}, byID: map[string]*domain.Channel{}}
	for i := range channels {
		ch := channels[i]
		f.byName[ch.Name] = &ch
		f.byID[ch.ID] = &ch
	}
	return f
}

func (f *fakeChannels) SendMessage(_ context.Context, channelID string, msg domain.OutgoingMessage) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := "m" + strconv.Itoa(f.nextID)
	f.sent = append(f.sent, sentMessage{ChannelID: channelID, MessageID: id, Msg: msg})
	return &domain.Message{ID: id, ChannelID: channelID}, nil
}

func (f *fakeChannels) EditMessage(_ context.Context, channelID, messageID string, msg domain.OutgoingMessage) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.sent = append(f.sent, sentMessage{ChannelID: channelID, MessageID: messageID, Msg: msg, Edit: true})
	return &domain.Message{ID: messageID, ChannelID: channelID}, nil
}

func (f *fakeChannels) FindTextChannelByName(_ context.Context, _, name string) (*domain.Channel, error) {
	return f.byName[name], nil
}

func (f *fakeChannels) GetChannel(_ context.Context, id string) (*domain.Channel, error) {
	if ch, ok := f.byID[id]; ok {
		return ch, nil
	}
	return nil, errors.NewAPIError("Unknown Channel", 404, nil)
}

func (f *fakeChannels) FindChannelsByNamePrefix(_ context.Context, _, prefix string, _ domain.ChannelType) ([]domain.Channel, error) {
	var out []domain.Channel
	for _, ch := range f.prefixed {
		if strings.HasPrefix(ch.Name, prefix) {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeChannels) sentTo(channelID string) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, s := range f.sent {
		if s.ChannelID == channelID {
			out = append(out, s)
		}
	}
	return out
}

type fakeURLs struct {
	mu        sync.Mutex
	byChannel map[string][]string
	refreshes []bool
}

func (f *fakeURLs) ChannelURLs(_ context.Context, channelID string, refresh bool) (extract.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes = append(f.refreshes, refresh)
	return extract.Result{URLs: f.byChannel[channelID], Messages: 40}, nil
}

type fakeEnricher struct {
	mu      sync.Mutex
	records map[string]domain.EnrichmentRecord
	batch   []domain.EnrichmentRecord
	calls   [][]string
}

func (f *fakeEnricher) Run(_ context.Context, urls []string) ([]domain.EnrichmentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, urls)
	if f.batch != nil {
		return f.batch, nil
	}
	var out []domain.EnrichmentRecord
	for _, u := range urls {
		if r, ok := f.records[u]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	cached   domain.Ledger
	fresh    domain.Ledger
	videos   domain.VideoLedger
	useCache []bool
}

func (f *fakeLedger) ReadLedger(_ context.Context, _ string, useCache bool) domain.Ledger {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.useCache = append(f.useCache, useCache)
	if useCache && f.cached != nil {
		return f.cached.Clone()
	}
	return f.fresh.Clone()
}

func (f *fakeLedger) ReadVideoLedger(_ context.Context, _ string, _ bool) domain.VideoLedger {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.videos == nil {
		return nil
	}
	return f.videos.Clone()
}

func (f *fakeLedger) Remember(_ context.Context, _ string, videos domain.VideoLedger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos = videos.Clone()
}

type fakeTracker struct {
	mu       sync.Mutex
	settings *domain.ProgressSettings
	updates  []int64
	setups   []domain.ProgressState
}

func (f *fakeTracker) Settings(_ context.Context, _ string, _ bool) (domain.ProgressSettings, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settings == nil {
		return domain.ProgressSettings{}, false, nil
	}
	return *f.settings, true, nil
}

func (f *fakeTracker) Setup(_ context.Context, _, campaignName string, target, current int64) (*domain.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = &domain.ProgressSettings{CampaignName: campaignName, Target: target}
	f.setups = append(f.setups, domain.ProgressState{CampaignName: campaignName, CurrentViews: current, TargetViews: target})
	return &domain.Channel{ID: "voice", Type: domain.ChannelTypeVoice}, nil
}

func (f *fakeTracker) Update(_ context.Context, _ string, current int64) (*domain.Channel, domain.ProgressState, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, current)
	if f.settings == nil {
		return nil, domain.ProgressState{}, false, nil
	}
	state := domain.ProgressState{CampaignName: f.settings.CampaignName, CurrentViews: current, TargetViews: f.settings.Target}
	return &domain.Channel{ID: "voice"}, state, true, nil
}

type fakeHistory struct {
	mu       sync.Mutex
	messages map[string][]domain.Message
	walked   []string
}

func (f *fakeHistory) Walk(_ context.Context, channelID string, maxMessages int, visit history.Visitor) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.walked = append(f.walked, channelID)
	n := 0
	for _, msg := range f.messages[channelID] {
		if n == maxMessages {
			break
		}
		n++
		if !visit(msg) {
			break
		}
	}
	return n, nil
}

type fakeExporter struct{}

func (fakeExporter) Build(records []domain.EnrichmentRecord, _ []export.Column) ([]byte, error) {
	return []byte("rows:" + strconv.Itoa(len(records))), nil
}

var (
	ledgerChannel    = domain.Channel{ID: "L", Name: "views", Type: domain.ChannelTypeText}
	executionChannel = domain.Channel{ID: "X", Name: "view-counting-execution", Type: domain.ChannelTypeText}
	boardChannel     = domain.Channel{ID: "B", Name: "leaderboard", Type: domain.ChannelTypeText}
	sourceChannel    = domain.Channel{ID: "S", Name: "user-alice", Type: domain.ChannelTypeText}
)

func reel(code, owner string, views int64) domain.EnrichmentRecord {
	return domain.EnrichmentRecord{
		InputURL:       "https://www.instagram.com/reel/" + code + "/",
		ShortCode:      code,
		OwnerUsername:  owner,
		VideoPlayCount: domain.Int64(views),
	}
}

type fixture struct {
	channels *fakeChannels
	urls     *fakeURLs
	enricher *fakeEnricher
	ledger   *fakeLedger
	history  *fakeHistory
	tracker  *fakeTracker
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		channels: newFakeChannels(ledgerChannel, executionChannel, boardChannel, sourceChannel),
		urls:     &fakeURLs{byChannel: map[string][]string{}},
		enricher: &fakeEnricher{records: map[string]domain.EnrichmentRecord{}},
		ledger:   &fakeLedger{fresh: domain.Ledger{}},
		history:  &fakeHistory{messages: map[string][]domain.Message{}},
		tracker:  &fakeTracker{},
	}
	formatter := adapter.NewReportFormatter(ledgerChannel.Name, executionChannel.Name)
	f.orch = NewOrchestrator(f.channels, f.urls, f.enricher, f.ledger, f.tracker, fakeExporter{}, formatter, Config{
		LedgerChannelName:    ledgerChannel.Name,
		ExecutionChannelName: executionChannel.Name,
	}, nil)
	return f
}

func requireInputError(t *testing.T, err error, want string) {
	t.Helper()
	inputErr, ok := errors.AsInputError(err)
	require.True(t, ok, "expected input error, got %v", err)
	assert.Equal(t, want, inputErr.Reason)
}

func TestRunAnalysisNoURLs(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.RunAnalysis(context.Background(), guildID, sourceChannel, nil)
	requireInputError(t, err, constants.ReplyText.NoURLs)
	assert.Empty(t, f.enricher.calls)
}

func TestRunAnalysisWithoutEnricher(t *testing.T) {
	f := newFixture(t)
	f.urls.byChannel["S"] = []string{"https://instagram.com/reel/A/"}
	f.orch.enricher = nil

	_, err := f.orch.RunAnalysis(context.Background(), guildID, sourceChannel, nil)
	requireInputError(t, err, constants.ReplyText.NoEnrichment)
}

func TestRunAnalysisTerminalReasons(t *testing.T) {
	failed := domain.EnrichmentRecord{InputURL: "https://instagram.com/reel/X/", Error: "not_found"}

	tests := []struct {
		name  string
		batch []domain.EnrichmentRecord
		want  string
	}{
		{"no data", []domain.EnrichmentRecord{}, constants.ReplyText.NoData},
		{"all errored", []domain.EnrichmentRecord{failed, failed}, "❌ No valid Instagram data found. All 2 items had errors."},
		{"no owner", []domain.EnrichmentRecord{reel("A", "", 10)}, constants.ReplyText.NoValidVideos},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.urls.byChannel["S"] = []string{"https://instagram.com/reel/A/"}
			f.enricher.batch = tt.batch

			_, err := f.orch.RunAnalysis(context.Background(), guildID, sourceChannel, nil)
			requireInputError(t, err, tt.want)
			assert.Empty(t, f.channels.sentTo(ledgerChannel.ID))
		})
	}
}

func TestRunAnalysisPublishesAndUpdatesProgress(t *testing.T) {
	f := newFixture(t)
	f.urls.byChannel["S"] = []string{
		"https://instagram.com/reel/A/",
		"https://instagram.com/reel/B/",
		"https://instagram.com/reel/C/",
		"https://instagram.com/reel/D/",
	}
	f.enricher.batch = []domain.EnrichmentRecord{
		reel("A", "alice", 1000),
		reel("B", "alice", 500),
		reel("A", "alice", 1000),
		{InputURL: "https://instagram.com/reel/C/", Error: "restricted"},
		reel("D", "", 70),
	}
	f.ledger.cached = domain.Ledger{"#user-alice": 1200, "#user-bob": 300}
	f.ledger.fresh = domain.Ledger{"#user-alice": 1500, "#user-bob": 300}
	f.tracker.settings = &domain.ProgressSettings{CampaignName: "Launch", Target: 10_000}

	var statuses []string
	report, err := f.orch.RunAnalysis(context.Background(), guildID, sourceChannel, func(s string) {
		statuses = append(statuses, s)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"🔍 Found 4 unique URLs. Processing with Apify...",
		"⏳ Apify task completed. Processing 5 results...",
	}, statuses)

	assert.Equal(t, 2, report.Result.TotalVideos)
	assert.Equal(t, int64(1500), report.Result.TotalViews)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.ErroredItems)
	assert.Equal(t, int64(1200), report.PreviousViews)
	assert.Equal(t, int64(300), report.Delta())
	assert.Equal(t, int64(1800), report.LedgerTotal)
	assert.True(t, report.Published)
	assert.NotEmpty(t, report.RunID)

	if diff := cmp.Diff([]string{
		"https://instagram.com/reel/C/",
		"https://www.instagram.com/reel/D/",
	}, report.FailedURLs); diff != "" {
		t.Errorf("failed urls mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, report.Progress)
	assert.Equal(t, domain.ProgressState{CampaignName: "Launch", CurrentViews: 1800, TargetViews: 10_000}, *report.Progress)
	assert.Equal(t, []int64{1800}, f.tracker.updates)
	assert.Equal(t, []bool{true, false}, f.ledger.useCache)

	published := f.channels.sentTo(ledgerChannel.ID)
	require.Len(t, published, 1)
	require.Len(t, published[0].Msg.Attachments, 1)
	assert.Equal(t, []byte("rows:3"), published[0].Msg.Attachments[0].Data)
	views, ok := published[0].Msg.Embeds[0].FieldValue(constants.ReportConfig.FieldViews)
	require.True(t, ok)
	assert.Equal(t, "1,500", views)
	channel, _ := published[0].Msg.Embeds[0].FieldValue(constants.ReportConfig.FieldChannel)
	assert.Equal(t, "#user-alice", channel)

	failures := f.channels.sentTo(executionChannel.ID)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Msg.Content, "https://instagram.com/reel/C/")
}

func TestRunAnalysisPreviousFallsBackToChannelID(t *testing.T) {
	f := newFixture(t)
	f.urls.byChannel["S"] = []string{"https://instagram.com/reel/A/"}
	f.enricher.batch = []domain.EnrichmentRecord{reel("A", "alice", 900)}
	f.ledger.cached = domain.Ledger{"#S": 600}

	report, err := f.orch.RunAnalysis(context.Background(), guildID, sourceChannel, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(600), report.PreviousViews)
	assert.InDelta(t, 50.0, report.DeltaPercent(), 0.001)
	assert.Nil(t, report.Progress)
}

func TestRunAnalysisWithoutLedgerChannel(t *testing.T) {
	f := newFixture(t)
	delete(f.channels.byName, ledgerChannel.Name)
	f.urls.byChannel["S"] = []string{"https://instagram.com/reel/A/"}
	f.enricher.batch = []domain.EnrichmentRecord{reel("A", "alice", 900)}

	report, err := f.orch.RunAnalysis(context.Background(), guildID, sourceChannel, nil)
	require.NoError(t, err)
	assert.False(t, report.Published)
	assert.False(t, report.HasPrevious())
	assert.Empty(t, f.tracker.updates)
}

func TestSetupProgress(t *testing.T) {
	f := newFixture(t)
	f.ledger.fresh = domain.Ledger{"#a": 400, "#b": 100}

	snap, err := f.orch.SetupProgress(context.Background(), guildID, "  Launch ", 2_000)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressState{CampaignName: "Launch", CurrentViews: 500, TargetViews: 2_000}, snap.State)
	assert.Equal(t, []domain.ProgressState{snap.State}, f.tracker.setups)
	assert.Equal(t, []bool{false}, f.ledger.useCache)

	_, err = f.orch.SetupProgress(context.Background(), guildID, "Bad (name)", 2_000)
	var verr *errors.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.orch.SetupProgress(context.Background(), guildID, "Launch", 0)
	assert.ErrorAs(t, err, &verr)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	f.ledger.fresh = domain.Ledger{"#a": 400}

	_, err := f.orch.Refresh(context.Background(), guildID)
	requireInputError(t, err, constants.ReplyText.NoProgress)

	f.tracker.settings = &domain.ProgressSettings{CampaignName: "Launch", Target: 1_000}
	snap, err := f.orch.Refresh(context.Background(), guildID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), snap.State.CurrentViews)
	assert.Equal(t, domain.Ledger{"#a": 400}, snap.Ledger)

	delete(f.channels.byName, ledgerChannel.Name)
	_, err = f.orch.Refresh(context.Background(), guildID)
	requireInputError(t, err, "❌ Views channel #views not found.")
}

func newDrip(f *fixture, cfg DripConfig) *DripUpdater {
	cfg.GuildID = guildID
	cfg.LedgerChannelName = ledgerChannel.Name
	cfg.LeaderboardChannelName = boardChannel.Name
	formatter := adapter.NewReportFormatter(ledgerChannel.Name, executionChannel.Name)
	d := NewDripUpdater(f.channels, f.urls, f.enricher, f.ledger, f.history, f.tracker, formatter, cfg, nil)
	d.shuffle = func([]dripItem) {}
	return d
}

func TestDripTickProcessesOneVideo(t *testing.T) {
	f := newFixture(t)
	f.channels.prefixed = []domain.Channel{sourceChannel, {ID: "O", Name: "general"}}
	urlA, urlB := "https://instagram.com/reel/A/", "https://instagram.com/reel/B/"
	f.urls.byChannel["S"] = []string{urlA, urlB}
	f.enricher.records[urlA] = reel("A", "alice", 700)
	f.enricher.records[urlB] = reel("B", "alice", 200)
	f.ledger.cached = domain.Ledger{"#user-alice": 600, "#user-bob": 50}
	f.ledger.videos = domain.VideoLedger{"#user-alice": {urlA: 650}}

	d := newDrip(f, DripConfig{ChannelPrefix: "user-"})

	updated, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, [][]string{{urlA}}, f.enricher.calls)
	assert.Equal(t, 1, d.QueueLen())
	assert.Equal(t, []bool{true}, f.urls.refreshes)

	toLedger := f.channels.sentTo(ledgerChannel.ID)
	require.Len(t, toLedger, 1)
	views, _ := toLedger[0].Msg.Embeds[0].FieldValue(constants.VideoUpdateConfig.FieldViews)
	assert.Equal(t, "700", views)
	change, _ := toLedger[0].Msg.Embeds[0].FieldValue("**Change**")
	assert.Equal(t, "+50", change)
	assert.Len(t, f.channels.sentTo(sourceChannel.ID), 1)
	assert.Equal(t, int64(700), f.ledger.videos["#user-alice"][urlA])

	board := f.channels.sentTo(boardChannel.ID)
	require.Len(t, board, 1)
	assert.False(t, board[0].Edit)

	updated, err = d.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, updated)

	board = f.channels.sentTo(boardChannel.ID)
	require.Len(t, board, 2)
	assert.True(t, board[1].Edit)
	assert.Equal(t, board[0].MessageID, board[1].MessageID)
}

func TestDripFinishesCampaignOnce(t *testing.T) {
	f := newFixture(t)
	f.channels.prefixed = []domain.Channel{sourceChannel}
	urlA := "https://instagram.com/reel/A/"
	f.urls.byChannel["S"] = []string{urlA}
	f.enricher.records[urlA] = reel("A", "alice", 5_000)
	f.tracker.settings = &domain.ProgressSettings{CampaignName: "Launch", Target: 4_000}

	d := newDrip(f, DripConfig{ChannelPrefix: "user-", FinalReportDelay: 10 * time.Millisecond})
	defer d.Stop()

	updated, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, []int64{5_000}, f.tracker.updates)

	updated, err = d.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Len(t, f.enricher.calls, 1)

	assert.Eventually(t, func() bool {
		for _, s := range f.channels.sentTo(boardChannel.ID) {
			if len(s.Msg.Embeds) > 0 && s.Msg.Embeds[0].Title == constants.LeaderboardConfig.FinalTitle {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func finalReports(f *fixture, channelID string) int {
	n := 0
	for _, s := range f.channels.sentTo(channelID) {
		if len(s.Msg.Embeds) > 0 && s.Msg.Embeds[0].Title == constants.LeaderboardConfig.FinalTitle {
			n++
		}
	}
	return n
}

func TestDripAfterRestartWithReportAlreadyPosted(t *testing.T) {
	f := newFixture(t)
	f.channels.prefixed = []domain.Channel{sourceChannel}
	f.urls.byChannel["S"] = []string{"https://instagram.com/reel/A/"}
	f.enricher.records["https://instagram.com/reel/A/"] = reel("A", "alice", 5_000)
	f.ledger.cached = domain.Ledger{"#user-alice": 4_500}
	f.tracker.settings = &domain.ProgressSettings{CampaignName: "Launch", Target: 4_000}

	formatter := adapter.NewReportFormatter(ledgerChannel.Name, executionChannel.Name)
	posted := formatter.FinalReportEmbed(domain.FinalReport{
		Campaign: domain.ProgressState{CampaignName: "Launch", TargetViews: 4_000},
		Total:    4_500,
	})
	f.history.messages[boardChannel.ID] = []domain.Message{
		{ID: "2", Embeds: []domain.Embed{{Title: constants.LeaderboardConfig.Title}}},
		{ID: "1", Embeds: []domain.Embed{posted}},
	}

	d := newDrip(f, DripConfig{ChannelPrefix: "user-", FinalReportDelay: time.Millisecond})
	defer d.Stop()

	for range 2 {
		updated, err := d.Tick(context.Background())
		require.NoError(t, err)
		assert.False(t, updated)
	}
	assert.Empty(t, f.enricher.calls)
	assert.Empty(t, f.tracker.updates)
	assert.Equal(t, []string{boardChannel.ID}, f.history.walked)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, finalReports(f, boardChannel.ID))
}

func TestDripAfterRestartWithoutReportPostsItOnce(t *testing.T) {
	f := newFixture(t)
	f.channels.prefixed = []domain.Channel{sourceChannel}
	f.urls.byChannel["S"] = []string{"https://instagram.com/reel/A/"}
	f.ledger.cached = domain.Ledger{"#user-alice": 4_500}
	f.tracker.settings = &domain.ProgressSettings{CampaignName: "Launch", Target: 4_000}
	// a final report for a different campaign does not count
	f.history.messages[ledgerChannel.ID] = []domain.Message{{ID: "1", Embeds: []domain.Embed{{
		Title:  constants.LeaderboardConfig.FinalTitle,
		Footer: &domain.EmbedFooter{Text: "Campaign: Teaser"},
	}}}}

	d := newDrip(f, DripConfig{ChannelPrefix: "user-", FinalReportDelay: time.Millisecond})
	defer d.Stop()

	for range 3 {
		updated, err := d.Tick(context.Background())
		require.NoError(t, err)
		assert.False(t, updated)
	}
	assert.Empty(t, f.enricher.calls)
	assert.Equal(t, []string{boardChannel.ID, ledgerChannel.ID}, f.history.walked)

	require.Eventually(t, func() bool { return finalReports(f, boardChannel.ID) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, finalReports(f, boardChannel.ID))
}

func TestDripWithoutEnricherIsIdle(t *testing.T) {
	f := newFixture(t)
	f.channels.prefixed = []domain.Channel{sourceChannel}
	f.urls.byChannel["S"] = []string{"https://instagram.com/reel/A/"}

	formatter := adapter.NewReportFormatter(ledgerChannel.Name, executionChannel.Name)
	d := NewDripUpdater(f.channels, f.urls, nil, f.ledger, f.history, f.tracker, formatter, DripConfig{
		GuildID:           guildID,
		Interval:          time.Millisecond,
		ChannelPrefix:     "user-",
		LedgerChannelName: ledgerChannel.Name,
	}, nil)

	var (
		updated bool
		err     error
	)
	require.NotPanics(t, func() { updated, err = d.Tick(context.Background()) })
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Empty(t, f.urls.refreshes)

	d.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	d.Stop()
	assert.Empty(t, f.channels.sentTo(ledgerChannel.ID))
}

func TestDripSurvivesPanickingTick(t *testing.T) {
	f := newFixture(t)
	f.channels.prefixed = []domain.Channel{sourceChannel}
	f.urls.byChannel["S"] = []string{"https://instagram.com/reel/A/"}
	d := newDrip(f, DripConfig{ChannelPrefix: "user-", Interval: time.Millisecond})
	d.shuffle = func([]dripItem) { panic("shuffle exploded") }

	require.NotPanics(t, func() { d.safeTick(context.Background()) })

	d.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	d.Stop()
}

func TestDripSkipsVideosWithoutData(t *testing.T) {
	f := newFixture(t)
	f.channels.prefixed = []domain.Channel{sourceChannel}
	f.urls.byChannel["S"] = []string{"https://instagram.com/reel/gone/"}

	d := newDrip(f, DripConfig{ChannelPrefix: "user-"})
	updated, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Empty(t, f.channels.sentTo(ledgerChannel.ID))
}

func TestDripUsesConfiguredChannelIDs(t *testing.T) {
	f := newFixture(t)
	f.urls.byChannel["S"] = []string{"https://instagram.com/reel/A/"}

	d := newDrip(f, DripConfig{ChannelIDs: []string{"S", "missing"}})
	items, err := d.buildQueue(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "S", items[0].Channel.ID)
}

func TestMergeLedgersTakesLarger(t *testing.T) {
	merged := mergeLedgers(
		domain.Ledger{"#a": 100, "#b": 500},
		domain.VideoLedger{"#a": {"u1": 80, "u2": 70}, "#c": {"u3": 5}},
	)
	assert.Equal(t, domain.Ledger{"#a": 150, "#b": 500, "#c": 5}, merged)
}

func TestTopVideosOrdersByViews(t *testing.T) {
	top := topVideos(domain.VideoLedger{
		"#a": {"https://instagram.com/reel/x/": 5, "https://instagram.com/reel/y/": 50},
		"#b": {"https://instagram.com/reel/z/": 20},
	}, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "y", top[0].ShortCode)
	assert.Equal(t, int64(20), top[1].Views)
}
