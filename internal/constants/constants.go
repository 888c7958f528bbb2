package constants

import "time"

var CacheTTL = struct {
	Ledger        time.Duration
	VideoLedger   time.Duration
	ExtractedURLs time.Duration
}{
	Ledger:        5 * time.Minute,  // ledger snapshot replayed from the views channel
	VideoLedger:   10 * time.Minute, // per-video drip updates
	ExtractedURLs: 15 * time.Minute, // URLs per source channel
}

// CacheKeys are the key prefixes written to the cache store. ProgressState is
// durable campaign state and is never cleared by /clearcache.
var CacheKeys = struct {
	URLs             string
	Ledger           string
	VideoLedger      string
	ProgressSettings string
	ProgressState    string
}{
	URLs:             "urls:",
	Ledger:           "ledger:",
	VideoLedger:      "videoledger:",
	ProgressSettings: "progress-settings:",
	ProgressState:    "progress:",
}

var FetchConfig = struct {
	PageSize          int
	PageDelay         time.Duration
	MaxMessages       int
	LedgerMaxMessages int
	ProgressLogEvery  int
}{
	PageSize:          100,
	PageDelay:         100 * time.Millisecond,
	MaxMessages:       15000,
	LedgerMaxMessages: 8000,
	ProgressLogEvery:  2000,
}

var ReportConfig = struct {
	Title           string
	FieldChannel    string
	FieldVideos     string
	FieldViews      string
	FieldPages      string
	FieldFailed     string
	FieldProcessing string
	FieldTopPages   string
	FieldTopVideos  string
	TopVideos       int
	TopPages        int
	FailedPreview   int
	BreakdownLimit  int
	Color           int
}{
	Title:           "📊 View Count Analysis",
	FieldChannel:    "**Channel**",
	FieldVideos:     "**Total Videos**",
	FieldViews:      "**Total Views**",
	FieldPages:      "**Total Pages**",
	FieldFailed:     "**Failed URLs**",
	FieldProcessing: "**Processing Time**",
	FieldTopPages:   "**📋 Top Pages by Views**",
	FieldTopVideos:  "**🏆 Top 10 Most Viewed Videos**",
	TopVideos:       10,
	TopPages:        20,
	FailedPreview:   10,
	BreakdownLimit:  15,
	Color:           0x0099FF,
}

// ReportMarker is matched with strings.Contains against embed titles.
const ReportMarker = "View Count Analysis"

var VideoUpdateConfig = struct {
	Title        string
	Marker       string
	FieldChannel string
	FieldVideo   string
	FieldViews   string
	FieldOwner   string
	Color        int
}{
	Title:        "🎬 Video View Update",
	Marker:       "Video View Update",
	FieldChannel: "**Channel**",
	FieldVideo:   "**Video**",
	FieldViews:   "**Views**",
	FieldOwner:   "**Owner**",
	Color:        0x9B59B6,
}

var InteractionConfig = struct {
	SoftWarning   time.Duration
	HardExpiry    time.Duration
	ReplyMaxChars int
}{
	SoftWarning:   10 * time.Minute,
	HardExpiry:    15 * time.Minute,
	ReplyMaxChars: 2000,
}

var EnrichmentConfig = struct {
	ChunkSize   int
	ChunkDelay  time.Duration
	Timeout     time.Duration
	MaxAttempts uint64
}{
	ChunkSize:   50,
	ChunkDelay:  2 * time.Second,
	Timeout:     10 * time.Minute,
	MaxAttempts: 3,
}

var RetryConfig = struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}{
	MaxAttempts: 3,
	BaseDelay:   2 * time.Second,
	MaxDelay:    30 * time.Second,
}

var CircuitBreakerConfig = struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	RateLimitTimeout    time.Duration
	HealthCheckInterval time.Duration
}{
	FailureThreshold:    3,                // 3 consecutive failures open the circuit
	ResetTimeout:        30 * time.Second, // default wait before half-open
	RateLimitTimeout:    5 * time.Minute,  // 429 from the scraping service
	HealthCheckInterval: 2 * time.Minute,
}

var GatewayConfig = struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}{
	MaxReconnectAttempts: 5,
	ReconnectDelay:       5 * time.Second,
}

var ProgressConfig = struct {
	BarLength   int
	ColorDone   int
	ColorActive int
}{
	BarLength:   20,
	ColorDone:   0x00FF00,
	ColorActive: 0xFFFF00,
}

var StringLimits = struct {
	EmbedDescription int
	EmbedFieldName   int
	EmbedFieldValue  int
	ChannelName      int
}{
	EmbedDescription: 4096,
	EmbedFieldName:   256,
	EmbedFieldValue:  1024,
	ChannelName:      100,
}

var ReplyText = struct {
	NoURLs         string
	NoData         string
	AllErrored     string
	NoValidVideos  string
	Processing     string
	EnrichmentDone string
	BatchProgress  string
	NoEnrichment   string
	GenericFailure string
	SoftWarning    string
	Redirected     string
	NoLedger       string
	NoProgress     string
	ProgressFailed string
	NotAuthorized  string
	CacheCleared   string
}{
	NoURLs:         "❌ No Instagram URLs found in the specified channel.",
	NoData:         "❌ No data retrieved from Apify. Check if URLs are valid Instagram Reels.",
	AllErrored:     "❌ No valid Instagram data found. All %d items had errors.",
	NoValidVideos:  "❌ No valid video data found.",
	Processing:     "🔍 Found %d unique URLs. Processing with Apify...",
	EnrichmentDone: "⏳ Apify task completed. Processing %d results...",
	BatchProgress:  "⏳ Apify batch %d of %d finished...",
	NoEnrichment:   "❌ Apify client not available. Check APIFY_TOKEN environment variable.",
	GenericFailure: "❌ An error occurred while processing your command.",
	SoftWarning:    "⏳ Still working... large channels can take several minutes. The final report will be posted here or in #%s.",
	Redirected:     "⚠️ <@%s> the interaction expired before the analysis finished, so the result is posted here.",
	NoLedger:       "❌ Views channel #%s not found.",
	NoProgress:     "❌ No progress tracker is set up. Use /progressbar first.",
	ProgressFailed: "❌ Failed to create/update progress voice channel.",
	NotAuthorized:  "❌ You need an admin role to use this command.",
	CacheCleared:   "🧹 Cleared %d cached entries.",
}

// LeaderboardConfig.FinalFooter tags a final report with its campaign so a
// restarted drip updater can find it in channel history.
var LeaderboardConfig = struct {
	Title          string
	FinalTitle     string
	FinalFooter    string
	FinalScanLimit int
	Limit          int
	Color          int
}{
	Title:          "🏆 Leaderboard",
	FinalTitle:     "🏁 Campaign Complete",
	FinalFooter:    "Campaign: %s",
	FinalScanLimit: 500,
	Limit:          25,
	Color:          0xF1C40F,
}
