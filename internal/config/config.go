package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kapu/reel-views-bot/internal/constants"
)

type Config struct {
	Discord  DiscordConfig
	Apify    ApifyConfig
	Channels ChannelsConfig
	Progress ProgressConfig
	Fetch    FetchConfig
	Cache    CacheConfig
	Drip     DripConfig
	Redis    RedisConfig
	Health   HealthConfig
	Logging  LoggingConfig
	Bot      BotConfig
}

type DiscordConfig struct {
	Token         string
	ApplicationID string
	GuildID       string
	APIBaseURL    string
	GatewayURL    string
	RequestsPerS  float64
}

type ApifyConfig struct {
	Token      string
	TaskID     string
	BaseURL    string
	ChunkSize  int
	ChunkDelay time.Duration
	Timeout    time.Duration
}

type ChannelsConfig struct {
	ViewsChannelName     string
	ExecutionChannelName string
	LeaderboardName      string
}

type ProgressConfig struct {
	Prefix string
}

type FetchConfig struct {
	MaxMessages       int
	LedgerMaxMessages int
	PageDelay         time.Duration
}

type CacheConfig struct {
	LedgerTTL time.Duration
	URLTTL    time.Duration
}

type DripConfig struct {
	Enabled          bool
	Interval         time.Duration
	ChannelIDs       []string
	ChannelPrefix    string
	FinalReportDelay time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type HealthConfig struct {
	Port int
}

type LoggingConfig struct {
	Level string
	File  string
}

type BotConfig struct {
	AdminRoleNames []string
	MemoryLogEvery time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Discord: DiscordConfig{
			Token:         getEnv("DISCORD_TOKEN", ""),
			ApplicationID: getEnv("DISCORD_APPLICATION_ID", ""),
			GuildID:       getEnv("DISCORD_GUILD_ID", ""),
			APIBaseURL:    getEnv("DISCORD_API_BASE_URL", "https://discord.com/api/v10"),
			GatewayURL:    getEnv("DISCORD_GATEWAY_URL", "wss://gateway.discord.gg/?v=10&encoding=json"),
			RequestsPerS:  getEnvFloat("DISCORD_REQUESTS_PER_SECOND", 40),
		},
		Apify: ApifyConfig{
			Token:      getEnv("APIFY_TOKEN", ""),
			TaskID:     getEnv("APIFY_TASK_ID", "yACwwaUugD0F22xUU"),
			BaseURL:    getEnv("APIFY_BASE_URL", "https://api.apify.com"),
			ChunkSize:  getEnvInt("APIFY_CHUNK_SIZE", constants.EnrichmentConfig.ChunkSize),
			ChunkDelay: getEnvDuration("APIFY_CHUNK_DELAY", constants.EnrichmentConfig.ChunkDelay),
			Timeout:    getEnvDuration("APIFY_TIMEOUT", constants.EnrichmentConfig.Timeout),
		},
		Channels: ChannelsConfig{
			ViewsChannelName:     getEnv("VIEWS_CHANNEL_NAME", "views"),
			ExecutionChannelName: getEnv("EXECUTION_CHANNEL_NAME", "view-counting-execution"),
			LeaderboardName:      getEnv("LEADERBOARD_CHANNEL_NAME", "leaderboard"),
		},
		Progress: ProgressConfig{
			Prefix: getEnv("PROGRESS_VOICE_CHANNEL_PREFIX", "📊 Progress: "),
		},
		Fetch: FetchConfig{
			MaxMessages:       getEnvInt("MAX_MESSAGES_FETCH", constants.FetchConfig.MaxMessages),
			LedgerMaxMessages: getEnvInt("LEDGER_MAX_MESSAGES", constants.FetchConfig.LedgerMaxMessages),
			PageDelay:         getEnvDuration("REQUEST_DELAY", constants.FetchConfig.PageDelay),
		},
		Cache: CacheConfig{
			LedgerTTL: getEnvDuration("LEDGER_CACHE_TTL", constants.CacheTTL.Ledger),
			URLTTL:    getEnvDuration("URL_CACHE_TTL", constants.CacheTTL.ExtractedURLs),
		},
		Drip: DripConfig{
			Enabled:          getEnvBool("DRIP_ENABLED", false),
			Interval:         getEnvDuration("DRIP_INTERVAL", 5*time.Minute),
			ChannelIDs:       parseCommaSeparated(getEnv("DRIP_CHANNEL_IDS", "")),
			ChannelPrefix:    getEnv("DRIP_CHANNEL_PREFIX", "user-"),
			FinalReportDelay: getEnvDuration("DRIP_FINAL_REPORT_DELAY", 24*time.Hour),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Health: HealthConfig{
			Port: getEnvInt("PORT", 8000),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
		Bot: BotConfig{
			AdminRoleNames: parseCommaSeparated(getEnv("ADMIN_ROLE_NAMES", "Admin")),
			MemoryLogEvery: getEnvDuration("MEMORY_LOG_INTERVAL", 5*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	if c.Channels.ViewsChannelName == "" {
		return fmt.Errorf("VIEWS_CHANNEL_NAME must not be empty")
	}
	if strings.TrimSpace(c.Progress.Prefix) == "" {
		return fmt.Errorf("PROGRESS_VOICE_CHANNEL_PREFIX must not be empty")
	}
	if c.Fetch.MaxMessages <= 0 || c.Fetch.LedgerMaxMessages <= 0 {
		return fmt.Errorf("message fetch limits must be positive")
	}
	if c.Apify.ChunkSize <= 0 {
		return fmt.Errorf("APIFY_CHUNK_SIZE must be positive")
	}
	if c.Drip.Enabled && c.Drip.Interval <= 0 {
		return fmt.Errorf("DRIP_INTERVAL must be positive when the drip updater is enabled")
	}
	return nil
}

// EnrichmentEnabled reports whether a scraping service token is configured.
func (c *Config) EnrichmentEnabled() bool {
	return c.Apify.Token != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s") or a bare integer in milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
