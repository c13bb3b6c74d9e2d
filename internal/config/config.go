package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	Pipeline     PipelineConfig
	SharedStore  SharedStoreConfig
	Redis        RedisConfig
	MarketData   MarketDataConfig
	Snapshot     SnapshotConfig
	Notification NotificationConfig
	Journal      JournalConfig
	Forecast     ForecastConfig
	HTTP         HTTPConfig
}

// PipelineConfig holds the collector/monitor/supervisor tuning
type PipelineConfig struct {
	ConfigPath         string
	WindowSize         int
	MinBars            int
	MonitorInterval    time.Duration
	WarmupInterval     time.Duration
	ErrorBackoff       time.Duration
	SupervisorInterval time.Duration
	RemoveOnDelete     bool
}

// SharedStoreConfig selects where collectors publish bar windows
type SharedStoreConfig struct {
	Backend       string // "memory" or "redis"
	KeyPrefix     string
	TTL           time.Duration
	NotifyChannel string // Redis channel announcing new windows, empty disables
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// MarketDataConfig holds tick feed provider configuration
type MarketDataConfig struct {
	Provider         string // "mock", "websocket" or "kite"
	APIKey           string
	AccessToken      string
	WebSocketURL     string
	Exchange         string
	InstrumentTokens map[string]uint32 // stock code -> kite instrument token
	MockTickInterval time.Duration
}

// SnapshotConfig holds persisted enriched window settings
type SnapshotConfig struct {
	Dir    string
	Format string // "csv" or "parquet"
}

// NotificationConfig holds outbound notifier settings
type NotificationConfig struct {
	TelegramToken  string
	TelegramChatID string
	TelegramAPIURL string
	RedisChannel   string
	Timeout        time.Duration
	ErrorCooldown  time.Duration // repeated identical error alerts are suppressed for this long, 0 disables
}

// JournalConfig holds the alert journal database settings
type JournalConfig struct {
	Driver string // "", "sqlite3" or "postgres"
	DSN    string
}

// ForecastConfig holds the LLM forecast channel settings
type ForecastConfig struct {
	Enabled     bool
	APIURL      string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Interval    time.Duration
	Rows        int
	Dir         string
	Timeout     time.Duration
}

// HTTPConfig holds the health/status server configuration
type HTTPConfig struct {
	Port int
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	tokens, err := parseInstrumentTokens(getEnv("KITE_INSTRUMENT_TOKENS", ""))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Pipeline: PipelineConfig{
			ConfigPath:         getEnv("CONFIG_PATH", "config.json"),
			WindowSize:         getEnvAsInt("WINDOW_SIZE", 500),
			MinBars:            getEnvAsInt("MIN_BARS", 10),
			MonitorInterval:    getEnvAsDuration("MONITOR_INTERVAL", 2*time.Second),
			WarmupInterval:     getEnvAsDuration("WARMUP_INTERVAL", 1*time.Second),
			ErrorBackoff:       getEnvAsDuration("ERROR_BACKOFF", 5*time.Second),
			SupervisorInterval: getEnvAsDuration("SUPERVISOR_INTERVAL", 5*time.Second),
			RemoveOnDelete:     getEnvAsBool("REMOVE_ON_DELETE", true),
		},
		SharedStore: SharedStoreConfig{
			Backend:       getEnv("SHARED_STORE_BACKEND", "memory"),
			KeyPrefix:     getEnv("SHARED_STORE_KEY_PREFIX", "window:"),
			TTL:           getEnvAsDuration("SHARED_STORE_TTL", 0),
			NotifyChannel: getEnv("SHARED_STORE_NOTIFY_CHANNEL", ""),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		},
		MarketData: MarketDataConfig{
			Provider:         getEnv("MARKET_DATA_PROVIDER", "mock"),
			APIKey:           getEnv("MARKET_DATA_API_KEY", ""),
			AccessToken:      getEnv("MARKET_DATA_ACCESS_TOKEN", ""),
			WebSocketURL:     getEnv("MARKET_DATA_WS_URL", ""),
			Exchange:         getEnv("MARKET_DATA_EXCHANGE", "NSE"),
			InstrumentTokens: tokens,
			MockTickInterval: getEnvAsDuration("MOCK_TICK_INTERVAL", 1*time.Second),
		},
		Snapshot: SnapshotConfig{
			Dir:    getEnv("SNAPSHOT_DIR", "."),
			Format: getEnv("SNAPSHOT_FORMAT", "csv"),
		},
		Notification: NotificationConfig{
			TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
			TelegramAPIURL: getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			RedisChannel:   getEnv("ALERT_REDIS_CHANNEL", ""),
			Timeout:        getEnvAsDuration("NOTIFICATION_TIMEOUT", 10*time.Second),
			ErrorCooldown:  getEnvAsDuration("ERROR_ALERT_COOLDOWN", 0),
		},
		Journal: JournalConfig{
			Driver: getEnv("JOURNAL_DRIVER", ""),
			DSN:    getEnv("JOURNAL_DSN", "alerts.db"),
		},
		Forecast: ForecastConfig{
			Enabled:     getEnvAsBool("FORECAST_ENABLED", false),
			APIURL:      getEnv("FORECAST_API_URL", "https://api.groq.com/openai/v1/chat/completions"),
			APIKey:      getEnv("FORECAST_API_KEY", ""),
			Model:       getEnv("FORECAST_MODEL", "allam-2-7b"),
			Temperature: getEnvAsFloat("FORECAST_TEMPERATURE", 0.4),
			MaxTokens:   getEnvAsInt("FORECAST_MAX_TOKENS", 512),
			Interval:    getEnvAsDuration("FORECAST_INTERVAL", 60*time.Second),
			Rows:        getEnvAsInt("FORECAST_ROWS", 10),
			Dir:         getEnv("FORECAST_DIR", "forecast"),
			Timeout:     getEnvAsDuration("FORECAST_TIMEOUT", 30*time.Second),
		},
		HTTP: HTTPConfig{
			Port: getEnvAsInt("HTTP_PORT", 8080),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Pipeline.ConfigPath == "" {
		return fmt.Errorf("CONFIG_PATH is required")
	}
	if c.Pipeline.WindowSize < 1 {
		return fmt.Errorf("WINDOW_SIZE must be at least 1")
	}
	if c.Pipeline.MinBars < 1 {
		return fmt.Errorf("MIN_BARS must be at least 1")
	}
	if c.Pipeline.MonitorInterval <= 0 || c.Pipeline.WarmupInterval <= 0 ||
		c.Pipeline.ErrorBackoff <= 0 || c.Pipeline.SupervisorInterval <= 0 {
		return fmt.Errorf("pipeline intervals must be positive")
	}

	switch c.SharedStore.Backend {
	case "memory":
	case "redis":
		if c.Redis.Host == "" {
			return fmt.Errorf("REDIS_HOST is required for the redis shared store")
		}
	default:
		return fmt.Errorf("unknown SHARED_STORE_BACKEND %q", c.SharedStore.Backend)
	}

	switch c.MarketData.Provider {
	case "mock":
	case "websocket":
		if c.MarketData.WebSocketURL == "" {
			return fmt.Errorf("MARKET_DATA_WS_URL is required for the websocket provider")
		}
	case "kite":
		if c.MarketData.APIKey == "" || c.MarketData.AccessToken == "" {
			return fmt.Errorf("MARKET_DATA_API_KEY and MARKET_DATA_ACCESS_TOKEN are required for the kite provider")
		}
	default:
		return fmt.Errorf("unknown MARKET_DATA_PROVIDER %q", c.MarketData.Provider)
	}

	if c.Snapshot.Format != "csv" && c.Snapshot.Format != "parquet" {
		return fmt.Errorf("SNAPSHOT_FORMAT must be csv or parquet")
	}

	switch c.Journal.Driver {
	case "", "sqlite3", "postgres":
	default:
		return fmt.Errorf("unknown JOURNAL_DRIVER %q", c.Journal.Driver)
	}

	if c.Forecast.Enabled {
		if c.Forecast.APIKey == "" {
			return fmt.Errorf("FORECAST_API_KEY is required when forecasting is enabled")
		}
		if c.Forecast.Rows < 1 || c.Forecast.Interval <= 0 {
			return fmt.Errorf("FORECAST_ROWS and FORECAST_INTERVAL must be positive")
		}
	}

	return nil
}

// RedisAddr returns the host:port address of the Redis server
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// TelegramEnabled reports whether both telegram credentials are present
func (c *Config) TelegramEnabled() bool {
	return c.Notification.TelegramToken != "" && c.Notification.TelegramChatID != ""
}

// parseInstrumentTokens parses "TCS:2953217,INFY:408065"
func parseInstrumentTokens(value string) (map[string]uint32, error) {
	tokens := make(map[string]uint32)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, raw, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid KITE_INSTRUMENT_TOKENS entry %q", part)
		}
		token, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid instrument token for %s: %w", code, err)
		}
		tokens[strings.ToUpper(strings.TrimSpace(code))] = uint32(token)
	}
	return tokens, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
