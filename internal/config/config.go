// Package config defines all configuration for the pick pipeline.
//
// Runtime tuning is loaded from environment variables via viper
// (API_URL, REDIS_HOST, TELEGRAM_BOT_TOKENS, ...). Bookmaker roles,
// channel mappings, allowed pairings and the sports list are declarative
// tables in code (bookmakers.go); they change with a deploy, not with
// an environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level runtime configuration.
type Config struct {
	API         APIConfig
	Redis       RedisConfig
	Telegram    TelegramConfig
	Polling     PollingConfig
	Validation  ValidationConfig
	Concurrency ConcurrencyConfig
	Cache       CacheConfig
	Logging     LoggingConfig
}

// APIConfig holds the surebets feed endpoint and HTTP session tuning.
type APIConfig struct {
	URL                string
	Token              string
	Timeout            time.Duration
	ConnectTimeout     time.Duration
	Retries            int
	SessionMaxAge      time.Duration // recycle the HTTP session after this age
	MaxSessionErrors   int           // ... or after this many transport errors
	ConnectionsPerHost int
}

// RedisConfig holds the dedupe-store connection parameters.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	Username string
	DB       int
	PoolSize int
}

// TelegramConfig holds bot identities and gateway tuning.
type TelegramConfig struct {
	BotTokens    []string
	LogChannel   int64
	MaxQueueSize int
	MaxRetries   int
	MaxWait      time.Duration // per-message delivery deadline
	SendsPerSec  int           // global token-bucket limit across all bots
}

// PollingConfig tunes the adaptive feed poller.
type PollingConfig struct {
	BaseInterval time.Duration
	MaxInterval  time.Duration
}

// ValidationConfig sets the thresholds for the validation chain.
type ValidationConfig struct {
	MinOdds             float64
	MaxOdds             float64
	MinProfit           float64
	MaxProfit           float64
	MinEventTime        time.Duration // event must start at least this far in the future
	GenerativeThreshold int           // leg marker at or above this is rejected
}

// ConcurrencyConfig bounds the per-batch fan-out and HTTP parallelism.
type ConcurrencyConfig struct {
	ConcurrentPicks    int
	ConcurrentRequests int
}

// CacheConfig sizes the shared local cache.
type CacheConfig struct {
	TTL     time.Duration
	MaxSize int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables. Every recognized
// option has a default; only credentials are required (see Validate).
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.url", "https://api.apostasseguras.com/request")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 30)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.username", "")

	v.SetDefault("telegram.bot_tokens", "")
	v.SetDefault("telegram.log_channel", 0)

	v.SetDefault("polling.base_interval", 0.5)
	v.SetDefault("polling.max_interval", 5.0)

	v.SetDefault("min.odds", 1.10)
	v.SetDefault("max.odds", 9.99)
	v.SetDefault("min.profit", -1.0)
	v.SetDefault("max.profit", 25.0)

	v.SetDefault("concurrent.picks", 250)
	v.SetDefault("concurrent.requests", 100)

	v.SetDefault("cache.ttl", 60)
	v.SetDefault("cache.max_size", 2000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	cfg := &Config{
		API: APIConfig{
			URL:                v.GetString("api.url"),
			Token:              v.GetString("api.token"),
			Timeout:            time.Duration(v.GetInt("api.timeout")) * time.Second,
			ConnectTimeout:     10 * time.Second,
			Retries:            3,
			SessionMaxAge:      12 * time.Hour,
			MaxSessionErrors:   10,
			ConnectionsPerHost: 10,
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			Username: v.GetString("redis.username"),
			DB:       0,
			PoolSize: 500,
		},
		Telegram: TelegramConfig{
			BotTokens:    splitTokens(v.GetString("telegram.bot_tokens")),
			LogChannel:   v.GetInt64("telegram.log_channel"),
			MaxQueueSize: 1000,
			MaxRetries:   3,
			MaxWait:      30 * time.Second,
			SendsPerSec:  30,
		},
		Polling: PollingConfig{
			BaseInterval: secondsDuration(v.GetFloat64("polling.base_interval")),
			MaxInterval:  secondsDuration(v.GetFloat64("polling.max_interval")),
		},
		Validation: ValidationConfig{
			MinOdds:             v.GetFloat64("min.odds"),
			MaxOdds:             v.GetFloat64("max.odds"),
			MinProfit:           v.GetFloat64("min.profit"),
			MaxProfit:           v.GetFloat64("max.profit"),
			MinEventTime:        0,
			GenerativeThreshold: 2,
		},
		Concurrency: ConcurrencyConfig{
			ConcurrentPicks:    v.GetInt("concurrent.picks"),
			ConcurrentRequests: v.GetInt("concurrent.requests"),
		},
		Cache: CacheConfig{
			TTL:     time.Duration(v.GetInt("cache.ttl")) * time.Second,
			MaxSize: v.GetInt("cache.max_size"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	return cfg, nil
}

// Validate checks required fields and value ranges. A failure here means
// the process must exit with code 1 before touching any backend.
func (c *Config) Validate() error {
	if c.API.URL == "" {
		return fmt.Errorf("api url is required (set API_URL)")
	}
	if c.API.Token == "" {
		return fmt.Errorf("api token is required (set API_TOKEN)")
	}
	if len(c.Telegram.BotTokens) == 0 {
		return fmt.Errorf("at least one bot token is required (set TELEGRAM_BOT_TOKENS)")
	}
	if c.Polling.BaseInterval <= 0 {
		return fmt.Errorf("polling base interval must be > 0")
	}
	if c.Polling.MaxInterval < c.Polling.BaseInterval {
		return fmt.Errorf("polling max interval must be >= base interval")
	}
	if c.Validation.MinOdds >= c.Validation.MaxOdds {
		return fmt.Errorf("min odds must be < max odds")
	}
	if c.Validation.MinProfit >= c.Validation.MaxProfit {
		return fmt.Errorf("min profit must be < max profit")
	}
	if c.Concurrency.ConcurrentPicks <= 0 {
		return fmt.Errorf("concurrent picks must be > 0")
	}
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache max size must be > 0")
	}
	return nil
}

// RedisAddr returns the host:port address for the dedupe store.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func splitTokens(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
