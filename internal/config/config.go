// Package config loads engine configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	// Price feed
	InitialBid   int64
	InitialAsk   int64
	TickInterval time.Duration
	TickJitter   int64
	MaxStepBp    int64
	MinSpread    int64

	// Settlement
	LockDuration time.Duration
	MaxTradeMg   int64
}

// Load reads configuration from the environment. A .env file is loaded
// first if present; real environment variables take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("CACHE_TTL", "30s")

	viper.SetDefault("INITIAL_BID", int64(43_500_000))
	viper.SetDefault("INITIAL_ASK", int64(43_850_000))
	viper.SetDefault("TICK_INTERVAL", "4s")
	viper.SetDefault("TICK_JITTER", int64(60_000))
	viper.SetDefault("MAX_STEP_BP", int64(200))
	viper.SetDefault("MIN_SPREAD", int64(50_000))

	viper.SetDefault("LOCK_DURATION", "10s")
	viper.SetDefault("MAX_TRADE_MG", int64(500_000)) // 500 g

	viper.AutomaticEnv()

	cfg := &Config{
		Port:        viper.GetString("PORT"),
		DatabaseURL: viper.GetString("DATABASE_URL"),
		RedisURL:    viper.GetString("REDIS_URL"),
		CacheTTL:    viper.GetDuration("CACHE_TTL"),

		InitialBid:   viper.GetInt64("INITIAL_BID"),
		InitialAsk:   viper.GetInt64("INITIAL_ASK"),
		TickInterval: viper.GetDuration("TICK_INTERVAL"),
		TickJitter:   viper.GetInt64("TICK_JITTER"),
		MaxStepBp:    viper.GetInt64("MAX_STEP_BP"),
		MinSpread:    viper.GetInt64("MIN_SPREAD"),

		LockDuration: viper.GetDuration("LOCK_DURATION"),
		MaxTradeMg:   viper.GetInt64("MAX_TRADE_MG"),
	}
	return cfg, nil
}
