/**
 * @description
 * This package handles configuration management for the prize-service. It reads
 * settings from environment variables (and an optional .env file) through Viper,
 * then normalizes values that would otherwise leave the service misconfigured.
 *
 * @dependencies
 * - github.com/spf13/viper: Configuration loading and environment binding.
 */

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all the configuration variables for the prize-service.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	StoreDriver             string `mapstructure:"STORE_DRIVER"`
	SQLitePath              string `mapstructure:"SQLITE_PATH"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	TelegramBotToken        string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	AdminIDsRaw             string `mapstructure:"ADMIN_IDS"`
	AssetsDir               string `mapstructure:"ASSETS_DIR"`
	HiddenAssetsDir         string `mapstructure:"HIDDEN_ASSETS_DIR"`
	SeedAssetsOnStart       bool   `mapstructure:"SEED_ASSETS_ON_START"`
	RoundSchedule           string `mapstructure:"ROUND_SCHEDULE"`
	BroadcastConcurrency    int    `mapstructure:"BROADCAST_CONCURRENCY"`
	LeaderboardSize         int    `mapstructure:"LEADERBOARD_SIZE"`
	PixelateBlocks          int    `mapstructure:"PIXELATE_BLOCKS"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	EventsExchange          string `mapstructure:"EVENTS_EXCHANGE"`
	ClaimRequestQueue       string `mapstructure:"CLAIM_REQUEST_QUEUE"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	ClaimRateLimitPerMinute int    `mapstructure:"CLAIM_RATE_LIMIT_PER_MINUTE"`
	InternalAPIKey          string `mapstructure:"INTERNAL_API_KEY"`
	LogLevel                string `mapstructure:"LOG_LEVEL"`

	// AdminIDs is parsed from AdminIDsRaw (comma or space separated Telegram user ids).
	AdminIDs []int64 `mapstructure:"-"`
}

// LoadConfig reads configuration from environment variables and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("STORE_DRIVER", StoreDriverSQLite)
	viper.SetDefault("SQLITE_PATH", "prizes.db")
	viper.SetDefault("ASSETS_DIR", "assets/original")
	viper.SetDefault("HIDDEN_ASSETS_DIR", "assets/hidden")
	viper.SetDefault("SEED_ASSETS_ON_START", true)
	viper.SetDefault("ROUND_SCHEDULE", "0 * * * *") // Top of every hour.
	viper.SetDefault("BROADCAST_CONCURRENCY", 8)
	viper.SetDefault("LEADERBOARD_SIZE", 10)
	viper.SetDefault("PIXELATE_BLOCKS", 30)
	viper.SetDefault("EVENTS_EXCHANGE", "prize_events")
	viper.SetDefault("CLAIM_REQUEST_QUEUE", "prize_service.claim_requests")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "prize:rate_limit")
	viper.SetDefault("CLAIM_RATE_LIMIT_PER_MINUTE", 20)
	viper.SetDefault("LOG_LEVEL", "info")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("STORE_DRIVER")
	_ = viper.BindEnv("SQLITE_PATH")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN", "BOT_TOKEN")
	_ = viper.BindEnv("ADMIN_IDS")
	_ = viper.BindEnv("ASSETS_DIR")
	_ = viper.BindEnv("HIDDEN_ASSETS_DIR")
	_ = viper.BindEnv("SEED_ASSETS_ON_START")
	_ = viper.BindEnv("ROUND_SCHEDULE")
	_ = viper.BindEnv("BROADCAST_CONCURRENCY")
	_ = viper.BindEnv("LEADERBOARD_SIZE")
	_ = viper.BindEnv("PIXELATE_BLOCKS")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("CLAIM_REQUEST_QUEUE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("CLAIM_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("LOG_LEVEL")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	switch config.StoreDriver {
	case StoreDriverSQLite, StoreDriverPostgres, StoreDriverMemory:
	case "postgresql", "pg":
		config.StoreDriver = StoreDriverPostgres
	default:
		log.Printf("level=warn component=config msg=\"unknown STORE_DRIVER; falling back to sqlite\" value=%q", config.StoreDriver)
		config.StoreDriver = StoreDriverSQLite
	}
	if config.StoreDriver == StoreDriverPostgres && strings.TrimSpace(config.DatabaseURL) == "" {
		return config, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
	}

	config.RoundSchedule = strings.TrimSpace(config.RoundSchedule)
	if config.RoundSchedule == "" {
		config.RoundSchedule = "0 * * * *"
	}
	if config.BroadcastConcurrency <= 0 {
		config.BroadcastConcurrency = 8
	}
	if config.LeaderboardSize <= 0 {
		config.LeaderboardSize = 10
	}
	if config.PixelateBlocks <= 0 {
		config.PixelateBlocks = 30
	}
	if config.ClaimRateLimitPerMinute < 0 {
		config.ClaimRateLimitPerMinute = 0
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "prize:rate_limit"
	}
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.TelegramBotToken = strings.TrimSpace(config.TelegramBotToken)
	config.LogLevel = strings.ToLower(strings.TrimSpace(config.LogLevel))

	config.AdminIDs = ParseAdminIDs(config.AdminIDsRaw)

	return config, nil
}

// ParseAdminIDs splits a comma or whitespace separated list of Telegram user ids.
// Entries that are not integers are logged and skipped.
func ParseAdminIDs(raw string) []int64 {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	ids := make([]int64, 0, len(fields))
	seen := make(map[int64]struct{}, len(fields))
	for _, field := range fields {
		id, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil {
			log.Printf("level=warn component=config msg=\"invalid admin id\" value=%q err=%v", field, err)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// IsAdmin reports whether the Telegram user id is on the admin allow-list.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
