// Package config loads service configuration, environment-first with an
// optional .env file.
package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	LogLevel   string
	ListenAddr string

	StorePath string

	RedisAddr string
	RedisDB   int
	QuoteTTL  time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	UnimindLookback  time.Duration
	UnimindThreshold int
	SupportedTokens  []string
}

func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LISTEN_ADDR", ":8080")
	viper.SetDefault("STORE_PATH", "data/orders")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("QUOTE_TTL", 2*time.Hour)
	viper.SetDefault("KAFKA_TOPIC", "orders")
	viper.SetDefault("UNIMIND_LOOKBACK", 15*time.Minute)
	viper.SetDefault("UNIMIND_THRESHOLD", 25)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("No config file found: %v", err)
	}

	return &Config{
		LogLevel:         viper.GetString("LOG_LEVEL"),
		ListenAddr:       viper.GetString("LISTEN_ADDR"),
		StorePath:        viper.GetString("STORE_PATH"),
		RedisAddr:        viper.GetString("REDIS_ADDR"),
		RedisDB:          viper.GetInt("REDIS_DB"),
		QuoteTTL:         viper.GetDuration("QUOTE_TTL"),
		KafkaBrokers:     viper.GetStringSlice("KAFKA_BROKERS"),
		KafkaTopic:       viper.GetString("KAFKA_TOPIC"),
		UnimindLookback:  viper.GetDuration("UNIMIND_LOOKBACK"),
		UnimindThreshold: viper.GetInt("UNIMIND_THRESHOLD"),
		SupportedTokens:  viper.GetStringSlice("SUPPORTED_TOKENS"),
	}
}
