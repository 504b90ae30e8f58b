package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Log    LogConfig    `mapstructure:"log"`
	Market MarketConfig `mapstructure:"market"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Relay  RelayConfig  `mapstructure:"relay"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MarketConfig controls the simulated market: tick cadence and the
// market-hours window (KRX trades 09:00-15:30 local time).
type MarketConfig struct {
	Volatility     float64       `mapstructure:"volatility"`
	Open           string        `mapstructure:"open"`  // "09:00"
	Close          string        `mapstructure:"close"` // "15:30"
	Timezone       string        `mapstructure:"timezone"`
	OpenInterval   time.Duration `mapstructure:"open_interval"`
	ClosedInterval time.Duration `mapstructure:"closed_interval"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RelayConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment first (if present) so viper's
	// AutomaticEnv sees the same values as the real environment.
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v.SetDefault("app.port", ":3001")
	v.SetDefault("app.env", "local")

	v.SetDefault("log.level", "info")

	v.SetDefault("market.volatility", 0.02)
	v.SetDefault("market.open", "09:00")
	v.SetDefault("market.close", "15:30")
	v.SetDefault("market.timezone", "Asia/Seoul")
	v.SetDefault("market.open_interval", time.Second)
	v.SetDefault("market.closed_interval", 5*time.Second)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_ticks")
	v.SetDefault("kafka.group_id", "dataville-relay-group")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("relay.num_workers", 4)

	// Map dot-notation keys to underscore env vars (market.open_interval -> MARKET_OPEN_INTERVAL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "log.level")
	bindEnv(v, "market.volatility", "market.open", "market.close", "market.timezone",
		"market.open_interval", "market.closed_interval")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "relay.num_workers")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty when kafka is enabled")
	}
	if cfg.Market.Volatility <= 0 || cfg.Market.Volatility >= 1 {
		return nil, fmt.Errorf("market volatility must be in (0, 1), got %v", cfg.Market.Volatility)
	}
	if cfg.Relay.NumWorkers <= 0 {
		return nil, fmt.Errorf("relay num_workers must be positive")
	}
	openAt, err := ParseClock(cfg.Market.Open)
	if err != nil {
		return nil, fmt.Errorf("invalid market.open: %v", err)
	}
	closeAt, err := ParseClock(cfg.Market.Close)
	if err != nil {
		return nil, fmt.Errorf("invalid market.close: %v", err)
	}
	// The market-hours check treats the window as a same-day interval, so a
	// window that closes before it opens would never be open at all.
	if openAt.MinuteOfDay() >= closeAt.MinuteOfDay() {
		return nil, fmt.Errorf("market.open %s must be before market.close %s", cfg.Market.Open, cfg.Market.Close)
	}

	return &cfg, nil
}

// ClockTime is a wall-clock minute of day, timezone-agnostic.
type ClockTime struct {
	Hour   int
	Minute int
}

// MinuteOfDay returns the time as minutes since midnight.
func (c ClockTime) MinuteOfDay() int { return c.Hour*60 + c.Minute }

// ParseClock parses "HH:MM" into a ClockTime.
func ParseClock(s string) (ClockTime, error) {
	var ct ClockTime
	if _, err := fmt.Sscanf(s, "%d:%d", &ct.Hour, &ct.Minute); err != nil {
		return ct, fmt.Errorf("expected HH:MM, got %q", s)
	}
	if ct.Hour < 0 || ct.Hour > 23 || ct.Minute < 0 || ct.Minute > 59 {
		return ct, fmt.Errorf("out of range: %q", s)
	}
	return ct, nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
