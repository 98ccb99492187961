package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "STATS"

// Config holds the serve command configuration loaded from flags, env,
// .env and config file.
type Config struct {
	RPCURLs []string

	LotteryAddress string
	TokenAddress   string
	PriceFeed      string
	TVLHolders     []string
	SupplyExcluded []string

	StartBlock     uint64
	LookbackBlocks uint64

	LotteryTTL      time.Duration
	TVLTTL          time.Duration
	SupplyTTL       time.Duration
	SoftRefresh     time.Duration
	MaxJitter       time.Duration
	LotteryInterval time.Duration
	TVLInterval     time.Duration
	SupplyInterval  time.Duration
	FetchTimeout    time.Duration
	JanitorInterval time.Duration

	Range RangeConfig

	TicketPrice  decimal.Decimal
	BurnRateBps  int64
	TVLDays      int
	TVLThreshold decimal.Decimal
	BlockTime    time.Duration

	HTTPAddr       string
	RequestTimeout time.Duration
	LogLevel       string

	PGDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SnapshotDir   string
	EventsOut     string
	OTelEndpoint  string
}

// RangeConfig holds the range scan limits.
type RangeConfig struct {
	MaxRangeSize      uint64
	MaxSplitDepth     int
	MinSplittableSize uint64
	NumChunks         int
	InterBatchDelay   time.Duration
	MaxRetries        int
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setRangeDefaults(v)
		v.SetDefault("lookback-blocks", uint64(500_000))
		v.SetDefault("lottery-ttl", 10*time.Minute)
		v.SetDefault("tvl-ttl", 30*time.Minute)
		v.SetDefault("supply-ttl", 5*time.Minute)
		v.SetDefault("soft-refresh", 2*time.Minute)
		v.SetDefault("max-jitter", 60*time.Second)
		v.SetDefault("lottery-interval", 5*time.Minute)
		v.SetDefault("tvl-interval", 30*time.Minute)
		v.SetDefault("supply-interval", 5*time.Minute)
		v.SetDefault("fetch-timeout", 5*time.Minute)
		v.SetDefault("janitor-interval", time.Minute)
		v.SetDefault("ticket-price", "0")
		v.SetDefault("burn-rate-bps", 0)
		v.SetDefault("tvl-days", 30)
		v.SetDefault("tvl-threshold", "0.01")
		v.SetDefault("block-time", 2*time.Second)
		v.SetDefault("http-addr", ":8080")
		v.SetDefault("request-timeout", 30*time.Second)
		v.SetDefault("snapshot-dir", "./data/snapshots")
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return Config{}, err
	}

	ticketPrice, err := getDecimal(v, "ticket-price")
	if err != nil {
		return Config{}, err
	}
	threshold, err := getDecimal(v, "tvl-threshold")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURLs:         getStringSlice(v, "rpc"),
		LotteryAddress:  v.GetString("lottery-address"),
		TokenAddress:    v.GetString("token-address"),
		PriceFeed:       v.GetString("price-feed"),
		TVLHolders:      getStringSlice(v, "tvl-holders"),
		SupplyExcluded:  getStringSlice(v, "supply-excluded"),
		StartBlock:      v.GetUint64("start-block"),
		LookbackBlocks:  v.GetUint64("lookback-blocks"),
		LotteryTTL:      v.GetDuration("lottery-ttl"),
		TVLTTL:          v.GetDuration("tvl-ttl"),
		SupplyTTL:       v.GetDuration("supply-ttl"),
		SoftRefresh:     v.GetDuration("soft-refresh"),
		MaxJitter:       v.GetDuration("max-jitter"),
		LotteryInterval: v.GetDuration("lottery-interval"),
		TVLInterval:     v.GetDuration("tvl-interval"),
		SupplyInterval:  v.GetDuration("supply-interval"),
		FetchTimeout:    v.GetDuration("fetch-timeout"),
		JanitorInterval: v.GetDuration("janitor-interval"),
		Range:           loadRange(v),
		TicketPrice:     ticketPrice,
		BurnRateBps:     v.GetInt64("burn-rate-bps"),
		TVLDays:         v.GetInt("tvl-days"),
		TVLThreshold:    threshold,
		BlockTime:       v.GetDuration("block-time"),
		HTTPAddr:        v.GetString("http-addr"),
		RequestTimeout:  v.GetDuration("request-timeout"),
		LogLevel:        v.GetString("log-level"),
		PGDSN:           v.GetString("pg-dsn"),
		RedisAddr:       v.GetString("redis-addr"),
		RedisPassword:   v.GetString("redis-password"),
		RedisDB:         v.GetInt("redis-db"),
		SnapshotDir:     v.GetString("snapshot-dir"),
		EventsOut:       v.GetString("events-out"),
		OTelEndpoint:    v.GetString("otel-endpoint"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values the service cannot start without.
func (c Config) Validate() error {
	if len(c.RPCURLs) == 0 {
		return errors.New("at least one rpc endpoint is required")
	}
	if c.LotteryAddress == "" && c.TokenAddress == "" {
		return errors.New("lottery-address or token-address is required")
	}
	if c.BurnRateBps < 0 || c.BurnRateBps > 10_000 {
		return fmt.Errorf("burn-rate-bps %d out of range", c.BurnRateBps)
	}
	if c.TicketPrice.IsNegative() {
		return errors.New("ticket-price must not be negative")
	}
	return nil
}

// newViper builds a viper instance with the shared env, .env and config file
// handling. defaults runs before flags are bound.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// loadDotEnv loads ./.env into the process environment if present. Variables
// already set win.
func loadDotEnv() error {
	path := os.Getenv(envPrefix + "_DOTENV")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setRangeDefaults(v *viper.Viper) {
	v.SetDefault("max-range-size", uint64(10_000))
	v.SetDefault("max-split-depth", 3)
	v.SetDefault("min-splittable-size", uint64(20))
	v.SetDefault("num-chunks", 8)
	v.SetDefault("inter-batch-delay", 1500*time.Millisecond)
	v.SetDefault("max-retries", 5)
}

func loadRange(v *viper.Viper) RangeConfig {
	return RangeConfig{
		MaxRangeSize:      v.GetUint64("max-range-size"),
		MaxSplitDepth:     v.GetInt("max-split-depth"),
		MinSplittableSize: v.GetUint64("min-splittable-size"),
		NumChunks:         v.GetInt("num-chunks"),
		InterBatchDelay:   v.GetDuration("inter-batch-delay"),
		MaxRetries:        v.GetInt("max-retries"),
	}
}

func getDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		if len(typed) == 1 {
			return splitAndClean(typed[0])
		}
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
