package config

import (
	"errors"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// QueryConfig holds configuration for the one-shot query command.
type QueryConfig struct {
	RPCURLs        []string
	LotteryAddress string
	Event          string
	FromBlock      uint64
	ToBlock        uint64
	Out            string
	Errors         string
	Range          RangeConfig
	LogLevel       string
}

// LoadQuery merges config file, environment variables, and flags into QueryConfig.
func LoadQuery(cfgFile string, flags *pflag.FlagSet) (QueryConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setRangeDefaults(v)
		v.SetDefault("event", "TicketsPurchased")
		v.SetDefault("out", "./data/events.jsonl")
		v.SetDefault("errors", "./data/decode_errors.jsonl")
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return QueryConfig{}, err
	}

	cfg := QueryConfig{
		RPCURLs:        getStringSlice(v, "rpc"),
		LotteryAddress: v.GetString("lottery-address"),
		Event:          v.GetString("event"),
		FromBlock:      v.GetUint64("from"),
		ToBlock:        v.GetUint64("to"),
		Out:            v.GetString("out"),
		Errors:         v.GetString("errors"),
		Range:          loadRange(v),
		LogLevel:       v.GetString("log-level"),
	}
	if len(cfg.RPCURLs) == 0 {
		return QueryConfig{}, errors.New("at least one rpc endpoint is required")
	}
	if cfg.LotteryAddress == "" {
		return QueryConfig{}, errors.New("lottery-address is required")
	}
	return cfg, nil
}
