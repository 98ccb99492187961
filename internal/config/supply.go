package config

import (
	"errors"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SupplyConfig holds configuration for the supply command.
type SupplyConfig struct {
	RPCURLs        []string
	TokenAddress   string
	SupplyExcluded []string
	LogLevel       string
}

// LoadSupply merges config file, environment variables, and flags into SupplyConfig.
func LoadSupply(cfgFile string, flags *pflag.FlagSet) (SupplyConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return SupplyConfig{}, err
	}

	cfg := SupplyConfig{
		RPCURLs:        getStringSlice(v, "rpc"),
		TokenAddress:   v.GetString("token-address"),
		SupplyExcluded: getStringSlice(v, "supply-excluded"),
		LogLevel:       v.GetString("log-level"),
	}
	if len(cfg.RPCURLs) == 0 {
		return SupplyConfig{}, errors.New("at least one rpc endpoint is required")
	}
	if cfg.TokenAddress == "" {
		return SupplyConfig{}, errors.New("token-address is required")
	}
	return cfg, nil
}
