// Package config loads gateway configuration from a YAML file.
package config

import (
	"github.com/spf13/viper"

	"github.com/coinforward/gateway/types"
)

// Load reads a YAML config file into a types.Config, applying the standard
// defaults for any timing parameter the file omits.
//
//	merchant_address: "bc1qmerchant000000000000000000000"
//	coin: BTC
//	fiat_currency: USD
//	payment_timeout: 30m
//	poll_interval: 5s
//	rate_ttl: 60s
//	log_level: info
func Load(path string) (types.Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("fiat_currency", string(types.FiatUSD))
	v.SetDefault("payment_timeout", types.DefaultPaymentTimeout)
	v.SetDefault("poll_interval", types.DefaultPollInterval)
	v.SetDefault("rate_ttl", types.DefaultRateTTL)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		return types.Config{}, types.WrapError(types.ErrConfig, "reading config file failed", err)
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, types.WrapError(types.ErrConfig, "parsing config file failed", err)
	}
	return cfg, nil
}
