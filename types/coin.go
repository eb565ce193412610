package types

import "github.com/shopspring/decimal"

// CoinType identifies a supported cryptocurrency.
type CoinType string

const (
	CoinBTC  CoinType = "BTC"
	CoinETH  CoinType = "ETH"
	CoinLTC  CoinType = "LTC"
	CoinUSDT CoinType = "USDT"
)

func (c CoinType) String() string {
	return string(c)
}

// CoinProfile carries the per-coin constants that a single polymorphic chain
// provider is parameterized by: address shape, native decimal precision and
// the flat network fee used when no live estimate is available.
type CoinProfile struct {
	Symbol        CoinType
	Name          string
	Decimals      int32
	AddressPrefix string
	NetworkFee    decimal.Decimal
}

var coinProfiles = map[CoinType]CoinProfile{
	CoinBTC: {
		Symbol:        CoinBTC,
		Name:          "Bitcoin",
		Decimals:      8,
		AddressPrefix: "bc1q",
		NetworkFee:    decimal.RequireFromString("0.0001"),
	},
	CoinETH: {
		Symbol:        CoinETH,
		Name:          "Ethereum",
		Decimals:      18,
		AddressPrefix: "0x",
		NetworkFee:    decimal.RequireFromString("0.0005"),
	},
	CoinLTC: {
		Symbol:        CoinLTC,
		Name:          "Litecoin",
		Decimals:      8,
		AddressPrefix: "ltc1q",
		NetworkFee:    decimal.RequireFromString("0.001"),
	},
	CoinUSDT: {
		Symbol:        CoinUSDT,
		Name:          "Tether",
		Decimals:      6,
		AddressPrefix: "0x",
		NetworkFee:    decimal.RequireFromString("1"),
	},
}

// ProfileFor returns the profile for a coin, if it is supported.
func ProfileFor(coin CoinType) (CoinProfile, bool) {
	p, ok := coinProfiles[coin]
	return p, ok
}

// SupportedCoins returns the coins with a registered profile.
func SupportedCoins() []CoinType {
	coins := make([]CoinType, 0, len(coinProfiles))
	for c := range coinProfiles {
		coins = append(coins, c)
	}
	return coins
}

// RoundToCoin rounds an amount half-up to the coin's native precision.
// Unknown coins round to 8 places.
func RoundToCoin(amount decimal.Decimal, coin CoinType) decimal.Decimal {
	if p, ok := coinProfiles[coin]; ok {
		return amount.Round(p.Decimals)
	}
	return amount.Round(8)
}
