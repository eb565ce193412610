// Package fees implements the tiered platform fee schedule. Calculation is
// pure: the network fee is an input, supplied by the chain provider's
// estimate, and nothing here holds state, so concurrent use needs no
// synchronization.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/coinforward/gateway/types"
)

// tier maps a half-open amount bracket [lower, upper) to a platform fee
// rate. The final tier has no upper bound.
type tier struct {
	lower decimal.Decimal
	rate  decimal.Decimal
}

// Tiers are evaluated on the gross amount, highest bracket first.
var tiers = []tier{
	{lower: decimal.NewFromInt(10000), rate: decimal.RequireFromString("0.0005")},
	{lower: decimal.NewFromInt(1000), rate: decimal.RequireFromString("0.001")},
	{lower: decimal.NewFromInt(100), rate: decimal.RequireFromString("0.002")},
	{lower: decimal.NewFromInt(10), rate: decimal.RequireFromString("0.003")},
	{lower: decimal.Zero, rate: decimal.RequireFromString("0.005")},
}

// RateFor returns the platform fee rate for a gross transaction amount.
// Bracket lower bounds are inclusive, upper bounds exclusive.
func RateFor(amount decimal.Decimal) decimal.Decimal {
	for _, t := range tiers {
		if amount.GreaterThanOrEqual(t.lower) {
			return t.rate
		}
	}
	return tiers[len(tiers)-1].rate
}

// Calculate produces a fee quote for the given gross amount. The platform
// fee is rounded half-up to the coin's native precision; networkFee passes
// through untouched.
func Calculate(amount decimal.Decimal, coin types.CoinType, networkFee decimal.Decimal) (*types.FeeQuote, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, types.NewError(types.ErrInvalidAmount, fmt.Sprintf("fee amount must be positive, got %s", amount))
	}
	if _, ok := types.ProfileFor(coin); !ok {
		return nil, types.NewError(types.ErrUnsupportedCoin, fmt.Sprintf("no profile for coin %s", coin))
	}

	rate := RateFor(amount)
	platformFee := types.RoundToCoin(amount.Mul(rate), coin)
	totalFee := platformFee.Add(networkFee)

	return &types.FeeQuote{
		Amount:          amount,
		Coin:            coin,
		PlatformFeeRate: rate,
		PlatformFee:     platformFee,
		NetworkFee:      networkFee,
		TotalFee:        totalFee,
		NetAmount:       amount.Sub(totalFee),
	}, nil
}
