package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinforward/gateway/types"
)

// fiatDecimals is the precision for fiat-side results.
const fiatDecimals = 2

// divisionPrecision keeps intermediate quotients well past any coin's
// native precision before final rounding.
const divisionPrecision = 18

// Converter turns fiat amounts into crypto amounts and back using the
// cached rate table.
type Converter struct {
	cache *Cache
	fiat  types.FiatCurrency
}

func NewConverter(cache *Cache, fiat types.FiatCurrency) *Converter {
	return &Converter{cache: cache, fiat: fiat}
}

// FiatToCrypto converts a fiat amount into the coin amount it buys at the
// current rate, rounded half-up to the coin's native precision.
func (c *Converter) FiatToCrypto(ctx context.Context, fiatAmount decimal.Decimal, coin types.CoinType) (*types.Conversion, error) {
	if fiatAmount.LessThanOrEqual(decimal.Zero) {
		return nil, types.NewError(types.ErrInvalidAmount, fmt.Sprintf("conversion amount must be positive, got %s", fiatAmount))
	}

	rate, err := c.cache.GetRate(ctx, coin)
	if err != nil {
		return nil, err
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return nil, types.NewError(types.ErrRateUnavailable, fmt.Sprintf("non-positive rate for coin %s", coin))
	}

	crypto := types.RoundToCoin(fiatAmount.DivRound(rate, divisionPrecision), coin)

	return &types.Conversion{
		FiatAmount:   fiatAmount,
		CryptoAmount: crypto,
		Rate:         rate,
		Coin:         coin,
		Fiat:         c.fiat,
		Timestamp:    time.Now(),
	}, nil
}

// CryptoToFiat converts a coin amount into fiat at the current rate,
// rounded half-up to two decimal places.
func (c *Converter) CryptoToFiat(ctx context.Context, cryptoAmount decimal.Decimal, coin types.CoinType) (*types.Conversion, error) {
	if cryptoAmount.LessThanOrEqual(decimal.Zero) {
		return nil, types.NewError(types.ErrInvalidAmount, fmt.Sprintf("conversion amount must be positive, got %s", cryptoAmount))
	}

	rate, err := c.cache.GetRate(ctx, coin)
	if err != nil {
		return nil, err
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return nil, types.NewError(types.ErrRateUnavailable, fmt.Sprintf("non-positive rate for coin %s", coin))
	}

	fiat := cryptoAmount.Mul(rate).Round(fiatDecimals)

	return &types.Conversion{
		FiatAmount:   fiat,
		CryptoAmount: cryptoAmount,
		Rate:         rate,
		Coin:         coin,
		Fiat:         c.fiat,
		Timestamp:    time.Now(),
	}, nil
}
