package rates

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinforward/gateway/logger"
	"github.com/coinforward/gateway/types"
)

func newTestConverter(t *testing.T, table map[types.CoinType]decimal.Decimal) *Converter {
	t.Helper()
	cache := NewCache(&StaticSource{Table: table}, time.Minute, logger.NoopLogger{})
	return NewConverter(cache, types.FiatUSD)
}

func TestConverter_FiatToCrypto_WorkedScenario(t *testing.T) {
	// $100.00 at a BTC price of $43250.75:
	// 100 / 43250.75 = 0.0023120986..., half-up at 8 places.
	conv := newTestConverter(t, btcTable("43250.75"))

	res, err := conv.FiatToCrypto(context.Background(), decimal.RequireFromString("100.00"), types.CoinBTC)
	require.NoError(t, err)

	assert.True(t, res.CryptoAmount.Equal(decimal.RequireFromString("0.00231210")),
		"got %s", res.CryptoAmount)
	assert.True(t, res.FiatAmount.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, res.Rate.Equal(decimal.RequireFromString("43250.75")))
	assert.Equal(t, types.CoinBTC, res.Coin)
	assert.Equal(t, types.FiatUSD, res.Fiat)
	assert.False(t, res.Timestamp.IsZero())
}

func TestConverter_RoundTripWithinOneRoundingUnit(t *testing.T) {
	conv := newTestConverter(t, btcTable("43250.75"))
	ctx := context.Background()

	for _, fiat := range []string{"1.00", "20.00", "100.00", "999.99", "12345.67"} {
		toCrypto, err := conv.FiatToCrypto(ctx, decimal.RequireFromString(fiat), types.CoinBTC)
		require.NoError(t, err)

		back, err := conv.CryptoToFiat(ctx, toCrypto.CryptoAmount, types.CoinBTC)
		require.NoError(t, err)

		diff := back.FiatAmount.Sub(decimal.RequireFromString(fiat)).Abs()
		assert.True(t, diff.LessThanOrEqual(decimal.RequireFromString("0.01")),
			"fiat %s round-tripped to %s (diff %s)", fiat, back.FiatAmount, diff)
	}
}

func TestConverter_CryptoToFiat_RoundsToTwoPlaces(t *testing.T) {
	conv := newTestConverter(t, btcTable("43250.75"))

	// 0.001 * 43250.75 = 43.25075 -> 43.25
	res, err := conv.CryptoToFiat(context.Background(), decimal.RequireFromString("0.001"), types.CoinBTC)
	require.NoError(t, err)
	assert.True(t, res.FiatAmount.Equal(decimal.RequireFromString("43.25")), "got %s", res.FiatAmount)

	// 0.0000001 * 43250.75 = 0.004325075 -> 0.00 after half-up at 2 places
	res, err = conv.CryptoToFiat(context.Background(), decimal.RequireFromString("0.0000001"), types.CoinBTC)
	require.NoError(t, err)
	assert.True(t, res.FiatAmount.Equal(decimal.RequireFromString("0.00")), "got %s", res.FiatAmount)
}

func TestConverter_RejectsNonPositiveAmounts(t *testing.T) {
	conv := newTestConverter(t, btcTable("43250.75"))
	ctx := context.Background()

	for _, amount := range []string{"0", "-1", "-0.00000001"} {
		_, err := conv.FiatToCrypto(ctx, decimal.RequireFromString(amount), types.CoinBTC)
		require.Error(t, err, "fiat amount %s", amount)
		assert.Equal(t, types.ErrInvalidAmount, types.ErrorCode(err))

		_, err = conv.CryptoToFiat(ctx, decimal.RequireFromString(amount), types.CoinBTC)
		require.Error(t, err, "crypto amount %s", amount)
		assert.Equal(t, types.ErrInvalidAmount, types.ErrorCode(err))
	}
}

func TestConverter_MissingRate(t *testing.T) {
	conv := newTestConverter(t, btcTable("43250.75"))

	_, err := conv.FiatToCrypto(context.Background(), decimal.RequireFromString("10"), types.CoinETH)
	require.Error(t, err)
	assert.Equal(t, types.ErrRateUnavailable, types.ErrorCode(err))
}

func TestConverter_NonPositiveRate(t *testing.T) {
	conv := newTestConverter(t, map[types.CoinType]decimal.Decimal{
		types.CoinBTC: decimal.Zero,
	})

	_, err := conv.FiatToCrypto(context.Background(), decimal.RequireFromString("10"), types.CoinBTC)
	require.Error(t, err)
	assert.Equal(t, types.ErrRateUnavailable, types.ErrorCode(err))
}
