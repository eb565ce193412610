package rates

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinforward/gateway/logger"
	"github.com/coinforward/gateway/types"
)

type countingSource struct {
	mu      sync.Mutex
	fetches int
	table   map[types.CoinType]decimal.Decimal
	err     error
}

func (s *countingSource) FetchRates(ctx context.Context) (map[types.CoinType]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[types.CoinType]decimal.Decimal, len(s.table))
	for k, v := range s.table {
		out[k] = v
	}
	return out, nil
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func btcTable(rate string) map[types.CoinType]decimal.Decimal {
	return map[types.CoinType]decimal.Decimal{
		types.CoinBTC: decimal.RequireFromString(rate),
	}
}

func TestCache_ServesFreshWithoutRefetch(t *testing.T) {
	src := &countingSource{table: btcTable("43250.75")}
	c := NewCache(src, time.Minute, logger.NoopLogger{})

	for i := 0; i < 5; i++ {
		rate, err := c.GetRate(context.Background(), types.CoinBTC)
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.RequireFromString("43250.75")))
	}

	assert.Equal(t, 1, src.count(), "fresh reads must not hit the source")
}

func TestCache_RefreshesPastValidityWindow(t *testing.T) {
	src := &countingSource{table: btcTable("43250.75")}
	c := NewCache(src, time.Minute, logger.NoopLogger{})

	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.GetRate(context.Background(), types.CoinBTC)
	require.NoError(t, err)
	require.Equal(t, 1, src.count())

	// Inside the window: no refetch.
	now = now.Add(59 * time.Second)
	_, err = c.GetRate(context.Background(), types.CoinBTC)
	require.NoError(t, err)
	assert.Equal(t, 1, src.count())

	// Past the window: the stale read refreshes first.
	now = now.Add(2 * time.Second)
	src.mu.Lock()
	src.table = btcTable("44000")
	src.mu.Unlock()

	rate, err := c.GetRate(context.Background(), types.CoinBTC)
	require.NoError(t, err)
	assert.Equal(t, 2, src.count())
	assert.True(t, rate.Equal(decimal.RequireFromString("44000")))
}

func TestCache_FailedRefreshFallsBackToPreviousTable(t *testing.T) {
	src := &countingSource{table: btcTable("43250.75")}
	c := NewCache(src, time.Minute, logger.NoopLogger{})

	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.GetRate(context.Background(), types.CoinBTC)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	src.mu.Lock()
	src.err = errors.New("rate endpoint down")
	src.mu.Unlock()

	rate, err := c.GetRate(context.Background(), types.CoinBTC)
	require.NoError(t, err, "old table must keep serving after a failed refresh")
	assert.True(t, rate.Equal(decimal.RequireFromString("43250.75")))

	// The age clock was not reset, so the next stale read retries.
	before := src.count()
	_, err = c.GetRate(context.Background(), types.CoinBTC)
	require.NoError(t, err)
	assert.Greater(t, src.count(), before)
}

func TestCache_FailedRefreshWithNoTable(t *testing.T) {
	src := &countingSource{err: errors.New("rate endpoint down")}
	c := NewCache(src, time.Minute, logger.NoopLogger{})

	_, err := c.GetRate(context.Background(), types.CoinBTC)
	require.Error(t, err)
	assert.Equal(t, types.ErrRateUnavailable, types.ErrorCode(err))
}

func TestCache_MissingCoin(t *testing.T) {
	src := &countingSource{table: btcTable("43250.75")}
	c := NewCache(src, time.Minute, logger.NoopLogger{})

	_, err := c.GetRate(context.Background(), types.CoinLTC)
	require.Error(t, err)
	assert.Equal(t, types.ErrRateUnavailable, types.ErrorCode(err))
}

func TestCache_GetAllRatesReturnsCopy(t *testing.T) {
	src := &countingSource{table: btcTable("43250.75")}
	c := NewCache(src, time.Minute, logger.NoopLogger{})

	table, err := c.GetAllRates(context.Background())
	require.NoError(t, err)

	table[types.CoinBTC] = decimal.Zero

	rate, err := c.GetRate(context.Background(), types.CoinBTC)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("43250.75")),
		"mutating the snapshot must not affect the cache")
}

func TestCache_ConcurrentReaders(t *testing.T) {
	src := &countingSource{table: btcTable("43250.75")}
	c := NewCache(src, 10*time.Millisecond, logger.NoopLogger{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				rate, err := c.GetRate(context.Background(), types.CoinBTC)
				if assert.NoError(t, err) {
					assert.True(t, rate.Equal(decimal.RequireFromString("43250.75")))
				}
			}
		}()
	}
	wg.Wait()
}
