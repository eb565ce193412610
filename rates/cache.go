package rates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinforward/gateway/logger"
	"github.com/coinforward/gateway/types"
)

// Cache holds the most recently fetched rate table and its fetch time.
// Within the validity window reads are served from memory; past it, the
// next read refreshes through the source. A refresh replaces the whole
// table in one step, so readers never see a half-updated table. If a
// refresh fails and an old table exists, the old table keeps serving;
// the age clock is not reset, so the next read retries the refresh.
type Cache struct {
	source Source
	ttl    time.Duration
	log    logger.Logger
	now    func() time.Time

	mu        sync.RWMutex
	table     map[types.CoinType]decimal.Decimal
	fetchedAt time.Time
}

type CacheOption func(*Cache)

// WithClock overrides the time source used to age the cached table.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

func NewCache(source Source, ttl time.Duration, log logger.Logger, opts ...CacheOption) *Cache {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if ttl <= 0 {
		ttl = types.DefaultRateTTL
	}
	c := &Cache{
		source: source,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetRate returns the fiat price for one unit of coin, refreshing the table
// first when the cached copy is stale.
func (c *Cache) GetRate(ctx context.Context, coin types.CoinType) (decimal.Decimal, error) {
	c.mu.RLock()
	if c.freshLocked() {
		rate, ok := c.table[coin]
		c.mu.RUnlock()
		if !ok {
			return decimal.Zero, types.NewError(types.ErrRateUnavailable, fmt.Sprintf("no rate for coin %s", coin))
		}
		return rate, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.freshLocked() {
		if err := c.refreshLocked(ctx); err != nil {
			return decimal.Zero, err
		}
	}

	rate, ok := c.table[coin]
	if !ok {
		return decimal.Zero, types.NewError(types.ErrRateUnavailable, fmt.Sprintf("no rate for coin %s", coin))
	}
	return rate, nil
}

// GetAllRates returns a snapshot copy of the rate table, refreshing first if
// stale.
func (c *Cache) GetAllRates(ctx context.Context) (map[types.CoinType]decimal.Decimal, error) {
	c.mu.RLock()
	if c.freshLocked() {
		out := copyTable(c.table)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.freshLocked() {
		if err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	return copyTable(c.table), nil
}

// Age returns how old the cached table is. A cache that has never been
// populated reports a negative age.
func (c *Cache) Age() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.table == nil {
		return -1
	}
	return c.now().Sub(c.fetchedAt)
}

func (c *Cache) freshLocked() bool {
	return c.table != nil && c.now().Sub(c.fetchedAt) < c.ttl
}

// refreshLocked fetches a new table under the write lock. On fetch failure
// it falls back to the previous table when one exists, otherwise the rate
// is unavailable.
func (c *Cache) refreshLocked(ctx context.Context) error {
	table, err := c.source.FetchRates(ctx)
	if err != nil {
		if c.table != nil {
			c.log.Warn("rate refresh failed, serving previous table", map[string]any{
				"error": err.Error(),
				"age":   c.now().Sub(c.fetchedAt).String(),
			})
			return nil
		}
		return types.WrapError(types.ErrRateUnavailable, "rate refresh failed with no cached table", err)
	}

	c.table = table
	c.fetchedAt = c.now()
	c.log.Debug("rate table refreshed", map[string]any{"coins": len(table)})
	return nil
}

func copyTable(t map[types.CoinType]decimal.Decimal) map[types.CoinType]decimal.Decimal {
	out := make(map[types.CoinType]decimal.Decimal, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
