package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinforward/gateway/types"
)

func newRecord(id, address string) *types.PaymentRecord {
	now := time.Now()
	return &types.PaymentRecord{
		ID:               id,
		ReceivingAddress: address,
		MerchantAddress:  "bc1qmerchant0000000000000000000000",
		Coin:             types.CoinBTC,
		ExpectedAmount:   decimal.RequireFromString("0.5"),
		Status:           types.StatusPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(30 * time.Minute),
	}
}

func TestRegistry_InsertAndGet(t *testing.T) {
	r := New()
	rec := newRecord("p1", "bc1qaddr1")

	require.NoError(t, r.Insert(rec))

	got, err := r.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(newRecord("p1", "bc1qaddr1")))

	got, err := r.Get("p1")
	require.NoError(t, err)
	got.Status = types.StatusConfirmed
	got.ForwardedTxID = "bogus"

	fresh, err := r.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, fresh.Status)
	assert.Empty(t, fresh.ForwardedTxID)
}

func TestRegistry_DuplicateIDAndAddress(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(newRecord("p1", "bc1qaddr1")))

	t.Run("duplicate id", func(t *testing.T) {
		err := r.Insert(newRecord("p1", "bc1qaddr2"))
		require.Error(t, err)
		assert.Equal(t, types.ErrDuplicateRecord, types.ErrorCode(err))
	})

	t.Run("duplicate address", func(t *testing.T) {
		err := r.Insert(newRecord("p2", "bc1qaddr1"))
		require.Error(t, err)
		assert.Equal(t, types.ErrDuplicateRecord, types.ErrorCode(err))
	})
}

func TestRegistry_NotFound(t *testing.T) {
	r := New()

	_, err := r.Get("missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.ErrorCode(err))

	_, err = r.Status("missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.ErrorCode(err))

	_, err = r.Update("missing", func(*types.PaymentRecord) error { return nil })
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.ErrorCode(err))
}

func TestRegistry_PendingFiltersTerminalRecords(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(newRecord("p1", "bc1qaddr1")))
	require.NoError(t, r.Insert(newRecord("p2", "bc1qaddr2")))

	_, err := r.Update("p1", func(rec *types.PaymentRecord) error {
		rec.Status = types.StatusExpired
		return nil
	})
	require.NoError(t, err)

	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "p2", pending[0].ID)

	assert.Len(t, r.All(), 2, "terminal records are retained for audit")
}

func TestRegistry_UpdateIsAllOrNothing(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(newRecord("p1", "bc1qaddr1")))

	_, err := r.Update("p1", func(rec *types.PaymentRecord) error {
		rec.Status = types.StatusConfirmed
		rec.ForwardedTxID = "tx-1"
		return assert.AnError
	})
	require.Error(t, err)

	got, err := r.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Empty(t, got.ForwardedTxID)
}

func TestRegistry_ConcurrentReadersAndWriter(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(newRecord("p1", "bc1qaddr1")))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Readers must never observe ForwardedTxID without confirmed status.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				rec, err := r.Get("p1")
				if err != nil {
					continue
				}
				hasTx := rec.ForwardedTxID != ""
				confirmed := rec.Status == types.StatusConfirmed
				assert.Equal(t, confirmed, hasTx,
					"status %s with txId %q", rec.Status, rec.ForwardedTxID)
			}
		}()
	}

	_, err := r.Update("p1", func(rec *types.PaymentRecord) error {
		rec.Status = types.StatusConfirmed
		rec.ForwardedTxID = "tx-1"
		return nil
	})
	require.NoError(t, err)

	close(stop)
	wg.Wait()
}
