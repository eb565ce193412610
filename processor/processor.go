// Package processor runs the payment state machine: a background loop that
// polls receiving-address balances, advances records out of pending and
// forwards confirmed funds to the merchant.
//
// Pending transitions to exactly one of confirmed, expired or
// forwarding_failed, all terminal. Forwarding is attempted at most once per
// payment; a failed forward is a terminal state requiring manual
// intervention, never an automatic retry, so funds cannot be forwarded
// twice.
package processor

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinforward/gateway/chain"
	"github.com/coinforward/gateway/logger"
	"github.com/coinforward/gateway/metrics"
	"github.com/coinforward/gateway/registry"
	"github.com/coinforward/gateway/types"
)

type Processor struct {
	registry *registry.Registry
	provider chain.ChainProvider
	interval time.Duration
	log      logger.Logger
	metrics  metrics.Recorder
	now      func() time.Time

	dispatch *dispatcher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*Processor)

// WithClock overrides the time source used for expiry checks and latency
// measurements.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

func New(reg *registry.Registry, provider chain.ChainProvider, interval time.Duration, log logger.Logger, rec metrics.Recorder, opts ...Option) *Processor {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if interval <= 0 {
		interval = types.DefaultPollInterval
	}
	p := &Processor{
		registry: reg,
		provider: provider,
		interval: interval,
		log:      log,
		metrics:  rec,
		now:      time.Now,
		dispatch: newDispatcher(log),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddListener registers a listener and returns its handle.
func (p *Processor) AddListener(l PaymentListener) int {
	return p.dispatch.Add(l)
}

// RemoveListener unregisters the listener with the given handle.
func (p *Processor) RemoveListener(id int) {
	p.dispatch.Remove(id)
}

// Start launches the polling loop. Starting an already-running processor is
// a no-op.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.run(loopCtx)

	p.log.Info("payment processor started", map[string]any{"interval": p.interval.String()})
}

// Stop cancels the polling loop and waits for the in-flight cycle to
// finish. Safe to call multiple times.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.log.Info("payment processor stopped", nil)
}

// Close stops the loop and shuts down listener dispatch, draining queued
// events first.
func (p *Processor) Close() {
	p.Stop()
	p.dispatch.Close()
}

func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// runCycle processes every pending record once. Per-payment failures are
// logged and retried next cycle; they never abort the cycle for other
// payments.
func (p *Processor) runCycle(ctx context.Context) {
	start := p.now()
	pending := p.registry.Pending()

	for _, rec := range pending {
		// A cancelled cycle leaves untouched records for the next run
		// rather than starting a transition it might not finish.
		if ctx.Err() != nil {
			return
		}
		p.processPayment(ctx, rec)
	}

	p.metrics.ObserveLatency(metrics.OpPollCycle, p.now().Sub(start), map[string]string{"coin": ""})
}

func (p *Processor) processPayment(ctx context.Context, rec types.PaymentRecord) {
	labels := map[string]string{"coin": rec.Coin.String()}

	balance, err := p.provider.GetBalance(ctx, rec.ReceivingAddress, rec.Coin)
	if err != nil {
		p.log.Warn("balance query failed, will retry next cycle", map[string]any{
			"paymentId": rec.ID,
			"address":   rec.ReceivingAddress,
			"error":     err.Error(),
		})
		p.metrics.IncCounter(metrics.EventPollError, labels)
		return
	}

	// A provider reporting less than previously observed is misbehaving;
	// treat the read as an error, not a balance regression.
	if balance.LessThan(rec.ObservedBalance) {
		p.log.Warn("provider reported lower balance than previously observed, ignoring read", map[string]any{
			"paymentId": rec.ID,
			"observed":  rec.ObservedBalance.String(),
			"reported":  balance.String(),
		})
		p.metrics.IncCounter(metrics.EventBalanceRegression, labels)
		return
	}

	now := p.now()

	switch {
	case now.After(rec.ExpiresAt) && balance.LessThan(rec.ExpectedAmount):
		p.expire(rec, balance, labels)

	case balance.GreaterThanOrEqual(rec.ExpectedAmount):
		p.forward(ctx, rec, balance, labels)

	default:
		if !balance.Equal(rec.ObservedBalance) {
			_, err := p.registry.Update(rec.ID, func(r *types.PaymentRecord) error {
				r.ObservedBalance = balance
				return nil
			})
			if err != nil {
				p.log.Error("failed to record observed balance", map[string]any{
					"paymentId": rec.ID, "error": err.Error(),
				})
				return
			}
			p.log.Debug("partial balance observed", map[string]any{
				"paymentId": rec.ID,
				"observed":  balance.String(),
				"expected":  rec.ExpectedAmount.String(),
			})
		}
	}
}

func (p *Processor) expire(rec types.PaymentRecord, balance decimal.Decimal, labels map[string]string) {
	updated, err := p.transition(rec.ID, types.StatusExpired, func(r *types.PaymentRecord) {
		r.ObservedBalance = balance
	})
	if err != nil {
		return
	}

	p.log.Info("payment expired", map[string]any{
		"paymentId": rec.ID,
		"observed":  balance.String(),
		"expected":  rec.ExpectedAmount.String(),
	})
	p.metrics.IncCounter(metrics.EventPaymentExpired, labels)

	p.dispatch.Publish(Event{
		PaymentID: rec.ID,
		OldStatus: types.StatusPending,
		NewStatus: types.StatusExpired,
		Record:    updated,
	})
}

// forward attempts to move the full observed balance, which may exceed the
// expected amount on overpayment, to the merchant address.
func (p *Processor) forward(ctx context.Context, rec types.PaymentRecord, balance decimal.Decimal, labels map[string]string) {
	txID, fwdErr := p.provider.Forward(ctx, rec.ReceivingAddress, rec.MerchantAddress, balance, rec.Coin)

	if fwdErr != nil {
		updated, err := p.transition(rec.ID, types.StatusForwardingFailed, func(r *types.PaymentRecord) {
			r.ObservedBalance = balance
		})
		if err != nil {
			return
		}

		p.log.Error("forwarding failed, manual intervention required", map[string]any{
			"paymentId": rec.ID,
			"address":   rec.ReceivingAddress,
			"amount":    balance.String(),
			"error":     fwdErr.Error(),
		})
		p.metrics.IncCounter(metrics.EventForwardingFailed, labels)

		p.dispatch.Publish(Event{
			PaymentID: rec.ID,
			OldStatus: types.StatusPending,
			NewStatus: types.StatusForwardingFailed,
			Record:    updated,
			Err:       fwdErr,
		})
		return
	}

	updated, err := p.transition(rec.ID, types.StatusConfirmed, func(r *types.PaymentRecord) {
		r.ObservedBalance = balance
		r.ForwardedTxID = txID
	})
	if err != nil {
		return
	}

	p.log.Info("payment confirmed and forwarded", map[string]any{
		"paymentId": rec.ID,
		"amount":    balance.String(),
		"txId":      txID,
	})
	p.metrics.IncCounter(metrics.EventPaymentConfirmed, labels)

	p.dispatch.Publish(Event{
		PaymentID: rec.ID,
		OldStatus: types.StatusPending,
		NewStatus: types.StatusConfirmed,
		Record:    updated,
	})
}

// transition atomically moves a record out of pending. The guard inside the
// update closure makes terminal states sticky: a record that has already
// left pending is never transitioned again.
func (p *Processor) transition(id string, to types.PaymentStatus, mutate func(*types.PaymentRecord)) (types.PaymentRecord, error) {
	updated, err := p.registry.Update(id, func(r *types.PaymentRecord) error {
		if r.Status != types.StatusPending {
			return types.NewError(types.ErrDuplicateRecord, "record already left pending")
		}
		mutate(r)
		r.Status = to
		return nil
	})
	if err != nil {
		p.log.Warn("transition skipped", map[string]any{
			"paymentId": id,
			"to":        to.String(),
			"error":     err.Error(),
		})
		return types.PaymentRecord{}, err
	}
	return updated, nil
}
