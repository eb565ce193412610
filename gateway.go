// Package gateway accepts cryptocurrency payments on behalf of a merchant:
// it issues a disposable receiving address per purchase, polls the chain
// balance and forwards confirmed funds to the merchant wallet. Sales may be
// priced in fiat, with the payable crypto amount derived from a cached
// exchange rate.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coinforward/gateway/chain"
	"github.com/coinforward/gateway/fees"
	"github.com/coinforward/gateway/logger"
	"github.com/coinforward/gateway/metrics"
	"github.com/coinforward/gateway/processor"
	"github.com/coinforward/gateway/rates"
	"github.com/coinforward/gateway/registry"
	"github.com/coinforward/gateway/types"
)

// Gateway is the caller-facing surface: payment creation, status queries,
// conversion, fee quotes and processor control.
type Gateway struct {
	cfg       types.Config
	provider  chain.ChainProvider
	registry  *registry.Registry
	processor *processor.Processor
	cache     *rates.Cache
	converter *rates.Converter
	log       logger.Logger
	metrics   metrics.Recorder
	now       func() time.Time
}

var validate = validator.New()

// New wires a gateway from explicit configuration, a chain provider and an
// exchange-rate source.
func New(cfg types.Config, provider chain.ChainProvider, source rates.Source, opts ...Option) (*Gateway, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, types.WrapError(types.ErrConfig, "invalid gateway configuration", err)
	}
	if _, ok := types.ProfileFor(cfg.Coin); !ok {
		return nil, types.NewError(types.ErrUnsupportedCoin, fmt.Sprintf("no profile for coin %s", cfg.Coin))
	}
	if !provider.ValidateAddress(cfg.MerchantAddress, cfg.Coin) {
		return nil, types.NewError(types.ErrConfig, fmt.Sprintf("invalid merchant address for %s", cfg.Coin))
	}

	g := &Gateway{
		cfg:      cfg,
		provider: provider,
		registry: registry.New(),
		log:      logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	g.cache = rates.NewCache(source, cfg.RateTTL, g.log, rates.WithClock(g.now))
	g.converter = rates.NewConverter(g.cache, cfg.FiatCurrency)
	g.processor = processor.New(g.registry, provider, cfg.PollInterval, g.log, g.metrics, processor.WithClock(g.now))

	return g, nil
}

// CreatePaymentAddress creates a pending payment for a crypto-priced sale:
// a fresh receiving address, an expiry horizon and a registry entry. No
// record is created on failure.
func (g *Gateway) CreatePaymentAddress(ctx context.Context, amount decimal.Decimal, customerRef, description string) (types.PaymentRecord, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return types.PaymentRecord{}, types.NewError(types.ErrInvalidAmount,
			fmt.Sprintf("payment amount must be positive, got %s", amount))
	}

	// The expected amount must survive rounding to the coin's precision;
	// a dust amount that rounds to zero would confirm on an empty address.
	expected := types.RoundToCoin(amount, g.cfg.Coin)
	if expected.LessThanOrEqual(decimal.Zero) {
		return types.PaymentRecord{}, types.NewError(types.ErrInvalidAmount,
			fmt.Sprintf("amount %s rounds to zero at %s precision", amount, g.cfg.Coin))
	}

	return g.createRecord(ctx, expected, nil, nil, customerRef, description)
}

// CreateFiatPaymentRequest creates a pending payment for a fiat-priced
// sale. The fiat amount is converted at request time and the rate is
// snapshotted into the record, so later rate drift does not change what
// the customer owes.
func (g *Gateway) CreateFiatPaymentRequest(ctx context.Context, fiatAmount decimal.Decimal, customerRef, description string) (types.PaymentRecord, error) {
	conv, err := g.converter.FiatToCrypto(ctx, fiatAmount, g.cfg.Coin)
	if err != nil {
		if types.IsCode(err, types.ErrInvalidAmount) {
			return types.PaymentRecord{}, err
		}
		return types.PaymentRecord{}, types.WrapError(types.ErrConversionFailed,
			fmt.Sprintf("cannot price %s %s in %s", fiatAmount, g.cfg.FiatCurrency, g.cfg.Coin), err)
	}
	if conv.CryptoAmount.LessThanOrEqual(decimal.Zero) {
		return types.PaymentRecord{}, types.NewError(types.ErrConversionFailed,
			fmt.Sprintf("%s %s converts to zero %s at rate %s", fiatAmount, g.cfg.FiatCurrency, g.cfg.Coin, conv.Rate))
	}

	return g.createRecord(ctx, conv.CryptoAmount, &conv.FiatAmount, &conv.Rate, customerRef, description)
}

func (g *Gateway) createRecord(ctx context.Context, expected decimal.Decimal, fiatAmount, rate *decimal.Decimal, customerRef, description string) (types.PaymentRecord, error) {
	start := g.now()
	address, err := g.provider.GenerateAddress(ctx, g.cfg.Coin)
	if err != nil {
		g.metrics.IncCounter(metrics.EventAddressGenFailed, g.labels())
		return types.PaymentRecord{}, types.WrapError(types.ErrAddressGenerationFailed,
			fmt.Sprintf("provider could not issue a %s address", g.cfg.Coin), err)
	}
	g.metrics.ObserveLatency(metrics.OpGenerateAddress, g.now().Sub(start), g.labels())

	now := g.now()
	rec := types.PaymentRecord{
		ID:               uuid.NewString(),
		ReceivingAddress: address,
		MerchantAddress:  g.cfg.MerchantAddress,
		Coin:             g.cfg.Coin,
		ExpectedAmount:   expected,
		Status:           types.StatusPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(g.cfg.PaymentTimeout),
		ObservedBalance:  decimal.Zero,
		CustomerRef:      customerRef,
		Description:      description,
	}
	if fiatAmount != nil {
		rec.FiatAmount = fiatAmount
		rec.FiatCurrency = g.cfg.FiatCurrency
		rec.RateAtCreation = rate
	}

	if err := g.registry.Insert(&rec); err != nil {
		return types.PaymentRecord{}, err
	}

	g.log.Info("payment created", map[string]any{
		"paymentId": rec.ID,
		"address":   rec.ReceivingAddress,
		"expected":  rec.ExpectedAmount.String(),
		"expiresAt": rec.ExpiresAt,
	})
	g.metrics.IncCounter(metrics.EventPaymentCreated, g.labels())

	return rec, nil
}

// CheckStatus returns the lifecycle state of a payment.
func (g *Gateway) CheckStatus(id string) (types.PaymentStatus, error) {
	return g.registry.Status(id)
}

// GetDetails returns a copy of the full payment record.
func (g *Gateway) GetDetails(id string) (types.PaymentRecord, error) {
	return g.registry.Get(id)
}

// Payments returns every record ever created, for audit.
func (g *Gateway) Payments() []types.PaymentRecord {
	return g.registry.All()
}

// StartProcessing launches the background polling loop. Idempotent.
func (g *Gateway) StartProcessing(ctx context.Context) {
	g.processor.Start(ctx)
}

// StopProcessing cancels the polling loop. Safe to call multiple times.
func (g *Gateway) StopProcessing() {
	g.processor.Stop()
}

// AddListener subscribes to payment transitions and returns a handle for
// RemoveListener.
func (g *Gateway) AddListener(l processor.PaymentListener) int {
	return g.processor.AddListener(l)
}

// RemoveListener unsubscribes a listener by handle.
func (g *Gateway) RemoveListener(id int) {
	g.processor.RemoveListener(id)
}

// ConvertFiatToCrypto converts a fiat amount into the gateway's coin at the
// current cached rate.
func (g *Gateway) ConvertFiatToCrypto(ctx context.Context, fiatAmount decimal.Decimal) (*types.Conversion, error) {
	return g.converter.FiatToCrypto(ctx, fiatAmount, g.cfg.Coin)
}

// ConvertCryptoToFiat converts a coin amount into fiat at the current
// cached rate.
func (g *Gateway) ConvertCryptoToFiat(ctx context.Context, cryptoAmount decimal.Decimal) (*types.Conversion, error) {
	return g.converter.CryptoToFiat(ctx, cryptoAmount, g.cfg.Coin)
}

// GetAllRates returns a snapshot of the cached rate table, refreshing it
// first when stale.
func (g *Gateway) GetAllRates(ctx context.Context) (map[types.CoinType]decimal.Decimal, error) {
	return g.cache.GetAllRates(ctx)
}

// CalculateFee quotes the tiered platform fee plus the provider's network
// fee estimate for a transaction amount.
func (g *Gateway) CalculateFee(ctx context.Context, amount decimal.Decimal, coin types.CoinType) (*types.FeeQuote, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, types.NewError(types.ErrInvalidAmount,
			fmt.Sprintf("fee amount must be positive, got %s", amount))
	}

	networkFee, err := g.provider.EstimateFee(ctx, "", g.cfg.MerchantAddress, amount, coin)
	if err != nil {
		return nil, types.WrapError(types.ErrProviderTransient, "network fee estimate failed", err)
	}

	return fees.Calculate(amount, coin, networkFee)
}

// Close stops processing and shuts down listener dispatch.
func (g *Gateway) Close() {
	g.processor.Close()
}

func (g *Gateway) labels() map[string]string {
	return map[string]string{"coin": g.cfg.Coin.String()}
}
