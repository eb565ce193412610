package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// FiatCurrency is an ISO-4217 style currency code, e.g. "USD".
type FiatCurrency string

const (
	FiatUSD FiatCurrency = "USD"
	FiatEUR FiatCurrency = "EUR"
)

func (f FiatCurrency) String() string {
	return string(f)
}

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	StatusPending          PaymentStatus = "pending"
	StatusConfirmed        PaymentStatus = "confirmed"
	StatusExpired          PaymentStatus = "expired"
	StatusForwardingFailed PaymentStatus = "forwarding_failed"
)

// Terminal reports whether a status can never transition again.
func (s PaymentStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusExpired || s == StatusForwardingFailed
}

func (s PaymentStatus) String() string {
	return string(s)
}

// PaymentRecord tracks one requested payment from creation to a terminal
// state. Records are created by the gateway, mutated only by the processor,
// and retained for audit.
type PaymentRecord struct {
	ID               string   `json:"id"`
	ReceivingAddress string   `json:"receivingAddress"`
	MerchantAddress  string   `json:"merchantAddress"`
	Coin             CoinType `json:"coin"`

	// ExpectedAmount is the crypto amount required for confirmation,
	// rounded to the coin's native precision.
	ExpectedAmount decimal.Decimal `json:"expectedAmount"`

	// Fiat pricing snapshot. Set only for fiat-priced payments; the rate is
	// captured at creation time and never recomputed.
	FiatAmount     *decimal.Decimal `json:"fiatAmount,omitempty"`
	FiatCurrency   FiatCurrency     `json:"fiatCurrency,omitempty"`
	RateAtCreation *decimal.Decimal `json:"rateAtCreation,omitempty"`

	Status    PaymentStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	ExpiresAt time.Time     `json:"expiresAt"`

	// ObservedBalance is the last polled balance on the receiving address.
	ObservedBalance decimal.Decimal `json:"observedBalance"`

	// ForwardedTxID is set exactly once, on the transition into confirmed.
	ForwardedTxID string `json:"forwardedTxId,omitempty"`

	CustomerRef string `json:"customerRef,omitempty"`
	Description string `json:"description,omitempty"`
}

// FeeQuote is the result of a fee calculation for one transaction amount.
type FeeQuote struct {
	Amount          decimal.Decimal `json:"amount"`
	Coin            CoinType        `json:"coin"`
	PlatformFeeRate decimal.Decimal `json:"platformFeeRate"`
	PlatformFee     decimal.Decimal `json:"platformFee"`
	NetworkFee      decimal.Decimal `json:"networkFee"`
	TotalFee        decimal.Decimal `json:"totalFee"`
	NetAmount       decimal.Decimal `json:"netAmount"`
}

// Conversion is the result of a fiat/crypto conversion. All fields are
// populated on success; a failed conversion returns no partial result.
type Conversion struct {
	FiatAmount   decimal.Decimal `json:"fiatAmount"`
	CryptoAmount decimal.Decimal `json:"cryptoAmount"`
	Rate         decimal.Decimal `json:"rate"`
	Coin         CoinType        `json:"coin"`
	Fiat         FiatCurrency    `json:"fiat"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Config contains the gateway construction parameters. Merchant address and
// coin are fixed for the lifetime of a gateway instance.
type Config struct {
	MerchantAddress string        `mapstructure:"merchant_address" json:"merchantAddress" validate:"required"`
	Coin            CoinType      `mapstructure:"coin" json:"coin" validate:"required"`
	FiatCurrency    FiatCurrency  `mapstructure:"fiat_currency" json:"fiatCurrency" validate:"required,len=3"`
	PaymentTimeout  time.Duration `mapstructure:"payment_timeout" json:"paymentTimeout" validate:"required,gt=0"`
	PollInterval    time.Duration `mapstructure:"poll_interval" json:"pollInterval" validate:"required,gt=0"`
	RateTTL         time.Duration `mapstructure:"rate_ttl" json:"rateTtl" validate:"required,gt=0"`
	LogLevel        string        `mapstructure:"log_level" json:"logLevel,omitempty"`
}

// Default timing parameters applied by DefaultConfig and the config loader.
const (
	DefaultPaymentTimeout = 30 * time.Minute
	DefaultPollInterval   = 5 * time.Second
	DefaultRateTTL        = 60 * time.Second
)

// DefaultConfig returns a Config with the standard timing parameters filled
// in. Merchant address and coin must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		FiatCurrency:   FiatUSD,
		PaymentTimeout: DefaultPaymentTimeout,
		PollInterval:   DefaultPollInterval,
		RateTTL:        DefaultRateTTL,
		LogLevel:       "info",
	}
}
