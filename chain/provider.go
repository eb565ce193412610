package chain

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/coinforward/gateway/types"
)

// ChainProvider is the capability the gateway core consumes for everything
// chain-side: address issuance, balance reads, fee estimation and fund
// forwarding. Any error returned from a ChainProvider is treated as
// transient by the polling loop; only a failed Forward call moves a payment
// into a terminal state.
type ChainProvider interface {
	GenerateAddress(ctx context.Context, coin types.CoinType) (string, error)
	GetBalance(ctx context.Context, address string, coin types.CoinType) (decimal.Decimal, error)
	EstimateFee(ctx context.Context, from, to string, amount decimal.Decimal, coin types.CoinType) (decimal.Decimal, error)
	Forward(ctx context.Context, fromAddress, toAddress string, amount decimal.Decimal, coin types.CoinType) (string, error)
	ValidateAddress(address string, coin types.CoinType) bool
}
