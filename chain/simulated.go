package chain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/coinforward/gateway/types"
)

// SimulatedProvider is an in-memory ChainProvider parameterized entirely by
// coin profiles. One instance serves every supported coin; there is no
// per-coin type. Deposits are injected through Deposit, which stands in for
// funds arriving on chain.
type SimulatedProvider struct {
	mu       sync.RWMutex
	balances map[balanceKey]decimal.Decimal
	issued   map[string]types.CoinType
	txSeq    int
}

type balanceKey struct {
	address string
	coin    types.CoinType
}

func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{
		balances: make(map[balanceKey]decimal.Decimal),
		issued:   make(map[string]types.CoinType),
	}
}

// GenerateAddress issues a fresh address shaped by the coin's profile:
// profile prefix plus 32 random hex characters.
func (p *SimulatedProvider) GenerateAddress(ctx context.Context, coin types.CoinType) (string, error) {
	profile, ok := types.ProfileFor(coin)
	if !ok {
		return "", types.NewError(types.ErrUnsupportedCoin, fmt.Sprintf("no profile for coin %s", coin))
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", types.WrapError(types.ErrAddressGenerationFailed, "entropy source failed", err)
	}
	addr := profile.AddressPrefix + hex.EncodeToString(buf)

	p.mu.Lock()
	p.issued[addr] = coin
	p.mu.Unlock()

	return addr, nil
}

func (p *SimulatedProvider) GetBalance(ctx context.Context, address string, coin types.CoinType) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balances[balanceKey{address, coin}], nil
}

// EstimateFee returns the profile's flat network fee regardless of amount.
func (p *SimulatedProvider) EstimateFee(ctx context.Context, from, to string, amount decimal.Decimal, coin types.CoinType) (decimal.Decimal, error) {
	profile, ok := types.ProfileFor(coin)
	if !ok {
		return decimal.Zero, types.NewError(types.ErrUnsupportedCoin, fmt.Sprintf("no profile for coin %s", coin))
	}
	return profile.NetworkFee, nil
}

// Forward moves the requested amount from one simulated address to another
// and returns a synthetic transaction id.
func (p *SimulatedProvider) Forward(ctx context.Context, fromAddress, toAddress string, amount decimal.Decimal, coin types.CoinType) (string, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", types.NewError(types.ErrInvalidAmount, "forward amount must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	from := balanceKey{fromAddress, coin}
	if p.balances[from].LessThan(amount) {
		return "", types.NewError(types.ErrProviderTransient,
			fmt.Sprintf("insufficient balance on %s: have %s, want %s", fromAddress, p.balances[from], amount))
	}

	to := balanceKey{toAddress, coin}
	p.balances[from] = p.balances[from].Sub(amount)
	p.balances[to] = p.balances[to].Add(amount)

	p.txSeq++
	return fmt.Sprintf("sim-%s-%08d", strings.ToLower(coin.String()), p.txSeq), nil
}

// ValidateAddress checks the profile prefix and a minimal length.
func (p *SimulatedProvider) ValidateAddress(address string, coin types.CoinType) bool {
	profile, ok := types.ProfileFor(coin)
	if !ok {
		return false
	}
	return strings.HasPrefix(address, profile.AddressPrefix) &&
		len(address) > len(profile.AddressPrefix)+8
}

// Deposit credits an address, simulating an inbound chain transfer.
func (p *SimulatedProvider) Deposit(address string, coin types.CoinType, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := balanceKey{address, coin}
	p.balances[key] = p.balances[key].Add(amount)
}
