package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/coinforward/gateway/types"
)

const transferGasLimit = 21000

// EVMProvider implements ChainProvider against an EVM JSON-RPC endpoint.
// Receiving keys are generated in process and held in memory only; this
// provider handles the native coin (ETH profile, 18 decimals).
type EVMProvider struct {
	client  *ethclient.Client
	chainID *big.Int

	mu   sync.RWMutex
	keys map[string]*ecdsa.PrivateKey
}

func NewEVMProvider(ctx context.Context, rpcURL string) (*EVMProvider, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, types.WrapError(types.ErrProviderTransient, fmt.Sprintf("failed to connect to %s", rpcURL), err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, types.WrapError(types.ErrProviderTransient, "failed to query chain id", err)
	}

	return &EVMProvider{
		client:  client,
		chainID: chainID,
		keys:    make(map[string]*ecdsa.PrivateKey),
	}, nil
}

func (p *EVMProvider) GenerateAddress(ctx context.Context, coin types.CoinType) (string, error) {
	if coin != types.CoinETH {
		return "", types.NewError(types.ErrUnsupportedCoin, fmt.Sprintf("EVM provider does not handle %s", coin))
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return "", types.WrapError(types.ErrAddressGenerationFailed, "key generation failed", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	p.mu.Lock()
	p.keys[addr] = key
	p.mu.Unlock()

	return addr, nil
}

func (p *EVMProvider) GetBalance(ctx context.Context, address string, coin types.CoinType) (decimal.Decimal, error) {
	if coin != types.CoinETH {
		return decimal.Zero, types.NewError(types.ErrUnsupportedCoin, fmt.Sprintf("EVM provider does not handle %s", coin))
	}

	wei, err := p.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, types.WrapError(types.ErrProviderTransient, "balance query failed", err)
	}
	return decimal.NewFromBigInt(wei, -18), nil
}

func (p *EVMProvider) EstimateFee(ctx context.Context, from, to string, amount decimal.Decimal, coin types.CoinType) (decimal.Decimal, error) {
	if coin != types.CoinETH {
		return decimal.Zero, types.NewError(types.ErrUnsupportedCoin, fmt.Sprintf("EVM provider does not handle %s", coin))
	}

	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, types.WrapError(types.ErrProviderTransient, "gas price query failed", err)
	}

	feeWei := new(big.Int).Mul(gasPrice, big.NewInt(transferGasLimit))
	return decimal.NewFromBigInt(feeWei, -18), nil
}

// Forward signs and broadcasts a native transfer from a previously generated
// receiving address. Gas is paid out of the forwarded amount, so the value
// sent is amount minus the gas cost.
func (p *EVMProvider) Forward(ctx context.Context, fromAddress, toAddress string, amount decimal.Decimal, coin types.CoinType) (string, error) {
	if coin != types.CoinETH {
		return "", types.NewError(types.ErrUnsupportedCoin, fmt.Sprintf("EVM provider does not handle %s", coin))
	}

	p.mu.RLock()
	key, ok := p.keys[fromAddress]
	p.mu.RUnlock()
	if !ok {
		return "", types.NewError(types.ErrForwardingFailed, fmt.Sprintf("no key held for address %s", fromAddress))
	}

	from := common.HexToAddress(fromAddress)
	nonce, err := p.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", types.WrapError(types.ErrProviderTransient, "nonce query failed", err)
	}

	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", types.WrapError(types.ErrProviderTransient, "gas price query failed", err)
	}

	gasCost := new(big.Int).Mul(gasPrice, big.NewInt(transferGasLimit))
	value := new(big.Int).Sub(amount.Shift(18).BigInt(), gasCost)
	if value.Sign() <= 0 {
		return "", types.NewError(types.ErrForwardingFailed, "amount does not cover gas cost")
	}

	tx := ethtypes.NewTransaction(nonce, common.HexToAddress(toAddress), value, transferGasLimit, gasPrice, nil)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(p.chainID), key)
	if err != nil {
		return "", types.WrapError(types.ErrForwardingFailed, "transaction signing failed", err)
	}

	if err := p.client.SendTransaction(ctx, signed); err != nil {
		return "", types.WrapError(types.ErrProviderTransient, "transaction broadcast failed", err)
	}

	return signed.Hash().Hex(), nil
}

func (p *EVMProvider) ValidateAddress(address string, coin types.CoinType) bool {
	if coin != types.CoinETH {
		return false
	}
	return common.IsHexAddress(address)
}

func (p *EVMProvider) Close() {
	p.client.Close()
}
