package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the subset of *ethclient.Client used by this package.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Reader performs read-only contract calls. Safe for concurrent use.
type Reader struct {
	backend Backend
	// holder owns the conditional tokens (the funder for proxy and Safe wallets).
	holder common.Address
}

// NewReader builds a Reader for the given token holder.
func NewReader(backend Backend, holder string) *Reader {
	return &Reader{backend: backend, holder: common.HexToAddress(holder)}
}

// PayoutDenominator reads CTF.payoutDenominator(conditionId). Zero means unresolved.
func (r *Reader) PayoutDenominator(ctx context.Context, conditionID string) (*big.Int, error) {
	cond, err := hexToBytes32(conditionID)
	if err != nil {
		return nil, fmt.Errorf("onchain.PayoutDenominator: condition %q: %w", conditionID, err)
	}
	vals, err := r.call(ctx, ctfABI, common.HexToAddress(ctfAddress), "payoutDenominator", cond)
	if err != nil {
		return nil, fmt.Errorf("onchain.PayoutDenominator: %w", err)
	}
	return firstBig(vals)
}

// TokenBalance returns the holder's ERC-1155 balance in shares.
func (r *Reader) TokenBalance(ctx context.Context, tokenID string) (float64, error) {
	tid, err := parseTokenID(tokenID)
	if err != nil {
		return 0, fmt.Errorf("onchain.TokenBalance: %w", err)
	}
	vals, err := r.call(ctx, ctfABI, common.HexToAddress(ctfAddress), "balanceOf", r.holder, tid)
	if err != nil {
		return 0, fmt.Errorf("onchain.TokenBalance: %w", err)
	}
	raw, err := firstBig(vals)
	if err != nil {
		return 0, fmt.Errorf("onchain.TokenBalance: %w", err)
	}
	return microToFloat(raw), nil
}

// USDCBalance returns the holder's USDC.e balance.
func (r *Reader) USDCBalance(ctx context.Context) (float64, error) {
	vals, err := r.call(ctx, erc20ABI, common.HexToAddress(usdcEAddress), "balanceOf", r.holder)
	if err != nil {
		return 0, fmt.Errorf("onchain.USDCBalance: %w", err)
	}
	raw, err := firstBig(vals)
	if err != nil {
		return 0, fmt.Errorf("onchain.USDCBalance: %w", err)
	}
	return microToFloat(raw), nil
}

func (r *Reader) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	vals, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals, nil
}

func firstBig(vals []any) (*big.Int, error) {
	if len(vals) == 0 {
		return nil, fmt.Errorf("empty result")
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T", vals[0])
	}
	return v, nil
}
