package onchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	gasPriceUpdateInterval = 5 * time.Minute
	fallbackGasPrice       = 30_000_000_000 // 30 gwei
	receiptPollInterval    = 3 * time.Second
)

// Wallet signs and sends transactions from one key. Sends are serialized
// so nonces are never assigned concurrently.
type Wallet struct {
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address

	receiptTimeout time.Duration
	pollInterval   time.Duration

	sendMu sync.Mutex

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// NewWallet parses a hex private key (with or without 0x).
func NewWallet(backend Backend, privateKeyHex string, receiptTimeout time.Duration) (*Wallet, error) {
	key, err := crypto.HexToECDSA(trim0x(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("onchain.NewWallet: invalid private key: %w", err)
	}
	if receiptTimeout <= 0 {
		receiptTimeout = 60 * time.Second
	}
	return &Wallet{
		backend:        backend,
		key:            key,
		address:        crypto.PubkeyToAddress(key.PublicKey),
		receiptTimeout: receiptTimeout,
		pollInterval:   receiptPollInterval,
	}, nil
}

// Address is the signer address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// send estimates, signs and broadcasts a call to `to`, then waits for the receipt.
// A gas estimate failure is returned as-is: on Polygon it carries the revert reason.
func (w *Wallet) send(ctx context.Context, to common.Address, data []byte, gasCap uint64) (common.Hash, error) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	gasPrice := w.gasPrice(ctx)

	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     w.address,
		To:       &to,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}
	// 20% buffer
	gas = gas * 12 / 10
	if gasCap > 0 && gas > gasCap {
		gas = gasCap
	}

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gas, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(polygonChainID)), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	hash := signed.Hash()
	slog.Info("onchain: transaction sent", "tx", hash.Hex(), "to", to.Hex(), "nonce", nonce)

	receiptCtx, cancel := context.WithTimeout(ctx, w.receiptTimeout)
	defer cancel()

	receipt, err := w.waitForReceipt(receiptCtx, hash)
	if err != nil {
		return hash, fmt.Errorf("wait receipt %s: %w", hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return hash, fmt.Errorf("tx %s reverted on-chain", hash.Hex())
	}
	return hash, nil
}

// gasPrice returns the suggested price plus 10%, cached for a few minutes.
func (w *Wallet) gasPrice(ctx context.Context) *big.Int {
	w.mu.RLock()
	cached := w.cachedGasWei
	updatedAt := w.gasUpdatedAt
	w.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached
	}

	price, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		slog.Warn("onchain: gas price unavailable, using fallback", "err", err)
		if cached != nil {
			return cached
		}
		return big.NewInt(fallbackGasPrice)
	}

	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	w.mu.Lock()
	w.cachedGasWei = buffered
	w.gasUpdatedAt = time.Now()
	w.mu.Unlock()

	return buffered
}

// waitForReceipt polls until the transaction is mined or ctx ends.
func (w *Wallet) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := w.backend.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}

func trim0x(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
