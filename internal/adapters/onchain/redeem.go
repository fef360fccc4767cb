package onchain

// redeem.go - CTF redemption of resolved positions.
//
// Standard markets call CTF.redeemPositions with both binary index sets;
// neg-risk markets go through the NegRiskAdapter with per-outcome amounts.
// Safe wallets wrap the call in a 1-of-1 execTransaction signed by the key.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

var errNotResolved = errors.New("payoutDenominator=0")

// Redeemer implements ports.RedemptionExecutor.
type Redeemer struct {
	reader  *Reader
	wallet  *Wallet
	sigType domain.SignatureType
	funder  common.Address

	safeMu sync.Mutex
	safeOK bool
}

// NewRedeemer builds a redeemer. funder is the Safe address for Safe wallets
// and ignored for EOA. Proxy wallets cannot be driven from a raw key.
func NewRedeemer(reader *Reader, wallet *Wallet, sigType domain.SignatureType, funder string) (*Redeemer, error) {
	switch sigType {
	case domain.SigEOA:
		return &Redeemer{reader: reader, wallet: wallet, sigType: sigType, funder: wallet.Address()}, nil
	case domain.SigGnosisSafe:
		if !common.IsHexAddress(funder) {
			return nil, fmt.Errorf("onchain.NewRedeemer: safe wallet needs a funder address, got %q", funder)
		}
		return &Redeemer{reader: reader, wallet: wallet, sigType: sigType, funder: common.HexToAddress(funder)}, nil
	default:
		return nil, fmt.Errorf("onchain.NewRedeemer: %s wallets not supported for redemption", sigType)
	}
}

// SubmitRedemption checks the payout denominator and redeems. Every returned
// error is tagged with a domain.ErrorKind.
func (r *Redeemer) SubmitRedemption(ctx context.Context, red domain.Redemption) (string, error) {
	hash, err := r.submit(ctx, red)
	if err != nil {
		return "", domain.Classify(fmt.Errorf("onchain.SubmitRedemption %s: %w", red.MarketID, err))
	}
	slog.Info("onchain: redemption confirmed", "market", red.MarketID, "tx", hash.Hex(), "neg_risk", red.NegRisk)
	return hash.Hex(), nil
}

func (r *Redeemer) submit(ctx context.Context, red domain.Redemption) (common.Hash, error) {
	den, err := r.reader.PayoutDenominator(ctx, red.MarketID)
	if err != nil {
		return common.Hash{}, preflightError(err)
	}
	if den.Sign() == 0 {
		return common.Hash{}, &domain.ActionError{Kind: domain.KindNotResolved, Err: fmt.Errorf("preflight: %w", errNotResolved)}
	}

	to, data, err := redemptionCall(red)
	if err != nil {
		return common.Hash{}, err
	}

	if r.sigType == domain.SigGnosisSafe {
		return r.execViaSafe(ctx, to, data)
	}
	return r.wallet.send(ctx, to, data, redeemGasLimit)
}

// preflightError tags a failed payoutDenominator read. A read that is not
// throttled is unavailable, never a failed redemption.
func preflightError(err error) error {
	err = domain.Classify(fmt.Errorf("preflight: %w", err))
	if domain.KindOf(err) == domain.KindDurable {
		return &domain.ActionError{Kind: domain.KindUnavailable, Err: errors.Unwrap(err)}
	}
	return err
}

// redemptionCall builds the target and calldata for red.
func redemptionCall(red domain.Redemption) (common.Address, []byte, error) {
	cond, err := hexToBytes32(red.MarketID)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("condition id: %w", err)
	}

	if !red.NegRisk {
		data, err := ctfABI.Pack("redeemPositions",
			common.HexToAddress(usdcEAddress),
			[32]byte{},
			cond,
			binaryIndexes,
		)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("pack redeemPositions: %w", err)
		}
		return common.HexToAddress(ctfAddress), data, nil
	}

	amounts := []*big.Int{sharesToUnits(red.Amounts[0]), sharesToUnits(red.Amounts[1])}
	if amounts[0].Sign() == 0 && amounts[1].Sign() == 0 {
		return common.Address{}, nil, fmt.Errorf("neg risk redemption with zero amounts")
	}
	data, err := negRiskABI.Pack("redeemPositions", cond, amounts)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("pack neg risk redeemPositions: %w", err)
	}
	return common.HexToAddress(negRiskAdapter), data, nil
}

// sharesToUnits converts shares to 6-decimal token units, rounding down.
func sharesToUnits(shares float64) *big.Int {
	if shares <= 0 {
		return big.NewInt(0)
	}
	return decimal.NewFromFloat(shares).Shift(6).Floor().BigInt()
}

// execViaSafe runs data against `to` through the funder Safe.
func (r *Redeemer) execViaSafe(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if err := r.ensureSafe(ctx); err != nil {
		return common.Hash{}, err
	}

	vals, err := r.reader.call(ctx, safeABI, r.funder, "nonce")
	if err != nil {
		return common.Hash{}, fmt.Errorf("safe nonce: %w", err)
	}
	nonce, err := firstBig(vals)
	if err != nil {
		return common.Hash{}, fmt.Errorf("safe nonce: %w", err)
	}

	zero := big.NewInt(0)
	vals, err = r.reader.call(ctx, safeABI, r.funder, "getTransactionHash",
		to, zero, data, uint8(0), zero, zero, zero, common.Address{}, common.Address{}, nonce)
	if err != nil {
		return common.Hash{}, fmt.Errorf("safe tx hash: %w", err)
	}
	if len(vals) != 1 {
		return common.Hash{}, fmt.Errorf("safe tx hash: unexpected result len %d", len(vals))
	}
	txHash, ok := vals[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("safe tx hash: unexpected type %T", vals[0])
	}

	sig, err := crypto.Sign(txHash[:], r.wallet.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("safe sign: %w", err)
	}
	sig[64] += 27

	execData, err := safeABI.Pack("execTransaction",
		to, zero, data, uint8(0), zero, zero, zero, common.Address{}, common.Address{}, sig)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack execTransaction: %w", err)
	}
	return r.wallet.send(ctx, r.funder, execData, safeExecGasLimit)
}

func (r *Redeemer) ensureSafe(ctx context.Context) error {
	r.safeMu.Lock()
	defer r.safeMu.Unlock()
	if r.safeOK {
		return nil
	}
	if err := r.checkSafe(ctx); err != nil {
		return err
	}
	r.safeOK = true
	return nil
}

// checkSafe verifies the Safe is 1-of-1, which is all a single key can sign.
func (r *Redeemer) checkSafe(ctx context.Context) error {
	vals, err := r.reader.call(ctx, safeABI, r.funder, "getThreshold")
	if err != nil {
		return fmt.Errorf("safe threshold: %w", err)
	}
	threshold, err := firstBig(vals)
	if err != nil {
		return fmt.Errorf("safe threshold: %w", err)
	}
	if threshold.Cmp(big.NewInt(1)) != 0 {
		return fmt.Errorf("safe threshold %s not supported, needs 1-of-1", threshold)
	}
	return nil
}

// EnsureApprovals sets ERC1155 setApprovalForAll on the exchange contracts so
// SELL orders can settle. Safe wallets are only checked and logged.
func (r *Redeemer) EnsureApprovals(ctx context.Context) error {
	operators := []string{normalExchange, negRiskExchange, negRiskAdapter}
	ctf := common.HexToAddress(ctfAddress)

	for _, op := range operators {
		operator := common.HexToAddress(op)
		vals, err := r.reader.call(ctx, ctfABI, ctf, "isApprovedForAll", r.funder, operator)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: check %s: %w", op, err)
		}
		if approved, _ := vals[0].(bool); approved {
			slog.Debug("onchain: ERC1155 approval already set", "operator", op)
			continue
		}
		if r.sigType == domain.SigGnosisSafe {
			slog.Warn("onchain: ERC1155 approval missing on safe, sells may fail", "operator", op, "safe", r.funder.Hex())
			continue
		}

		data, err := ctfABI.Pack("setApprovalForAll", operator, true)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: pack: %w", err)
		}
		slog.Info("onchain: setting ERC1155 approval", "operator", op)
		if _, err := r.wallet.send(ctx, ctf, data, approvalGasLimit); err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: set %s: %w", op, err)
		}
	}
	return nil
}
