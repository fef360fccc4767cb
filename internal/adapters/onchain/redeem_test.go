package onchain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

const testCondition = "0x" + "ab00000000000000000000000000000000000000000000000000000000000001"

// allABIs is a func so it reads the ABIs after init() has parsed them.
func allABIs() []abi.ABI { return []abi.ABI{ctfABI, negRiskABI, erc20ABI, safeABI} }

// fakeBackend answers contract calls by method name and records sent transactions.
type fakeBackend struct {
	mu          sync.Mutex
	results     map[string][]byte
	callErr     error
	estimateErr error
	sent        []*types.Transaction
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{results: map[string][]byte{}}
}

func (f *fakeBackend) returns(t *testing.T, contract abi.ABI, method string, vals ...any) {
	t.Helper()
	out, err := contract.Methods[method].Outputs.Pack(vals...)
	require.NoError(t, err)
	f.results[method] = out
}

func methodOf(data []byte) (*abi.Method, error) {
	if len(data) < 4 {
		return nil, errors.New("short calldata")
	}
	for _, a := range allABIs() {
		if m, err := a.MethodById(data[:4]); err == nil {
			return m, nil
		}
	}
	return nil, errors.New("unknown selector")
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	m, err := methodOf(msg.Data)
	if err != nil {
		return nil, err
	}
	out, ok := f.results[m.Name]
	if !ok {
		return nil, errors.New("no result for " + m.Name)
	}
	return out, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(30_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 150_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func newTestWallet(t *testing.T, backend Backend) *Wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w, err := NewWallet(backend, hex.EncodeToString(crypto.FromECDSA(key)), time.Second)
	require.NoError(t, err)
	w.pollInterval = time.Millisecond
	return w
}

func newEOARedeemer(t *testing.T, backend *fakeBackend) *Redeemer {
	t.Helper()
	w := newTestWallet(t, backend)
	r, err := NewRedeemer(NewReader(backend, w.Address().Hex()), w, domain.SigEOA, "")
	require.NoError(t, err)
	return r
}

func decodeCall(t *testing.T, data []byte) (string, []any) {
	t.Helper()
	m, err := methodOf(data)
	require.NoError(t, err)
	args, err := m.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	return m.Name, args
}

func TestSubmitRedemption_ZeroDenominatorIsNotResolved(t *testing.T) {
	backend := newFakeBackend()
	backend.returns(t, ctfABI, "payoutDenominator", big.NewInt(0))
	r := newEOARedeemer(t, backend)

	_, err := r.SubmitRedemption(context.Background(), domain.Redemption{MarketID: testCondition})
	require.Error(t, err)
	assert.Equal(t, domain.KindNotResolved, domain.KindOf(err))
	assert.Contains(t, err.Error(), "payoutDenominator=0")
	assert.Empty(t, backend.sent)
}

func TestSubmitRedemption_StandardMarket(t *testing.T) {
	backend := newFakeBackend()
	backend.returns(t, ctfABI, "payoutDenominator", big.NewInt(1))
	r := newEOARedeemer(t, backend)

	ref, err := r.SubmitRedemption(context.Background(), domain.Redemption{MarketID: testCondition})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, ref, tx.Hash().Hex())
	assert.Equal(t, common.HexToAddress(ctfAddress), *tx.To())
	assert.LessOrEqual(t, tx.Gas(), redeemGasLimit)

	name, args := decodeCall(t, tx.Data())
	assert.Equal(t, "redeemPositions", name)
	assert.Equal(t, common.HexToAddress(usdcEAddress), args[0])
	assert.Equal(t, [32]byte{}, args[1])
	assert.Equal(t, []*big.Int{big.NewInt(1), big.NewInt(2)}, args[3])
}

func TestSubmitRedemption_NegRiskUsesAdapterAmounts(t *testing.T) {
	backend := newFakeBackend()
	backend.returns(t, ctfABI, "payoutDenominator", big.NewInt(1))
	r := newEOARedeemer(t, backend)

	_, err := r.SubmitRedemption(context.Background(), domain.Redemption{
		MarketID: testCondition,
		NegRisk:  true,
		Amounts:  map[int]float64{0: 12.5},
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, common.HexToAddress(negRiskAdapter), *backend.sent[0].To())

	_, args := decodeCall(t, backend.sent[0].Data())
	assert.Equal(t, fmt.Sprint([]*big.Int{big.NewInt(12_500_000), big.NewInt(0)}), fmt.Sprint(args[1]))
}

func TestSubmitRedemption_NegRiskWithoutAmountsFails(t *testing.T) {
	backend := newFakeBackend()
	backend.returns(t, ctfABI, "payoutDenominator", big.NewInt(1))
	r := newEOARedeemer(t, backend)

	_, err := r.SubmitRedemption(context.Background(), domain.Redemption{MarketID: testCondition, NegRisk: true})
	require.Error(t, err)
	assert.Equal(t, domain.KindDurable, domain.KindOf(err))
}

func TestSubmitRedemption_ClassifiesBackendErrors(t *testing.T) {
	cases := []struct {
		name     string
		callErr  error
		estimate error
		want     domain.ErrorKind
	}{
		{"rpc throttled", errors.New("429 Too Many Requests"), nil, domain.KindRateLimited},
		{"rpc down", errors.New("dial tcp: connect: connection refused"), nil, domain.KindUnavailable},
		{"revert not received", nil, errors.New("execution reverted: result for condition not received yet"), domain.KindNotResolved},
		{"nonce race", nil, errors.New("nonce too low"), domain.KindNonceConflict},
		{"other revert", nil, errors.New("execution reverted: bad index set"), domain.KindDurable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.returns(t, ctfABI, "payoutDenominator", big.NewInt(1))
			backend.callErr = tc.callErr
			backend.estimateErr = tc.estimate
			r := newEOARedeemer(t, backend)

			_, err := r.SubmitRedemption(context.Background(), domain.Redemption{MarketID: testCondition})
			require.Error(t, err)
			assert.Equal(t, tc.want, domain.KindOf(err))
		})
	}
}

func TestNewRedeemer_RejectsProxyAndBareSafe(t *testing.T) {
	backend := newFakeBackend()
	w := newTestWallet(t, backend)
	reader := NewReader(backend, w.Address().Hex())

	_, err := NewRedeemer(reader, w, domain.SigProxy, "0x1111111111111111111111111111111111111111")
	assert.Error(t, err)

	_, err = NewRedeemer(reader, w, domain.SigGnosisSafe, "")
	assert.Error(t, err)
}

const testSafe = "0x2222222222222222222222222222222222222222"

func newSafeRedeemer(t *testing.T, backend *fakeBackend) *Redeemer {
	t.Helper()
	w := newTestWallet(t, backend)
	r, err := NewRedeemer(NewReader(backend, testSafe), w, domain.SigGnosisSafe, testSafe)
	require.NoError(t, err)
	return r
}

func TestSubmitRedemption_ThroughSafe(t *testing.T) {
	backend := newFakeBackend()
	backend.returns(t, ctfABI, "payoutDenominator", big.NewInt(1))
	backend.returns(t, safeABI, "getThreshold", big.NewInt(1))
	backend.returns(t, safeABI, "nonce", big.NewInt(7))
	backend.returns(t, safeABI, "getTransactionHash", [32]byte{0xaa})
	r := newSafeRedeemer(t, backend)

	_, err := r.SubmitRedemption(context.Background(), domain.Redemption{MarketID: testCondition})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, common.HexToAddress(testSafe), *tx.To())

	name, args := decodeCall(t, tx.Data())
	assert.Equal(t, "execTransaction", name)
	assert.Equal(t, common.HexToAddress(ctfAddress), args[0])
	sig := args[9].([]byte)
	require.Len(t, sig, 65)
	assert.GreaterOrEqual(t, sig[64], byte(27))

	inner, _ := decodeCall(t, args[2].([]byte))
	assert.Equal(t, "redeemPositions", inner)
}

func TestSubmitRedemption_SafeNeedsSingleOwnerThreshold(t *testing.T) {
	backend := newFakeBackend()
	backend.returns(t, ctfABI, "payoutDenominator", big.NewInt(1))
	backend.returns(t, safeABI, "getThreshold", big.NewInt(2))
	r := newSafeRedeemer(t, backend)

	_, err := r.SubmitRedemption(context.Background(), domain.Redemption{MarketID: testCondition})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "1-of-1"))
	assert.Empty(t, backend.sent)
}

func TestEnsureApprovals(t *testing.T) {
	backend := newFakeBackend()
	backend.returns(t, ctfABI, "isApprovedForAll", false)
	r := newEOARedeemer(t, backend)

	require.NoError(t, r.EnsureApprovals(context.Background()))
	require.Len(t, backend.sent, 3)
	for _, tx := range backend.sent {
		name, args := decodeCall(t, tx.Data())
		assert.Equal(t, "setApprovalForAll", name)
		assert.Equal(t, true, args[1])
	}

	backend = newFakeBackend()
	backend.returns(t, ctfABI, "isApprovedForAll", true)
	r = newEOARedeemer(t, backend)
	require.NoError(t, r.EnsureApprovals(context.Background()))
	assert.Empty(t, backend.sent)
}

func TestEnsureApprovals_SafeOnlyChecks(t *testing.T) {
	backend := newFakeBackend()
	backend.returns(t, ctfABI, "isApprovedForAll", false)
	r := newSafeRedeemer(t, backend)

	require.NoError(t, r.EnsureApprovals(context.Background()))
	assert.Empty(t, backend.sent)
}

func TestReader_Balances(t *testing.T) {
	backend := newFakeBackend()
	backend.returns(t, ctfABI, "balanceOf", big.NewInt(2_500_000))
	reader := NewReader(backend, testSafe)

	bal, err := reader.TokenBalance(context.Background(), "123456789")
	require.NoError(t, err)
	assert.InDelta(t, 2.5, bal, 1e-9)

	_, err = reader.PayoutDenominator(context.Background(), "0xshort")
	assert.Error(t, err)
}
