package polymarket_test

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyexit/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyexit/internal/domain"
)

type fakeBalancer struct {
	balance float64
	err     error
}

func (f fakeBalancer) TokenBalance(context.Context, string) (float64, error) {
	return f.balance, f.err
}

// clobStub serves the private CLOB endpoints used by SELL submission.
type clobStub struct {
	mu         sync.Mutex
	openOrders []map[string]string
	orderResp  map[string]any
	posted     []map[string]any
}

func (s *clobStub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/derive-api-key":
			assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
			writeJSON(w, map[string]string{
				"apiKey":     "key-1",
				"secret":     base64.URLEncoding.EncodeToString([]byte("super-secret")),
				"passphrase": "pass",
			})
		case "/data/orders":
			assert.Equal(t, "key-1", r.Header.Get("POLY_API_KEY"))
			writeJSON(w, map[string]any{"data": s.openOrders, "next_cursor": "LTE="})
		case "/tick-size":
			writeJSON(w, map[string]float64{"minimum_tick_size": 0.01})
		case "/order":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			s.mu.Lock()
			s.posted = append(s.posted, body)
			s.mu.Unlock()
			resp := s.orderResp
			if resp == nil {
				resp = map[string]any{"success": true, "orderID": "0xorder", "status": "live"}
			}
			writeJSON(w, resp)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func testKey(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return hex.EncodeToString(crypto.FromECDSA(key))
}

func newTrader(t *testing.T, stub *clobStub, bal polymarket.TokenBalancer, sigType domain.SignatureType, funder string) *polymarket.TradingClient {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)

	auth, err := polymarket.NewAuthClient(newTestClient(srv), testKey(t), sigType, funder)
	require.NoError(t, err)
	tc, err := polymarket.NewTradingClient(auth, bal, "")
	require.NoError(t, err)
	return tc
}

func sellOrder(size, price float64) domain.SellOrder {
	return domain.SellOrder{TokenID: "12345", MarketID: "0xm", Size: size, LimitPrice: price}
}

func TestSubmitSellOrder_SignsRoundedSell(t *testing.T) {
	stub := &clobStub{}
	tc := newTrader(t, stub, fakeBalancer{balance: 100}, domain.SigEOA, "")

	id, err := tc.SubmitSellOrder(context.Background(), sellOrder(10.456, 0.876))
	require.NoError(t, err)
	assert.Equal(t, "0xorder", id)

	require.Len(t, stub.posted, 1)
	body := stub.posted[0]
	assert.Equal(t, "GTC", body["orderType"])
	assert.Equal(t, "key-1", body["owner"])

	order := body["order"].(map[string]any)
	assert.Equal(t, "SELL", order["side"])
	assert.Equal(t, "10450000", order["makerAmount"])
	assert.Equal(t, "9091500", order["takerAmount"])
	assert.Equal(t, order["maker"], order["signer"])
	assert.EqualValues(t, 0, order["signatureType"])
	assert.True(t, strings.HasPrefix(order["signature"].(string), "0x"))
}

func TestSubmitSellOrder_CapsToOnchainBalance(t *testing.T) {
	stub := &clobStub{}
	tc := newTrader(t, stub, fakeBalancer{balance: 4.2}, domain.SigEOA, "")

	_, err := tc.SubmitSellOrder(context.Background(), sellOrder(10, 0.5))
	require.NoError(t, err)
	order := stub.posted[0]["order"].(map[string]any)
	assert.Equal(t, "4200000", order["makerAmount"])
}

func TestSubmitSellOrder_ZeroBalance(t *testing.T) {
	stub := &clobStub{}
	tc := newTrader(t, stub, fakeBalancer{balance: 0}, domain.SigEOA, "")

	_, err := tc.SubmitSellOrder(context.Background(), sellOrder(10, 0.5))
	assert.ErrorIs(t, err, domain.ErrZeroBalance)
	assert.Empty(t, stub.posted)
}

func TestSubmitSellOrder_OpenSellBlocks(t *testing.T) {
	stub := &clobStub{openOrders: []map[string]string{
		{"id": "0xbuy", "asset_id": "12345", "side": "BUY"},
		{"id": "0xsell", "asset_id": "12345", "side": "SELL"},
	}}
	tc := newTrader(t, stub, nil, domain.SigEOA, "")

	_, err := tc.SubmitSellOrder(context.Background(), sellOrder(10, 0.5))
	assert.ErrorIs(t, err, domain.ErrOpenSellExists)
	assert.Empty(t, stub.posted)
}

func TestSubmitSellOrder_RejectionIsClassified(t *testing.T) {
	stub := &clobStub{orderResp: map[string]any{"success": false, "errorMsg": "not enough balance / allowance"}}
	tc := newTrader(t, stub, nil, domain.SigEOA, "")

	_, err := tc.SubmitSellOrder(context.Background(), sellOrder(10, 0.5))
	require.Error(t, err)
	assert.Equal(t, domain.KindDurable, domain.KindOf(err))

	var ae *domain.ActionError
	assert.True(t, errors.As(err, &ae))
}

func TestSubmitSellOrder_BalanceReadRateLimited(t *testing.T) {
	stub := &clobStub{}
	tc := newTrader(t, stub, fakeBalancer{err: errors.New("429 Too Many Requests")}, domain.SigEOA, "")

	_, err := tc.SubmitSellOrder(context.Background(), sellOrder(10, 0.5))
	assert.Equal(t, domain.KindRateLimited, domain.KindOf(err))
}

func TestSubmitSellOrder_SafeWalletMakerIsFunder(t *testing.T) {
	const safe = "0x3333333333333333333333333333333333333333"
	stub := &clobStub{}
	tc := newTrader(t, stub, nil, domain.SigGnosisSafe, safe)

	_, err := tc.SubmitSellOrder(context.Background(), sellOrder(5, 0.42))
	require.NoError(t, err)

	order := stub.posted[0]["order"].(map[string]any)
	assert.True(t, strings.EqualFold(safe, order["maker"].(string)))
	assert.NotEqual(t, order["maker"], order["signer"])
	assert.EqualValues(t, 2, order["signatureType"])
}

func TestNewAuthClient_Validation(t *testing.T) {
	c := polymarket.NewClient("", "", "")

	_, err := polymarket.NewAuthClient(c, "not-hex", domain.SigEOA, "")
	assert.Error(t, err)

	_, err = polymarket.NewAuthClient(c, testKey(t), domain.SigProxy, "")
	assert.Error(t, err, "proxy wallets need a funder")

	_, err = polymarket.NewAuthClient(c, testKey(t), domain.SignatureType(9), "")
	assert.Error(t, err)
}

func TestNewTradingClient_OrderType(t *testing.T) {
	auth, err := polymarket.NewAuthClient(polymarket.NewClient("", "", ""), testKey(t), domain.SigEOA, "")
	require.NoError(t, err)

	_, err = polymarket.NewTradingClient(auth, nil, "fok")
	assert.NoError(t, err)
	_, err = polymarket.NewTradingClient(auth, nil, "IOC")
	assert.Error(t, err)
}
