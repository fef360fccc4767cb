package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/polyexit/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyexit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const positionsFixture = `[
	{
		"asset": "111", "conditionId": "0xAAA", "size": 25, "avgPrice": 0.40,
		"initialValue": 10, "currentValue": 12.5, "cashPnl": 2.5, "percentPnl": 25,
		"curPrice": 0.50, "redeemable": false, "title": "Will it rain?",
		"outcome": "Yes", "outcomeIndex": 0, "endDate": "2026-06-01T12:00:00Z", "negativeRisk": true
	},
	{
		"asset": "222", "conditionId": "0xBBB", "size": 4, "avgPrice": 0,
		"curPrice": 1, "redeemable": true, "outcome": "No", "outcomeIndex": 1, "endDate": "2026-05-01"
	},
	{"asset": "333", "conditionId": "0xCCC", "size": 0, "avgPrice": 0.5, "curPrice": 0.5}
]`

func TestFetchPositions_MapsRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions", r.URL.Path)
		assert.Equal(t, "0xFunder", r.URL.Query().Get("user"))
		assert.Equal(t, "0.01", r.URL.Query().Get("sizeThreshold"))
		w.Write([]byte(positionsFixture))
	}))
	defer srv.Close()

	src := polymarket.NewPositionSource(newTestClient(srv), "0xFunder", 0.01)
	positions, err := src.FetchPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2, "zero-size rows are dropped")

	p := positions[0]
	assert.Equal(t, "0xAAA", p.MarketID)
	assert.Equal(t, "111", p.TokenID)
	assert.Equal(t, "Yes", p.Side)
	assert.True(t, p.NegRisk)
	assert.True(t, p.PnLTrusted)
	assert.Equal(t, 25.0, p.PnLPct)
	assert.Equal(t, 2.5, p.PnLUSD)
	assert.Equal(t, domain.StatusTradable, p.ExecutionStatus)
	assert.Equal(t, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), p.MarketEndTime)
	assert.Nil(t, p.CurrentBidPrice, "bid comes from the book, not the index")

	q := positions[1]
	assert.True(t, q.Redeemable)
	assert.False(t, q.PnLTrusted, "zero entry price makes pnl untrusted")
	assert.Equal(t, 1, q.OutcomeIndex)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), q.MarketEndTime)
}

func TestFetchPositions_Paginates(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)
		if offset != "0" {
			w.Write([]byte(`[]`))
			return
		}
		rows := make([]string, 500)
		for i := range rows {
			rows[i] = `{"asset":"t","conditionId":"0xA","size":1,"avgPrice":0.5,"curPrice":0.5}`
		}
		w.Write([]byte("[" + strings.Join(rows, ",") + "]"))
	}))
	defer srv.Close()

	positions, err := polymarket.NewPositionSource(newTestClient(srv), "0xF", 0).FetchPositions(context.Background())
	require.NoError(t, err)
	assert.Len(t, positions, 500)
	assert.Equal(t, []string{"0", "500"}, offsets)
}

func TestFetchPositions_ClientErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad user", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := polymarket.NewPositionSource(newTestClient(srv), "x", 0).FetchPositions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestFetchEndTimes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "0xAAA,0xbbb", r.URL.Query().Get("condition_ids"))
		w.Write([]byte(`[
			{"conditionId": "0xAAA", "endDate": "2026-07-04T00:00:00Z", "endDateIso": "2026-07-03"},
			{"conditionId": "0xbbb", "endDateIso": "2026-08-01"},
			{"conditionId": "0xccc", "liquidity": "123.4"}
		]`))
	}))
	defer srv.Close()

	ends, err := newTestClient(srv).FetchEndTimes(context.Background(), []string{"0xAAA", "0xbbb"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC), ends["0xaaa"])
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), ends["0xbbb"])
	assert.NotContains(t, ends, "0xccc")
}

func TestFetchEndTimes_AllBatchesFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchEndTimes(context.Background(), []string{"0xA"})
	assert.Error(t, err)
}
