package polymarket

// trading.go - SELL execution on the CLOB.
//
// Implements ports.SellExecutor. Before signing, the client refuses to stack
// a second SELL on a token with one already resting and caps the size at the
// on-chain balance, since the Data API size can lag fills.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

const (
	orderTypeGTC = "GTC"
	orderTypeFOK = "FOK"

	// next_cursor value the CLOB returns on the last page
	endCursor    = "LTE="
	maxOrderPage = 10
)

type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
	Success  bool   `json:"success"`
}

// OpenOrder is a resting order as reported by the CLOB.
type OpenOrder struct {
	ID           string `json:"id"`
	AssetID      string `json:"asset_id"`
	Market       string `json:"market"`
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	Status       string `json:"status"`
}

type clobOrdersResponse struct {
	Data       []OpenOrder `json:"data"`
	NextCursor string      `json:"next_cursor"`
}

type tickSizeResponse struct {
	MinimumTickSize float64 `json:"minimum_tick_size"`
}

// TokenBalancer reads the on-chain share balance of a conditional token.
type TokenBalancer interface {
	TokenBalance(ctx context.Context, tokenID string) (float64, error)
}

// TradingClient implements ports.SellExecutor.
type TradingClient struct {
	auth      *AuthClient
	balances  TokenBalancer
	orderType string
}

// NewTradingClient builds a TradingClient. balances may be nil to trust the
// position size as reported. orderType is GTC (default) or FOK.
func NewTradingClient(auth *AuthClient, balances TokenBalancer, orderType string) (*TradingClient, error) {
	switch strings.ToUpper(orderType) {
	case "":
		orderType = orderTypeGTC
	case orderTypeGTC, orderTypeFOK:
		orderType = strings.ToUpper(orderType)
	default:
		return nil, fmt.Errorf("polymarket.NewTradingClient: unsupported order type %q", orderType)
	}
	return &TradingClient{auth: auth, balances: balances, orderType: orderType}, nil
}

// SubmitSellOrder signs and posts a SELL limit order. ErrOpenSellExists and
// ErrZeroBalance are returned wrapped; other errors carry a domain.ErrorKind.
func (tc *TradingClient) SubmitSellOrder(ctx context.Context, order domain.SellOrder) (string, error) {
	id, err := tc.submit(ctx, order)
	if err != nil {
		err = fmt.Errorf("polymarket.SubmitSellOrder %s: %w", order.TokenID, err)
		if errors.Is(err, domain.ErrOpenSellExists) || errors.Is(err, domain.ErrZeroBalance) {
			return "", err
		}
		return "", domain.Classify(err)
	}
	return id, nil
}

func (tc *TradingClient) submit(ctx context.Context, order domain.SellOrder) (string, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return "", err
	}

	open, err := tc.GetOpenOrders(ctx, order.TokenID)
	if err != nil {
		return "", err
	}
	for _, o := range open {
		if strings.EqualFold(o.Side, "SELL") {
			return "", fmt.Errorf("order %s: %w", o.ID, domain.ErrOpenSellExists)
		}
	}

	size := order.Size
	if tc.balances != nil {
		bal, err := tc.balances.TokenBalance(ctx, order.TokenID)
		if err != nil {
			return "", fmt.Errorf("balance: %w", err)
		}
		if bal <= 0 {
			return "", domain.ErrZeroBalance
		}
		if bal < size {
			slog.Info("polymarket: capping sell to on-chain balance", "token", order.TokenID, "size", size, "balance", bal)
			size = bal
		}
	}

	plan, err := planSell(size, order.LimitPrice, tc.tickSize(ctx, order.TokenID))
	if err != nil {
		return "", err
	}

	signed, err := tc.auth.buildSellOrder(order.TokenID, plan, order.NegRisk)
	if err != nil {
		return "", err
	}

	creds, err := tc.auth.credentials()
	if err != nil {
		return "", err
	}
	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       order.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          "SELL",
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     creds.APIKey,
		OrderType: tc.orderType,
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", "", body, &resp); err != nil {
		return "", fmt.Errorf("post order: %w", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return "", fmt.Errorf("clob rejected order: %s", resp.ErrorMsg)
	}

	slog.Info("polymarket: sell order placed",
		"token", order.TokenID,
		"order_id", resp.OrderID,
		"status", resp.Status,
		"shares", plan.Shares.String(),
		"price", plan.Price.String(),
	)
	return resp.OrderID, nil
}

// GetOpenOrders lists resting orders for tokenID, or all orders when empty.
func (tc *TradingClient) GetOpenOrders(ctx context.Context, tokenID string) ([]OpenOrder, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("polymarket.GetOpenOrders: %w", err)
	}

	var all []OpenOrder
	cursor := ""
	for page := 0; page < maxOrderPage; page++ {
		q := url.Values{}
		if tokenID != "" {
			q.Set("asset_id", tokenID)
		}
		if cursor != "" {
			q.Set("next_cursor", cursor)
		}

		var resp clobOrdersResponse
		if err := tc.auth.doL2(ctx, http.MethodGet, "/data/orders", q.Encode(), nil, &resp); err != nil {
			return nil, fmt.Errorf("polymarket.GetOpenOrders: %w", err)
		}
		all = append(all, resp.Data...)

		if resp.NextCursor == "" || resp.NextCursor == endCursor {
			break
		}
		cursor = resp.NextCursor
	}
	return all, nil
}

// tickSize looks up the token's minimum tick, defaulting to 0.01.
func (tc *TradingClient) tickSize(ctx context.Context, tokenID string) float64 {
	var resp tickSizeResponse
	u := fmt.Sprintf("%s/tick-size?token_id=%s", tc.auth.clobBase, url.QueryEscape(tokenID))
	if err := tc.auth.get(ctx, tc.auth.clobLimiter, u, &resp); err != nil || resp.MinimumTickSize <= 0 {
		slog.Debug("polymarket: tick size unavailable, using default", "token", tokenID, "err", err)
		return defaultTickSize
	}
	return resp.MinimumTickSize
}
