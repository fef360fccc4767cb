package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

const (
	positionsPath     = "/positions"
	positionsPageSize = 500
	// Hard stop for pagination in case the API ignores offset.
	positionsMaxPages = 20
)

// PositionSource reads a wallet's holdings from the Data API.
type PositionSource struct {
	client *Client
	user   string
	// minSize drops dust below this many shares.
	minSize float64
}

// NewPositionSource builds a source for user, the address that holds the
// tokens (the funder for proxy and Safe wallets).
func NewPositionSource(client *Client, user string, minSize float64) *PositionSource {
	return &PositionSource{client: client, user: user, minSize: minSize}
}

// FetchPositions pages through GET /positions.
func (s *PositionSource) FetchPositions(ctx context.Context) ([]domain.Position, error) {
	var all []dataPosition
	for page := 0; page < positionsMaxPages; page++ {
		q := url.Values{}
		q.Set("user", s.user)
		q.Set("sizeThreshold", strconv.FormatFloat(s.minSize, 'f', -1, 64))
		q.Set("limit", strconv.Itoa(positionsPageSize))
		q.Set("offset", strconv.Itoa(page*positionsPageSize))

		var resp []dataPosition
		u := s.client.dataBase + positionsPath + "?" + q.Encode()
		if err := s.client.get(ctx, s.client.dataLimiter, u, &resp); err != nil {
			return nil, fmt.Errorf("polymarket.FetchPositions: page %d: %w", page, err)
		}
		all = append(all, resp...)
		if len(resp) < positionsPageSize {
			break
		}
	}

	positions := mapPositions(all)
	slog.Debug("positions fetched", "rows", len(all), "positions", len(positions))
	return positions, nil
}
