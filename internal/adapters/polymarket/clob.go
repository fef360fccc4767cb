package polymarket

// clob.go - CLOB order book reads.
//
// FetchOrderBooks fires one goroutine per batch; the books limiter in
// doWithRetry paces them, so no extra semaphore is needed.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

const (
	booksPath = "/books"
	bookPath  = "/book"
	batchSize = 20 // max token_ids per /books request
)

// FetchOrderBooks returns books for the given tokens using the batch endpoint.
// Tokens without a CLOB book are absent from the result.
func (c *Client) FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.OrderBook{}, nil
	}

	batches := splitBatches(tokenIDs, batchSize)

	type batchResult struct {
		books map[string]domain.OrderBook
		err   error
		idx   int
	}

	resultCh := make(chan batchResult, len(batches))
	var wg sync.WaitGroup

	for i, batch := range batches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			books, err := c.fetchBooksBatch(ctx, batch)
			resultCh <- batchResult{books: books, err: err, idx: i}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	result := make(map[string]domain.OrderBook, len(tokenIDs))
	var firstErr error

	for r := range resultCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("clob.FetchOrderBooks batch %d: %w", r.idx, r.err)
			}
			continue
		}
		for k, v := range r.books {
			result[k] = v
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}

	slog.Debug("order books fetched", "tokens", len(tokenIDs), "books", len(result))
	return result, nil
}

// splitBatches splits tokenIDs into slices of at most size.
func splitBatches(tokenIDs []string, size int) [][]string {
	if size <= 0 {
		size = batchSize
	}
	batches := make([][]string, 0, (len(tokenIDs)+size-1)/size)
	for i := 0; i < len(tokenIDs); i += size {
		end := min(i+size, len(tokenIDs))
		batches = append(batches, tokenIDs[i:end])
	}
	return batches
}

// fetchBooksBatch POSTs /books. The CLOB rejects the whole batch when one
// token has no book, so a 4xx falls back to per-token reads.
func (c *Client) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	err := c.post(ctx, c.booksLimiter, c.clobBase+booksPath, body, &resp)
	if err == nil {
		return mapOrderBooks(resp), nil
	}
	if !isClientError(err) {
		return nil, fmt.Errorf("POST /books: %w", err)
	}

	slog.Debug("clob: batch rejected, reading books one by one", "tokens", len(tokenIDs), "err", err)
	result := make(map[string]domain.OrderBook, len(tokenIDs))
	for _, id := range tokenIDs {
		var one orderBookResponse
		u := c.clobBase + bookPath + "?token_id=" + url.QueryEscape(id)
		if err := c.get(ctx, c.booksLimiter, u, &one); err != nil {
			if isClientError(err) {
				continue
			}
			return nil, fmt.Errorf("GET /book %s: %w", id, err)
		}
		if one.AssetID == "" {
			one.AssetID = id
		}
		for k, v := range mapOrderBooks([]orderBookResponse{one}) {
			result[k] = v
		}
	}
	return result, nil
}

// isClientError reports a 4xx other than 429.
func isClientError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}
