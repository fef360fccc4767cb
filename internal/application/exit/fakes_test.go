package exit

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakePositions struct {
	positions []domain.Position
	err       error
}

func (f *fakePositions) FetchPositions(context.Context) ([]domain.Position, error) {
	return append([]domain.Position(nil), f.positions...), f.err
}

type fakeBooks struct {
	books map[string]domain.OrderBook
	err   error
}

func (f *fakeBooks) FetchOrderBooks(_ context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.OrderBook)
	for _, id := range tokenIDs {
		if b, ok := f.books[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

// fakeResolver returns zero for unknown markets.
type fakeResolver struct {
	denoms map[string]int64
	errs   map[string]error
}

func (f *fakeResolver) PayoutDenominator(_ context.Context, conditionID string) (*big.Int, error) {
	if err := f.errs[conditionID]; err != nil {
		return nil, err
	}
	return big.NewInt(f.denoms[conditionID]), nil
}

// fakeSeller pops one queued error per call. An empty queue succeeds.
type fakeSeller struct {
	orders []domain.SellOrder
	errs   []error
}

func (f *fakeSeller) SubmitSellOrder(_ context.Context, o domain.SellOrder) (string, error) {
	f.orders = append(f.orders, o)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "order-" + o.TokenID, nil
}

type fakeRedeemer struct {
	calls []domain.Redemption
	errs  []error
}

func (f *fakeRedeemer) SubmitRedemption(_ context.Context, r domain.Redemption) (string, error) {
	f.calls = append(f.calls, r)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "0xtx" + r.MarketID, nil
}

type memAttempts struct {
	mu      sync.Mutex
	entries map[domain.AttemptKey]domain.RedemptionAttempt
}

func newMemAttempts() *memAttempts {
	return &memAttempts{entries: make(map[domain.AttemptKey]domain.RedemptionAttempt)}
}

func (m *memAttempts) LoadAttempts(context.Context) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LedgerEntry
	for k, a := range m.entries {
		out = append(out, domain.LedgerEntry{Key: k, Attempt: a})
	}
	return out, nil
}

func (m *memAttempts) SaveAttempt(_ context.Context, e domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = e.Attempt
	return nil
}

func (m *memAttempts) DeleteAttempt(_ context.Context, key domain.AttemptKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memAttempts) Close() error { return nil }

type memAcquisitions struct {
	records map[string]domain.Acquisition
	deleted []string
}

func newMemAcquisitions() *memAcquisitions {
	return &memAcquisitions{records: make(map[string]domain.Acquisition)}
}

func (m *memAcquisitions) LoadAcquisitions(context.Context) (map[string]domain.Acquisition, error) {
	out := make(map[string]domain.Acquisition, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out, nil
}

func (m *memAcquisitions) UpsertAcquisition(_ context.Context, a domain.Acquisition) error {
	m.records[a.TokenID] = a
	return nil
}

func (m *memAcquisitions) DeleteAcquisition(_ context.Context, tokenID string) error {
	delete(m.records, tokenID)
	m.deleted = append(m.deleted, tokenID)
	return nil
}

type fakeJournal struct {
	summaries []domain.CycleSummary
	outcomes  [][]domain.ActionOutcome
}

func (f *fakeJournal) SaveCycle(_ context.Context, s domain.CycleSummary, o []domain.ActionOutcome) error {
	f.summaries = append(f.summaries, s)
	f.outcomes = append(f.outcomes, o)
	return nil
}

func (f *fakeJournal) RecentOutcomes(context.Context, int) ([]domain.ActionOutcome, error) {
	return nil, nil
}

type fakeNotifier struct{ reports []domain.CycleReport }

func (f *fakeNotifier) NotifyCycle(_ context.Context, r domain.CycleReport) error {
	f.reports = append(f.reports, r)
	return nil
}

type fakeEndTimes struct {
	ends  map[string]time.Time
	asked []string
}

func (f *fakeEndTimes) FetchEndTimes(_ context.Context, ids []string) (map[string]time.Time, error) {
	f.asked = append(f.asked, ids...)
	return f.ends, nil
}

type harness struct {
	positions *fakePositions
	books     *fakeBooks
	resolver  *fakeResolver
	seller    *fakeSeller
	redeemer  *fakeRedeemer
	attempts  *memAttempts
	journal   *fakeJournal
	notifier  *fakeNotifier
	endTimes  *fakeEndTimes
	clock     *fakeClock
	ledger    *domain.AttemptLedger
	engine    *Engine
}

func newHarness(t *testing.T, cfg Config, dryRun bool) *harness {
	t.Helper()
	h := &harness{
		positions: &fakePositions{},
		books:     &fakeBooks{books: map[string]domain.OrderBook{}},
		resolver:  &fakeResolver{denoms: map[string]int64{}, errs: map[string]error{}},
		seller:    &fakeSeller{},
		redeemer:  &fakeRedeemer{},
		attempts:  newMemAttempts(),
		journal:   &fakeJournal{},
		notifier:  &fakeNotifier{},
		endTimes:  &fakeEndTimes{ends: map[string]time.Time{}},
		clock:     &fakeClock{t: t0},
		ledger:    domain.NewAttemptLedger(5*time.Minute, 3),
	}
	e, err := New(cfg, Deps{
		Positions: h.positions,
		Books:     h.books,
		Resolver:  h.resolver,
		Seller:    h.seller,
		Redeemer:  h.redeemer,
		EndTimes:  h.endTimes,
		Attempts:  h.attempts,
		Journal:   h.journal,
		Notifier:  h.notifier,
		Ledger:    h.ledger,
		Backoff:   domain.NewBackoff(30*time.Second, 10*time.Minute),
		Clock:     h.clock.now,
	}, dryRun)
	require.NoError(t, err)
	h.engine = e
	return h
}

// hold adds a position and a book with the given best bid (0 = empty bid side).
func (h *harness) hold(market, token string, outcome int, size, entry, price, bid float64) {
	p := domain.Position{
		MarketID:        market,
		TokenID:         token,
		Side:            []string{"Yes", "No"}[outcome%2],
		OutcomeIndex:    outcome,
		Size:            size,
		EntryPrice:      entry,
		CurrentPrice:    price,
		ExecutionStatus: domain.StatusTradable,
		MarketEndTime:   t0.Add(72 * time.Hour),
	}
	p.ComputePnL()
	h.positions.positions = append(h.positions.positions, p)

	b := domain.OrderBook{TokenID: token}
	if bid > 0 {
		b.Bids = []domain.BookEntry{{Price: bid, Size: 100}}
	}
	h.books.books[token] = b
}

func (h *harness) run(t *testing.T) domain.CycleReport {
	t.Helper()
	report, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)
	return report
}

func outcomeFor(r domain.CycleReport, action domain.Action, id string) (domain.ActionOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Decision.Action != action {
			continue
		}
		if (action == domain.ActionRedeem && o.Decision.MarketID == id) || o.Decision.TokenID == id {
			return o, true
		}
	}
	return domain.ActionOutcome{}, false
}

func decisionFor(t *testing.T, r domain.CycleReport, token string) domain.ExitDecision {
	t.Helper()
	for _, d := range r.Decisions {
		if d.TokenID == token {
			return d
		}
	}
	require.Failf(t, "no decision", "token %s", token)
	return domain.ExitDecision{}
}
