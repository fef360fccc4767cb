package domain

import (
	"sync"
	"time"
)

// SkipReason explains why an action was not attempted. Skips are never failures.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipNotResolved     SkipReason = "NOT_RESOLVED_ONCHAIN"
	SkipBelowMinValue   SkipReason = "BELOW_MIN_VALUE"
	SkipInCooldown      SkipReason = "IN_COOLDOWN"
	SkipTooManyFailures SkipReason = "TOO_MANY_FAILURES"
	SkipRateLimited     SkipReason = "RATE_LIMITED"
	SkipNonceConflict   SkipReason = "NONCE_CONFLICT"
	SkipUnavailable     SkipReason = "RESOLUTION_UNAVAILABLE"
	SkipOpenOrder       SkipReason = "OPEN_ORDER_EXISTS"
	SkipZeroBalance     SkipReason = "ZERO_BALANCE"
)

// AttemptKey identifies a ledger entry. Redemptions key by market, sells by token.
type AttemptKey struct {
	Action Action
	ID     string
}

// RedeemKey is the ledger key for redeeming a market.
func RedeemKey(marketID string) AttemptKey {
	return AttemptKey{Action: ActionRedeem, ID: marketID}
}

// SellKey is the ledger key for selling a token.
func SellKey(tokenID string) AttemptKey {
	return AttemptKey{Action: ActionSell, ID: tokenID}
}

func (k AttemptKey) String() string {
	return string(k.Action) + ":" + k.ID
}

// RedemptionAttempt is the per-key retry record.
type RedemptionAttempt struct {
	LastAttemptAt       time.Time
	ConsecutiveFailures int
}

// LedgerEntry pairs a key with its record, for reports and persistence.
type LedgerEntry struct {
	Key     AttemptKey
	Attempt RedemptionAttempt
}

// AttemptLedger tracks attempts per key and derives cooldown and breaker state.
// All methods take the current time so callers control the clock.
type AttemptLedger struct {
	mu          sync.Mutex
	entries     map[AttemptKey]RedemptionAttempt
	cooldown    time.Duration
	maxFailures int
}

// NewAttemptLedger builds an empty ledger. maxFailures <= 0 disables the breaker.
func NewAttemptLedger(cooldown time.Duration, maxFailures int) *AttemptLedger {
	return &AttemptLedger{
		entries:     make(map[AttemptKey]RedemptionAttempt),
		cooldown:    cooldown,
		maxFailures: maxFailures,
	}
}

// Check returns the skip reason for key at now, or SkipNone.
// The breaker is checked before cooldown.
func (l *AttemptLedger) Check(key AttemptKey, now time.Time) SkipReason {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.entries[key]
	if !ok {
		return SkipNone
	}
	if l.maxFailures > 0 && a.ConsecutiveFailures >= l.maxFailures {
		return SkipTooManyFailures
	}
	if !a.LastAttemptAt.IsZero() && now.Sub(a.LastAttemptAt) < l.cooldown {
		return SkipInCooldown
	}
	return SkipNone
}

// Cooldown is the minimum wait between attempts on one key.
func (l *AttemptLedger) Cooldown() time.Duration {
	return l.cooldown
}

// MaxFailures is the breaker ceiling, 0 when disabled.
func (l *AttemptLedger) MaxFailures() int {
	return l.maxFailures
}

// Get returns the record for key.
func (l *AttemptLedger) Get(key AttemptKey) (RedemptionAttempt, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.entries[key]
	return a, ok
}

// RecordSuccess clears the entry.
func (l *AttemptLedger) RecordSuccess(key AttemptKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// RecordOutcome applies a classified failure and returns the updated record.
func (l *AttemptLedger) RecordOutcome(key AttemptKey, kind ErrorKind, now time.Time) RedemptionAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := l.entries[key]
	switch kind {
	case KindNotResolved:
		a.ConsecutiveFailures = 0
	case KindDurable:
		a.ConsecutiveFailures++
	}
	a.LastAttemptAt = now
	l.entries[key] = a
	return a
}

// Reset clears one entry. Returns false if it did not exist.
func (l *AttemptLedger) Reset(key AttemptKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	delete(l.entries, key)
	return ok
}

// ReleaseMissing drops tripped entries whose key is absent from persisted,
// so a reset made by another process lifts the breaker here too. It returns
// the released keys.
func (l *AttemptLedger) ReleaseMissing(persisted []LedgerEntry) []AttemptKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.maxFailures <= 0 {
		return nil
	}
	present := make(map[AttemptKey]bool, len(persisted))
	for _, e := range persisted {
		present[e.Key] = true
	}
	var released []AttemptKey
	for k, a := range l.entries {
		if a.ConsecutiveFailures >= l.maxFailures && !present[k] {
			delete(l.entries, k)
			released = append(released, k)
		}
	}
	return released
}

// Restore loads persisted entries, replacing current state.
func (l *AttemptLedger) Restore(entries []LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[AttemptKey]RedemptionAttempt, len(entries))
	for _, e := range entries {
		l.entries[e.Key] = e.Attempt
	}
}

// Snapshot returns a copy of all entries.
func (l *AttemptLedger) Snapshot() []LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerEntry, 0, len(l.entries))
	for k, a := range l.entries {
		out = append(out, LedgerEntry{Key: k, Attempt: a})
	}
	return out
}

// Backoff is the exponential rate-limit state shared by all submissions
// of one wallet. It is owned by the engine and not safe for concurrent use.
type Backoff struct {
	Base  time.Duration
	Max   time.Duration
	level int
	until time.Time
}

// NewBackoff builds a backoff with the given bounds.
func NewBackoff(base, ceiling time.Duration) *Backoff {
	return &Backoff{Base: base, Max: ceiling}
}

// Active reports whether submissions must wait at now.
func (b *Backoff) Active(now time.Time) bool {
	return now.Before(b.until)
}

// Until returns the end of the current backoff window.
func (b *Backoff) Until() time.Time {
	return b.until
}

// Trip doubles the window (capped at Max) starting at now and returns its length.
func (b *Backoff) Trip(now time.Time) time.Duration {
	d := b.Base << b.level
	if d <= 0 || d > b.Max {
		d = b.Max
	} else {
		b.level++
	}
	b.until = now.Add(d)
	return d
}

// Clear resets the window after a submission went through.
func (b *Backoff) Clear() {
	b.level = 0
	b.until = time.Time{}
}
