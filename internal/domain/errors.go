package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrorKind is the closed set of submission failure classes.
type ErrorKind string

const (
	// KindNotResolved: the condition has no payout yet. Sets a cooldown, no penalty.
	KindNotResolved ErrorKind = "NOT_RESOLVED"
	// KindRateLimited: provider throttling. Triggers backoff, no penalty.
	KindRateLimited ErrorKind = "RATE_LIMITED"
	// KindNonceConflict: wallet nonce race. No penalty.
	KindNonceConflict ErrorKind = "NONCE_CONFLICT"
	// KindUnavailable: resolution state could not be read. Sets a cooldown, no penalty.
	KindUnavailable ErrorKind = "UNAVAILABLE"
	// KindDurable counts toward the failure ceiling.
	KindDurable ErrorKind = "DURABLE"
)

// Counted reports whether the kind increments consecutive failures.
func (k ErrorKind) Counted() bool {
	return k == KindDurable
}

var (
	ErrNoBid          = errors.New("no executable bid")
	ErrNotTradable    = errors.New("token not tradable on clob")
	ErrZeroBalance    = errors.New("on-chain token balance is zero")
	ErrOpenSellExists = errors.New("open sell order already resting")
)

// ActionError is a submission error tagged with its kind.
type ActionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

var notResolvedSignatures = []string{
	"result for condition not received yet",
	"condition not resolved",
	"payoutdenominator=0",
}

// Status codes must stand alone so tx hashes and amounts never match.
var rateLimitCodes = regexp.MustCompile(`(^|[^0-9a-z])(429|503|-32000|-32005)([^0-9a-z]|$)`)

var rateLimitSignatures = []string{
	"too many requests",
	"missing response for request",
	"bad_data",
}

var nonceSignatures = []string{
	"replacement transaction underpriced",
	"nonce too low",
	"already known",
}

// ClassifyMessage maps raw provider error text to a kind.
func ClassifyMessage(msg string) ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, notResolvedSignatures):
		return KindNotResolved
	case containsAny(m, nonceSignatures):
		return KindNonceConflict
	case containsAny(m, rateLimitSignatures) || rateLimitCodes.MatchString(m):
		return KindRateLimited
	default:
		return KindDurable
	}
}

// Classify wraps err into an *ActionError. Already-tagged errors pass through.
// Returns nil for a nil error.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return err
	}
	return &ActionError{Kind: ClassifyMessage(err.Error()), Err: err}
}

// KindOf returns the kind of err. Untagged errors are durable.
func KindOf(err error) ErrorKind {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindDurable
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
