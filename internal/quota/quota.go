// Package quota enforces per-account send limits within a billing period.
// The counter lives in a shared store so every scanner instance sees the
// same value; increments are atomic and never push used past the limit.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"remindr/internal/domain"
	"remindr/internal/observability"
)

type Counter interface {
	// Consume adds amount to the account's current period if the result
	// stays within the limit. used is the count after the call.
	Consume(ctx context.Context, accountID string, amount int, now time.Time) (permitted bool, used int, err error)
	Remaining(ctx context.Context, accountID string, now time.Time) (int, error)
}

// PeriodOpener is implemented by counters that accept new billing periods
// from the external reset job.
type PeriodOpener interface {
	OpenPeriod(ctx context.Context, q domain.QuotaCounter) error
}

var ErrInvalidAmount = errors.New("quota amount must be positive")

type Guard struct {
	Counter Counter
	Now     func() time.Time
}

func NewGuard(c Counter) *Guard { return &Guard{Counter: c, Now: time.Now} }

// TryConsume reports whether the account may send amount more messages.
// A denial is a normal outcome; callers must not send. A non-positive amount
// returns ErrInvalidAmount without touching the counter.
func (g *Guard) TryConsume(ctx context.Context, accountID string, amount int) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("quota consume %s: %w: %d", accountID, ErrInvalidAmount, amount)
	}
	ok, used, err := g.Counter.Consume(ctx, accountID, amount, g.now())
	if err != nil {
		observability.QuotaDecisions.WithLabelValues("error").Inc()
		return false, fmt.Errorf("quota consume %s: %w", accountID, err)
	}
	if !ok {
		observability.QuotaDecisions.WithLabelValues("denied").Inc()
		slog.Info("quota denied", "account_id", accountID, "amount", amount, "used", used)
		return false, nil
	}
	observability.QuotaDecisions.WithLabelValues("permitted").Inc()
	return true, nil
}

func (g *Guard) Remaining(ctx context.Context, accountID string) (int, error) {
	n, err := g.Counter.Remaining(ctx, accountID, g.now())
	if err != nil {
		return 0, fmt.Errorf("quota remaining %s: %w", accountID, err)
	}
	return n, nil
}

func (g *Guard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
