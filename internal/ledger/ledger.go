// Package ledger guarantees at most one dispatch per reminder occurrence.
//
// A dispatch is written twice: a claim inserted only if no record exists
// for (reminder id, occurrence instant), then a single finalization to sent
// or failed. Concurrent scanners race on the insert and exactly one wins.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remindr/internal/domain"
	"remindr/internal/observability"
)

type Store interface {
	// InsertClaim inserts rec if its key is absent and reports whether it did.
	InsertClaim(ctx context.Context, rec domain.DispatchRecord) (bool, error)
	// FinalizeDispatch moves a claimed record to a final status. It returns
	// false if the record is missing or already final.
	FinalizeDispatch(ctx context.Context, key domain.DispatchKey, status domain.DispatchStatus, carrierMsgID, reason string, now time.Time) (bool, error)
	// FailStaleClaims finalizes claims older than before as failed.
	FailStaleClaims(ctx context.Context, before time.Time, reason string, now time.Time) (int, error)
	GetDispatch(ctx context.Context, key domain.DispatchKey) (domain.DispatchRecord, bool, error)
}

type Ledger struct {
	Store Store
}

func New(s Store) *Ledger { return &Ledger{Store: s} }

// Claim reserves an occurrence. It returns domain.ErrAlreadyClaimed when
// another scan got there first.
func (l *Ledger) Claim(ctx context.Context, reminderID string, occurrence time.Time, missed bool, now time.Time) (domain.DispatchKey, error) {
	key := domain.DispatchKey{ReminderID: reminderID, OccurrenceAt: occurrence}.Normalize()
	inserted, err := l.Store.InsertClaim(ctx, domain.DispatchRecord{
		ReminderID:   key.ReminderID,
		OccurrenceAt: key.OccurrenceAt,
		Status:       domain.DispatchClaimed,
		Missed:       missed,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		observability.LedgerClaims.WithLabelValues("error").Inc()
		return key, fmt.Errorf("claim %s: %w", key, err)
	}
	if !inserted {
		observability.LedgerClaims.WithLabelValues("conflict").Inc()
		return key, domain.ErrAlreadyClaimed
	}
	observability.LedgerClaims.WithLabelValues("claimed").Inc()
	return key, nil
}

func (l *Ledger) MarkSent(ctx context.Context, key domain.DispatchKey, carrierMsgID string, now time.Time) error {
	return l.finalize(ctx, key, domain.DispatchSent, carrierMsgID, "", now)
}

func (l *Ledger) MarkFailed(ctx context.Context, key domain.DispatchKey, reason string, now time.Time) error {
	return l.finalize(ctx, key, domain.DispatchFailed, "", reason, now)
}

func (l *Ledger) finalize(ctx context.Context, key domain.DispatchKey, status domain.DispatchStatus, carrierMsgID, reason string, now time.Time) error {
	ok, err := l.Store.FinalizeDispatch(ctx, key, status, carrierMsgID, reason, now)
	if err != nil {
		return fmt.Errorf("finalize %s as %s: %w", key, status, err)
	}
	if !ok {
		// Final records never revert; a stale-claim sweep may have won.
		slog.Warn("ledger finalize skipped, record not claimed", "key", key.String(), "status", status)
	}
	return nil
}

// Lookup returns the record for key, if any.
func (l *Ledger) Lookup(ctx context.Context, key domain.DispatchKey) (domain.DispatchRecord, bool, error) {
	rec, ok, err := l.Store.GetDispatch(ctx, key.Normalize())
	if err != nil {
		return domain.DispatchRecord{}, false, fmt.Errorf("lookup %s: %w", key, err)
	}
	return rec, ok, nil
}

// RecoverStale fails claims left behind by a crashed scanner.
func (l *Ledger) RecoverStale(ctx context.Context, olderThan time.Duration, now time.Time) (int, error) {
	n, err := l.Store.FailStaleClaims(ctx, now.Add(-olderThan), domain.ReasonStaleClaim, now)
	if err != nil {
		return 0, fmt.Errorf("recover stale claims: %w", err)
	}
	if n > 0 {
		slog.Warn("ledger recovered stale claims", "count", n, "older_than", olderThan)
	}
	return n, nil
}
