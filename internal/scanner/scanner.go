// Package scanner dispatches due reminder occurrences.
//
// Each tick selects active reminders whose next occurrence has passed,
// claims every occurrence in the idempotency ledger, sends it through the
// carrier gateway and moves the reminder to its next occurrence. The ledger
// claim is the only coordination between scanner instances.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"remindr/internal/carrier"
	"remindr/internal/domain"
	"remindr/internal/ledger"
	"remindr/internal/observability"
	"remindr/internal/schedule"
	"remindr/internal/util"
)

type Store interface {
	DueReminders(ctx context.Context, q domain.DueQuery) ([]domain.Due, error)
	// AdvanceReminder moves next-occurrence from prev to next; false means
	// the reminder changed underneath (rescheduled or already advanced).
	AdvanceReminder(ctx context.Context, id string, prev, next, now time.Time) (bool, error)
	ArchiveReminder(ctx context.Context, id string, now time.Time) error
}

type Quota interface {
	TryConsume(ctx context.Context, accountID string, amount int) (bool, error)
}

// Remediation receives recipients the carrier permanently rejected.
type Remediation interface {
	FlagUnreachable(ctx context.Context, recipientID, reason string, now time.Time) error
}

type Scanner struct {
	Store       Store
	Ledger      *ledger.Ledger
	Quota       Quota
	Gateway     carrier.Gateway
	Remediation Remediation
	Config      Config
	Now         func() time.Time
}

type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeFailed      Outcome = "failed"
	OutcomeQuotaDenied Outcome = "quota_denied"
	OutcomeSuppressed  Outcome = "suppressed"
	OutcomeUnconfirmed Outcome = "unconfirmed"
	OutcomeDeferred    Outcome = "deferred"
	OutcomeMissedSkip  Outcome = "missed_skipped"
	OutcomeClaimed     Outcome = "already_claimed"
	OutcomeRepaired    Outcome = "repaired"
	OutcomeError       Outcome = "error"
)

// Report summarises one tick.
type Report struct {
	Candidates int
	Missed     int
	Outcomes   map[Outcome]int
	Errors     []error

	mu sync.Mutex
}

func (r *Report) add(o Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Outcomes[o]++
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
}

// Run ticks until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	ticker := time.NewTicker(s.Config.Cadence)
	defer ticker.Stop()

	slog.Info("scanner started", "cadence", s.Config.Cadence, "window", s.Config.Window)
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scanner stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scan. Failures of one candidate never stop the others.
func (s *Scanner) Tick(ctx context.Context) *Report {
	start := time.Now()
	now := s.now()
	rep := &Report{Outcomes: map[Outcome]int{}}

	if s.Config.StaleClaimAfter > 0 {
		if _, err := s.Ledger.RecoverStale(ctx, s.Config.StaleClaimAfter, now); err != nil {
			slog.Error("scanner stale claim recovery failed", "err", err)
		}
	}

	var from time.Time
	if s.Config.MissedHorizon > 0 {
		from = now.Add(-s.Config.MissedHorizon)
	}
	// Deferred reminders stay out of the batch so they cannot starve others.
	due, err := s.Store.DueReminders(ctx, domain.DueQuery{
		From:            from,
		To:              now,
		Limit:           s.Config.BatchSize,
		SkipUnconfirmed: s.Config.UnconfirmedPolicy == UnconfirmedDefer,
	})
	if err != nil {
		observability.ScanTicks.WithLabelValues("error").Inc()
		slog.Error("scanner due query failed", "err", err)
		rep.Errors = append(rep.Errors, fmt.Errorf("due query: %w", err))
		return rep
	}
	rep.Candidates = len(due)

	var g errgroup.Group
	g.SetLimit(s.concurrency())
	for _, d := range due {
		d := d
		missed := d.NextOccurrence.Before(now.Add(-s.Config.Window))
		if missed {
			rep.mu.Lock()
			rep.Missed++
			rep.mu.Unlock()
		}
		g.Go(func() error {
			o, err := s.process(ctx, d, missed, now)
			if err != nil {
				slog.Error("scanner candidate failed",
					"err", err,
					"reminder_id", d.ID,
					"occurrence_at", d.NextOccurrence,
					"outcome", o,
				)
			}
			observability.ScanCandidates.WithLabelValues(string(o)).Inc()
			rep.add(o, err)
			return nil
		})
	}
	_ = g.Wait()

	observability.ScanTicks.WithLabelValues("ok").Inc()
	observability.ScanDuration.Observe(time.Since(start).Seconds())
	if rep.Candidates > 0 {
		slog.Info("scanner tick",
			"candidates", rep.Candidates,
			"missed", rep.Missed,
			"sent", rep.Outcomes[OutcomeSent],
			"failed", rep.Outcomes[OutcomeFailed],
			"errors", len(rep.Errors),
			"duration", time.Since(start),
		)
	}
	return rep
}

func (s *Scanner) process(ctx context.Context, d domain.Due, missed bool, now time.Time) (Outcome, error) {
	occ := d.NextOccurrence
	log := slog.With("reminder_id", d.ID, "account_id", d.AccountID, "occurrence_at", occ)

	gated := !d.RecipientConfirmed && !d.ExpectsConfirmation
	if gated && s.Config.UnconfirmedPolicy == UnconfirmedDefer {
		return OutcomeDeferred, nil
	}

	key, err := s.Ledger.Claim(ctx, d.ID, occ, missed, now)
	if errors.Is(err, domain.ErrAlreadyClaimed) {
		return s.repair(ctx, d, key, now)
	}
	if err != nil {
		// Nothing was claimed, so the next tick retries this occurrence.
		return OutcomeError, err
	}
	// Reported once per occurrence: only the claim winner gets here.
	if missed {
		observability.MissedOccurrences.Inc()
		log.Warn("missed occurrence", "missed", true, "lag", now.Sub(occ), "policy", s.Config.MissedPolicy)
	}

	outcome, sendErr := s.deliver(ctx, d, key, missed, gated, now)
	if err := s.advance(ctx, d.Reminder, now); err != nil {
		return OutcomeError, errors.Join(sendErr, err)
	}
	return outcome, sendErr
}

// deliver runs the gates and the carrier call for a claimed occurrence and
// always finalizes the claim.
func (s *Scanner) deliver(ctx context.Context, d domain.Due, key domain.DispatchKey, missed, gated bool, now time.Time) (Outcome, error) {
	fail := func(o Outcome, reason string) (Outcome, error) {
		if err := s.Ledger.MarkFailed(ctx, key, reason, s.now()); err != nil {
			return OutcomeError, err
		}
		return o, nil
	}

	switch {
	case d.RecipientSuppressed:
		return fail(OutcomeSuppressed, domain.ReasonRecipientSuppressed)
	case gated && s.Config.UnconfirmedPolicy == UnconfirmedSkip:
		return fail(OutcomeUnconfirmed, domain.ReasonRecipientUnconfirmed)
	case missed && s.Config.MissedPolicy == MissedSkip:
		return fail(OutcomeMissedSkip, domain.ReasonMissedSkipped)
	}

	permitted, err := s.Quota.TryConsume(ctx, d.AccountID, 1)
	if err != nil {
		if ferr := s.Ledger.MarkFailed(ctx, key, "quota_error", s.now()); ferr != nil {
			return OutcomeError, errors.Join(err, ferr)
		}
		return OutcomeError, err
	}
	if !permitted {
		return fail(OutcomeQuotaDenied, domain.ReasonQuotaExceeded)
	}

	res, err := s.Gateway.Send(ctx, d.RecipientAddress, Render(d))
	if err != nil {
		cat := carrier.CategoryOf(err)
		if ferr := s.Ledger.MarkFailed(ctx, key, string(cat)+": "+err.Error(), s.now()); ferr != nil {
			return OutcomeError, ferr
		}
		if carrier.IsPermanent(err) && s.Remediation != nil {
			if rerr := s.Remediation.FlagUnreachable(ctx, d.RecipientID, string(cat), s.now()); rerr != nil {
				slog.Error("scanner remediation failed", "err", rerr, "recipient_id", d.RecipientID)
			}
		}
		slog.Warn("scanner send failed", "reminder_id", d.ID, "category", cat, "err", err)
		return OutcomeFailed, nil
	}
	if err := s.Ledger.MarkSent(ctx, key, res.CarrierMsgID, s.now()); err != nil {
		return OutcomeError, err
	}
	return OutcomeSent, nil
}

// advance moves a recurring reminder to its next occurrence or archives a
// one-shot reminder.
func (s *Scanner) advance(ctx context.Context, r domain.Reminder, now time.Time) error {
	if !r.Pattern.Recurring() {
		if err := s.Store.ArchiveReminder(ctx, r.ID, s.now()); err != nil {
			return fmt.Errorf("archive %s: %w", r.ID, err)
		}
		return nil
	}
	next, err := schedule.Advance(r, r.NextOccurrence, now)
	if err != nil {
		return fmt.Errorf("compute next occurrence for %s: %w", r.ID, err)
	}
	ok, err := s.Store.AdvanceReminder(ctx, r.ID, r.NextOccurrence, next, s.now())
	if err != nil {
		return fmt.Errorf("advance %s: %w", r.ID, err)
	}
	if !ok {
		slog.Info("scanner advance skipped, reminder changed", "reminder_id", r.ID, "occurrence_at", r.NextOccurrence)
	}
	return nil
}

// repair handles a lost claim race. If the winner already finalized the
// record but the reminder still points at this occurrence, the winner died
// before advancing; advancing again is safe because it is compare-and-set.
func (s *Scanner) repair(ctx context.Context, d domain.Due, key domain.DispatchKey, now time.Time) (Outcome, error) {
	rec, ok, err := s.Ledger.Lookup(ctx, key)
	if err != nil {
		return OutcomeError, err
	}
	if !ok || !rec.Status.Final() {
		return OutcomeClaimed, nil
	}
	if err := s.advance(ctx, d.Reminder, now); err != nil {
		return OutcomeError, err
	}
	return OutcomeRepaired, nil
}

// Render builds the message body for a due reminder.
func Render(d domain.Due) string {
	body := d.Body
	if body == "" {
		body = d.Title
	}
	return util.RenderTemplate(body, map[string]string{
		"title": d.Title,
		"name":  d.RecipientName,
		"time":  d.At.String(),
	})
}

func (s *Scanner) concurrency() int {
	if s.Config.Concurrency > 0 {
		return s.Config.Concurrency
	}
	return 1
}

func (s *Scanner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
