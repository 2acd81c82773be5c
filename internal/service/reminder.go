// Package service owns the reminder lifecycle: creation, pause, resume,
// reschedule and archive. It is the only writer of next-occurrence besides
// the scanner.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remindr/internal/domain"
	"remindr/internal/schedule"
	"remindr/internal/util"
)

type Store interface {
	InsertReminder(ctx context.Context, r domain.Reminder) error
	GetReminder(ctx context.Context, id string) (domain.Reminder, bool, error)
	UpdateReminder(ctx context.Context, r domain.Reminder) (bool, error)
	UpsertRecipient(ctx context.Context, p domain.Recipient) error
	GetRecipient(ctx context.Context, id string) (domain.Recipient, bool, error)
}

type ReminderService struct {
	Store Store
	IDGen func() string
	Now   func() time.Time
}

func (s *ReminderService) Create(ctx context.Context, req CreateReminderRequest) (domain.Reminder, error) {
	now := s.now()
	pat, at, tz, err := req.Schedule.Build()
	if err != nil {
		return domain.Reminder{}, err
	}
	r := domain.Reminder{
		ID:                  s.newID(),
		AccountID:           req.AccountID,
		RecipientID:         req.RecipientID,
		Title:               req.Title,
		Body:                req.Body,
		Pattern:             pat,
		At:                  at,
		TimeZone:            tz,
		Status:              domain.ReminderActive,
		Requirement:         domain.Requirement(req.Requirement),
		ExpectsConfirmation: req.ExpectsConfirmation,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if r.Requirement == "" {
		r.Requirement = domain.RequireNone
	}
	if r.Title == "" {
		return domain.Reminder{}, fmt.Errorf("%w: title", domain.ErrMissingFields)
	}
	if err := r.Validate(now); err != nil {
		return domain.Reminder{}, err
	}

	rcp, ok, err := s.Store.GetRecipient(ctx, r.RecipientID)
	if err != nil {
		return domain.Reminder{}, err
	}
	if !ok || rcp.AccountID != r.AccountID {
		return domain.Reminder{}, fmt.Errorf("recipient %s: %w", r.RecipientID, domain.ErrNotFound)
	}

	if r.NextOccurrence, err = schedule.First(r, now); err != nil {
		return domain.Reminder{}, err
	}
	if err := s.Store.InsertReminder(ctx, r); err != nil {
		return domain.Reminder{}, err
	}
	slog.Info("reminder created",
		"reminder_id", r.ID,
		"account_id", r.AccountID,
		"pattern", r.Pattern.Kind,
		"next_occurrence", r.NextOccurrence,
	)
	return r, nil
}

func (s *ReminderService) Get(ctx context.Context, id string) (domain.Reminder, error) {
	r, ok, err := s.Store.GetReminder(ctx, id)
	if err != nil {
		return domain.Reminder{}, err
	}
	if !ok {
		return domain.Reminder{}, domain.ErrNotFound
	}
	return r, nil
}

// Pause stops dispatch without touching next-occurrence.
func (s *ReminderService) Pause(ctx context.Context, id string) (domain.Reminder, error) {
	return s.update(ctx, id, func(r *domain.Reminder, now time.Time) error {
		if r.Status != domain.ReminderActive {
			return fmt.Errorf("%w: reminder is %s", ErrInvalidTransition, r.Status)
		}
		r.Status = domain.ReminderPaused
		return nil
	})
}

// Resume reactivates a paused reminder from now on; occurrences that fell
// inside the pause are not sent.
func (s *ReminderService) Resume(ctx context.Context, id string) (domain.Reminder, error) {
	return s.update(ctx, id, func(r *domain.Reminder, now time.Time) error {
		if r.Status != domain.ReminderPaused {
			return fmt.Errorf("%w: reminder is %s", ErrInvalidTransition, r.Status)
		}
		if !r.Pattern.Recurring() && !r.Pattern.At.After(now) {
			return domain.ErrOnceInPast
		}
		next, err := schedule.First(*r, now)
		if err != nil {
			return err
		}
		r.Status = domain.ReminderActive
		r.NextOccurrence = next
		return nil
	})
}

func (s *ReminderService) Archive(ctx context.Context, id string) (domain.Reminder, error) {
	return s.update(ctx, id, func(r *domain.Reminder, now time.Time) error {
		r.Status = domain.ReminderArchived
		return nil
	})
}

// Reschedule replaces the recurrence rule and recomputes next-occurrence.
func (s *ReminderService) Reschedule(ctx context.Context, id string, req PatternRequest) (domain.Reminder, error) {
	pat, at, tz, err := req.Build()
	if err != nil {
		return domain.Reminder{}, err
	}
	return s.update(ctx, id, func(r *domain.Reminder, now time.Time) error {
		if r.Status == domain.ReminderArchived {
			return fmt.Errorf("%w: reminder is archived", ErrInvalidTransition)
		}
		r.Pattern, r.At, r.TimeZone = pat, at, tz
		if err := r.Validate(now); err != nil {
			return err
		}
		next, err := schedule.First(*r, now)
		if err != nil {
			return err
		}
		r.NextOccurrence = next
		return nil
	})
}

func (s *ReminderService) UpsertRecipient(ctx context.Context, req RecipientRequest) (domain.Recipient, error) {
	addr := util.NormalizePhone(req.Address)
	if req.AccountID == "" || addr == "" {
		return domain.Recipient{}, domain.ErrMissingFields
	}
	p := domain.Recipient{ID: req.ID, AccountID: req.AccountID, Name: req.Name, Address: addr, UpdatedAt: s.now()}
	if p.ID == "" {
		p.ID = util.NewRecipientID()
	} else if prev, ok, err := s.Store.GetRecipient(ctx, p.ID); err != nil {
		return domain.Recipient{}, err
	} else if ok {
		if prev.AccountID != p.AccountID {
			return domain.Recipient{}, fmt.Errorf("recipient %s: %w", p.ID, domain.ErrNotFound)
		}
		// Consent and suppression only change through replies.
		p.Confirmed, p.Suppressed, p.Unreachable = prev.Confirmed, prev.Suppressed, prev.Unreachable
		if prev.Address != p.Address {
			p.Unreachable = ""
		}
	}
	if err := s.Store.UpsertRecipient(ctx, p); err != nil {
		return domain.Recipient{}, err
	}
	return p, nil
}

func (s *ReminderService) GetRecipient(ctx context.Context, id string) (domain.Recipient, error) {
	p, ok, err := s.Store.GetRecipient(ctx, id)
	if err != nil {
		return domain.Recipient{}, err
	}
	if !ok {
		return domain.Recipient{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *ReminderService) update(ctx context.Context, id string, fn func(*domain.Reminder, time.Time) error) (domain.Reminder, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return domain.Reminder{}, err
	}
	now := s.now()
	if err := fn(&r, now); err != nil {
		return domain.Reminder{}, err
	}
	r.UpdatedAt = now
	ok, err := s.Store.UpdateReminder(ctx, r)
	if err != nil {
		return domain.Reminder{}, err
	}
	if !ok {
		return domain.Reminder{}, domain.ErrNotFound
	}
	slog.Info("reminder updated", "reminder_id", r.ID, "status", r.Status, "next_occurrence", r.NextOccurrence)
	return r, nil
}

func (s *ReminderService) newID() string {
	if s.IDGen != nil {
		return s.IDGen()
	}
	return util.NewReminderID()
}

func (s *ReminderService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
