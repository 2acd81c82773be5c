// Package memory is a mutex-guarded store for tests and single-process runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"remindr/internal/domain"
	"remindr/internal/store"
)

type Store struct {
	mu sync.Mutex

	reminders  map[string]domain.Reminder
	recipients map[string]domain.Recipient
	dispatches map[string]domain.DispatchRecord
	quotas     map[string]domain.QuotaCounter
	responses  []domain.ResponseRecord
	answered   map[string]time.Time
	events     []store.DeliveryEvent
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		reminders:  map[string]domain.Reminder{},
		recipients: map[string]domain.Recipient{},
		dispatches: map[string]domain.DispatchRecord{},
		quotas:     map[string]domain.QuotaCounter{},
		answered:   map[string]time.Time{},
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }

// Reminders

func (s *Store) InsertReminder(ctx context.Context, r domain.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[r.ID] = r
	return nil
}

func (s *Store) GetReminder(ctx context.Context, id string) (domain.Reminder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	return r, ok, nil
}

func (s *Store) UpdateReminder(ctx context.Context, r domain.Reminder) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[r.ID]; !ok {
		return false, nil
	}
	s.reminders[r.ID] = r
	return true, nil
}

func (s *Store) DueReminders(ctx context.Context, q domain.DueQuery) ([]domain.Due, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Due
	for _, r := range s.reminders {
		if r.Status != domain.ReminderActive {
			continue
		}
		if r.NextOccurrence.Before(q.From) || r.NextOccurrence.After(q.To) {
			continue
		}
		p := s.recipients[r.RecipientID]
		if q.SkipUnconfirmed && !p.Confirmed && !r.ExpectsConfirmation {
			continue
		}
		out = append(out, domain.Due{
			Reminder:            r,
			RecipientAddress:    p.Address,
			RecipientConfirmed:  p.Confirmed,
			RecipientSuppressed: p.Suppressed,
			RecipientName:       p.Name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextOccurrence.Before(out[j].NextOccurrence) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) AdvanceReminder(ctx context.Context, id string, prev, next, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok || !r.NextOccurrence.Equal(prev) {
		return false, nil
	}
	r.NextOccurrence = next
	r.UpdatedAt = now
	s.reminders[id] = r
	return true, nil
}

func (s *Store) ArchiveReminder(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = domain.ReminderArchived
	r.UpdatedAt = now
	s.reminders[id] = r
	return nil
}

// Recipients

func (s *Store) UpsertRecipient(ctx context.Context, p domain.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[p.ID] = p
	return nil
}

func (s *Store) GetRecipient(ctx context.Context, id string) (domain.Recipient, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.recipients[id]
	return p, ok, nil
}

func (s *Store) FlagUnreachable(ctx context.Context, recipientID, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.recipients[recipientID]
	if !ok {
		return domain.ErrNotFound
	}
	p.Unreachable = reason
	p.UpdatedAt = now
	s.recipients[recipientID] = p
	return nil
}

func (s *Store) FlagUnreachableByCarrierID(ctx context.Context, carrierMsgID, reason string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dispatches {
		if d.CarrierMsgID != carrierMsgID {
			continue
		}
		r, ok := s.reminders[d.ReminderID]
		if !ok {
			return false, nil
		}
		p, ok := s.recipients[r.RecipientID]
		if !ok {
			return false, nil
		}
		p.Unreachable = reason
		p.UpdatedAt = now
		s.recipients[p.ID] = p
		return true, nil
	}
	return false, nil
}

func (s *Store) recipientByAddress(address string) (domain.Recipient, bool) {
	for _, p := range s.recipients {
		if p.Address == address {
			return p, true
		}
	}
	return domain.Recipient{}, false
}

// Ledger

func (s *Store) InsertClaim(ctx context.Context, rec domain.DispatchRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rec.Key().String()
	if _, exists := s.dispatches[k]; exists {
		return false, nil
	}
	s.dispatches[k] = rec
	return true, nil
}

func (s *Store) FinalizeDispatch(ctx context.Context, key domain.DispatchKey, status domain.DispatchStatus, carrierMsgID, reason string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.String()
	rec, ok := s.dispatches[k]
	if !ok || rec.Status != domain.DispatchClaimed {
		return false, nil
	}
	rec.Status = status
	rec.CarrierMsgID = carrierMsgID
	rec.Reason = reason
	rec.UpdatedAt = now
	s.dispatches[k] = rec
	return true, nil
}

func (s *Store) FailStaleClaims(ctx context.Context, before time.Time, reason string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, rec := range s.dispatches {
		if rec.Status == domain.DispatchClaimed && rec.CreatedAt.Before(before) {
			rec.Status = domain.DispatchFailed
			rec.Reason = reason
			rec.UpdatedAt = now
			s.dispatches[k] = rec
			n++
		}
	}
	return n, nil
}

func (s *Store) GetDispatch(ctx context.Context, key domain.DispatchKey) (domain.DispatchRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.dispatches[key.String()]
	return rec, ok, nil
}

// Dispatches returns the ledger entries of one reminder ordered by occurrence.
func (s *Store) Dispatches(ctx context.Context, reminderID string) ([]domain.DispatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DispatchRecord
	for _, rec := range s.dispatches {
		if rec.ReminderID == reminderID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurrenceAt.Before(out[j].OccurrenceAt) })
	return out, nil
}

// Quota

func (s *Store) OpenPeriod(ctx context.Context, q domain.QuotaCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[q.AccountID] = q
	return nil
}

func (s *Store) Consume(ctx context.Context, accountID string, amount int, now time.Time) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[accountID]
	if !ok || !q.Contains(now) {
		return false, 0, nil
	}
	if q.Used+amount > q.Limit {
		return false, q.Used, nil
	}
	q.Used += amount
	s.quotas[accountID] = q
	return true, q.Used, nil
}

func (s *Store) Remaining(ctx context.Context, accountID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[accountID]
	if !ok || !q.Contains(now) {
		return 0, nil
	}
	return q.Remaining(), nil
}

// Inbound

// PendingContexts lists reminders of the recipient at address whose latest
// successful dispatch, sent at or after since, has not been answered yet.
func (s *Store) PendingContexts(ctx context.Context, address string, since time.Time) ([]domain.PendingContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.recipientByAddress(address)
	if !ok {
		return nil, nil
	}
	latest := map[string]time.Time{}
	for _, d := range s.dispatches {
		if d.Status != domain.DispatchSent || d.UpdatedAt.Before(since) {
			continue
		}
		if d.UpdatedAt.After(latest[d.ReminderID]) {
			latest[d.ReminderID] = d.UpdatedAt
		}
	}

	var out []domain.PendingContext
	for id, sentAt := range latest {
		r, ok := s.reminders[id]
		if !ok || r.RecipientID != p.ID || r.Status == domain.ReminderPaused {
			continue
		}
		if a, ok := s.answered[id]; ok && !a.Before(sentAt) {
			continue
		}
		out = append(out, domain.PendingContext{
			ReminderID:          r.ID,
			AccountID:           r.AccountID,
			RecipientID:         r.RecipientID,
			Requirement:         r.Requirement,
			ExpectsConfirmation: r.ExpectsConfirmation,
			LastDispatchAt:      sentAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastDispatchAt.After(out[j].LastDispatchAt) })
	return out, nil
}

func (s *Store) RecordResponse(ctx context.Context, rec domain.ResponseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.responses {
		if r.ID == rec.ID {
			return nil
		}
	}
	s.responses = append(s.responses, rec)
	return nil
}

func (s *Store) MarkAnswered(ctx context.Context, reminderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[reminderID]; !ok {
		return domain.ErrNotFound
	}
	s.answered[reminderID] = at
	return nil
}

func (s *Store) ConfirmRecipient(ctx context.Context, address string, now time.Time) error {
	return s.updateRecipientByAddress(address, func(p *domain.Recipient) {
		p.Confirmed = true
		p.UpdatedAt = now
	})
}

func (s *Store) SuppressRecipient(ctx context.Context, address string, now time.Time) error {
	return s.updateRecipientByAddress(address, func(p *domain.Recipient) {
		p.Suppressed = true
		p.UpdatedAt = now
	})
}

func (s *Store) updateRecipientByAddress(address string, fn func(*domain.Recipient)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.recipientByAddress(address)
	if !ok {
		return domain.ErrNotFound
	}
	fn(&p)
	s.recipients[p.ID] = p
	return nil
}

func (s *Store) Responses() []domain.ResponseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ResponseRecord(nil), s.responses...)
}

func (s *Store) InsertDeliveryEvent(ctx context.Context, ev store.DeliveryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *Store) DeliveryEvents() []store.DeliveryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.DeliveryEvent(nil), s.events...)
}

// Answered reports when a reminder was last answered.
func (s *Store) Answered(reminderID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.answered[reminderID]
	return at, ok
}
