// Package store holds the persistence contract shared by the Postgres and
// in-memory implementations.
package store

import (
	"context"
	"time"

	"remindr/internal/domain"
)

// DeliveryEvent is one carrier status callback for a dispatched message.
type DeliveryEvent struct {
	CarrierMsgID string
	Status       string
	ErrorCode    string
	Payload      map[string][]string
	ReceivedAt   time.Time
}

// Store is everything the binaries need from a backend. Packages depend on
// the narrower interfaces they declare themselves.
type Store interface {
	Ping(ctx context.Context) error

	InsertReminder(ctx context.Context, r domain.Reminder) error
	GetReminder(ctx context.Context, id string) (domain.Reminder, bool, error)
	UpdateReminder(ctx context.Context, r domain.Reminder) (bool, error)
	DueReminders(ctx context.Context, q domain.DueQuery) ([]domain.Due, error)
	AdvanceReminder(ctx context.Context, id string, prev, next, now time.Time) (bool, error)
	ArchiveReminder(ctx context.Context, id string, now time.Time) error

	UpsertRecipient(ctx context.Context, p domain.Recipient) error
	GetRecipient(ctx context.Context, id string) (domain.Recipient, bool, error)
	FlagUnreachable(ctx context.Context, recipientID, reason string, now time.Time) error
	FlagUnreachableByCarrierID(ctx context.Context, carrierMsgID, reason string, now time.Time) (bool, error)
	ConfirmRecipient(ctx context.Context, address string, now time.Time) error
	SuppressRecipient(ctx context.Context, address string, now time.Time) error

	InsertClaim(ctx context.Context, rec domain.DispatchRecord) (bool, error)
	FinalizeDispatch(ctx context.Context, key domain.DispatchKey, status domain.DispatchStatus, carrierMsgID, reason string, now time.Time) (bool, error)
	FailStaleClaims(ctx context.Context, before time.Time, reason string, now time.Time) (int, error)
	GetDispatch(ctx context.Context, key domain.DispatchKey) (domain.DispatchRecord, bool, error)
	Dispatches(ctx context.Context, reminderID string) ([]domain.DispatchRecord, error)

	Consume(ctx context.Context, accountID string, amount int, now time.Time) (bool, int, error)
	Remaining(ctx context.Context, accountID string, now time.Time) (int, error)
	OpenPeriod(ctx context.Context, q domain.QuotaCounter) error

	PendingContexts(ctx context.Context, address string, since time.Time) ([]domain.PendingContext, error)
	RecordResponse(ctx context.Context, rec domain.ResponseRecord) error
	MarkAnswered(ctx context.Context, reminderID string, at time.Time) error
	InsertDeliveryEvent(ctx context.Context, ev DeliveryEvent) error
}
