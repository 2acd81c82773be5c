package domain

import "time"

type DispatchStatus string

const (
	DispatchClaimed DispatchStatus = "claimed"
	DispatchSent    DispatchStatus = "sent"
	DispatchFailed  DispatchStatus = "failed"
)

func (s DispatchStatus) Final() bool { return s == DispatchSent || s == DispatchFailed }

// DispatchKey is the natural key of the idempotency ledger.
type DispatchKey struct {
	ReminderID   string
	OccurrenceAt time.Time
}

func (k DispatchKey) Normalize() DispatchKey {
	return DispatchKey{ReminderID: k.ReminderID, OccurrenceAt: k.OccurrenceAt.UTC().Truncate(time.Microsecond)}
}

func (k DispatchKey) String() string {
	n := k.Normalize()
	return n.ReminderID + "@" + n.OccurrenceAt.Format(time.RFC3339Nano)
}

type DispatchRecord struct {
	ReminderID   string
	OccurrenceAt time.Time
	Status       DispatchStatus
	CarrierMsgID string
	Reason       string
	Missed       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r DispatchRecord) Key() DispatchKey {
	return DispatchKey{ReminderID: r.ReminderID, OccurrenceAt: r.OccurrenceAt}.Normalize()
}

// Failure reasons recorded on the ledger.
const (
	ReasonQuotaExceeded        = "quota_exceeded"
	ReasonRecipientSuppressed  = "recipient_suppressed"
	ReasonRecipientUnconfirmed = "recipient_unconfirmed"
	ReasonMissedSkipped        = "missed_skipped"
	ReasonStaleClaim           = "stale_claim"
	ReasonRenderFailed         = "render_failed"
)
