package domain

import (
	"fmt"
	"time"
)

type ReminderStatus string

const (
	ReminderActive   ReminderStatus = "active"
	ReminderPaused   ReminderStatus = "paused"
	ReminderArchived ReminderStatus = "archived"
)

// Requirement is what a reply must carry to count as completion.
type Requirement string

const (
	RequireText       Requirement = "text"
	RequireAttachment Requirement = "attachment"
	RequireEither     Requirement = "either"
	RequireNone       Requirement = "none"
)

func (r Requirement) Satisfied(hasText, hasAttachment bool) bool {
	switch r {
	case RequireText:
		return hasText
	case RequireAttachment:
		return hasAttachment
	case RequireEither:
		return hasText || hasAttachment
	case RequireNone, "":
		return true
	}
	return false
}

func (r Requirement) Valid() bool {
	switch r {
	case RequireText, RequireAttachment, RequireEither, RequireNone:
		return true
	}
	return false
}

type Reminder struct {
	ID          string
	AccountID   string
	RecipientID string
	Title       string
	Body        string

	Pattern  Pattern
	At       TimeOfDay
	TimeZone string

	// NextOccurrence is authoritative; only the scanner advances it.
	NextOccurrence time.Time
	Status         ReminderStatus

	Requirement         Requirement
	ExpectsConfirmation bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Reminder) Location() (*time.Location, error) {
	if r.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(r.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimeZone, r.TimeZone)
	}
	return loc, nil
}

// Validate runs creation-time checks. A one-shot instant must be strictly
// after now; it is never moved forward on the caller's behalf.
func (r Reminder) Validate(now time.Time) error {
	if r.AccountID == "" || r.RecipientID == "" || r.Pattern.Kind == "" {
		return ErrMissingFields
	}
	if !r.At.Valid() {
		return ErrInvalidTimeOfDay
	}
	if _, err := r.Location(); err != nil {
		return err
	}
	if r.Requirement != "" && !r.Requirement.Valid() {
		return fmt.Errorf("%w: unknown response requirement %q", ErrConfig, r.Requirement)
	}
	if err := r.Pattern.Validate(); err != nil {
		return err
	}
	if r.Pattern.Kind == PatternOnce && !r.Pattern.At.After(now) {
		return ErrOnceInPast
	}
	return nil
}

// DueQuery selects active reminders whose next occurrence lies in
// [From, To], oldest first. A zero From is unbounded.
type DueQuery struct {
	From, To time.Time
	Limit    int
	// SkipUnconfirmed leaves out reminders gated on a recipient who has not
	// opted in. Confirmation requests are still returned.
	SkipUnconfirmed bool
}

// Due is a reminder selected by a scan together with the recipient state the
// scanner needs to gate delivery.
type Due struct {
	Reminder
	RecipientAddress    string
	RecipientName       string
	RecipientConfirmed  bool
	RecipientSuppressed bool
}
