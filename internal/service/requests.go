package service

import (
	"fmt"
	"strings"
	"time"

	"remindr/internal/domain"
)

// PatternRequest is the wire form of a recurrence rule.
type PatternRequest struct {
	Kind     string    `json:"kind"`
	At       string    `json:"at,omitempty"` // HH:MM, ignored for once
	Weekday  string    `json:"weekday,omitempty"`
	Days     []string  `json:"days,omitempty"`
	OnceAt   time.Time `json:"onceAt,omitempty"`
	TimeZone string    `json:"timeZone,omitempty"`
}

type CreateReminderRequest struct {
	AccountID           string         `json:"accountId"`
	RecipientID         string         `json:"recipientId"`
	Title               string         `json:"title"`
	Body                string         `json:"body,omitempty"`
	Schedule            PatternRequest `json:"schedule"`
	Requirement         string         `json:"requirement,omitempty"`
	ExpectsConfirmation bool           `json:"expectsConfirmation,omitempty"`
}

type RecipientRequest struct {
	ID        string `json:"id,omitempty"`
	AccountID string `json:"accountId"`
	Name      string `json:"name,omitempty"`
	Address   string `json:"address"`
}

// Build converts the request into a pattern, anchor time and zone.
func (p PatternRequest) Build() (domain.Pattern, domain.TimeOfDay, string, error) {
	kind := domain.PatternKind(strings.ToLower(strings.TrimSpace(p.Kind)))
	pat := domain.Pattern{Kind: kind}
	loc := time.UTC
	if p.TimeZone != "" {
		l, err := time.LoadLocation(p.TimeZone)
		if err != nil {
			return domain.Pattern{}, domain.TimeOfDay{}, "", fmt.Errorf("%w: %q", domain.ErrInvalidTimeZone, p.TimeZone)
		}
		loc = l
	}

	if kind == domain.PatternOnce {
		if p.OnceAt.IsZero() {
			return domain.Pattern{}, domain.TimeOfDay{}, "", fmt.Errorf("%w: onceAt", domain.ErrMissingFields)
		}
		pat.At = p.OnceAt
		local := p.OnceAt.In(loc)
		return pat, domain.TimeOfDay{Hour: local.Hour(), Minute: local.Minute()}, p.TimeZone, nil
	}

	at, err := domain.ParseTimeOfDay(p.At)
	if err != nil {
		return domain.Pattern{}, domain.TimeOfDay{}, "", err
	}
	switch kind {
	case domain.PatternWeekly:
		if pat.Weekday, err = domain.ParseWeekday(p.Weekday); err != nil {
			return domain.Pattern{}, domain.TimeOfDay{}, "", err
		}
	case domain.PatternCustom:
		if pat.Days, err = domain.ParseWeekdaySet(p.Days); err != nil {
			return domain.Pattern{}, domain.TimeOfDay{}, "", err
		}
	}
	if err := pat.Validate(); err != nil {
		return domain.Pattern{}, domain.TimeOfDay{}, "", err
	}
	return pat, at, p.TimeZone, nil
}
