package httpserver

import (
	"time"

	"remindr/internal/domain"
)

type patternResponse struct {
	Kind     string     `json:"kind"`
	At       string     `json:"at"`
	Weekday  string     `json:"weekday,omitempty"`
	Days     []string   `json:"days,omitempty"`
	OnceAt   *time.Time `json:"onceAt,omitempty"`
	TimeZone string     `json:"timeZone,omitempty"`
}

type reminderResponse struct {
	ID                  string          `json:"id"`
	AccountID           string          `json:"accountId"`
	RecipientID         string          `json:"recipientId"`
	Title               string          `json:"title"`
	Body                string          `json:"body,omitempty"`
	Schedule            patternResponse `json:"schedule"`
	Status              string          `json:"status"`
	NextOccurrence      time.Time       `json:"nextOccurrence"`
	Requirement         string          `json:"requirement"`
	ExpectsConfirmation bool            `json:"expectsConfirmation"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

func toReminderResponse(r domain.Reminder) reminderResponse {
	p := patternResponse{Kind: string(r.Pattern.Kind), At: r.At.String(), TimeZone: r.TimeZone}
	switch r.Pattern.Kind {
	case domain.PatternWeekly:
		p.Weekday = r.Pattern.Weekday.String()
	case domain.PatternCustom:
		p.Days = r.Pattern.Days.Strings()
	case domain.PatternOnce:
		at := r.Pattern.At.UTC()
		p.OnceAt = &at
	}
	return reminderResponse{
		ID:                  r.ID,
		AccountID:           r.AccountID,
		RecipientID:         r.RecipientID,
		Title:               r.Title,
		Body:                r.Body,
		Schedule:            p,
		Status:              string(r.Status),
		NextOccurrence:      r.NextOccurrence.UTC(),
		Requirement:         string(r.Requirement),
		ExpectsConfirmation: r.ExpectsConfirmation,
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
}

type recipientResponse struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	Name        string    `json:"name,omitempty"`
	Address     string    `json:"address"`
	Confirmed   bool      `json:"confirmed"`
	Suppressed  bool      `json:"suppressed"`
	Unreachable string    `json:"unreachable,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toRecipientResponse(p domain.Recipient) recipientResponse {
	return recipientResponse{
		ID:          p.ID,
		AccountID:   p.AccountID,
		Name:        p.Name,
		Address:     p.Address,
		Confirmed:   p.Confirmed,
		Suppressed:  p.Suppressed,
		Unreachable: p.Unreachable,
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}
