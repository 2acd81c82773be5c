package domain

import "time"

type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
	PolarityHelp     Polarity = "help_requested"
	PolarityOptOut   Polarity = "opt_out"
	PolarityUnclear  Polarity = "unclear"
)

type Action string

const (
	ActionMarkComplete     Action = "mark_complete"
	ActionMarkConfirmed    Action = "mark_confirmed"
	ActionFlagForReview    Action = "flag_for_review"
	ActionScheduleFollowUp Action = "schedule_follow_up"
	ActionIgnore           Action = "ignore"
)

// PendingContext is the read projection of an outstanding reminder for one
// recipient, derived from the reminder and its latest dispatch.
type PendingContext struct {
	ReminderID          string
	AccountID           string
	RecipientID         string
	Requirement         Requirement
	ExpectsConfirmation bool
	LastDispatchAt      time.Time
}

type ClassifiedResponse struct {
	// ReminderID is empty when the reply could not be correlated.
	ReminderID string   `json:"reminderId,omitempty"`
	Polarity   Polarity `json:"polarity"`
	Confidence float64  `json:"confidence"`
	Action     Action   `json:"action"`
}

func (c ClassifiedResponse) Matched() bool { return c.ReminderID != "" }

type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
}

type InboundMessage struct {
	From         string       `json:"from"`
	Body         string       `json:"body"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	CarrierMsgID string       `json:"carrierMsgId,omitempty"`
	ReceivedAt   time.Time    `json:"receivedAt"`
}

func (m InboundMessage) HasAttachment() bool { return len(m.Attachments) > 0 }
