package domain

import "time"

// Recipient is the addressable end of a reminder. Confirmed means the
// recipient has opted in; Suppressed means they opted out.
type Recipient struct {
	ID          string
	AccountID   string
	Name        string
	Address     string
	Confirmed   bool
	Suppressed  bool
	Unreachable string
	UpdatedAt   time.Time
}

// ResponseRecord is an inbound reply together with its verdict.
type ResponseRecord struct {
	ID         string
	Message    InboundMessage
	Verdict    ClassifiedResponse
	RecordedAt time.Time
}
