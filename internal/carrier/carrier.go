// Package carrier defines the contract the core uses to reach an SMS carrier.
package carrier

import (
	"context"
	"errors"
	"fmt"
)

type Category string

const (
	InvalidAddress     Category = "invalid_address"
	RateLimited        Category = "rate_limited"
	TransientNetwork   Category = "transient_network"
	PermanentRejection Category = "permanent_rejection"
)

type SendResult struct {
	CarrierMsgID string
	Status       string
}

type Gateway interface {
	Send(ctx context.Context, to, body string) (SendResult, error)
	Status(ctx context.Context, carrierMsgID string) (string, error)
}

// Error is a categorised carrier failure.
type Error struct {
	Category   Category
	Code       string
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("carrier %s (code %s): %v", e.Category, e.Code, e.Err)
	}
	return fmt.Sprintf("carrier %s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CategoryOf classifies any error returned by a Gateway. Uncategorised
// errors, deadlines and network timeouts included, count as transient.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category
	}
	return TransientNetwork
}

// IsPermanent reports errors that need upstream remediation of the
// recipient rather than a later retry.
func IsPermanent(err error) bool {
	switch CategoryOf(err) {
	case InvalidAddress, PermanentRejection:
		return true
	}
	return false
}
