package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingFields  = errors.New("missing required fields")
	ErrNotFound       = errors.New("not found")
	ErrAlreadyClaimed = errors.New("occurrence already claimed")

	// ErrConfig is the class of configuration errors. They are fatal at
	// creation time and never defaulted.
	ErrConfig = errors.New("configuration error")

	ErrEmptyCustomDays  = fmt.Errorf("%w: custom-days pattern has no weekdays", ErrConfig)
	ErrInvalidTimeOfDay = fmt.Errorf("%w: invalid time of day", ErrConfig)
	ErrInvalidWeekday   = fmt.Errorf("%w: invalid weekday", ErrConfig)
	ErrUnknownPattern   = fmt.Errorf("%w: unknown recurrence pattern", ErrConfig)
	ErrInvalidTimeZone  = fmt.Errorf("%w: invalid time zone", ErrConfig)
	ErrOnceInPast       = fmt.Errorf("%w: one-shot instant must be in the future", ErrConfig)
)

func IsConfigError(err error) bool { return errors.Is(err, ErrConfig) }
