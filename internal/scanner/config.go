package scanner

import (
	"errors"
	"fmt"
	"time"
)

// MissedPolicy decides what happens to an occurrence found older than the
// scan window.
type MissedPolicy string

const (
	MissedSendLate MissedPolicy = "send"
	MissedSkip     MissedPolicy = "skip"
)

// UnconfirmedPolicy decides what happens when a reminder comes due for a
// recipient who has not opted in yet. Confirmation requests themselves are
// always sent.
type UnconfirmedPolicy string

const (
	UnconfirmedSend  UnconfirmedPolicy = "send"
	UnconfirmedSkip  UnconfirmedPolicy = "skip"
	UnconfirmedDefer UnconfirmedPolicy = "defer"
)

type Config struct {
	Cadence time.Duration
	// Window is the on-time band [now-Window, now]. It must exceed Cadence
	// so scheduler jitter never drops an occurrence.
	Window time.Duration
	// MissedHorizon bounds how far back a scan looks; zero is unbounded.
	MissedHorizon time.Duration

	BatchSize       int
	Concurrency     int
	StaleClaimAfter time.Duration

	MissedPolicy      MissedPolicy
	UnconfirmedPolicy UnconfirmedPolicy
}

func DefaultConfig() Config {
	return Config{
		Cadence:           time.Minute,
		Window:            2 * time.Minute,
		BatchSize:         500,
		Concurrency:       8,
		StaleClaimAfter:   10 * time.Minute,
		MissedPolicy:      MissedSendLate,
		UnconfirmedPolicy: UnconfirmedSend,
	}
}

var ErrInvalidConfig = errors.New("invalid scanner config")

func (c Config) Validate() error {
	if c.Cadence <= 0 {
		return fmt.Errorf("%w: cadence must be positive", ErrInvalidConfig)
	}
	if c.Window <= c.Cadence {
		return fmt.Errorf("%w: window %s must exceed cadence %s", ErrInvalidConfig, c.Window, c.Cadence)
	}
	if c.MissedHorizon > 0 && c.MissedHorizon < c.Window {
		return fmt.Errorf("%w: missed horizon %s shorter than window %s", ErrInvalidConfig, c.MissedHorizon, c.Window)
	}
	switch c.MissedPolicy {
	case MissedSendLate, MissedSkip:
	default:
		return fmt.Errorf("%w: missed policy %q", ErrInvalidConfig, c.MissedPolicy)
	}
	switch c.UnconfirmedPolicy {
	case UnconfirmedSend, UnconfirmedSkip, UnconfirmedDefer:
	default:
		return fmt.Errorf("%w: unconfirmed policy %q", ErrInvalidConfig, c.UnconfirmedPolicy)
	}
	return nil
}
