// Package schedule computes reminder occurrences. Every function is pure:
// results depend only on the arguments.
package schedule

import (
	"fmt"
	"time"

	"remindr/internal/domain"
)

// customSearchDays bounds the forward search for custom-days patterns.
const customSearchDays = 14

// Next returns the first occurrence of p at the anchor time strictly after
// ref's local time-of-day on ref's local date, or on a later date.
// For once patterns it returns the scheduled instant unchanged, even if it
// lies in the past; rejecting past instants is the caller's job.
func Next(p domain.Pattern, at domain.TimeOfDay, loc *time.Location, ref time.Time) (time.Time, error) {
	if err := p.Validate(); err != nil {
		return time.Time{}, err
	}
	if !at.Valid() {
		return time.Time{}, domain.ErrInvalidTimeOfDay
	}
	if loc == nil {
		loc = time.UTC
	}

	local := ref.In(loc)
	day := func(offset int) time.Time {
		return time.Date(local.Year(), local.Month(), local.Day()+offset, at.Hour, at.Minute, 0, 0, loc)
	}
	// Today is eligible only while the anchor has not been reached.
	todayOpen := ref.Before(day(0))

	switch p.Kind {
	case domain.PatternOnce:
		return p.At, nil

	case domain.PatternDaily:
		if todayOpen {
			return day(0), nil
		}
		return day(1), nil

	case domain.PatternWeekdays:
		offset := 1
		if todayOpen {
			offset = 0
		}
		next := day(offset)
		for i := 0; i < 2 && isWeekend(next.Weekday()); i++ {
			offset++
			next = day(offset)
		}
		return next, nil

	case domain.PatternWeekly:
		return search(day, todayOpen, 7, func(d time.Weekday) bool { return d == p.Weekday })

	case domain.PatternCustom:
		return search(day, todayOpen, customSearchDays, p.Days.Has)
	}
	return time.Time{}, fmt.Errorf("%w: %q", domain.ErrUnknownPattern, p.Kind)
}

func search(day func(int) time.Time, todayOpen bool, horizon int, match func(time.Weekday) bool) (time.Time, error) {
	start := 1
	if todayOpen {
		start = 0
	}
	for i := start; i <= horizon; i++ {
		if t := day(i); match(t.Weekday()) {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: no matching day within %d days", domain.ErrConfig, horizon)
}

func isWeekend(d time.Weekday) bool { return d == time.Saturday || d == time.Sunday }

// Advance returns the occurrence that follows fulfilled for a recurring
// reminder. The result is strictly after both fulfilled and now, so an
// outage never leaves a backlog of past occurrences behind.
func Advance(r domain.Reminder, fulfilled, now time.Time) (time.Time, error) {
	if !r.Pattern.Recurring() {
		return time.Time{}, fmt.Errorf("%w: one-shot reminders are archived, not advanced", domain.ErrConfig)
	}
	loc, err := r.Location()
	if err != nil {
		return time.Time{}, err
	}

	next, err := Next(r.Pattern, r.At, loc, fulfilled)
	if err != nil {
		return time.Time{}, err
	}
	if !next.After(now) {
		if next, err = Next(r.Pattern, r.At, loc, now); err != nil {
			return time.Time{}, err
		}
	}
	// A DST fold can map the anchor back onto an instant already used.
	for !next.After(fulfilled) {
		if next, err = Next(r.Pattern, r.At, loc, next.Add(time.Minute)); err != nil {
			return time.Time{}, err
		}
	}
	return next, nil
}

// First computes the initial next-occurrence for a reminder created at now.
func First(r domain.Reminder, now time.Time) (time.Time, error) {
	loc, err := r.Location()
	if err != nil {
		return time.Time{}, err
	}
	return Next(r.Pattern, r.At, loc, now)
}
