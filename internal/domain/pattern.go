package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type PatternKind string

const (
	PatternOnce     PatternKind = "once"
	PatternDaily    PatternKind = "daily"
	PatternWeekdays PatternKind = "weekdays"
	PatternWeekly   PatternKind = "weekly"
	PatternCustom   PatternKind = "custom"
)

// WeekdaySet is a bitmask indexed by time.Weekday.
type WeekdaySet uint8

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

func (s WeekdaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }
func (s WeekdaySet) Empty() bool             { return s&0x7f == 0 }

func (s WeekdaySet) Days() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s WeekdaySet) Strings() []string {
	days := s.Days()
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = strings.ToLower(d.String()[:3])
	}
	return out
}

// Pattern is a recurrence rule. Weekday is used by weekly, Days by custom
// and At by once.
type Pattern struct {
	Kind    PatternKind
	Weekday time.Weekday
	Days    WeekdaySet
	At      time.Time
}

func (p Pattern) Recurring() bool { return p.Kind != PatternOnce }

func (p Pattern) Validate() error {
	switch p.Kind {
	case PatternOnce:
		if p.At.IsZero() {
			return fmt.Errorf("%w: once pattern without instant", ErrConfig)
		}
	case PatternDaily, PatternWeekdays:
	case PatternWeekly:
		if p.Weekday < time.Sunday || p.Weekday > time.Saturday {
			return ErrInvalidWeekday
		}
	case PatternCustom:
		if p.Days.Empty() {
			return ErrEmptyCustomDays
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPattern, p.Kind)
	}
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, s)
	}
	return d, nil
}

func ParseWeekdaySet(names []string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, n := range names {
		d, err := ParseWeekday(n)
		if err != nil {
			return 0, err
		}
		s |= NewWeekdaySet(d)
	}
	return s, nil
}

// TimeOfDay is the anchor wall-clock time of a reminder.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Minutes is the offset from local midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	t := TimeOfDay{Hour: h, Minute: m}
	if err1 != nil || err2 != nil || !t.Valid() {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return t, nil
}
