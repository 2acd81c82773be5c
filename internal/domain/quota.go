package domain

import "time"

// QuotaCounter tracks sends for one account within [PeriodStart, PeriodEnd).
type QuotaCounter struct {
	AccountID   string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Limit       int
	Used        int
}

func (q QuotaCounter) Contains(t time.Time) bool {
	return !t.Before(q.PeriodStart) && t.Before(q.PeriodEnd)
}

func (q QuotaCounter) Remaining() int {
	if q.Used >= q.Limit {
		return 0
	}
	return q.Limit - q.Used
}
