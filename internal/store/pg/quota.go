package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"remindr/internal/domain"
)

// Consume increments the account's counter in one conditional UPDATE so
// concurrent scanners never push used past limit.
func (s *Store) Consume(ctx context.Context, accountID string, amount int, now time.Time) (bool, int, error) {
	var used int
	err := s.DB.QueryRow(ctx, `
		UPDATE quota_counters SET used = used + $2
		WHERE account_id=$1 AND period_start <= $3 AND $3 < period_end AND used + $2 <= limit_count
		RETURNING used
	`, accountID, amount, now).Scan(&used)
	if err == nil {
		return true, used, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, 0, err
	}

	err = s.DB.QueryRow(ctx, `
		SELECT used FROM quota_counters WHERE account_id=$1 AND period_start <= $2 AND $2 < period_end
	`, accountID, now).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, 0, nil
	}
	return false, used, err
}

func (s *Store) Remaining(ctx context.Context, accountID string, now time.Time) (int, error) {
	var rem int
	err := s.DB.QueryRow(ctx, `
		SELECT GREATEST(limit_count - used, 0) FROM quota_counters
		WHERE account_id=$1 AND period_start <= $2 AND $2 < period_end
	`, accountID, now).Scan(&rem)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return rem, err
}

// OpenPeriod replaces the account's counter with a fresh period.
func (s *Store) OpenPeriod(ctx context.Context, q domain.QuotaCounter) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO quota_counters (account_id, period_start, period_end, limit_count, used)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (account_id) DO UPDATE
		SET period_start=EXCLUDED.period_start, period_end=EXCLUDED.period_end,
		    limit_count=EXCLUDED.limit_count, used=EXCLUDED.used
	`, q.AccountID, q.PeriodStart, q.PeriodEnd, q.Limit, q.Used)
	return err
}
