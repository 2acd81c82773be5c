package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"remindr/internal/domain"
)

// InsertClaim is the single conditional insert the ledger relies on; the
// primary key on (reminder_id, occurrence_at) decides the race.
func (s *Store) InsertClaim(ctx context.Context, rec domain.DispatchRecord) (bool, error) {
	key := rec.Key().Normalize()
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO dispatch_records (reminder_id, occurrence_at, status, missed, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (reminder_id, occurrence_at) DO NOTHING
	`, key.ReminderID, key.OccurrenceAt, string(rec.Status), rec.Missed, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Store) FinalizeDispatch(ctx context.Context, key domain.DispatchKey, status domain.DispatchStatus, carrierMsgID, reason string, now time.Time) (bool, error) {
	key = key.Normalize()
	ct, err := s.DB.Exec(ctx, `
		UPDATE dispatch_records
		SET status=$3, carrier_msg_id=$4, reason=$5, updated_at=$6
		WHERE reminder_id=$1 AND occurrence_at=$2 AND status='claimed'
	`, key.ReminderID, key.OccurrenceAt, string(status), nullIfEmpty(carrierMsgID), reason, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) FailStaleClaims(ctx context.Context, before time.Time, reason string, now time.Time) (int, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE dispatch_records SET status='failed', reason=$2, updated_at=$3
		WHERE status='claimed' AND created_at < $1
	`, before, reason, now)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

const dispatchCols = `reminder_id, occurrence_at, status, COALESCE(carrier_msg_id,''), reason, missed, created_at, updated_at`

func scanDispatch(row pgx.Row) (domain.DispatchRecord, error) {
	var (
		rec    domain.DispatchRecord
		status string
	)
	err := row.Scan(&rec.ReminderID, &rec.OccurrenceAt, &status, &rec.CarrierMsgID, &rec.Reason, &rec.Missed, &rec.CreatedAt, &rec.UpdatedAt)
	rec.Status = domain.DispatchStatus(status)
	return rec, err
}

func (s *Store) GetDispatch(ctx context.Context, key domain.DispatchKey) (domain.DispatchRecord, bool, error) {
	key = key.Normalize()
	rec, err := scanDispatch(s.DB.QueryRow(ctx, `
		SELECT `+dispatchCols+` FROM dispatch_records WHERE reminder_id=$1 AND occurrence_at=$2
	`, key.ReminderID, key.OccurrenceAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DispatchRecord{}, false, nil
	}
	if err != nil {
		return domain.DispatchRecord{}, false, err
	}
	return rec, true, nil
}

// Dispatches returns the ledger entries of one reminder ordered by occurrence.
func (s *Store) Dispatches(ctx context.Context, reminderID string) ([]domain.DispatchRecord, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+dispatchCols+` FROM dispatch_records WHERE reminder_id=$1 ORDER BY occurrence_at
	`, reminderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DispatchRecord
	for rows.Next() {
		rec, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
