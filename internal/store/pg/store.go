// Package pg is the Postgres implementation of the reminder, ledger, quota
// and inbound stores.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"remindr/internal/domain"
	"remindr/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) Ping(ctx context.Context) error { return s.DB.Ping(ctx) }

const reminderCols = `r.id, r.account_id, r.recipient_id, r.title, r.body,
	r.pattern_kind, r.pattern_weekday, r.pattern_days, r.once_at, r.at_hour, r.at_minute, r.time_zone,
	r.next_occurrence, r.status, r.requirement, r.expects_confirmation, r.created_at, r.updated_at`

func scanReminder(row pgx.Row, extra ...any) (domain.Reminder, error) {
	var (
		r        domain.Reminder
		kind     string
		weekday  int
		days     int
		onceAt   *time.Time
		status   string
		required string
	)
	dest := []any{&r.ID, &r.AccountID, &r.RecipientID, &r.Title, &r.Body,
		&kind, &weekday, &days, &onceAt, &r.At.Hour, &r.At.Minute, &r.TimeZone,
		&r.NextOccurrence, &status, &required, &r.ExpectsConfirmation, &r.CreatedAt, &r.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Reminder{}, err
	}
	r.Pattern = domain.Pattern{Kind: domain.PatternKind(kind), Weekday: time.Weekday(weekday), Days: domain.WeekdaySet(days)}
	if onceAt != nil {
		r.Pattern.At = *onceAt
	}
	r.Status = domain.ReminderStatus(status)
	r.Requirement = domain.Requirement(required)
	return r, nil
}

func onceAt(p domain.Pattern) any {
	if p.At.IsZero() {
		return nil
	}
	return p.At
}

// Reminders

func (s *Store) InsertReminder(ctx context.Context, r domain.Reminder) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO reminders (id, account_id, recipient_id, title, body,
			pattern_kind, pattern_weekday, pattern_days, once_at, at_hour, at_minute, time_zone,
			next_occurrence, status, requirement, expects_confirmation, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, r.ID, r.AccountID, r.RecipientID, r.Title, r.Body,
		string(r.Pattern.Kind), int(r.Pattern.Weekday), int(r.Pattern.Days), onceAt(r.Pattern), r.At.Hour, r.At.Minute, r.TimeZone,
		r.NextOccurrence, string(r.Status), string(r.Requirement), r.ExpectsConfirmation, r.CreatedAt, r.UpdatedAt)
	return err
}

func (s *Store) GetReminder(ctx context.Context, id string) (domain.Reminder, bool, error) {
	r, err := scanReminder(s.DB.QueryRow(ctx, `SELECT `+reminderCols+` FROM reminders r WHERE r.id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reminder{}, false, nil
	}
	if err != nil {
		return domain.Reminder{}, false, err
	}
	return r, true, nil
}

// UpdateReminder writes the lifecycle fields of r.
func (s *Store) UpdateReminder(ctx context.Context, r domain.Reminder) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE reminders
		SET title=$2, body=$3, pattern_kind=$4, pattern_weekday=$5, pattern_days=$6, once_at=$7,
		    at_hour=$8, at_minute=$9, time_zone=$10, next_occurrence=$11, status=$12,
		    requirement=$13, expects_confirmation=$14, updated_at=$15
		WHERE id=$1
	`, r.ID, r.Title, r.Body, string(r.Pattern.Kind), int(r.Pattern.Weekday), int(r.Pattern.Days), onceAt(r.Pattern),
		r.At.Hour, r.At.Minute, r.TimeZone, r.NextOccurrence, string(r.Status),
		string(r.Requirement), r.ExpectsConfirmation, r.UpdatedAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) DueReminders(ctx context.Context, q domain.DueQuery) ([]domain.Due, error) {
	var lim any
	if q.Limit > 0 {
		lim = q.Limit
	}
	rows, err := s.DB.Query(ctx, `
		SELECT `+reminderCols+`, p.address, p.name, p.confirmed, p.suppressed
		FROM reminders r
		JOIN recipients p ON p.id = r.recipient_id
		WHERE r.status='active' AND r.next_occurrence BETWEEN $1 AND $2
		  AND (NOT $4::boolean OR p.confirmed OR r.expects_confirmation)
		ORDER BY r.next_occurrence
		LIMIT $3
	`, q.From, q.To, lim, q.SkipUnconfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Due
	for rows.Next() {
		var d domain.Due
		r, err := scanReminder(rows, &d.RecipientAddress, &d.RecipientName, &d.RecipientConfirmed, &d.RecipientSuppressed)
		if err != nil {
			return nil, err
		}
		d.Reminder = r
		out = append(out, d)
	}
	return out, rows.Err()
}

// AdvanceReminder is a compare-and-set on next_occurrence.
func (s *Store) AdvanceReminder(ctx context.Context, id string, prev, next, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE reminders SET next_occurrence=$3, updated_at=$4
		WHERE id=$1 AND next_occurrence=$2
	`, id, prev, next, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) ArchiveReminder(ctx context.Context, id string, now time.Time) error {
	ct, err := s.DB.Exec(ctx, `UPDATE reminders SET status='archived', updated_at=$2 WHERE id=$1`, id, now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Recipients

func (s *Store) UpsertRecipient(ctx context.Context, p domain.Recipient) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO recipients (id, account_id, name, address, confirmed, suppressed, unreachable, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE
		SET name=EXCLUDED.name, address=EXCLUDED.address, confirmed=EXCLUDED.confirmed,
		    suppressed=EXCLUDED.suppressed, unreachable=EXCLUDED.unreachable, updated_at=EXCLUDED.updated_at
	`, p.ID, p.AccountID, p.Name, p.Address, p.Confirmed, p.Suppressed, p.Unreachable, p.UpdatedAt)
	return err
}

func (s *Store) GetRecipient(ctx context.Context, id string) (domain.Recipient, bool, error) {
	var p domain.Recipient
	err := s.DB.QueryRow(ctx, `
		SELECT id, account_id, name, address, confirmed, suppressed, unreachable, updated_at
		FROM recipients WHERE id=$1
	`, id).Scan(&p.ID, &p.AccountID, &p.Name, &p.Address, &p.Confirmed, &p.Suppressed, &p.Unreachable, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Recipient{}, false, nil
	}
	if err != nil {
		return domain.Recipient{}, false, err
	}
	return p, true, nil
}

func (s *Store) FlagUnreachable(ctx context.Context, recipientID, reason string, now time.Time) error {
	ct, err := s.DB.Exec(ctx, `UPDATE recipients SET unreachable=$2, updated_at=$3 WHERE id=$1`, recipientID, reason, now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) FlagUnreachableByCarrierID(ctx context.Context, carrierMsgID, reason string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE recipients p SET unreachable=$2, updated_at=$3
		FROM dispatch_records d
		JOIN reminders r ON r.id = d.reminder_id
		WHERE d.carrier_msg_id=$1 AND p.id = r.recipient_id
	`, carrierMsgID, reason, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) ConfirmRecipient(ctx context.Context, address string, now time.Time) error {
	return s.updateByAddress(ctx, `UPDATE recipients SET confirmed=true, updated_at=$2 WHERE address=$1`, address, now)
}

func (s *Store) SuppressRecipient(ctx context.Context, address string, now time.Time) error {
	return s.updateByAddress(ctx, `UPDATE recipients SET suppressed=true, updated_at=$2 WHERE address=$1`, address, now)
}

func (s *Store) updateByAddress(ctx context.Context, sql, address string, now time.Time) error {
	ct, err := s.DB.Exec(ctx, sql, address, now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Inbound

// PendingContexts lists reminders of the recipient at address whose latest
// successful dispatch, sent at or after since, has not been answered yet.
func (s *Store) PendingContexts(ctx context.Context, address string, since time.Time) ([]domain.PendingContext, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT r.id, r.account_id, r.recipient_id, r.requirement, r.expects_confirmation, d.sent_at
		FROM recipients p
		JOIN reminders r ON r.recipient_id = p.id
		JOIN LATERAL (
			SELECT max(updated_at) AS sent_at
			FROM dispatch_records
			WHERE reminder_id = r.id AND status='sent' AND updated_at >= $2
		) d ON d.sent_at IS NOT NULL
		WHERE p.address=$1 AND r.status <> 'paused'
		  AND (r.answered_at IS NULL OR r.answered_at < d.sent_at)
		ORDER BY d.sent_at DESC
	`, address, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PendingContext
	for rows.Next() {
		var (
			pc       domain.PendingContext
			required string
		)
		if err := rows.Scan(&pc.ReminderID, &pc.AccountID, &pc.RecipientID, &required, &pc.ExpectsConfirmation, &pc.LastDispatchAt); err != nil {
			return nil, err
		}
		pc.Requirement = domain.Requirement(required)
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (s *Store) RecordResponse(ctx context.Context, rec domain.ResponseRecord) error {
	atts, _ := json.Marshal(rec.Message.Attachments)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO responses (id, reminder_id, from_address, body, attachments, carrier_msg_id,
			polarity, action, confidence, received_at, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, nullIfEmpty(rec.Verdict.ReminderID), rec.Message.From, rec.Message.Body, atts, nullIfEmpty(rec.Message.CarrierMsgID),
		string(rec.Verdict.Polarity), string(rec.Verdict.Action), rec.Verdict.Confidence, rec.Message.ReceivedAt, rec.RecordedAt)
	return err
}

func (s *Store) MarkAnswered(ctx context.Context, reminderID string, at time.Time) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE reminders SET answered_at = GREATEST(COALESCE(answered_at, $2), $2)
		WHERE id=$1
	`, reminderID, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) InsertDeliveryEvent(ctx context.Context, in store.DeliveryEvent) error {
	b, _ := json.Marshal(in.Payload)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO delivery_events (carrier_msg_id, status, error_code, payload_json, received_at)
		VALUES ($1,$2,$3,$4,$5)
	`, in.CarrierMsgID, in.Status, nullIfEmpty(in.ErrorCode), b, in.ReceivedAt)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
