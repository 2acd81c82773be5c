package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"remindr/internal/domain"
	"remindr/internal/util"
)

type SinkStore interface {
	RecordResponse(ctx context.Context, rec domain.ResponseRecord) error
	MarkAnswered(ctx context.Context, reminderID string, at time.Time) error
	ConfirmRecipient(ctx context.Context, address string, now time.Time) error
	SuppressRecipient(ctx context.Context, address string, now time.Time) error
}

// StoreSink persists every verdict and applies the ones that change state:
// completion and confirmation answer the reminder, opt-out suppresses the
// sender. Follow-up and review verdicts are recorded for the host to act on.
type StoreSink struct {
	Store SinkStore
	IDGen func() string
	Now   func() time.Time
}

func (s *StoreSink) Apply(ctx context.Context, msg domain.InboundMessage, v domain.ClassifiedResponse) error {
	now := s.now()
	if err := s.Store.RecordResponse(ctx, domain.ResponseRecord{
		ID:         s.responseID(msg),
		Message:    msg,
		Verdict:    v,
		RecordedAt: now,
	}); err != nil {
		return fmt.Errorf("record response: %w", err)
	}

	switch {
	case v.Polarity == domain.PolarityOptOut:
		return ignoreUnknown(s.Store.SuppressRecipient(ctx, msg.From, now), "suppress", msg.From)
	case v.Action == domain.ActionMarkComplete && v.Matched():
		return s.Store.MarkAnswered(ctx, v.ReminderID, msg.ReceivedAt)
	case v.Action == domain.ActionMarkConfirmed && v.Matched():
		if err := s.Store.MarkAnswered(ctx, v.ReminderID, msg.ReceivedAt); err != nil {
			return err
		}
		return ignoreUnknown(s.Store.ConfirmRecipient(ctx, msg.From, now), "confirm", msg.From)
	}
	return nil
}

// responseID keys a response on the carrier message id so a redelivered
// webhook is recorded once.
func (s *StoreSink) responseID(msg domain.InboundMessage) string {
	if msg.CarrierMsgID != "" {
		return "rsp_" + msg.CarrierMsgID
	}
	if s.IDGen != nil {
		return s.IDGen()
	}
	return util.NewResponseID()
}

func ignoreUnknown(err error, op, address string) error {
	if errors.Is(err, domain.ErrNotFound) {
		slog.Warn("inbound sender unknown", "op", op, "from", address)
		return nil
	}
	return err
}

func (s *StoreSink) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
