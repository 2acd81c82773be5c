package inbound

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"remindr/internal/carrier"
	"remindr/internal/classify"
	"remindr/internal/domain"
	"remindr/internal/ledger"
	"remindr/internal/store"
	"remindr/internal/store/memory"
)

var sentAt = time.Date(2024, time.January, 3, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, confirmed bool, reminders ...domain.Reminder) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.UpsertRecipient(ctx, domain.Recipient{ID: "p1", AccountID: "acct", Address: "+15550001111", Confirmed: confirmed}))
	l := ledger.New(s)
	for _, r := range reminders {
		r.AccountID, r.RecipientID, r.Status = "acct", "p1", domain.ReminderActive
		require.NoError(t, s.InsertReminder(ctx, r))
		key, err := l.Claim(ctx, r.ID, sentAt, false, sentAt)
		require.NoError(t, err)
		require.NoError(t, l.MarkSent(ctx, key, "SM"+r.ID, sentAt))
	}
	return s
}

func newProcessor(s *memory.Store, now time.Time) *Processor {
	clock := func() time.Time { return now }
	return &Processor{
		Lookup:     s,
		Classifier: classify.New(classify.DefaultVocabulary()),
		Sink:       &StoreSink{Store: s, Now: clock},
		Now:        clock,
	}
}

func TestHandleDoneMarksAnswered(t *testing.T) {
	s := seed(t, true, domain.Reminder{ID: "r1", Requirement: domain.RequireText})
	p := newProcessor(s, sentAt.Add(time.Hour))
	ctx := context.Background()

	v, err := p.Handle(ctx, domain.InboundMessage{From: "+1 (555) 000-1111", Body: "Done!", CarrierMsgID: "SMin1"})
	require.NoError(t, err)
	require.Equal(t, "r1", v.ReminderID)
	require.Equal(t, domain.ActionMarkComplete, v.Action)

	_, ok := s.Answered("r1")
	require.True(t, ok)
	pending, err := s.PendingContexts(ctx, "+15550001111", sentAt.Add(-time.Hour))
	require.NoError(t, err)
	require.Empty(t, pending)

	// A redelivered webhook is recorded once.
	_, err = p.Handle(ctx, domain.InboundMessage{From: "+15550001111", Body: "Done!", CarrierMsgID: "SMin1"})
	require.NoError(t, err)
	require.Len(t, s.Responses(), 1)
}

func TestHandleStopSuppresses(t *testing.T) {
	s := seed(t, true, domain.Reminder{ID: "r1", Requirement: domain.RequireText})
	p := newProcessor(s, sentAt.Add(time.Hour))

	v, err := p.Handle(context.Background(), domain.InboundMessage{From: "+15550001111", Body: "STOP"})
	require.NoError(t, err)
	require.Equal(t, domain.PolarityOptOut, v.Polarity)
	require.Equal(t, domain.ActionIgnore, v.Action)

	rcp, _, err := s.GetRecipient(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, rcp.Suppressed)
	_, ok := s.Answered("r1")
	require.False(t, ok)
}

func TestHandleYesConfirmsRecipient(t *testing.T) {
	s := seed(t, false, domain.Reminder{ID: "optin", Requirement: domain.RequireText, ExpectsConfirmation: true})
	p := newProcessor(s, sentAt.Add(time.Hour))

	v, err := p.Handle(context.Background(), domain.InboundMessage{From: "+15550001111", Body: "yes"})
	require.NoError(t, err)
	require.Equal(t, domain.ActionMarkConfirmed, v.Action)

	rcp, _, err := s.GetRecipient(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, rcp.Confirmed)
}

func TestHandleOutsidePendingWindow(t *testing.T) {
	s := seed(t, true, domain.Reminder{ID: "r1", Requirement: domain.RequireText})
	p := newProcessor(s, sentAt.Add(72*time.Hour))

	v, err := p.Handle(context.Background(), domain.InboundMessage{From: "+15550001111", Body: "done"})
	require.NoError(t, err)
	require.False(t, v.Matched())
	require.Equal(t, domain.ActionFlagForReview, v.Action)
	require.Len(t, s.Responses(), 1)
}

func TestHandleUnknownSender(t *testing.T) {
	s := seed(t, true)
	p := newProcessor(s, sentAt)

	v, err := p.Handle(context.Background(), domain.InboundMessage{From: "+19998887777", Body: "STOP"})
	require.NoError(t, err)
	require.Equal(t, domain.PolarityOptOut, v.Polarity)

	_, err = p.Handle(context.Background(), domain.InboundMessage{Body: "hi"})
	require.ErrorIs(t, err, domain.ErrMissingFields)
}

type statusGateway struct{ status string }

func (g statusGateway) Send(ctx context.Context, to, body string) (carrier.SendResult, error) {
	return carrier.SendResult{}, nil
}

func (g statusGateway) Status(ctx context.Context, id string) (string, error) { return g.status, nil }

func categorize(code string) carrier.Category {
	switch code {
	case "21211":
		return carrier.InvalidAddress
	case "30007":
		return carrier.PermanentRejection
	}
	return carrier.TransientNetwork
}

func TestStatusHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("permanent failure flags recipient", func(t *testing.T) {
		s := seed(t, true, domain.Reminder{ID: "r1"})
		h := &StatusHandler{Store: s, Categorize: categorize, Now: func() time.Time { return sentAt }}
		require.NoError(t, h.Handle(ctx, store.DeliveryEvent{CarrierMsgID: "SMr1", Status: "undelivered", ErrorCode: "30007"}))

		rcp, _, err := s.GetRecipient(ctx, "p1")
		require.NoError(t, err)
		require.Equal(t, string(carrier.PermanentRejection), rcp.Unreachable)
		require.Len(t, s.DeliveryEvents(), 1)
	})

	t.Run("transient failure is only recorded", func(t *testing.T) {
		s := seed(t, true, domain.Reminder{ID: "r1"})
		h := &StatusHandler{Store: s, Categorize: categorize}
		require.NoError(t, h.Handle(ctx, store.DeliveryEvent{CarrierMsgID: "SMr1", Status: "failed", ErrorCode: "30008"}))

		rcp, _, err := s.GetRecipient(ctx, "p1")
		require.NoError(t, err)
		require.Empty(t, rcp.Unreachable)
	})

	t.Run("missing status is looked up", func(t *testing.T) {
		s := seed(t, true, domain.Reminder{ID: "r1"})
		h := &StatusHandler{Store: s, Categorize: categorize, Gateway: statusGateway{status: "delivered"}}
		require.NoError(t, h.Handle(ctx, store.DeliveryEvent{CarrierMsgID: "SMr1"}))
		require.Equal(t, "delivered", s.DeliveryEvents()[0].Status)
	})

	t.Run("missing id", func(t *testing.T) {
		h := &StatusHandler{Store: memory.New()}
		require.ErrorIs(t, h.Handle(ctx, store.DeliveryEvent{Status: "failed"}), domain.ErrMissingFields)
	})
}
