package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"remindr/internal/classify"
	"remindr/internal/domain"
	"remindr/internal/inbound"
	"remindr/internal/ledger"
	"remindr/internal/providers/twilio"
	sqsqueue "remindr/internal/queue/sqs"
	"remindr/internal/store/memory"
)

const (
	testToken  = "secret"
	testPublic = "https://hooks.example.com/"
)

var sentAt = time.Date(2024, time.January, 3, 9, 0, 0, 0, time.UTC)

func post(t *testing.T, h http.Handler, path string, form url.Values, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signed {
		req.Header.Set("X-Twilio-Signature", twilio.Sign(testToken, "https://hooks.example.com"+path, form))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type fakeQueue struct{ events []sqsqueue.WebhookEvent }

func (q *fakeQueue) Enqueue(ctx context.Context, ev sqsqueue.WebhookEvent) error {
	q.events = append(q.events, ev)
	return nil
}

func seedSent(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.UpsertRecipient(ctx, domain.Recipient{ID: "p1", AccountID: "acct", Address: "+15550001111", Confirmed: true}))
	require.NoError(t, st.InsertReminder(ctx, domain.Reminder{
		ID: "r1", AccountID: "acct", RecipientID: "p1", Status: domain.ReminderActive, Requirement: domain.RequireText,
	}))
	l := ledger.New(st)
	key, err := l.Claim(ctx, "r1", sentAt, false, sentAt)
	require.NoError(t, err)
	require.NoError(t, l.MarkSent(ctx, key, "SMout1", sentAt))
	return st
}

func inlineWebhook(st *memory.Store) http.Handler {
	clock := func() time.Time { return sentAt.Add(time.Hour) }
	w := &Webhook{
		Inbound: &inbound.Processor{
			Lookup:     st,
			Classifier: classify.New(classify.DefaultVocabulary()),
			Sink:       &inbound.StoreSink{Store: st, Now: clock},
			Now:        clock,
		},
		Status:          &inbound.StatusHandler{Store: st, Categorize: twilio.CategorizeCode, Now: clock},
		VerifySignature: twilio.VerifySignature,
		AuthToken:       testToken,
		PublicURL:       testPublic,
		Now:             clock,
	}
	s := New()
	w.Register(s.Mux)
	return s.Mux
}

func TestInboundInline(t *testing.T) {
	st := seedSent(t)
	h := inlineWebhook(st)

	form := url.Values{"From": {"+15550001111"}, "Body": {"done"}, "MessageSid": {"SMin1"}}
	rec := post(t, h, InboundPath, form, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "<Response>")

	_, ok := st.Answered("r1")
	require.True(t, ok)
	require.Len(t, st.Responses(), 1)
}

func TestInboundRejectsBadSignature(t *testing.T) {
	st := seedSent(t)
	h := inlineWebhook(st)

	form := url.Values{"From": {"+15550001111"}, "Body": {"done"}}
	rec := post(t, h, InboundPath, form, false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, st.Responses())
}

func TestInboundMissingSender(t *testing.T) {
	h := inlineWebhook(seedSent(t))
	rec := post(t, h, InboundPath, url.Values{"Body": {"done"}}, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusInlineFlagsUnreachable(t *testing.T) {
	st := seedSent(t)
	h := inlineWebhook(st)

	rec := post(t, h, StatusPath, url.Values{"MessageSid": {"SMout1"}, "MessageStatus": {"delivered"}}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	rcp, _, err := st.GetRecipient(context.Background(), "p1")
	require.NoError(t, err)
	require.Empty(t, rcp.Unreachable)

	rec = post(t, h, StatusPath, url.Values{"MessageSid": {"SMout1"}, "MessageStatus": {"undelivered"}, "ErrorCode": {"30003"}}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rcp, _, err = st.GetRecipient(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "permanent_rejection", rcp.Unreachable)

	events := st.DeliveryEvents()
	require.Len(t, events, 2)
	require.Equal(t, "30003", events[1].ErrorCode)
	require.Equal(t, []string{"SMout1"}, events[1].Payload["MessageSid"])
}

func TestWebhookEnqueues(t *testing.T) {
	q := &fakeQueue{}
	w := &Webhook{
		Queue:           q,
		VerifySignature: twilio.VerifySignature,
		AuthToken:       testToken,
		PublicURL:       testPublic,
	}
	s := New()
	w.Register(s.Mux)

	rec := post(t, s.Mux, InboundPath, url.Values{
		"From": {"+15550001111"}, "Body": {"pic"}, "MessageSid": {"SMin2"},
		"NumMedia": {"1"}, "MediaUrl0": {"https://m.example.com/1"}, "MediaContentType0": {"image/jpeg"},
	}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = post(t, s.Mux, StatusPath, url.Values{"MessageSid": {"SMout1"}, "MessageStatus": {"sent"}}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, q.events, 2)
	require.Equal(t, sqsqueue.KindInbound, q.events[0].Kind)
	require.Len(t, q.events[0].Attachments, 1)
	require.Equal(t, sqsqueue.KindStatus, q.events[1].Kind)
	require.Equal(t, "sent", q.events[1].Status)
}
