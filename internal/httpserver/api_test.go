package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"remindr/internal/domain"
	"remindr/internal/quota"
	"remindr/internal/service"
	"remindr/internal/store/memory"
)

// Wednesday 2024-01-03 10:00 UTC.
var apiNow = time.Date(2024, time.January, 3, 10, 0, 0, 0, time.UTC)

func newAPI(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	st := memory.New()
	clock := func() time.Time { return apiNow }
	api := &API{
		Svc:     &service.ReminderService{Store: st, Now: clock},
		Quota:   &quota.Guard{Counter: st, Now: clock},
		Periods: st,
	}
	s := New()
	api.Register(s.Mux)
	return s.Mux, st
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReminderLifecycle(t *testing.T) {
	h, _ := newAPI(t)

	rec := do(t, h, http.MethodPost, "/v1/recipients", service.RecipientRequest{ID: "p1", AccountID: "acct", Address: "+1 555 000 1111"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rcp recipientResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rcp))
	require.Equal(t, "+15550001111", rcp.Address)

	rec = do(t, h, http.MethodPost, "/v1/reminders", service.CreateReminderRequest{
		AccountID: "acct", RecipientID: "p1", Title: "meds",
		Schedule: service.PatternRequest{Kind: "weekly", At: "09:00", Weekday: "fri"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rem reminderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rem))
	require.Equal(t, "active", rem.Status)
	require.Equal(t, "Friday", rem.Schedule.Weekday)
	require.Equal(t, time.Date(2024, time.January, 5, 9, 0, 0, 0, time.UTC), rem.NextOccurrence)

	rec = do(t, h, http.MethodGet, "/v1/reminders/"+rem.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/reminders/"+rem.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rem))
	require.Equal(t, "paused", rem.Status)

	rec = do(t, h, http.MethodPost, "/v1/reminders/"+rem.ID+"/pause", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/reminders/"+rem.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/reminders/"+rem.ID+"/reschedule", service.PatternRequest{Kind: "daily", At: "11:30"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rem))
	require.Equal(t, time.Date(2024, time.January, 3, 11, 30, 0, 0, time.UTC), rem.NextOccurrence)

	rec = do(t, h, http.MethodPost, "/v1/reminders/"+rem.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/v1/reminders/"+rem.ID+"/reschedule", service.PatternRequest{Kind: "daily", At: "11:30"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateReminderErrors(t *testing.T) {
	h, st := newAPI(t)
	require.NoError(t, st.UpsertRecipient(context.Background(), domain.Recipient{ID: "p1", AccountID: "acct", Address: "+15550001111"}))

	rec := do(t, h, http.MethodPost, "/v1/reminders", service.CreateReminderRequest{
		AccountID: "acct", RecipientID: "p1", Title: "x",
		Schedule: service.PatternRequest{Kind: "custom", At: "09:00"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/reminders", service.CreateReminderRequest{
		AccountID: "other", RecipientID: "p1", Title: "x",
		Schedule: service.PatternRequest{Kind: "daily", At: "09:00"},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/reminders", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	rec = do(t, h, http.MethodGet, "/v1/reminders/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuotaRoutes(t *testing.T) {
	h, _ := newAPI(t)

	rec := do(t, h, http.MethodGet, "/v1/accounts/acct/quota", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var q quotaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	require.Zero(t, q.Remaining)

	rec = do(t, h, http.MethodPut, "/v1/accounts/acct/quota", openPeriodRequest{
		PeriodStart: apiNow.Add(-time.Hour), PeriodEnd: apiNow.Add(24 * time.Hour), Limit: 5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/accounts/acct/quota", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	require.Equal(t, 5, q.Remaining)

	rec = do(t, h, http.MethodPut, "/v1/accounts/acct/quota", openPeriodRequest{PeriodStart: apiNow, PeriodEnd: apiNow, Limit: 5})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	s := New()
	failing := false
	s.Ready(time.Second, func(ctx context.Context) error {
		if failing {
			return context.DeadlineExceeded
		}
		return nil
	})

	rec := do(t, s.Mux, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s.Mux, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	failing = true
	rec = do(t, s.Mux, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsLabelsRouteTemplate(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_requests_total"}, []string{"endpoint", "status"})
	h, _ := newAPI(t)
	router := h.(*mux.Router)
	router.Use(Metrics(counter))

	do(t, router, http.MethodGet, "/v1/reminders/abc", nil)
	do(t, router, http.MethodGet, "/v1/reminders/def", nil)
	require.Equal(t, 2.0, testutil.ToFloat64(counter.WithLabelValues("/v1/reminders/{id}", "404")))
}
