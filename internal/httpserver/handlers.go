package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"remindr/internal/domain"
	"remindr/internal/quota"
	"remindr/internal/service"
)

type API struct {
	Svc   *service.ReminderService
	Quota *quota.Guard
	// Periods accepts new billing periods; nil disables the PUT route.
	Periods quota.PeriodOpener
}

func (a *API) Register(mux *mux.Router) {
	mux.HandleFunc("/v1/reminders", a.handleCreateReminder).Methods(http.MethodPost)
	mux.HandleFunc("/v1/reminders/{id}", a.handleGetReminder).Methods(http.MethodGet)
	mux.HandleFunc("/v1/reminders/{id}/pause", a.transition(a.Svc.Pause)).Methods(http.MethodPost)
	mux.HandleFunc("/v1/reminders/{id}/resume", a.transition(a.Svc.Resume)).Methods(http.MethodPost)
	mux.HandleFunc("/v1/reminders/{id}/archive", a.transition(a.Svc.Archive)).Methods(http.MethodPost)
	mux.HandleFunc("/v1/reminders/{id}/reschedule", a.handleReschedule).Methods(http.MethodPost)
	mux.HandleFunc("/v1/recipients", a.handleUpsertRecipient).Methods(http.MethodPost)
	mux.HandleFunc("/v1/recipients/{id}", a.handleGetRecipient).Methods(http.MethodGet)
	mux.HandleFunc("/v1/accounts/{id}/quota", a.handleGetQuota).Methods(http.MethodGet)
	if a.Periods != nil {
		mux.HandleFunc("/v1/accounts/{id}/quota", a.handleOpenPeriod).Methods(http.MethodPut)
	}
}

func (a *API) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req service.CreateReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	rem, err := a.Svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, err, "create reminder failed", "account_id", req.AccountID, "recipient_id", req.RecipientID)
		return
	}
	writeJSON(w, http.StatusCreated, toReminderResponse(rem))
}

func (a *API) handleGetReminder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	rem, err := a.Svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, "get reminder failed", "reminder_id", id)
		return
	}
	writeJSON(w, http.StatusOK, toReminderResponse(rem))
}

func (a *API) transition(fn func(context.Context, string) (domain.Reminder, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		rem, err := fn(r.Context(), id)
		if err != nil {
			writeError(w, err, "reminder transition failed", "reminder_id", id, "path", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, toReminderResponse(rem))
	}
}

func (a *API) handleReschedule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req service.PatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	rem, err := a.Svc.Reschedule(r.Context(), id, req)
	if err != nil {
		writeError(w, err, "reschedule reminder failed", "reminder_id", id)
		return
	}
	writeJSON(w, http.StatusOK, toReminderResponse(rem))
}

func (a *API) handleUpsertRecipient(w http.ResponseWriter, r *http.Request) {
	var req service.RecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	p, err := a.Svc.UpsertRecipient(r.Context(), req)
	if err != nil {
		writeError(w, err, "upsert recipient failed", "recipient_id", req.ID, "account_id", req.AccountID)
		return
	}
	writeJSON(w, http.StatusOK, toRecipientResponse(p))
}

func (a *API) handleGetRecipient(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := a.Svc.GetRecipient(r.Context(), id)
	if err != nil {
		writeError(w, err, "get recipient failed", "recipient_id", id)
		return
	}
	writeJSON(w, http.StatusOK, toRecipientResponse(p))
}

type quotaResponse struct {
	AccountID string `json:"accountId"`
	Remaining int    `json:"remaining"`
}

func (a *API) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	n, err := a.Quota.Remaining(r.Context(), id)
	if err != nil {
		writeError(w, err, "quota lookup failed", "account_id", id)
		return
	}
	writeJSON(w, http.StatusOK, quotaResponse{AccountID: id, Remaining: n})
}

type openPeriodRequest struct {
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	Limit       int       `json:"limit"`
}

func (a *API) handleOpenPeriod(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req openPeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if req.Limit < 0 || !req.PeriodEnd.After(req.PeriodStart) {
		http.Error(w, "invalid period", http.StatusBadRequest)
		return
	}
	err := a.Periods.OpenPeriod(r.Context(), domain.QuotaCounter{
		AccountID:   id,
		PeriodStart: req.PeriodStart.UTC(),
		PeriodEnd:   req.PeriodEnd.UTC(),
		Limit:       req.Limit,
	})
	if err != nil {
		writeError(w, err, "open quota period failed", "account_id", id)
		return
	}
	writeJSON(w, http.StatusOK, quotaResponse{AccountID: id, Remaining: req.Limit})
}

// writeError maps service errors onto status codes. Unknown errors are
// dependency failures.
func writeError(w http.ResponseWriter, err error, msg string, attrs ...any) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, ErrNotFound, http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case domain.IsConfigError(err), errors.Is(err, domain.ErrMissingFields):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error(msg, append([]any{"err", err}, attrs...)...)
		http.Error(w, ErrDependency, http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
