package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"remindr/internal/domain"
	"remindr/internal/observability"
	"remindr/internal/providers/twilio"
	sqsqueue "remindr/internal/queue/sqs"
	"remindr/internal/store"
)

const (
	InboundPath = "/v1/webhooks/twilio/inbound"
	StatusPath  = "/v1/webhooks/twilio/status"
)

type InboundHandler interface {
	Handle(ctx context.Context, msg domain.InboundMessage) (domain.ClassifiedResponse, error)
}

type StatusHandler interface {
	Handle(ctx context.Context, ev store.DeliveryEvent) error
}

type Queue interface {
	Enqueue(ctx context.Context, ev sqsqueue.WebhookEvent) error
}

// Webhook receives carrier callbacks. With a Queue set, events are enqueued
// for the inbound processor; otherwise they are handled inline.
type Webhook struct {
	Queue   Queue
	Inbound InboundHandler
	Status  StatusHandler

	VerifySignature func(authToken, fullURL, provided string, form url.Values) bool
	AuthToken       string
	// PublicURL is the externally visible base URL Twilio signs against.
	PublicURL string
	Now       func() time.Time
}

func (w *Webhook) Register(mux *mux.Router) {
	mux.HandleFunc(InboundPath, w.handleTwilioInbound).Methods(http.MethodPost)
	mux.HandleFunc(StatusPath, w.handleTwilioStatus).Methods(http.MethodPost)
}

// emptyTwiML acknowledges an inbound message without replying.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

func (w *Webhook) handleTwilioInbound(rw http.ResponseWriter, r *http.Request) {
	if !w.verify(rw, r) {
		return
	}
	msg := twilio.ParseInbound(r.PostForm, w.now())
	observability.WebhookEvents.WithLabelValues("inbound", "received").Inc()

	var err error
	if w.Queue != nil {
		err = w.Queue.Enqueue(r.Context(), sqsqueue.InboundEvent(msg))
	} else {
		_, err = w.Inbound.Handle(r.Context(), msg)
	}
	if err != nil {
		slog.Error("webhook inbound failed", "err", err, "message_sid", msg.CarrierMsgID, "from", msg.From)
		if errors.Is(err, domain.ErrMissingFields) {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(rw, ErrDependency, http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "text/xml")
	_, _ = rw.Write([]byte(emptyTwiML))
}

func (w *Webhook) handleTwilioStatus(rw http.ResponseWriter, r *http.Request) {
	if !w.verify(rw, r) {
		return
	}
	cb := twilio.ParseStatus(r.PostForm)
	ev := store.DeliveryEvent{
		CarrierMsgID: cb.MessageSid,
		Status:       cb.Status,
		ErrorCode:    cb.ErrorCode,
		Payload:      r.PostForm,
		ReceivedAt:   w.now(),
	}

	var err error
	if w.Queue != nil {
		err = w.Queue.Enqueue(r.Context(), sqsqueue.StatusEvent(ev))
	} else {
		err = w.Status.Handle(r.Context(), ev)
	}
	if err != nil {
		slog.Error("webhook status failed", "err", err, "message_sid", cb.MessageSid, "status", cb.Status)
		if errors.Is(err, domain.ErrMissingFields) {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(rw, ErrDependency, http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusOK)
}

func (w *Webhook) verify(rw http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		http.Error(rw, ErrBadForm, http.StatusBadRequest)
		return false
	}
	full := strings.TrimRight(w.PublicURL, "/") + r.URL.Path
	if w.VerifySignature == nil || !w.VerifySignature(w.AuthToken, full, r.Header.Get("X-Twilio-Signature"), r.PostForm) {
		http.Error(rw, ErrInvalidSignature, http.StatusUnauthorized)
		return false
	}
	return true
}

func (w *Webhook) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}
