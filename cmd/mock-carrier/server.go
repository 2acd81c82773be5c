package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
		"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"remindr/internal/config"
	"remindr/internal/providers/twilio"
)

// Twilio error codes the mock emits.
const (
	codeAuth          = 20003
	codeMissingParam  = 21602
	codeMissingFrom   = 21606
	codeInvalidNumber = 21211
	codeNotFound      = 20404
)

type message struct {
	Sid       string `json:"sid"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// server imitates the slice of the Twilio Messages API the carrier adapter
// uses, and posts signed status callbacks the way Twilio does.
type server struct {
	cfg    config.MockCarrierConfig
	client *http.Client
	seq    uint64

	mu       sync.Mutex
	messages map[string]*message
	wg       sync.WaitGroup
}

func newServer(cfg config.MockCarrierConfig) *server {
	return &server{
		cfg:      cfg,
		client:   &http.Client{Timeout: 5 * time.Second},
		messages: map[string]*message{},
	}
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/2010-04-01/Accounts/{AccountSid}/Messages.json", s.handleSend).Methods(http.MethodPost)
	r.HandleFunc("/2010-04-01/Accounts/{AccountSid}/Messages/{Sid}.json", s.handleFetch).Methods(http.MethodGet)
	r.HandleFunc("/mock/reply", s.handleReply).Methods(http.MethodPost)
	return r
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, codeAuth, "Authentication Error")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, codeMissingParam, "Invalid form data")
		return
	}
	to, body := r.PostForm.Get("To"), r.PostForm.Get("Body")
	if to == "" || body == "" {
		writeError(w, http.StatusBadRequest, codeMissingParam, "Missing required parameter")
		return
	}
	if r.PostForm.Get("MessagingServiceSid") == "" && r.PostForm.Get("From") == "" {
		writeError(w, http.StatusBadRequest, codeMissingFrom, "From or MessagingServiceSid is required")
		return
	}
	if s.cfg.InvalidPrefix != "" && strings.HasPrefix(to, s.cfg.InvalidPrefix) {
		writeError(w, http.StatusBadRequest, codeInvalidNumber, fmt.Sprintf("The 'To' number %s is not a valid phone number.", to))
		return
	}

	msg := &message{Sid: fmt.Sprintf("SM%032d", atomic.AddUint64(&s.seq, 1)), To: to, Body: body, Status: "queued"}
	s.mu.Lock()
	s.messages[msg.Sid] = msg
	out := *msg
	s.mu.Unlock()
	slog.Info("mock carrier accepted message", "sid", msg.Sid, "to", to)

	cb := r.PostForm.Get("StatusCallback")
	if cb == "" {
		cb = s.cfg.CallbackURL
	}
	s.deliver(msg.Sid, cb)
	writeJSON(w, http.StatusCreated, out)
}

func (s *server) handleFetch(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, codeAuth, "Authentication Error")
		return
	}
	s.mu.Lock()
	msg, ok := s.messages[mux.Vars(r)["Sid"]]
	var out message
	if ok {
		out = *msg
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "The requested resource was not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleReply forwards a simulated recipient reply to the inbound webhook.
func (s *server) handleReply(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("From") == "" {
		http.Error(w, "From is required", http.StatusBadRequest)
		return
	}
	if s.cfg.InboundURL == "" {
		http.Error(w, "MOCK_INBOUND_URL is not set", http.StatusPreconditionFailed)
		return
	}
	form := url.Values{
		"From":       {r.PostForm.Get("From")},
		"Body":       {r.PostForm.Get("Body")},
		"MessageSid": {fmt.Sprintf("SMin%029d", atomic.AddUint64(&s.seq, 1))},
		"NumMedia":   {"0"},
	}
	if media := r.PostForm.Get("MediaUrl"); media != "" {
		form.Set("NumMedia", "1")
		form.Set("MediaUrl0", media)
		form.Set("MediaContentType0", "image/jpeg")
	}
	status, err := s.post(r.Context(), s.cfg.InboundURL, form)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(status)
}

// deliver walks a message through sent and delivered, posting a callback
// for each step when a callback URL is known.
func (s *server) deliver(sid, callbackURL string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, st := range []string{"sent", "delivered"} {
			time.Sleep(s.cfg.CallbackDelay)
			s.setStatus(sid, st)
			if callbackURL == "" {
				continue
			}
			form := url.Values{"MessageSid": {sid}, "MessageStatus": {st}, "AccountSid": {s.cfg.AccountSID}}
			if _, err := s.post(context.Background(), callbackURL, form); err != nil {
				slog.Error("mock carrier callback failed", "sid", sid, "status", st, "err", err)
			}
		}
	}()
}

func (s *server) setStatus(sid, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[sid]; ok {
		m.Status = status
	}
}

// post sends a form signed with the auth token, as Twilio signs webhooks.
func (s *server) post(ctx context.Context, target string, form url.Values) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", twilio.Sign(s.cfg.AuthToken, target, form))
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook %s returned %d", target, resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (s *server) authorized(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	return ok && user == s.cfg.AccountSID && pass == s.cfg.AuthToken && mux.Vars(r)["AccountSid"] == s.cfg.AccountSID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, errorBody{Code: code, Message: msg, Status: status})
}
