// Package app wires backends and servers for the binaries under cmd/.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"remindr/internal/carrier"
	"remindr/internal/config"
	"remindr/internal/providers/twilio"
	"remindr/internal/quota"
	"remindr/internal/store"
	"remindr/internal/store/memory"
	"remindr/internal/store/pg"
)

const ShutdownTimeout = 10 * time.Second

// OpenStore returns the configured backend and its close func.
func OpenStore(ctx context.Context, c config.Common, db config.DB) (store.Store, func(), error) {
	switch c.Store {
	case config.BackendMemory:
		slog.Warn("using in-memory store; state is lost on exit")
		return memory.New(), func() {}, nil
	case config.BackendPostgres:
		pool, err := pg.NewPool(ctx, db.DBDSN, db.PoolOptions())
		if err != nil {
			return nil, nil, err
		}
		return pg.New(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE %q", c.Store)
}

// OpenQuota returns the shared quota counter. Without redis the counter
// lives in the main store.
func OpenQuota(ctx context.Context, q config.Quota, st store.Store) (quota.Counter, func(context.Context) error, func(), error) {
	if q.QuotaBackend != config.BackendRedis {
		return st, st.Ping, func() {}, nil
	}
	client, err := quota.NewRedisClient(ctx, q.RedisOptions())
	if err != nil {
		return nil, nil, nil, err
	}
	rc := &quota.RedisCounter{Client: client, Prefix: q.RedisPrefix}
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return rc, ping, func() { _ = client.Close() }, nil
}

// TwilioClient builds the raw Twilio client.
func TwilioClient(t config.Twilio) *twilio.Client {
	return &twilio.Client{
		AccountSID:          t.TwilioAccountSID,
		AuthToken:           t.TwilioAuthToken,
		HTTP:                &http.Client{Timeout: t.TwilioSendTimeout + time.Second},
		MessagingServiceSID: t.TwilioMessagingServiceSID,
		FromNumber:          t.TwilioFromNumber,
		BaseURL:             t.TwilioBaseURL,
		StatusCallbackURL:   t.TwilioStatusCallbackURL,
	}
}

// Gateway wraps the Twilio client with the per-pod limiter and breaker.
func Gateway(t config.Twilio) carrier.Gateway {
	return &carrier.Resilient{
		Next:    TwilioClient(t),
		Limiter: rate.NewLimiter(rate.Limit(t.TwilioRPSPerPod), t.TwilioBurst),
		Breaker: carrier.NewBreaker(carrier.BreakerSettings{
			Name:                "twilio",
			MaxRequests:         3,
			OpenTimeout:         t.BreakerOpenTimeout,
			ConsecutiveFailures: t.BreakerFailures,
		}),
		Timeout: t.TwilioSendTimeout,
	}
}

// Serve starts srv in the background; the returned channel yields its
// terminal error, with http.ErrServerClosed filtered out.
func Serve(name string, srv *http.Server) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" listening", "addr", srv.Addr)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	return errCh
}

// Shutdown drains the servers within ShutdownTimeout.
func Shutdown(servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown failed", "addr", srv.Addr, "err", err)
		}
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Fatal logs and exits.
func Fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
