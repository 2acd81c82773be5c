package carrier

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"remindr/internal/observability"
)

const DefaultTimeout = 5 * time.Second

// Resilient bounds every carrier call with a timeout, a per-pod rate limit
// and a circuit breaker. A timed-out call is reported as a transient
// failure, never as an unknown outcome.
type Resilient struct {
	Next    Gateway
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker
	Timeout time.Duration
}

type BreakerSettings struct {
	Name                string
	MaxRequests         uint32
	OpenTimeout         time.Duration
	ConsecutiveFailures uint32
}

func NewBreaker(s BreakerSettings) *gobreaker.CircuitBreaker {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 10
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= s.ConsecutiveFailures },
		// Bad numbers say nothing about carrier health.
		IsSuccessful: func(err error) bool { return err == nil || IsPermanent(err) },
	})
}

func (r *Resilient) Send(ctx context.Context, to, body string) (SendResult, error) {
	if r.Limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, r.timeout())
		err := r.Limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			observability.CarrierSend.WithLabelValues("rate_limited_local").Inc()
			return SendResult{}, &Error{Category: RateLimited, Err: err}
		}
	}

	start := time.Now()
	res, err := r.execute(ctx, func(ctx context.Context) (any, error) {
		return r.Next.Send(ctx, to, body)
	})
	observability.CarrierLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.CarrierSend.WithLabelValues(string(CategoryOf(err))).Inc()
		return SendResult{}, err
	}
	observability.CarrierSend.WithLabelValues("ok").Inc()
	return res.(SendResult), nil
}

func (r *Resilient) Status(ctx context.Context, carrierMsgID string) (string, error) {
	res, err := r.execute(ctx, func(ctx context.Context) (any, error) {
		return r.Next.Status(ctx, carrierMsgID)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (r *Resilient) execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	call := func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout())
		defer cancel()
		return fn(callCtx)
	}

	var (
		out any
		err error
	)
	if r.Breaker == nil {
		out, err = call()
	} else {
		out, err = r.Breaker.Execute(call)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &Error{Category: TransientNetwork, Code: "circuit_open", Err: err}
	}
	return out, err
}

func (r *Resilient) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}
