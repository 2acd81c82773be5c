// Package inbound handles replies and delivery callbacks coming back from
// the carrier.
package inbound

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remindr/internal/classify"
	"remindr/internal/domain"
	"remindr/internal/util"
)

// DefaultPendingWindow bounds how old a dispatch may be and still await a reply.
const DefaultPendingWindow = 48 * time.Hour

// Lookup resolves a sender to the reminders still waiting on an answer.
type Lookup interface {
	PendingContexts(ctx context.Context, address string, since time.Time) ([]domain.PendingContext, error)
}

// Sink acts on a verdict.
type Sink interface {
	Apply(ctx context.Context, msg domain.InboundMessage, verdict domain.ClassifiedResponse) error
}

type Processor struct {
	Lookup        Lookup
	Classifier    *classify.Classifier
	Sink          Sink
	PendingWindow time.Duration
	Now           func() time.Time
}

func (p *Processor) Handle(ctx context.Context, msg domain.InboundMessage) (domain.ClassifiedResponse, error) {
	msg.From = util.NormalizePhone(msg.From)
	if msg.From == "" {
		return domain.ClassifiedResponse{}, fmt.Errorf("%w: inbound sender", domain.ErrMissingFields)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = p.now()
	}

	pending, err := p.Lookup.PendingContexts(ctx, msg.From, msg.ReceivedAt.Add(-p.window()))
	if err != nil {
		return domain.ClassifiedResponse{}, fmt.Errorf("pending contexts for %s: %w", msg.From, err)
	}

	verdict := p.Classifier.Classify(msg, pending)
	slog.Info("inbound classified",
		"from", msg.From,
		"carrier_msg_id", msg.CarrierMsgID,
		"pending", len(pending),
		"reminder_id", verdict.ReminderID,
		"polarity", verdict.Polarity,
		"action", verdict.Action,
		"confidence", verdict.Confidence,
	)

	if p.Sink != nil {
		if err := p.Sink.Apply(ctx, msg, verdict); err != nil {
			return verdict, fmt.Errorf("apply verdict: %w", err)
		}
	}
	return verdict, nil
}

func (p *Processor) window() time.Duration {
	if p.PendingWindow > 0 {
		return p.PendingWindow
	}
	return DefaultPendingWindow
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
