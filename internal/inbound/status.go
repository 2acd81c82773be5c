package inbound

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remindr/internal/carrier"
	"remindr/internal/domain"
	"remindr/internal/observability"
	"remindr/internal/store"
)

type StatusStore interface {
	InsertDeliveryEvent(ctx context.Context, ev store.DeliveryEvent) error
	FlagUnreachableByCarrierID(ctx context.Context, carrierMsgID, reason string, now time.Time) (bool, error)
}

// StatusHandler records delivery callbacks and flags recipients whose
// messages the carrier rejected for good.
type StatusHandler struct {
	Store StatusStore
	// Categorize maps a carrier error code onto the delivery taxonomy.
	Categorize func(code string) carrier.Category
	// Gateway, when set, fills in the status of callbacks that arrive without one.
	Gateway carrier.Gateway
	Now     func() time.Time
}

func (h *StatusHandler) Handle(ctx context.Context, ev store.DeliveryEvent) error {
	if ev.CarrierMsgID == "" {
		return fmt.Errorf("%w: carrier message id", domain.ErrMissingFields)
	}
	if ev.Status == "" && h.Gateway != nil {
		st, err := h.Gateway.Status(ctx, ev.CarrierMsgID)
		if err != nil {
			return fmt.Errorf("status lookup %s: %w", ev.CarrierMsgID, err)
		}
		ev.Status = st
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = h.now()
	}

	observability.WebhookEvents.WithLabelValues("status", ev.Status).Inc()
	if err := h.Store.InsertDeliveryEvent(ctx, ev); err != nil {
		return fmt.Errorf("insert delivery event: %w", err)
	}

	if ev.Status != "failed" && ev.Status != "undelivered" {
		return nil
	}
	cat := h.category(ev.ErrorCode)
	if cat != carrier.InvalidAddress && cat != carrier.PermanentRejection {
		return nil
	}
	flagged, err := h.Store.FlagUnreachableByCarrierID(ctx, ev.CarrierMsgID, string(cat), h.now())
	if err != nil {
		return fmt.Errorf("flag unreachable for %s: %w", ev.CarrierMsgID, err)
	}
	slog.Warn("recipient flagged unreachable",
		"carrier_msg_id", ev.CarrierMsgID,
		"error_code", ev.ErrorCode,
		"category", cat,
		"flagged", flagged,
	)
	return nil
}

func (h *StatusHandler) category(code string) carrier.Category {
	if h.Categorize == nil || code == "" {
		return ""
	}
	return h.Categorize(code)
}

func (h *StatusHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
