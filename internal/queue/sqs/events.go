package sqsqueue

import (
	"time"

	"remindr/internal/domain"
	"remindr/internal/store"
)

type EventKind string

const (
	KindInbound EventKind = "inbound"
	KindStatus  EventKind = "status"
)

// WebhookEvent is the queued envelope for carrier callbacks.
// Keep it small; SQS has a 256KB message size limit.
type WebhookEvent struct {
	Kind         EventKind           `json:"kind"`
	CarrierMsgID string              `json:"carrierMsgId"`
	From         string              `json:"from,omitempty"`
	Body         string              `json:"body,omitempty"`
	Attachments  []domain.Attachment `json:"attachments,omitempty"`
	Status       string              `json:"status,omitempty"`
	ErrorCode    string              `json:"errorCode,omitempty"`
	Payload      map[string][]string `json:"payload,omitempty"`
	ReceivedAt   time.Time           `json:"receivedAt"`
}

func InboundEvent(msg domain.InboundMessage) WebhookEvent {
	return WebhookEvent{
		Kind:         KindInbound,
		CarrierMsgID: msg.CarrierMsgID,
		From:         msg.From,
		Body:         msg.Body,
		Attachments:  msg.Attachments,
		ReceivedAt:   msg.ReceivedAt,
	}
}

func StatusEvent(ev store.DeliveryEvent) WebhookEvent {
	return WebhookEvent{
		Kind:         KindStatus,
		CarrierMsgID: ev.CarrierMsgID,
		Status:       ev.Status,
		ErrorCode:    ev.ErrorCode,
		Payload:      ev.Payload,
		ReceivedAt:   ev.ReceivedAt,
	}
}

func (e WebhookEvent) Inbound() domain.InboundMessage {
	return domain.InboundMessage{
		From:         e.From,
		Body:         e.Body,
		Attachments:  e.Attachments,
		CarrierMsgID: e.CarrierMsgID,
		ReceivedAt:   e.ReceivedAt,
	}
}

func (e WebhookEvent) Delivery() store.DeliveryEvent {
	return store.DeliveryEvent{
		CarrierMsgID: e.CarrierMsgID,
		Status:       e.Status,
		ErrorCode:    e.ErrorCode,
		Payload:      e.Payload,
		ReceivedAt:   e.ReceivedAt,
	}
}
