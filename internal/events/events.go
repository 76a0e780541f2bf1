// Package events publishes settlement outcomes to a message broker.
package events

import (
	"context"
	"encoding/json"
	"time"
)

const (
	TypeOrderPaid          = "order.paid"
	TypeOrderPaymentFailed = "order.payment_failed"
	TypeOrderRefunded      = "order.refunded"
)

type Event struct {
	Type       string    `json:"type"`
	Reference  string    `json:"reference"`
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Provider   string    `json:"provider"`
	Channel    string    `json:"channel"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
