package provider

import (
	"encoding/json"
	"errors"
	"fmt"
)

const EventChargeSuccess = "charge.success"

var ErrMalformedEvent = errors.New("malformed webhook event")

type EventData struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Channel   string `json:"channel"`
	PaidAt    string `json:"paid_at"`
}

type Event struct {
	Name string    `json:"event"`
	Data EventData `json:"data"`
}

// ParseEvent decodes an authenticated webhook body.
func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Name == "" {
		return Event{}, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}
	return ev, nil
}

// Snapshot is the sanitized subset stored on the ledger transaction.
func (d EventData) Snapshot() map[string]any {
	return map[string]any{
		"status":    d.Status,
		"paid_at":   d.PaidAt,
		"channel":   d.Channel,
		"reference": d.Reference,
	}
}
