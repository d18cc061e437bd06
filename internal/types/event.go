package types

import "time"

type EventType string

const (
	EventTypeOrderCreated   EventType = "order_created"
	EventTypeOrderModified  EventType = "order_modified"
	EventTypeOrderFilled    EventType = "order_filled"
	EventTypeOrderCanceled  EventType = "order_canceled"
	EventTypeTriggerFired   EventType = "trigger_fired"
	EventTypePositionOpened EventType = "position_opened"
	EventTypePositionClosed EventType = "position_closed"
	EventTypeError          EventType = "error"
)

// ExecutionEvent is an append-only audit record. Events are never mutated,
// only appended and truncated by retention policy.
type ExecutionEvent struct {
	ID         string    `json:"id" yaml:"id"`
	Type       EventType `json:"type" yaml:"type"`
	Time       time.Time `json:"time" yaml:"time"`
	Symbol     string    `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	OrderID    string    `json:"orderId,omitempty" yaml:"orderId,omitempty"`
	PositionID string    `json:"positionId,omitempty" yaml:"positionId,omitempty"`
	Price      float64   `json:"price,omitempty" yaml:"price,omitempty"`
	Amount     float64   `json:"amount,omitempty" yaml:"amount,omitempty"`
	Message    string    `json:"message,omitempty" yaml:"message,omitempty"`
}

// ValidationWarning flags a suspicious but legal command input, e.g. a
// stop-loss placed on the wrong side of the current market. The order is
// still created; the UI decides how to surface the flag.
type ValidationWarning struct {
	Field   string `json:"field" yaml:"field"`
	Message string `json:"message" yaml:"message"`
}
