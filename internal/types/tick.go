package types

import "time"

// Tick is a single price observation delivered by an external transport.
type Tick struct {
	Symbol string    `json:"symbol" yaml:"symbol" validate:"required"`
	Price  float64   `json:"price" yaml:"price"`
	Time   time.Time `json:"time" yaml:"time"`
}

// NewTick builds a Tick from an epoch-millisecond timestamp, the wire format
// used by the feeds.
func NewTick(symbol string, price float64, epochMs int64) Tick {
	return Tick{
		Symbol: symbol,
		Price:  price,
		Time:   time.UnixMilli(epochMs).UTC(),
	}
}

// Valid reports whether the tick can be evaluated: finite positive price and
// a non-empty symbol. Invalid ticks are discarded without a transition.
func (t Tick) Valid() bool {
	return t.Symbol != "" && IsFinite(t.Price) && t.Price > 0
}
