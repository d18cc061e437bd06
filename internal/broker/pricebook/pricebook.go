// Package pricebook tracks the latest price and a bounded recent history per
// symbol. The engine reads it for projections and manual-close fills; the UI
// reads it for charting.
package pricebook

import (
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"github.com/tradecanvas/paperbroker/internal/types"
)

const (
	// MergeWindow collapses ticks arriving within this interval of the newest
	// retained point into an in-place price update. This also absorbs
	// duplicate and slightly out-of-order timestamps from the transport.
	MergeWindow = 250 * time.Millisecond

	// MaxPoints caps the retained history per symbol; the oldest point is
	// evicted first.
	MaxPoints = 600
)

// Point is a single retained price observation.
type Point struct {
	Price float64   `json:"price" yaml:"price"`
	Time  time.Time `json:"time" yaml:"time"`
}

// Book holds per-symbol price history, newest first.
type Book struct {
	histories map[string][]Point
}

// New creates an empty Book.
func New() *Book {
	return &Book{
		histories: make(map[string][]Point),
	}
}

// Apply folds a tick into the book. Invalid ticks are ignored.
func (b *Book) Apply(tick types.Tick) {
	if !tick.Valid() {
		return
	}

	history := b.histories[tick.Symbol]

	if len(history) > 0 {
		delta := tick.Time.Sub(history[0].Time)
		if delta < 0 {
			delta = -delta
		}

		if delta < MergeWindow {
			history[0].Price = tick.Price
			if tick.Time.After(history[0].Time) {
				history[0].Time = tick.Time
			}

			return
		}
	}

	history = append([]Point{{Price: tick.Price, Time: tick.Time}}, history...)
	if len(history) > MaxPoints {
		history = history[:MaxPoints]
	}

	b.histories[tick.Symbol] = history
}

// LastPrice returns the most recent price for the symbol, if any tick has
// been observed.
func (b *Book) LastPrice(symbol string) optional.Option[float64] {
	history := b.histories[symbol]
	if len(history) == 0 {
		return optional.None[float64]()
	}

	return optional.Some(history[0].Price)
}

// History returns a copy of the retained points for the symbol, newest first.
func (b *Book) History(symbol string) []Point {
	history := b.histories[symbol]
	out := make([]Point, len(history))
	copy(out, history)

	return out
}

// Symbols lists all symbols with at least one retained point, sorted for
// deterministic iteration.
func (b *Book) Symbols() []string {
	out := make([]string, 0, len(b.histories))
	for symbol := range b.histories {
		out = append(out, symbol)
	}

	sort.Strings(out)

	return out
}
