// Package feed connects external market-data transports to the engine: each
// feed turns its wire format into price ticks and hands them to a single
// handler, in arrival order.
package feed

import (
	"context"

	"github.com/tradecanvas/paperbroker/internal/types"
)

// Handler consumes one tick. It is called from the feed's read goroutine and
// must not block for long; the engine's OnTick satisfies this.
type Handler func(types.Tick)

// Feed streams ticks for a set of symbols until the context is canceled or
// the transport fails.
type Feed interface {
	Stream(ctx context.Context, symbols []string, handler Handler) error
}
