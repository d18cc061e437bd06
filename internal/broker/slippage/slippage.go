// Package slippage simulates execution friction: every fill is moved against
// the trader by a bounded randomized fraction of the configured basis points.
package slippage

import (
	"math/rand"

	"github.com/tradecanvas/paperbroker/internal/types"
)

// Jitter bounds: the applied slippage is the nominal bps-implied magnitude
// scaled by a uniform draw from [JitterMin, JitterMax].
const (
	JitterMin = 0.8
	JitterMax = 1.2
)

// Model maps a desired execution price to a simulated fill price. Pure aside
// from the random draw; the random source is injected so runs are
// reproducible from a seed.
type Model struct {
	rng *rand.Rand
}

// New creates a Model seeded for reproducible draws.
func New(seed int64) *Model {
	return NewWithRand(rand.New(rand.NewSource(seed)))
}

// NewWithRand creates a Model using the supplied random source.
func NewWithRand(rng *rand.Rand) *Model {
	return &Model{rng: rng}
}

// Apply returns the execution price for the given desired price and order
// side under cfg.
//
// Rules:
//   - Non-finite or non-positive prices pass through unchanged.
//   - A disabled config passes the price through unchanged.
//   - Magnitude is price * bps / 10_000, scaled by a uniform draw from
//     [JitterMin, JitterMax].
//   - Buys pay more, sells receive less. Slippage never benefits the trader.
//
// quantity is accepted for future size-dependent models and currently unused.
func (m *Model) Apply(price float64, side types.OrderSide, quantity float64, cfg types.SlippageConfig) float64 {
	_ = quantity

	if !types.IsFinite(price) || price <= 0 {
		return price
	}

	if !cfg.Enabled {
		return price
	}

	bps := cfg.PercentBps
	if bps < 0 {
		bps = 0
	}

	magnitude := price * bps / 10_000
	jitter := JitterMin + (JitterMax-JitterMin)*m.rng.Float64()
	slip := magnitude * jitter

	if side == types.OrderSideBuy {
		return price + slip
	}

	return price - slip
}
