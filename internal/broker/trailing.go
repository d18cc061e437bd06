package broker

import (
	"github.com/moznion/go-optional"
	"github.com/tradecanvas/paperbroker/internal/types"
)

// Trailing reference tracking. The watermark (TrailRefPrice) is the most
// favorable price observed since the order was created or last ratcheted:
// the maximum for a sell-side trailing stop protecting a long, the minimum
// for a buy-side one protecting a short. The derived trigger level only ever
// moves in the trader's favor; losing the watermark across ticks is a
// correctness bug.

// initTrailing seeds the watermark and trigger from the last known market
// price. When no price has been observed yet, the first tick initializes the
// watermark instead.
func initTrailing(order *types.Order, lastPrice optional.Option[float64]) {
	if lastPrice.IsNone() {
		return
	}

	ratchetOrder(order, lastPrice.Unwrap())
}

// ratchetTrailing feeds a new price into the order's watermark and
// recomputes the trigger. Non-trailing orders are left untouched.
func ratchetTrailing(order *types.Order, price float64) {
	if !order.IsTrailing() || !types.IsFinite(price) || price <= 0 {
		return
	}

	ref := order.TrailRefPrice

	switch {
	case ref <= 0:
		ref = price
	case order.Side == types.OrderSideSell && price > ref:
		ref = price
	case order.Side == types.OrderSideBuy && price < ref:
		ref = price
	default:
		// Price retraced: the watermark and trigger hold.
		return
	}

	ratchetOrder(order, ref)
}

// ratchetOrder recomputes the trigger level (and, for the limit variant, the
// limit price) from the given watermark.
func ratchetOrder(order *types.Order, ref float64) {
	order.TrailRefPrice = ref

	delta := order.TrailingOffset
	if order.TrailingOffsetUnit == types.TrailingOffsetUnitPercent {
		delta = ref * order.TrailingOffset / 100
	}

	if order.Side == types.OrderSideSell {
		order.TriggerLevel = ref - delta
	} else {
		order.TriggerLevel = ref + delta
	}

	if order.Type == types.OrderTypeTrailingStopLimit {
		if order.Side == types.OrderSideSell {
			order.Price2 = order.TriggerLevel - order.LimitOffset
		} else {
			order.Price2 = order.TriggerLevel + order.LimitOffset
		}
	}
}
