package broker

import (
	"sort"

	"github.com/tradecanvas/paperbroker/internal/broker/slippage"
	"github.com/tradecanvas/paperbroker/internal/logger"
	"github.com/tradecanvas/paperbroker/internal/types"
	"go.uber.org/zap"
)

// TickEvaluator scans open orders on each price tick, ratchets trailing
// trigger levels, and settles every order whose trigger condition the tick
// satisfies. At most one fill transition is applied per order per tick;
// multiple qualifying orders are settled in ascending order-id order so runs
// are reproducible.
type TickEvaluator struct {
	slip *slippage.Model
	log  *logger.Logger
}

// NewTickEvaluator creates an evaluator using the given slippage model.
func NewTickEvaluator(slip *slippage.Model, log *logger.Logger) *TickEvaluator {
	return &TickEvaluator{
		slip: slip,
		log:  log,
	}
}

// Evaluate folds one tick into the ledger: trailing watermarks first, then
// trigger evaluation and fills. Invalid ticks produce no transition.
func (e *TickEvaluator) Evaluate(l Ledger, tick types.Tick) (Ledger, []types.ExecutionEvent) {
	if !tick.Valid() {
		return l, nil
	}

	next := l.clone()

	// Ratchet every open trailing order on this symbol, fired or not.
	for i := range next.OpenOrders {
		order := &next.OpenOrders[i]
		if order.Symbol == tick.Symbol && order.IsOpen() {
			ratchetTrailing(order, tick.Price)
		}
	}

	// Collect qualifying orders, then settle in ascending id order.
	var fired []types.Order

	for _, order := range next.OpenOrders {
		if order.Symbol != tick.Symbol || !order.IsOpen() {
			continue
		}

		if triggered(order, tick.Price) {
			fired = append(fired, order)
		}
	}

	if len(fired) == 0 {
		return next, nil
	}

	sort.Slice(fired, func(i, j int) bool { return fired[i].ID < fired[j].ID })

	var events []types.ExecutionEvent

	for _, order := range fired {
		fillPrice := e.fillPrice(order, tick, next.SlippageConfig)

		fraction := 1.0
		if order.IsExit() && order.ClosePercent > 0 {
			fraction = order.ClosePercent / 100
		}

		// Stage the settle on a scratch copy so a failed fill leaves no
		// trigger event behind: the audit trail only records triggers whose
		// transition actually applied.
		candidate := next.clone()
		trigger := candidate.appendEvent(types.ExecutionEvent{
			Type:       types.EventTypeTriggerFired,
			Time:       tick.Time,
			Symbol:     order.Symbol,
			OrderID:    order.ID,
			PositionID: order.PositionID,
			Price:      tick.Price,
			Message:    string(order.Type),
		})

		// An order canceled mid-pass by an OCO sibling fill settles as a
		// no-op inside FillOrder.
		settled, fillEvents, err := candidate.FillOrder(order.ID, fillPrice, fraction, tick.Time)
		if err != nil {
			e.log.Error("failed to settle triggered order",
				zap.String("order_id", order.ID),
				zap.String("symbol", order.Symbol),
				zap.Float64("fill_price", fillPrice),
				zap.Error(err),
			)

			continue
		}

		next = settled
		events = append(events, trigger)
		events = append(events, fillEvents...)
	}

	return next, events
}

// fillPrice computes the execution price for a fired order: the configured
// limit price for limit variants (a resting limit fill takes no slippage),
// the slippage-adjusted tick price otherwise.
func (e *TickEvaluator) fillPrice(order types.Order, tick types.Tick, cfg types.SlippageConfig) float64 {
	if order.IsLimitVariant() {
		return limitPrice(order)
	}

	return e.slip.Apply(tick.Price, order.Side, order.Amount, cfg)
}

// limitPrice returns the resting price of a limit-variant order. The stop
// and trailing variants carry it in Price2; a plain limit order in Price.
func limitPrice(order types.Order) float64 {
	switch order.Type {
	case types.OrderTypeStopLossLimit, types.OrderTypeTakeProfitLimit, types.OrderTypeTrailingStopLimit:
		if order.Price2 > 0 {
			return order.Price2
		}

		return order.Price
	default:
		return order.Price
	}
}

// triggered evaluates the order's trigger condition against the tick price.
// A sell-side conditional order protects a long position, a buy-side one a
// short position.
func triggered(order types.Order, price float64) bool {
	sell := order.Side == types.OrderSideSell

	var fires bool

	switch order.Type {
	case types.OrderTypeStopLoss, types.OrderTypeStopLossLimit:
		// Fires when price crosses to the adverse side of the stop.
		if sell {
			fires = price <= order.Price
		} else {
			fires = price >= order.Price
		}
	case types.OrderTypeTakeProfit, types.OrderTypeTakeProfitLimit:
		// Fires when price crosses to the favorable side.
		if sell {
			fires = price >= order.Price
		} else {
			fires = price <= order.Price
		}
	case types.OrderTypeTrailingStop, types.OrderTypeTrailingStopLimit:
		if order.TriggerLevel <= 0 {
			return false
		}

		if sell {
			fires = price <= order.TriggerLevel
		} else {
			fires = price >= order.TriggerLevel
		}
	case types.OrderTypeLimit:
		if sell {
			fires = price >= order.Price
		} else {
			fires = price <= order.Price
		}
	case types.OrderTypeMarket:
		fires = true
	default:
		return false
	}

	if !fires {
		return false
	}

	// Limit variants additionally need the tick on the feasible side of the
	// resting limit price, otherwise the order stays open.
	if order.Type == types.OrderTypeStopLossLimit || order.Type == types.OrderTypeTakeProfitLimit || order.Type == types.OrderTypeTrailingStopLimit {
		limit := limitPrice(order)
		if sell {
			return price >= limit
		}

		return price <= limit
	}

	return true
}
