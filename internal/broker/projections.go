package broker

import (
	"github.com/tradecanvas/paperbroker/internal/broker/pricebook"
	"github.com/tradecanvas/paperbroker/internal/types"
)

// Read-only projections for the UI. Each runs on the loop goroutine so it
// observes a consistent snapshot; the returned values are copies the caller
// may hold freely.

// Snapshot returns a copy of the full ledger state.
func (e *Engine) Snapshot() (types.Snapshot, error) {
	var snapshot types.Snapshot

	err := e.do(func() {
		snapshot = e.ledger.Snapshot.Clone()
	})

	return snapshot, err
}

// AccountInfo summarizes balances, margin, and P&L.
func (e *Engine) AccountInfo() (types.AccountInfo, error) {
	var info types.AccountInfo

	err := e.do(func() {
		balances := make(map[string]float64, len(e.ledger.Balances))
		for k, v := range e.ledger.Balances {
			balances[k] = v
		}

		var unrealized, marginUsed float64

		for _, p := range e.ledger.OpenPositions {
			marginUsed += p.MarginUsedUSD

			if lastPrice := e.book.LastPrice(p.Symbol); lastPrice.IsSome() {
				unrealized += p.UnrealizedPnL(lastPrice.Unwrap())
			}
		}

		var realized float64
		for _, item := range e.ledger.PositionHistory {
			realized += item.RealizedPnL
		}

		info = types.AccountInfo{
			Currency:      e.ledger.Currency,
			Balances:      balances,
			Equity:        e.ledger.USDBalance() + marginUsed + unrealized,
			UnrealizedPnL: unrealized,
			RealizedPnL:   realized,
			MarginUsed:    marginUsed,
			OpenPositions: len(e.ledger.OpenPositions),
			OpenOrders:    len(e.ledger.OpenOrders),
		}
	})

	return info, err
}

// OpenPositions returns the open positions with live P&L attached.
func (e *Engine) OpenPositions() ([]types.PositionProjection, error) {
	var out []types.PositionProjection

	err := e.do(func() {
		out = make([]types.PositionProjection, 0, len(e.ledger.OpenPositions))

		for _, p := range e.ledger.OpenPositions {
			projection := types.PositionProjection{Position: p}

			if lastPrice := e.book.LastPrice(p.Symbol); lastPrice.IsSome() {
				price := lastPrice.Unwrap()
				projection.LastPrice = price
				projection.UnrealizedPnL = p.UnrealizedPnL(price)
				projection.PnLPercent = p.UnrealizedPnLPercent(price)
			}

			out = append(out, projection)
		}
	})

	return out, err
}

// OpenOrders returns the open orders.
func (e *Engine) OpenOrders() ([]types.Order, error) {
	var out []types.Order

	err := e.do(func() {
		out = make([]types.Order, len(e.ledger.OpenOrders))
		copy(out, e.ledger.OpenOrders)
	})

	return out, err
}

// OrderHistory returns the most recent settled orders, newest first, bounded
// for display. limit <= 0 uses the configured bound.
func (e *Engine) OrderHistory(limit int) ([]types.Order, error) {
	if limit <= 0 {
		limit = e.cfg.HistoryLimit
	}

	var out []types.Order

	err := e.do(func() {
		history := e.ledger.OrderHistory
		if len(history) > limit {
			history = history[:limit]
		}

		out = make([]types.Order, len(history))
		copy(out, history)
	})

	return out, err
}

// PositionHistory returns the closed-position records, newest first.
func (e *Engine) PositionHistory() ([]types.PositionHistoryItem, error) {
	var out []types.PositionHistoryItem

	err := e.do(func() {
		out = make([]types.PositionHistoryItem, len(e.ledger.PositionHistory))
		copy(out, e.ledger.PositionHistory)
	})

	return out, err
}

// TrailingLevels exposes the active trigger levels of open trailing orders.
func (e *Engine) TrailingLevels() ([]types.TrailingLevel, error) {
	var out []types.TrailingLevel

	err := e.do(func() {
		for _, o := range e.ledger.OpenOrders {
			if !o.IsTrailing() {
				continue
			}

			level := types.TrailingLevel{
				OrderID:       o.ID,
				Symbol:        o.Symbol,
				TrailRefPrice: o.TrailRefPrice,
				TriggerLevel:  o.TriggerLevel,
			}

			if o.Type == types.OrderTypeTrailingStopLimit {
				level.LimitPrice = o.Price2
			}

			out = append(out, level)
		}
	})

	return out, err
}

// PriceHistory returns the retained tick history for a symbol, newest first.
func (e *Engine) PriceHistory(symbol string) ([]pricebook.Point, error) {
	var out []pricebook.Point

	err := e.do(func() {
		out = e.book.History(symbol)
	})

	return out, err
}
