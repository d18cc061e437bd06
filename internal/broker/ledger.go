package broker

import (
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/tradecanvas/paperbroker/internal/types"
	"github.com/tradecanvas/paperbroker/pkg/errors"
)

// eventRetention caps the execution-event log carried inside the snapshot.
// The persistence gateway keeps the full stream in its audit table.
const eventRetention = 1000

// closeEpsilon treats residual amounts below this threshold as a full close,
// absorbing float drift from repeated fractional closes.
const closeEpsilon = 1e-12

// Ledger is the canonical account state. Transition methods are total: they
// never panic, perform no I/O, and return a new snapshot plus the events the
// transition produced. The receiver is never mutated.
type Ledger struct {
	types.Snapshot
}

// NewLedger returns an empty ledger funded with initialUSD.
func NewLedger(initialUSD float64, now time.Time) Ledger {
	return Ledger{Snapshot: types.NewSnapshot(initialUSD, now)}
}

// LedgerFromSnapshot wraps a persisted snapshot.
func LedgerFromSnapshot(s types.Snapshot) Ledger {
	return Ledger{Snapshot: s}
}

// USDBalance returns the current settlement-currency balance.
func (l Ledger) USDBalance() float64 {
	return l.Balances[types.CurrencyUSD]
}

// GetPosition looks up an open position by id.
func (l Ledger) GetPosition(positionID string) optional.Option[types.Position] {
	for _, p := range l.OpenPositions {
		if p.ID == positionID {
			return optional.Some(p)
		}
	}

	return optional.None[types.Position]()
}

// GetOrder looks up an open order by id, falling back to history.
func (l Ledger) GetOrder(orderID string) optional.Option[types.Order] {
	for _, o := range l.OpenOrders {
		if o.ID == orderID {
			return optional.Some(o)
		}
	}

	for _, o := range l.OrderHistory {
		if o.ID == orderID {
			return optional.Some(o)
		}
	}

	return optional.None[types.Order]()
}

// OpenPositionParams are the inputs for opening a position directly.
type OpenPositionParams struct {
	Symbol     string             `validate:"required"`
	Side       types.PositionSide `validate:"required,oneof=long short"`
	Amount     float64            `validate:"required"`
	EntryPrice float64            `validate:"required"`
	Leverage   float64
}

// OpenPosition debits margin (amount*entryPrice/leverage) from the USD
// balance and creates a position. An overdraw is rejected: the balance stays
// unchanged and an error event is recorded.
func (l Ledger) OpenPosition(params OpenPositionParams, now time.Time) (Ledger, types.Position, []types.ExecutionEvent, error) {
	if !types.IsFinite(params.EntryPrice) || params.EntryPrice <= 0 {
		return l, types.Position{}, nil, errors.Newf(errors.ErrCodeNonFinitePrice, "entry price %v is not a positive finite number", params.EntryPrice)
	}

	if !types.IsFinite(params.Amount) || params.Amount <= 0 {
		return l, types.Position{}, nil, errors.Newf(errors.ErrCodeNonFiniteAmount, "amount %v is not a positive finite number", params.Amount)
	}

	leverage := params.Leverage
	if leverage == 0 {
		leverage = 1
	}

	if !types.IsFinite(leverage) || leverage < 1 {
		return l, types.Position{}, nil, errors.Newf(errors.ErrCodeInvalidLeverage, "leverage %v is out of range", leverage)
	}

	margin, _ := decimal.NewFromFloat(params.Amount).
		Mul(decimal.NewFromFloat(params.EntryPrice)).
		Div(decimal.NewFromFloat(leverage)).
		Float64()

	if margin > l.USDBalance() {
		next := l.clone()
		event := next.appendEvent(types.ExecutionEvent{
			Type:    types.EventTypeError,
			Time:    now,
			Symbol:  params.Symbol,
			Message: "insufficient balance to open position",
		})

		return next, types.Position{}, []types.ExecutionEvent{event}, errors.Newf(
			errors.ErrCodeInsufficientBalance,
			"margin %.2f exceeds available balance %.2f", margin, l.USDBalance(),
		)
	}

	next := l.clone()
	next.Balances[types.CurrencyUSD] = l.USDBalance() - margin

	position := types.Position{
		ID:            uuid.New().String(),
		Symbol:        params.Symbol,
		Side:          params.Side,
		Amount:        params.Amount,
		EntryPrice:    params.EntryPrice,
		OpenedAt:      now,
		Leverage:      leverage,
		MarginUsedUSD: margin,
	}
	next.OpenPositions = append(next.OpenPositions, position)
	next.UpdatedAt = now

	event := next.appendEvent(types.ExecutionEvent{
		Type:       types.EventTypePositionOpened,
		Time:       now,
		Symbol:     params.Symbol,
		PositionID: position.ID,
		Price:      params.EntryPrice,
		Amount:     params.Amount,
	})

	return next, position, []types.ExecutionEvent{event}, nil
}

// PlaceExitOrderParams are the inputs for attaching a conditional exit order
// to an open position.
type PlaceExitOrderParams struct {
	PositionID   string          `validate:"required"`
	Type         types.OrderType `validate:"required,oneof=stop-loss stop-loss-limit take-profit take-profit-limit trailing-stop trailing-stop-limit"`
	Price        float64
	Price2       float64
	ClosePercent float64 `validate:"gte=1,lte=100"`

	TrailingOffset     float64
	TrailingOffsetUnit types.TrailingOffsetUnit
	LimitOffset        float64

	OCOGroupID string
}

// PlaceExitOrder validates the referenced position and creates a resting exit
// order. A stop or take-profit priced on the wrong side of the current market
// does not block creation; it is flagged as a validation warning because the
// UI may legitimately create contingent orders before price arrives.
func (l Ledger) PlaceExitOrder(params PlaceExitOrderParams, lastPrice optional.Option[float64], now time.Time) (Ledger, types.Order, []types.ValidationWarning, []types.ExecutionEvent, error) {
	if !types.IsFinite(params.Price) || !types.IsFinite(params.Price2) || !types.IsFinite(params.TrailingOffset) || !types.IsFinite(params.LimitOffset) {
		return l, types.Order{}, nil, nil, errors.New(errors.ErrCodeNonFinitePrice, "exit order prices must be finite")
	}

	if params.ClosePercent < 1 || params.ClosePercent > 100 {
		return l, types.Order{}, nil, nil, errors.Newf(errors.ErrCodeInvalidClosePercent, "close percent %v outside [1, 100]", params.ClosePercent)
	}

	positionOpt := l.GetPosition(params.PositionID)
	if positionOpt.IsNone() {
		return l, types.Order{}, nil, nil, errors.Newf(errors.ErrCodeUnknownPosition, "position %s does not exist", params.PositionID)
	}

	position := positionOpt.Unwrap()

	side := types.OrderSideSell
	if position.Side == types.PositionSideShort {
		side = types.OrderSideBuy
	}

	warnings := exitOrderWarnings(params, position, lastPrice)

	order := types.Order{
		ID:                 uuid.New().String(),
		Symbol:             position.Symbol,
		Side:               side,
		Type:               params.Type,
		Status:             types.OrderStatusOpen,
		Price:              params.Price,
		Price2:             params.Price2,
		Amount:             position.Amount * params.ClosePercent / 100,
		PositionID:         position.ID,
		ClosePercent:       params.ClosePercent,
		TrailingOffset:     params.TrailingOffset,
		TrailingOffsetUnit: params.TrailingOffsetUnit,
		LimitOffset:        params.LimitOffset,
		OCOGroupID:         params.OCOGroupID,
		CreatedAt:          now,
	}

	for _, w := range warnings {
		order.Warnings = append(order.Warnings, w.Message)
	}

	if order.IsTrailing() {
		initTrailing(&order, lastPrice)
	}

	next := l.clone()
	next.OpenOrders = append(next.OpenOrders, order)
	next.UpdatedAt = now

	event := next.appendEvent(types.ExecutionEvent{
		Type:       types.EventTypeOrderCreated,
		Time:       now,
		Symbol:     order.Symbol,
		OrderID:    order.ID,
		PositionID: order.PositionID,
		Price:      order.Price,
		Amount:     order.Amount,
		Message:    string(order.Type),
	})

	return next, order, warnings, []types.ExecutionEvent{event}, nil
}

// ModifyExitOrder updates the mutable fields of an open exit order in place,
// re-deriving trailing state when the offset changes.
func (l Ledger) ModifyExitOrder(orderID string, params PlaceExitOrderParams, lastPrice optional.Option[float64], now time.Time) (Ledger, []types.ValidationWarning, []types.ExecutionEvent, error) {
	if !types.IsFinite(params.Price) || !types.IsFinite(params.Price2) || !types.IsFinite(params.TrailingOffset) || !types.IsFinite(params.LimitOffset) {
		return l, nil, nil, errors.New(errors.ErrCodeNonFinitePrice, "exit order prices must be finite")
	}

	if params.ClosePercent < 1 || params.ClosePercent > 100 {
		return l, nil, nil, errors.Newf(errors.ErrCodeInvalidClosePercent, "close percent %v outside [1, 100]", params.ClosePercent)
	}

	idx := -1

	for i, o := range l.OpenOrders {
		if o.ID == orderID {
			idx = i

			break
		}
	}

	if idx < 0 {
		return l, nil, nil, errors.Newf(errors.ErrCodeUnknownOrder, "order %s is not open", orderID)
	}

	// A resting order keeps its type for life; switching semantics requires a
	// cancel and a fresh placement.
	if params.Type != l.OpenOrders[idx].Type {
		return l, nil, nil, errors.Newf(errors.ErrCodeInvalidOrderType, "cannot change order type from %s to %s", l.OpenOrders[idx].Type, params.Type)
	}

	next := l.clone()
	order := &next.OpenOrders[idx]

	positionOpt := next.GetPosition(order.PositionID)
	if positionOpt.IsNone() {
		return l, nil, nil, errors.Newf(errors.ErrCodeUnknownPosition, "position %s does not exist", order.PositionID)
	}

	position := positionOpt.Unwrap()
	warnings := exitOrderWarnings(params, position, lastPrice)

	order.Price = params.Price
	order.Price2 = params.Price2
	order.ClosePercent = params.ClosePercent
	order.Amount = position.Amount * params.ClosePercent / 100
	order.OCOGroupID = params.OCOGroupID
	order.Warnings = nil

	for _, w := range warnings {
		order.Warnings = append(order.Warnings, w.Message)
	}

	if order.IsTrailing() {
		order.TrailingOffset = params.TrailingOffset
		order.TrailingOffsetUnit = params.TrailingOffsetUnit
		order.LimitOffset = params.LimitOffset
		// A new offset re-derives the trigger from the existing watermark so
		// the ratchet is preserved.
		if order.TrailRefPrice > 0 {
			ratchetOrder(order, order.TrailRefPrice)
		} else {
			initTrailing(order, lastPrice)
		}
	}

	next.UpdatedAt = now

	event := next.appendEvent(types.ExecutionEvent{
		Type:       types.EventTypeOrderModified,
		Time:       now,
		Symbol:     order.Symbol,
		OrderID:    order.ID,
		PositionID: order.PositionID,
		Price:      order.Price,
		Amount:     order.Amount,
		Message:    string(order.Type),
	})

	return next, warnings, []types.ExecutionEvent{event}, nil
}

// CancelOrder moves an open order to history with status canceled. Canceling
// an order that is no longer open is a no-op, which gives a cancel racing an
// in-flight fill deterministic fill-wins semantics. No funds are held against
// resting conditional orders, so there is no balance effect.
func (l Ledger) CancelOrder(orderID string, now time.Time) (Ledger, []types.ExecutionEvent, error) {
	for i, o := range l.OpenOrders {
		if o.ID != orderID {
			continue
		}

		next := l.clone()
		canceled := next.OpenOrders[i]
		canceled.Status = types.OrderStatusCanceled
		canceled.FilledAt = now

		next.OpenOrders = append(next.OpenOrders[:i], next.OpenOrders[i+1:]...)
		next.OrderHistory = append([]types.Order{canceled}, next.OrderHistory...)
		next.UpdatedAt = now

		event := next.appendEvent(types.ExecutionEvent{
			Type:       types.EventTypeOrderCanceled,
			Time:       now,
			Symbol:     canceled.Symbol,
			OrderID:    canceled.ID,
			PositionID: canceled.PositionID,
		})

		return next, []types.ExecutionEvent{event}, nil
	}

	// Already filled or canceled: no-op by design.
	for _, o := range l.OrderHistory {
		if o.ID == orderID {
			return l, nil, nil
		}
	}

	return l, nil, errors.Newf(errors.ErrCodeUnknownOrder, "order %s does not exist", orderID)
}

// FillOrder settles an order at fillPrice. For an exit order the referenced
// position shrinks by fillFraction of its live amount; the margin share plus
// realized P&L is credited back to USD. For an opening order a position is
// created or grown. Re-applying an already-settled order id is a no-op.
func (l Ledger) FillOrder(orderID string, fillPrice float64, fillFraction float64, now time.Time) (Ledger, []types.ExecutionEvent, error) {
	idx := -1

	for i, o := range l.OpenOrders {
		if o.ID == orderID {
			idx = i

			break
		}
	}

	if idx < 0 {
		// Idempotence: a settled order is a no-op, an unknown one an error.
		for _, o := range l.OrderHistory {
			if o.ID == orderID {
				return l, nil, nil
			}
		}

		return l, nil, errors.Newf(errors.ErrCodeUnknownOrder, "order %s does not exist", orderID)
	}

	if !types.IsFinite(fillPrice) || fillPrice <= 0 {
		return l, nil, errors.Newf(errors.ErrCodeNonFinitePrice, "fill price %v is not a positive finite number", fillPrice)
	}

	if !types.IsFinite(fillFraction) || fillFraction <= 0 {
		return l, nil, errors.Newf(errors.ErrCodeNonFiniteAmount, "fill fraction %v is not a positive finite number", fillFraction)
	}

	if fillFraction > 1 {
		fillFraction = 1
	}

	next := l.clone()
	order := next.OpenOrders[idx]

	var events []types.ExecutionEvent

	if order.IsExit() {
		// The referenced position may already be gone, e.g. an ungrouped
		// take-profit whose sibling stop-loss closed 100%. The stale order is
		// canceled so it never rests against a dead position.
		if next.GetPosition(order.PositionID).IsNone() {
			return next.cancelStaleExit(order, idx, now)
		}

		settled, err := next.settleExit(&order, fillPrice, fillFraction, now, &events)
		if err != nil {
			return l, nil, err
		}

		next = settled
	} else {
		opened, err := next.settleOpen(&order, fillPrice, now, &events)
		if err != nil {
			return l, nil, err
		}

		next = opened
	}

	// Move the order to history as filled.
	order.Status = types.OrderStatusFilled
	order.FilledAt = now
	order.FilledPrice = fillPrice

	for i, o := range next.OpenOrders {
		if o.ID == order.ID {
			next.OpenOrders = append(next.OpenOrders[:i], next.OpenOrders[i+1:]...)

			break
		}
	}

	next.OrderHistory = append([]types.Order{order}, next.OrderHistory...)

	events = append(events, next.appendEvent(types.ExecutionEvent{
		Type:       types.EventTypeOrderFilled,
		Time:       now,
		Symbol:     order.Symbol,
		OrderID:    order.ID,
		PositionID: order.PositionID,
		Price:      fillPrice,
		Amount:     order.Amount * fillFraction,
	}))

	// Filling one member of an OCO group cancels all open siblings.
	if order.OCOGroupID != "" {
		next, events = next.cancelOCOSiblings(order, now, events)
	}

	next.UpdatedAt = now

	return next, events, nil
}

// ClosePosition settles a manual (full or partial) close at fillPrice using
// the same math as a conditional exit fill, and records a synthetic filled
// market order for the audit trail.
func (l Ledger) ClosePosition(positionID string, fraction float64, fillPrice float64, now time.Time) (Ledger, []types.ExecutionEvent, error) {
	if !types.IsFinite(fillPrice) || fillPrice <= 0 {
		return l, nil, errors.Newf(errors.ErrCodeNonFinitePrice, "close price %v is not a positive finite number", fillPrice)
	}

	if !types.IsFinite(fraction) || fraction <= 0 {
		return l, nil, errors.Newf(errors.ErrCodeNonFiniteAmount, "close fraction %v is not a positive finite number", fraction)
	}

	if fraction > 1 {
		fraction = 1
	}

	positionOpt := l.GetPosition(positionID)
	if positionOpt.IsNone() {
		return l, nil, errors.Newf(errors.ErrCodeUnknownPosition, "position %s does not exist", positionID)
	}

	position := positionOpt.Unwrap()

	side := types.OrderSideSell
	if position.Side == types.PositionSideShort {
		side = types.OrderSideBuy
	}

	order := types.Order{
		ID:           uuid.New().String(),
		Symbol:       position.Symbol,
		Side:         side,
		Type:         types.OrderTypeMarket,
		Status:       types.OrderStatusFilled,
		Price:        fillPrice,
		Amount:       position.Amount * fraction,
		PositionID:   position.ID,
		ClosePercent: fraction * 100,
		CreatedAt:    now,
		FilledAt:     now,
		FilledPrice:  fillPrice,
	}

	next := l.clone()

	var events []types.ExecutionEvent

	settled, err := next.settleExit(&order, fillPrice, fraction, now, &events)
	if err != nil {
		return l, nil, err
	}

	next = settled
	next.OrderHistory = append([]types.Order{order}, next.OrderHistory...)
	next.UpdatedAt = now

	events = append(events, next.appendEvent(types.ExecutionEvent{
		Type:       types.EventTypeOrderFilled,
		Time:       now,
		Symbol:     order.Symbol,
		OrderID:    order.ID,
		PositionID: order.PositionID,
		Price:      fillPrice,
		Amount:     order.Amount,
		Message:    "manual close",
	}))

	return next, events, nil
}

// SetSlippageConfig replaces the account-wide slippage configuration.
func (l Ledger) SetSlippageConfig(cfg types.SlippageConfig, now time.Time) Ledger {
	next := l.clone()
	next.SlippageConfig = cfg
	next.UpdatedAt = now

	return next
}

// settleExit shrinks the position referenced by order, credits margin share
// plus realized P&L, and removes the position atomically when it reaches
// zero, appending exactly one history item in the same transition. The
// receiver must already be a private clone.
func (l Ledger) settleExit(order *types.Order, fillPrice, fillFraction float64, now time.Time, events *[]types.ExecutionEvent) (Ledger, error) {
	idx := -1

	for i, p := range l.OpenPositions {
		if p.ID == order.PositionID {
			idx = i

			break
		}
	}

	if idx < 0 {
		return l, errors.Newf(errors.ErrCodeUnknownPosition, "position %s does not exist", order.PositionID)
	}

	position := l.OpenPositions[idx]

	closedAmount := position.Amount * fillFraction
	if closedAmount > position.Amount {
		closedAmount = position.Amount
	}

	pnl := types.RealizedPnL(position.Side, position.EntryPrice, fillPrice, closedAmount)

	marginShare, _ := decimal.NewFromFloat(position.MarginUsedUSD).
		Mul(decimal.NewFromFloat(closedAmount)).
		Div(decimal.NewFromFloat(position.Amount)).
		Float64()

	// Losses are capped at the margin backing the closed amount: the credit
	// never goes negative, so the USD balance invariant holds.
	credit := marginShare + pnl
	if credit < 0 {
		credit = 0
	}

	l.Balances[types.CurrencyUSD] += credit

	exitNotional, _ := decimal.NewFromFloat(closedAmount).Mul(decimal.NewFromFloat(fillPrice)).Float64()

	position.Amount -= closedAmount
	position.MarginUsedUSD -= marginShare
	position.ClosedAmount += closedAmount
	position.ExitNotional += exitNotional
	position.RealizedPnL += pnl

	if position.Amount <= closeEpsilon || fillFraction >= 1 {
		// Full close: remove the position and write its history item in the
		// same transition.
		l.OpenPositions = append(l.OpenPositions[:idx], l.OpenPositions[idx+1:]...)

		exitPrice := fillPrice
		if position.ClosedAmount > 0 {
			exitPrice = position.ExitNotional / position.ClosedAmount
		}

		item := types.PositionHistoryItem{
			ID:           uuid.New().String(),
			PositionID:   position.ID,
			Symbol:       position.Symbol,
			Side:         position.Side,
			ClosedAmount: position.ClosedAmount,
			EntryPrice:   position.EntryPrice,
			ExitPrice:    exitPrice,
			RealizedPnL:  position.RealizedPnL,
			Reason:       string(order.Type),
			OpenedAt:     position.OpenedAt,
			ClosedAt:     now,
		}
		l.PositionHistory = append([]types.PositionHistoryItem{item}, l.PositionHistory...)

		*events = append(*events, l.appendEvent(types.ExecutionEvent{
			Type:       types.EventTypePositionClosed,
			Time:       now,
			Symbol:     position.Symbol,
			PositionID: position.ID,
			Price:      fillPrice,
			Amount:     closedAmount,
		}))
	} else {
		l.OpenPositions[idx] = position
	}

	return l, nil
}

// settleOpen creates or grows a position from a non-exit fill. The receiver
// must already be a private clone.
func (l Ledger) settleOpen(order *types.Order, fillPrice float64, now time.Time, events *[]types.ExecutionEvent) (Ledger, error) {
	side := types.PositionSideLong
	if order.Side == types.OrderSideSell {
		side = types.PositionSideShort
	}

	margin, _ := decimal.NewFromFloat(order.Amount).Mul(decimal.NewFromFloat(fillPrice)).Float64()
	if margin > l.USDBalance() {
		return l, errors.Newf(errors.ErrCodeInsufficientBalance, "margin %.2f exceeds available balance %.2f", margin, l.USDBalance())
	}

	l.Balances[types.CurrencyUSD] -= margin

	// Grow an existing position on the same symbol and side, averaging the
	// entry price by volume.
	for i, p := range l.OpenPositions {
		if p.Symbol != order.Symbol || p.Side != side {
			continue
		}

		totalAmount := p.Amount + order.Amount
		oldNotional := decimal.NewFromFloat(p.Amount).Mul(decimal.NewFromFloat(p.EntryPrice))
		newNotional := decimal.NewFromFloat(order.Amount).Mul(decimal.NewFromFloat(fillPrice))
		entry, _ := oldNotional.Add(newNotional).Div(decimal.NewFromFloat(totalAmount)).Float64()

		p.Amount = totalAmount
		p.EntryPrice = entry
		p.MarginUsedUSD += margin
		l.OpenPositions[i] = p

		*events = append(*events, l.appendEvent(types.ExecutionEvent{
			Type:       types.EventTypePositionOpened,
			Time:       now,
			Symbol:     p.Symbol,
			PositionID: p.ID,
			Price:      fillPrice,
			Amount:     order.Amount,
			Message:    "position grown",
		}))

		return l, nil
	}

	position := types.Position{
		ID:            uuid.New().String(),
		Symbol:        order.Symbol,
		Side:          side,
		Amount:        order.Amount,
		EntryPrice:    fillPrice,
		OpenedAt:      now,
		Leverage:      1,
		MarginUsedUSD: margin,
	}
	l.OpenPositions = append(l.OpenPositions, position)

	*events = append(*events, l.appendEvent(types.ExecutionEvent{
		Type:       types.EventTypePositionOpened,
		Time:       now,
		Symbol:     position.Symbol,
		PositionID: position.ID,
		Price:      fillPrice,
		Amount:     position.Amount,
	}))

	return l, nil
}

// cancelStaleExit moves an exit order whose position no longer exists to
// history as canceled. The receiver must already be a private clone.
func (l Ledger) cancelStaleExit(order types.Order, idx int, now time.Time) (Ledger, []types.ExecutionEvent, error) {
	order.Status = types.OrderStatusCanceled
	order.FilledAt = now

	l.OpenOrders = append(l.OpenOrders[:idx], l.OpenOrders[idx+1:]...)
	l.OrderHistory = append([]types.Order{order}, l.OrderHistory...)
	l.UpdatedAt = now

	event := l.appendEvent(types.ExecutionEvent{
		Type:       types.EventTypeOrderCanceled,
		Time:       now,
		Symbol:     order.Symbol,
		OrderID:    order.ID,
		PositionID: order.PositionID,
		Message:    "position already closed",
	})

	return l, []types.ExecutionEvent{event}, nil
}

// cancelOCOSiblings cancels every open order sharing the filled order's OCO
// group. The receiver must already be a private clone.
func (l Ledger) cancelOCOSiblings(filled types.Order, now time.Time, events []types.ExecutionEvent) (Ledger, []types.ExecutionEvent) {
	remaining := l.OpenOrders[:0]

	for _, o := range l.OpenOrders {
		if o.OCOGroupID != filled.OCOGroupID || o.ID == filled.ID {
			remaining = append(remaining, o)

			continue
		}

		o.Status = types.OrderStatusCanceled
		o.FilledAt = now
		l.OrderHistory = append([]types.Order{o}, l.OrderHistory...)

		events = append(events, l.appendEvent(types.ExecutionEvent{
			Type:       types.EventTypeOrderCanceled,
			Time:       now,
			Symbol:     o.Symbol,
			OrderID:    o.ID,
			PositionID: o.PositionID,
			Message:    "oco sibling filled",
		}))
	}

	l.OpenOrders = remaining

	return l, events
}

// appendEvent stamps and appends an execution event, truncating the retained
// log to the retention cap. Must be called on a private clone.
func (l *Ledger) appendEvent(event types.ExecutionEvent) types.ExecutionEvent {
	event.ID = uuid.New().String()

	l.ExecutionEvents = append(l.ExecutionEvents, event)
	if len(l.ExecutionEvents) > eventRetention {
		l.ExecutionEvents = l.ExecutionEvents[len(l.ExecutionEvents)-eventRetention:]
	}

	return event
}

func (l Ledger) clone() Ledger {
	return Ledger{Snapshot: l.Snapshot.Clone()}
}

// exitOrderWarnings flags stop/take-profit trigger prices resting on the
// wrong side of the current market. Creation is never blocked: the UI may
// legitimately stage contingent orders before price arrives.
func exitOrderWarnings(params PlaceExitOrderParams, position types.Position, lastPrice optional.Option[float64]) []types.ValidationWarning {
	if lastPrice.IsNone() {
		return nil
	}

	market := lastPrice.Unwrap()
	long := position.Side == types.PositionSideLong

	var warnings []types.ValidationWarning

	switch params.Type {
	case types.OrderTypeStopLoss, types.OrderTypeStopLossLimit:
		if long && params.Price > market {
			warnings = append(warnings, types.ValidationWarning{Field: "price", Message: "stop-loss above market for a long position"})
		}

		if !long && params.Price < market {
			warnings = append(warnings, types.ValidationWarning{Field: "price", Message: "stop-loss below market for a short position"})
		}
	case types.OrderTypeTakeProfit, types.OrderTypeTakeProfitLimit:
		if long && params.Price < market {
			warnings = append(warnings, types.ValidationWarning{Field: "price", Message: "take-profit below market for a long position"})
		}

		if !long && params.Price > market {
			warnings = append(warnings, types.ValidationWarning{Field: "price", Message: "take-profit above market for a short position"})
		}
	}

	return warnings
}
