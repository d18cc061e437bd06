package broker

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
	"github.com/tradecanvas/paperbroker/internal/types"
	"github.com/tradecanvas/paperbroker/pkg/errors"
)

type LedgerTestSuite struct {
	suite.Suite
	now time.Time
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}

func (s *LedgerTestSuite) SetupTest() {
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *LedgerTestSuite) openLongPosition(l Ledger, amount, entry, leverage float64) (Ledger, types.Position) {
	next, position, events, err := l.OpenPosition(OpenPositionParams{
		Symbol:     "BTCUSDT",
		Side:       types.PositionSideLong,
		Amount:     amount,
		EntryPrice: entry,
		Leverage:   leverage,
	}, s.now)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Require().Equal(types.EventTypePositionOpened, events[0].Type)

	return next, position
}

func (s *LedgerTestSuite) TestNewLedgerFundsAccount() {
	l := NewLedger(10_000, s.now)

	s.Equal(10_000.0, l.USDBalance())
	s.Equal(types.CurrencyUSD, l.Currency)
	s.Equal(types.SnapshotVersion, l.Version)
	s.Empty(l.OpenPositions)
	s.Empty(l.OpenOrders)
}

func (s *LedgerTestSuite) TestOpenPositionDebitsMargin() {
	l := NewLedger(10_000, s.now)

	next, position := s.openLongPosition(l, 2, 100, 1)

	s.Equal(9_800.0, next.USDBalance())
	s.Equal(200.0, position.MarginUsedUSD)
	s.Len(next.OpenPositions, 1)

	// The receiver is untouched.
	s.Equal(10_000.0, l.USDBalance())
	s.Empty(l.OpenPositions)
}

func (s *LedgerTestSuite) TestOpenPositionLeverageReducesMargin() {
	l := NewLedger(10_000, s.now)

	next, position := s.openLongPosition(l, 1, 100, 5)

	s.Equal(9_980.0, next.USDBalance())
	s.Equal(20.0, position.MarginUsedUSD)
	s.Equal(5.0, position.Leverage)
}

func (s *LedgerTestSuite) TestOpenPositionInsufficientBalance() {
	l := NewLedger(50, s.now)

	next, _, events, err := l.OpenPosition(OpenPositionParams{
		Symbol:     "BTCUSDT",
		Side:       types.PositionSideLong,
		Amount:     1,
		EntryPrice: 100,
		Leverage:   1,
	}, s.now)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInsufficientBalance))
	s.True(errors.IsRejection(err))

	// Balance unchanged, no position created, but the rejection is recorded.
	s.Equal(50.0, next.USDBalance())
	s.Empty(next.OpenPositions)
	s.Require().Len(events, 1)
	s.Equal(types.EventTypeError, events[0].Type)
}

func (s *LedgerTestSuite) TestOpenPositionRejectsBadInputs() {
	l := NewLedger(10_000, s.now)

	cases := []struct {
		name   string
		params OpenPositionParams
		code   errors.ErrorCode
	}{
		{
			name:   "zero price",
			params: OpenPositionParams{Symbol: "BTCUSDT", Side: types.PositionSideLong, Amount: 1, EntryPrice: 0},
			code:   errors.ErrCodeNonFinitePrice,
		},
		{
			name:   "negative amount",
			params: OpenPositionParams{Symbol: "BTCUSDT", Side: types.PositionSideLong, Amount: -1, EntryPrice: 100},
			code:   errors.ErrCodeNonFiniteAmount,
		},
		{
			name:   "fractional leverage",
			params: OpenPositionParams{Symbol: "BTCUSDT", Side: types.PositionSideLong, Amount: 1, EntryPrice: 100, Leverage: 0.5},
			code:   errors.ErrCodeInvalidLeverage,
		},
	}

	for _, tc := range cases {
		next, _, _, err := l.OpenPosition(tc.params, s.now)
		s.Require().Error(err, tc.name)
		s.True(errors.HasCode(err, tc.code), tc.name)
		s.Equal(10_000.0, next.USDBalance(), tc.name)
	}
}

func (s *LedgerTestSuite) TestPlaceExitOrderOppositeSide() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 2, 100, 1)

	next, order, warnings, events, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeStopLoss,
		Price:        90,
		ClosePercent: 100,
	}, optional.Some(100.0), s.now)

	s.Require().NoError(err)
	s.Empty(warnings)
	s.Require().Len(events, 1)
	s.Equal(types.EventTypeOrderCreated, events[0].Type)

	s.Equal(types.OrderSideSell, order.Side)
	s.Equal(types.OrderStatusOpen, order.Status)
	s.Equal(2.0, order.Amount)
	s.Equal(position.ID, order.PositionID)
	s.Len(next.OpenOrders, 1)
}

func (s *LedgerTestSuite) TestPlaceExitOrderWrongSideWarns() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 1, 100, 1)

	// A stop-loss above market for a long is suspicious but legal.
	next, order, warnings, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeStopLoss,
		Price:        120,
		ClosePercent: 100,
	}, optional.Some(100.0), s.now)

	s.Require().NoError(err)
	s.Require().Len(warnings, 1)
	s.Equal("price", warnings[0].Field)
	s.Len(order.Warnings, 1)
	s.Len(next.OpenOrders, 1)
}

func (s *LedgerTestSuite) TestPlaceExitOrderUnknownPosition() {
	l := NewLedger(10_000, s.now)

	_, _, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   "missing",
		Type:         types.OrderTypeStopLoss,
		Price:        90,
		ClosePercent: 100,
	}, optional.None[float64](), s.now)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeUnknownPosition))
}

func (s *LedgerTestSuite) TestPlaceExitOrderInvalidClosePercent() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 1, 100, 1)

	for _, pct := range []float64{0, 0.5, 101} {
		_, _, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
			PositionID:   position.ID,
			Type:         types.OrderTypeStopLoss,
			Price:        90,
			ClosePercent: pct,
		}, optional.None[float64](), s.now)

		s.Require().Error(err)
		s.True(errors.HasCode(err, errors.ErrCodeInvalidClosePercent))
	}
}

func (s *LedgerTestSuite) TestPlaceTrailingOrderSeedsWatermark() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 1, 100, 1)

	_, order, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:         position.ID,
		Type:               types.OrderTypeTrailingStop,
		ClosePercent:       100,
		TrailingOffset:     5,
		TrailingOffsetUnit: types.TrailingOffsetUnitPercent,
	}, optional.Some(100.0), s.now)

	s.Require().NoError(err)
	s.Equal(100.0, order.TrailRefPrice)
	s.Equal(95.0, order.TriggerLevel)
}

func (s *LedgerTestSuite) TestModifyExitOrder() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 2, 100, 1)

	l, order, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeStopLoss,
		Price:        90,
		ClosePercent: 100,
	}, optional.Some(100.0), s.now)
	s.Require().NoError(err)

	next, warnings, events, err := l.ModifyExitOrder(order.ID, PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeStopLoss,
		Price:        85,
		ClosePercent: 50,
	}, optional.Some(100.0), s.now)

	s.Require().NoError(err)
	s.Empty(warnings)
	s.Require().Len(events, 1)
	s.Equal(types.EventTypeOrderModified, events[0].Type)

	modified := next.GetOrder(order.ID)
	s.Require().True(modified.IsSome())
	s.Equal(85.0, modified.Unwrap().Price)
	s.Equal(50.0, modified.Unwrap().ClosePercent)
	s.Equal(1.0, modified.Unwrap().Amount)
}

func (s *LedgerTestSuite) TestModifyUnknownOrder() {
	l := NewLedger(10_000, s.now)

	_, _, _, err := l.ModifyExitOrder("missing", PlaceExitOrderParams{
		PositionID:   "p",
		Type:         types.OrderTypeStopLoss,
		Price:        90,
		ClosePercent: 100,
	}, optional.None[float64](), s.now)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeUnknownOrder))
}

func (s *LedgerTestSuite) TestModifyExitOrderRejectsTypeChange() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 1, 100, 1)

	l, order, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeStopLoss,
		Price:        90,
		ClosePercent: 100,
	}, optional.Some(100.0), s.now)
	s.Require().NoError(err)

	next, _, _, err := l.ModifyExitOrder(order.ID, PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeTakeProfit,
		Price:        120,
		ClosePercent: 100,
	}, optional.Some(100.0), s.now)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidOrderType))

	// The order is untouched.
	kept := next.GetOrder(order.ID)
	s.Require().True(kept.IsSome())
	s.Equal(types.OrderTypeStopLoss, kept.Unwrap().Type)
	s.Equal(90.0, kept.Unwrap().Price)
}

func (s *LedgerTestSuite) TestCancelOrder() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 1, 100, 1)

	l, order, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeStopLoss,
		Price:        90,
		ClosePercent: 100,
	}, optional.None[float64](), s.now)
	s.Require().NoError(err)

	next, events, err := l.CancelOrder(order.ID, s.now)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(types.EventTypeOrderCanceled, events[0].Type)

	s.Empty(next.OpenOrders)
	s.Require().Len(next.OrderHistory, 1)
	s.Equal(types.OrderStatusCanceled, next.OrderHistory[0].Status)

	// Canceling again is a no-op, not an error.
	again, events, err := next.CancelOrder(order.ID, s.now)
	s.Require().NoError(err)
	s.Empty(events)
	s.Len(again.OrderHistory, 1)
}

func (s *LedgerTestSuite) TestCancelUnknownOrder() {
	l := NewLedger(10_000, s.now)

	_, _, err := l.CancelOrder("missing", s.now)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeUnknownOrder))
}

func (s *LedgerTestSuite) TestFullCloseCreditsMarginPlusProfit() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 1, 100, 1)

	l, order, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeTakeProfit,
		Price:        110,
		ClosePercent: 100,
	}, optional.None[float64](), s.now)
	s.Require().NoError(err)

	next, events, err := l.FillOrder(order.ID, 110, 1, s.now)
	s.Require().NoError(err)

	// Unleveraged long: the credit equals amount * fill price.
	s.InDelta(10_010.0, next.USDBalance(), 1e-9)

	// Atomic full close: position gone, exactly one history item.
	s.Empty(next.OpenPositions)
	s.Require().Len(next.PositionHistory, 1)

	item := next.PositionHistory[0]
	s.Equal(position.ID, item.PositionID)
	s.InDelta(10.0, item.RealizedPnL, 1e-9)
	s.InDelta(110.0, item.ExitPrice, 1e-9)
	s.Equal(string(types.OrderTypeTakeProfit), item.Reason)

	// Order settled into history as filled.
	s.Empty(next.OpenOrders)
	s.Require().Len(next.OrderHistory, 1)
	s.Equal(types.OrderStatusFilled, next.OrderHistory[0].Status)
	s.Equal(110.0, next.OrderHistory[0].FilledPrice)

	hasClosed := false
	for _, e := range events {
		if e.Type == types.EventTypePositionClosed {
			hasClosed = true
		}
	}
	s.True(hasClosed)
}

func (s *LedgerTestSuite) TestPartialClosesAccumulateIntoOneHistoryItem() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 2, 100, 1)

	l, first, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeTakeProfit,
		Price:        110,
		ClosePercent: 50,
	}, optional.None[float64](), s.now)
	s.Require().NoError(err)

	l, _, err = l.FillOrder(first.ID, 110, 0.5, s.now)
	s.Require().NoError(err)

	// Half closed: position shrinks, no history item yet.
	s.InDelta(9_910.0, l.USDBalance(), 1e-9)
	s.Require().Len(l.OpenPositions, 1)
	s.InDelta(1.0, l.OpenPositions[0].Amount, 1e-9)
	s.InDelta(1.0, l.OpenPositions[0].ClosedAmount, 1e-9)
	s.InDelta(10.0, l.OpenPositions[0].RealizedPnL, 1e-9)
	s.Empty(l.PositionHistory)

	next, _, err := l.ClosePosition(position.ID, 1, 120, s.now)
	s.Require().NoError(err)

	s.InDelta(10_030.0, next.USDBalance(), 1e-9)
	s.Empty(next.OpenPositions)
	s.Require().Len(next.PositionHistory, 1)

	// One record with volume-weighted exit price and the cumulative P&L.
	item := next.PositionHistory[0]
	s.InDelta(2.0, item.ClosedAmount, 1e-9)
	s.InDelta(115.0, item.ExitPrice, 1e-9)
	s.InDelta(30.0, item.RealizedPnL, 1e-9)
}

func (s *LedgerTestSuite) TestLossNeverOverdrawsBalance() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 1, 100, 5)

	s.Equal(9_980.0, l.USDBalance())

	// The loss exceeds the 20 USD margin backing the position.
	next, _, err := l.ClosePosition(position.ID, 1, 50, s.now)
	s.Require().NoError(err)

	s.InDelta(9_980.0, next.USDBalance(), 1e-9)
	s.GreaterOrEqual(next.USDBalance(), 0.0)

	s.Require().Len(next.PositionHistory, 1)
	s.InDelta(-50.0, next.PositionHistory[0].RealizedPnL, 1e-9)
}

func (s *LedgerTestSuite) TestShortPositionProfitsFromDecline() {
	l := NewLedger(10_000, s.now)

	l, position, _, err := l.OpenPosition(OpenPositionParams{
		Symbol:     "BTCUSDT",
		Side:       types.PositionSideShort,
		Amount:     1,
		EntryPrice: 100,
		Leverage:   1,
	}, s.now)
	s.Require().NoError(err)
	s.Equal(9_900.0, l.USDBalance())

	next, _, err := l.ClosePosition(position.ID, 1, 80, s.now)
	s.Require().NoError(err)

	s.InDelta(10_020.0, next.USDBalance(), 1e-9)
	s.Require().Len(next.PositionHistory, 1)
	s.InDelta(20.0, next.PositionHistory[0].RealizedPnL, 1e-9)
}

func (s *LedgerTestSuite) TestFillIsIdempotent() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 1, 100, 1)

	l, order, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeStopLoss,
		Price:        90,
		ClosePercent: 100,
	}, optional.None[float64](), s.now)
	s.Require().NoError(err)

	filled, _, err := l.FillOrder(order.ID, 90, 1, s.now)
	s.Require().NoError(err)

	// Replaying the same fill changes nothing.
	again, events, err := filled.FillOrder(order.ID, 90, 1, s.now)
	s.Require().NoError(err)
	s.Empty(events)
	s.Equal(filled.USDBalance(), again.USDBalance())
	s.Len(again.OrderHistory, len(filled.OrderHistory))
	s.Len(again.PositionHistory, len(filled.PositionHistory))
}

func (s *LedgerTestSuite) TestFillUnknownOrder() {
	l := NewLedger(10_000, s.now)

	_, _, err := l.FillOrder("missing", 100, 1, s.now)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeUnknownOrder))
}

func (s *LedgerTestSuite) TestFillCancelsOCOSiblings() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 1, 100, 1)

	l, stop, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeStopLoss,
		Price:        90,
		ClosePercent: 100,
		OCOGroupID:   "bracket-1",
	}, optional.None[float64](), s.now)
	s.Require().NoError(err)

	l, profit, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeTakeProfit,
		Price:        120,
		ClosePercent: 100,
		OCOGroupID:   "bracket-1",
	}, optional.None[float64](), s.now)
	s.Require().NoError(err)

	next, _, err := l.FillOrder(profit.ID, 120, 1, s.now)
	s.Require().NoError(err)

	s.Empty(next.OpenOrders)
	s.Require().Len(next.OrderHistory, 2)

	stopAfter := next.GetOrder(stop.ID)
	s.Require().True(stopAfter.IsSome())
	s.Equal(types.OrderStatusCanceled, stopAfter.Unwrap().Status)

	profitAfter := next.GetOrder(profit.ID)
	s.Require().True(profitAfter.IsSome())
	s.Equal(types.OrderStatusFilled, profitAfter.Unwrap().Status)
}

func (s *LedgerTestSuite) TestUngroupedOrdersSurviveSiblingFill() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 2, 100, 1)

	l, stop, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeStopLoss,
		Price:        90,
		ClosePercent: 50,
	}, optional.None[float64](), s.now)
	s.Require().NoError(err)

	l, profit, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeTakeProfit,
		Price:        120,
		ClosePercent: 50,
	}, optional.None[float64](), s.now)
	s.Require().NoError(err)

	// Orders on the same position are not implicitly a bracket.
	next, _, err := l.FillOrder(profit.ID, 120, 0.5, s.now)
	s.Require().NoError(err)

	stopAfter := next.GetOrder(stop.ID)
	s.Require().True(stopAfter.IsSome())
	s.Equal(types.OrderStatusOpen, stopAfter.Unwrap().Status)
}

func (s *LedgerTestSuite) TestFillExitAgainstClosedPositionCancelsOrder() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 1, 100, 1)

	// Two full-close exits on the same position, deliberately not grouped.
	l, stop, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeStopLoss,
		Price:        90,
		ClosePercent: 100,
	}, optional.None[float64](), s.now)
	s.Require().NoError(err)

	l, profit, _, _, err := l.PlaceExitOrder(PlaceExitOrderParams{
		PositionID:   position.ID,
		Type:         types.OrderTypeTakeProfit,
		Price:        120,
		ClosePercent: 100,
	}, optional.None[float64](), s.now)
	s.Require().NoError(err)

	l, _, err = l.FillOrder(stop.ID, 90, 1, s.now)
	s.Require().NoError(err)
	s.Empty(l.OpenPositions)

	// The surviving take-profit now references a dead position. Settling it
	// cancels it instead of erroring, with no balance effect.
	next, events, err := l.FillOrder(profit.ID, 120, 1, s.now)
	s.Require().NoError(err)

	s.Equal(l.USDBalance(), next.USDBalance())
	s.Empty(next.OpenOrders)

	after := next.GetOrder(profit.ID)
	s.Require().True(after.IsSome())
	s.Equal(types.OrderStatusCanceled, after.Unwrap().Status)

	s.Require().Len(events, 1)
	s.Equal(types.EventTypeOrderCanceled, events[0].Type)
	s.Equal(profit.ID, events[0].OrderID)
}

func (s *LedgerTestSuite) restingBuyOrder(id string, amount, price float64) types.Order {
	return types.Order{
		ID:        id,
		Symbol:    "BTCUSDT",
		Side:      types.OrderSideBuy,
		Type:      types.OrderTypeLimit,
		Status:    types.OrderStatusOpen,
		Price:     price,
		Amount:    amount,
		CreatedAt: s.now,
	}
}

func (s *LedgerTestSuite) TestFillOpeningOrderCreatesPosition() {
	l := NewLedger(10_000, s.now)
	l = l.clone()
	l.OpenOrders = append(l.OpenOrders, s.restingBuyOrder("buy-1", 1, 100))

	next, events, err := l.FillOrder("buy-1", 100, 1, s.now)
	s.Require().NoError(err)

	s.InDelta(9_900.0, next.USDBalance(), 1e-9)
	s.Require().Len(next.OpenPositions, 1)

	position := next.OpenPositions[0]
	s.Equal(types.PositionSideLong, position.Side)
	s.InDelta(1.0, position.Amount, 1e-9)
	s.InDelta(100.0, position.EntryPrice, 1e-9)
	s.InDelta(100.0, position.MarginUsedUSD, 1e-9)
	s.Equal(1.0, position.Leverage)

	s.Empty(next.OpenOrders)
	s.Require().Len(next.OrderHistory, 1)
	s.Equal(types.OrderStatusFilled, next.OrderHistory[0].Status)

	s.Require().Len(events, 2)
	s.Equal(types.EventTypePositionOpened, events[0].Type)
	s.Equal(types.EventTypeOrderFilled, events[1].Type)
}

func (s *LedgerTestSuite) TestFillOpeningOrderGrowsPositionWithAveragedEntry() {
	l := NewLedger(10_000, s.now)
	l = l.clone()
	l.OpenOrders = append(l.OpenOrders, s.restingBuyOrder("buy-1", 1, 100))

	l, _, err := l.FillOrder("buy-1", 100, 1, s.now)
	s.Require().NoError(err)

	l = l.clone()
	l.OpenOrders = append(l.OpenOrders, s.restingBuyOrder("buy-2", 1, 110))

	next, events, err := l.FillOrder("buy-2", 110, 1, s.now)
	s.Require().NoError(err)

	// Same symbol and side: one position with a volume-weighted entry.
	s.InDelta(9_790.0, next.USDBalance(), 1e-9)
	s.Require().Len(next.OpenPositions, 1)

	position := next.OpenPositions[0]
	s.InDelta(2.0, position.Amount, 1e-9)
	s.InDelta(105.0, position.EntryPrice, 1e-9)
	s.InDelta(210.0, position.MarginUsedUSD, 1e-9)

	grown := false
	for _, e := range events {
		if e.Type == types.EventTypePositionOpened && e.PositionID == position.ID {
			grown = true
		}
	}
	s.True(grown)
}

func (s *LedgerTestSuite) TestFillOpeningSellOrderCreatesShort() {
	l := NewLedger(10_000, s.now)
	l = l.clone()

	order := s.restingBuyOrder("sell-1", 1, 100)
	order.Side = types.OrderSideSell
	l.OpenOrders = append(l.OpenOrders, order)

	next, _, err := l.FillOrder("sell-1", 100, 1, s.now)
	s.Require().NoError(err)

	s.Require().Len(next.OpenPositions, 1)
	s.Equal(types.PositionSideShort, next.OpenPositions[0].Side)
	s.InDelta(9_900.0, next.USDBalance(), 1e-9)
}

func (s *LedgerTestSuite) TestFillOpeningOrderInsufficientBalance() {
	l := NewLedger(50, s.now)
	l = l.clone()
	l.OpenOrders = append(l.OpenOrders, s.restingBuyOrder("buy-1", 1, 100))

	next, _, err := l.FillOrder("buy-1", 100, 1, s.now)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInsufficientBalance))

	// Nothing moved: balance intact, no position, the order still rests.
	s.Equal(50.0, next.USDBalance())
	s.Empty(next.OpenPositions)
	s.Require().Len(next.OpenOrders, 1)
	s.Equal(types.OrderStatusOpen, next.OpenOrders[0].Status)
}

func (s *LedgerTestSuite) TestManualCloseRecordsSyntheticOrder() {
	l := NewLedger(10_000, s.now)
	l, position := s.openLongPosition(l, 1, 100, 1)

	next, events, err := l.ClosePosition(position.ID, 1, 105, s.now)
	s.Require().NoError(err)
	s.NotEmpty(events)

	s.Require().Len(next.OrderHistory, 1)
	synthetic := next.OrderHistory[0]
	s.Equal(types.OrderTypeMarket, synthetic.Type)
	s.Equal(types.OrderStatusFilled, synthetic.Status)
	s.Equal(types.OrderSideSell, synthetic.Side)
	s.Equal(105.0, synthetic.FilledPrice)
}

func (s *LedgerTestSuite) TestClosePositionUnknown() {
	l := NewLedger(10_000, s.now)

	_, _, err := l.ClosePosition("missing", 1, 100, s.now)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeUnknownPosition))
}

func (s *LedgerTestSuite) TestSetSlippageConfig() {
	l := NewLedger(10_000, s.now)

	next := l.SetSlippageConfig(types.SlippageConfig{
		Enabled:    true,
		Model:      types.SlippageModelPercentage,
		PercentBps: 25,
	}, s.now)

	s.True(next.SlippageConfig.Enabled)
	s.Equal(25.0, next.SlippageConfig.PercentBps)
	s.False(l.SlippageConfig.Enabled)
}
