package types

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tradecanvas/paperbroker/pkg/errors"
)

type OrderSide string

type PositionSide string

type OrderType string

type OrderStatus string

type TrailingOffsetUnit string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusCanceled OrderStatus = "canceled"
)

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderTypeMarket            OrderType = "market"
	OrderTypeLimit             OrderType = "limit"
	OrderTypeStopLoss          OrderType = "stop-loss"
	OrderTypeStopLossLimit     OrderType = "stop-loss-limit"
	OrderTypeTakeProfit        OrderType = "take-profit"
	OrderTypeTakeProfitLimit   OrderType = "take-profit-limit"
	OrderTypeTrailingStop      OrderType = "trailing-stop"
	OrderTypeTrailingStopLimit OrderType = "trailing-stop-limit"
)

const (
	TrailingOffsetUnitPercent TrailingOffsetUnit = "percent"
	TrailingOffsetUnitPrice   TrailingOffsetUnit = "price"
)

// Order is a resting conditional order owned by the ledger. An order that
// references a PositionID is an exit order: it only ever reduces that
// position, by ClosePercent percent of the position's live amount at fill
// time. Lifecycle: open -> filled | canceled, exactly once.
type Order struct {
	ID     string      `json:"id" yaml:"id" validate:"required"`
	Symbol string      `json:"symbol" yaml:"symbol" validate:"required"`
	Side   OrderSide   `json:"side" yaml:"side" validate:"required,oneof=buy sell"`
	Type   OrderType   `json:"type" yaml:"type" validate:"required,oneof=market limit stop-loss stop-loss-limit take-profit take-profit-limit trailing-stop trailing-stop-limit"`
	Status OrderStatus `json:"status" yaml:"status" validate:"required,oneof=open filled canceled"`

	// Price is the trigger price for stop-loss and take-profit orders and the
	// resting price for plain limit orders.
	Price float64 `json:"price" yaml:"price"`
	// Price2 is the limit price for the *-limit variants.
	Price2 float64 `json:"price2,omitempty" yaml:"price2,omitempty"`
	Amount float64 `json:"amount" yaml:"amount" validate:"gte=0"`

	// PositionID links an exit order to the position it reduces.
	PositionID string `json:"positionId,omitempty" yaml:"positionId,omitempty"`
	// ClosePercent is applied against the position's live amount at fill time,
	// not its original amount. Valid range is [1, 100].
	ClosePercent float64 `json:"closePercent,omitempty" yaml:"closePercent,omitempty"`

	// Trailing state. TrailRefPrice is the most favorable price observed since
	// placement or the last ratchet; TriggerLevel is derived from it.
	TrailingOffset     float64            `json:"trailingOffset,omitempty" yaml:"trailingOffset,omitempty"`
	TrailingOffsetUnit TrailingOffsetUnit `json:"trailingOffsetUnit,omitempty" yaml:"trailingOffsetUnit,omitempty"`
	TrailRefPrice      float64            `json:"trailRefPrice,omitempty" yaml:"trailRefPrice,omitempty"`
	TriggerLevel       float64            `json:"triggerLevel,omitempty" yaml:"triggerLevel,omitempty"`
	// LimitOffset keeps the limit price of a trailing-stop-limit order at a
	// fixed distance from the recomputed trigger level.
	LimitOffset float64 `json:"limitOffset,omitempty" yaml:"limitOffset,omitempty"`

	// OCOGroupID groups sibling orders: filling one cancels the rest. Orders
	// on the same position are NOT implicitly grouped.
	OCOGroupID string `json:"ocoGroupId,omitempty" yaml:"ocoGroupId,omitempty"`

	// Warnings carries non-blocking validation flags, e.g. a stop-loss placed
	// on the wrong side of the market at creation time.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
	FilledAt    time.Time `json:"filledAt,omitempty" yaml:"filledAt,omitempty"`
	FilledPrice float64   `json:"filledPrice,omitempty" yaml:"filledPrice,omitempty"`
}

// IsExit reports whether the order reduces an existing position.
func (o *Order) IsExit() bool {
	return o.PositionID != ""
}

// IsTrailing reports whether the order's trigger level follows the market.
func (o *Order) IsTrailing() bool {
	return o.Type == OrderTypeTrailingStop || o.Type == OrderTypeTrailingStopLimit
}

// IsLimitVariant reports whether the order fills at a resting limit price
// instead of the slippage-adjusted market price.
func (o *Order) IsLimitVariant() bool {
	switch o.Type {
	case OrderTypeLimit, OrderTypeStopLossLimit, OrderTypeTakeProfitLimit, OrderTypeTrailingStopLimit:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the order can still fill or be canceled.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusOpen
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidCommand, "invalid order", err)
	}

	if !isFinite(o.Price) || !isFinite(o.Price2) {
		return errors.Newf(errors.ErrCodeNonFinitePrice, "order %s has a non-finite price", o.ID)
	}

	if !isFinite(o.Amount) {
		return errors.Newf(errors.ErrCodeNonFiniteAmount, "order %s has a non-finite amount", o.ID)
	}

	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return isFinite(v)
}
