package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents current holdings of a symbol. It is owned exclusively
// by the ledger: created by an open command, shrunk by exit fills, and moved
// to history in the same transition that brings its amount to zero.
type Position struct {
	ID         string       `json:"id" yaml:"id" validate:"required"`
	Symbol     string       `json:"symbol" yaml:"symbol" validate:"required"`
	Side       PositionSide `json:"side" yaml:"side" validate:"required,oneof=long short"`
	Amount     float64      `json:"amount" yaml:"amount" validate:"gt=0"`
	EntryPrice float64      `json:"entryPrice" yaml:"entryPrice" validate:"gt=0"`
	OpenedAt   time.Time    `json:"openedAt" yaml:"openedAt"`

	Leverage      float64 `json:"leverage,omitempty" yaml:"leverage,omitempty"`
	MarginUsedUSD float64 `json:"marginUsedUsd,omitempty" yaml:"marginUsedUsd,omitempty"`
	ReservedUSD   float64 `json:"reservedUsd,omitempty" yaml:"reservedUsd,omitempty"`

	// Cumulative partial-close accounting. ClosedAmount and ExitNotional feed
	// the volume-weighted exit price of the history item written when the
	// position reaches zero.
	ClosedAmount float64 `json:"closedAmount,omitempty" yaml:"closedAmount,omitempty"`
	ExitNotional float64 `json:"exitNotional,omitempty" yaml:"exitNotional,omitempty"`
	RealizedPnL  float64 `json:"realizedPnl,omitempty" yaml:"realizedPnl,omitempty"`
}

// Sign returns +1 for long positions and -1 for short positions.
func (p *Position) Sign() float64 {
	if p.Side == PositionSideShort {
		return -1
	}

	return 1
}

// UnrealizedPnL computes the live profit/loss of the position against the
// last traded price.
func (p *Position) UnrealizedPnL(lastPrice float64) float64 {
	if !IsFinite(lastPrice) || lastPrice <= 0 {
		return 0
	}

	diff := decimal.NewFromFloat(lastPrice).Sub(decimal.NewFromFloat(p.EntryPrice))
	if p.Side == PositionSideShort {
		diff = diff.Neg()
	}

	pnl, _ := diff.Mul(decimal.NewFromFloat(p.Amount)).Float64()

	return pnl
}

// UnrealizedPnLPercent computes the live profit/loss as a percentage of the
// entry price.
func (p *Position) UnrealizedPnLPercent(lastPrice float64) float64 {
	if !IsFinite(lastPrice) || lastPrice <= 0 || p.EntryPrice == 0 {
		return 0
	}

	diff := lastPrice - p.EntryPrice
	if p.Side == PositionSideShort {
		diff = -diff
	}

	return diff * 100 / p.EntryPrice
}

// PositionHistoryItem is the immutable record appended when a position's
// amount reaches zero (or a partial close settles).
type PositionHistoryItem struct {
	ID           string       `json:"id" yaml:"id"`
	PositionID   string       `json:"positionId" yaml:"positionId"`
	Symbol       string       `json:"symbol" yaml:"symbol"`
	Side         PositionSide `json:"side" yaml:"side"`
	ClosedAmount float64      `json:"closedAmount" yaml:"closedAmount"`
	EntryPrice   float64      `json:"entryPrice" yaml:"entryPrice"`
	ExitPrice    float64      `json:"exitPrice" yaml:"exitPrice"`
	RealizedPnL  float64      `json:"realizedPnl" yaml:"realizedPnl"`
	Reason       string       `json:"reason,omitempty" yaml:"reason,omitempty"`
	OpenedAt     time.Time    `json:"openedAt" yaml:"openedAt"`
	ClosedAt     time.Time    `json:"closedAt" yaml:"closedAt"`
}

// RealizedPnL computes sign(side) * (exit - entry) * closedAmount using
// decimal arithmetic to avoid float drift on repeated partial closes.
func RealizedPnL(side PositionSide, entryPrice, exitPrice, closedAmount float64) float64 {
	diff := decimal.NewFromFloat(exitPrice).Sub(decimal.NewFromFloat(entryPrice))
	if side == PositionSideShort {
		diff = diff.Neg()
	}

	pnl, _ := diff.Mul(decimal.NewFromFloat(closedAmount)).Float64()

	return pnl
}
