package types

// CurrencyUSD is the settlement currency of the simulated account.
const CurrencyUSD = "USD"

// SlippageModelPercentage is the only slippage model currently implemented.
const SlippageModelPercentage = "percentage"

// SlippageConfig controls the simulated execution friction. Global to the
// account and mutable by command.
type SlippageConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Model      string  `json:"model" yaml:"model" validate:"omitempty,oneof=percentage"`
	PercentBps float64 `json:"percentBps" yaml:"percentBps" validate:"gte=0"`
}

// DefaultSlippageConfig returns the slippage configuration applied to a fresh
// account: disabled, percentage model, zero basis points.
func DefaultSlippageConfig() SlippageConfig {
	return SlippageConfig{
		Enabled:    false,
		Model:      SlippageModelPercentage,
		PercentBps: 0,
	}
}

// AccountInfo is a read-only projection of the account for the UI.
type AccountInfo struct {
	// Currency is the settlement currency, always "USD".
	Currency string `json:"currency" yaml:"currency"`
	// Balances maps asset to amount. Balances["USD"] is never negative.
	Balances map[string]float64 `json:"balances" yaml:"balances"`
	// Equity is balance plus unrealized P&L plus margin locked in positions.
	Equity float64 `json:"equity" yaml:"equity"`
	// UnrealizedPnL is the total live profit/loss across open positions.
	UnrealizedPnL float64 `json:"unrealizedPnl" yaml:"unrealizedPnl"`
	// RealizedPnL is the total profit/loss across the position history.
	RealizedPnL float64 `json:"realizedPnl" yaml:"realizedPnl"`
	// MarginUsed is the USD amount debited for open positions.
	MarginUsed float64 `json:"marginUsed" yaml:"marginUsed"`
	// OpenPositions and OpenOrders are quick counts for display.
	OpenPositions int `json:"openPositions" yaml:"openPositions"`
	OpenOrders    int `json:"openOrders" yaml:"openOrders"`
}

// PositionProjection is an open position with its live P&L attached.
type PositionProjection struct {
	Position      Position `json:"position" yaml:"position"`
	LastPrice     float64  `json:"lastPrice" yaml:"lastPrice"`
	UnrealizedPnL float64  `json:"unrealizedPnl" yaml:"unrealizedPnl"`
	PnLPercent    float64  `json:"pnlPercent" yaml:"pnlPercent"`
}

// TrailingLevel exposes the active trigger level of a trailing order.
type TrailingLevel struct {
	OrderID       string  `json:"orderId" yaml:"orderId"`
	Symbol        string  `json:"symbol" yaml:"symbol"`
	TrailRefPrice float64 `json:"trailRefPrice" yaml:"trailRefPrice"`
	TriggerLevel  float64 `json:"triggerLevel" yaml:"triggerLevel"`
	LimitPrice    float64 `json:"limitPrice,omitempty" yaml:"limitPrice,omitempty"`
}
