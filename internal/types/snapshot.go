package types

import "time"

// SnapshotVersion is the current persisted schema version. The persistence
// gateway treats any other version as an absent snapshot; migrations belong
// there, never in the ledger.
const SnapshotVersion = 1

// Snapshot is the full persisted account state. The ledger's transition
// functions produce new Snapshot values; the persistence gateway serializes
// them verbatim.
type Snapshot struct {
	Version         int                   `json:"version" yaml:"version"`
	Currency        string                `json:"currency" yaml:"currency"`
	Balances        map[string]float64    `json:"balances" yaml:"balances"`
	OpenOrders      []Order               `json:"openOrders" yaml:"openOrders"`
	OrderHistory    []Order               `json:"orderHistory" yaml:"orderHistory"`
	OpenPositions   []Position            `json:"openPositions" yaml:"openPositions"`
	PositionHistory []PositionHistoryItem `json:"positionHistory" yaml:"positionHistory"`
	ExecutionEvents []ExecutionEvent      `json:"executionEvents,omitempty" yaml:"executionEvents,omitempty"`
	SlippageConfig  SlippageConfig        `json:"slippageConfig" yaml:"slippageConfig"`
	CreatedAt       time.Time             `json:"createdAt" yaml:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt" yaml:"updatedAt"`
}

// NewSnapshot returns an empty account snapshot funded with initialUSD.
func NewSnapshot(initialUSD float64, now time.Time) Snapshot {
	return Snapshot{
		Version:         SnapshotVersion,
		Currency:        CurrencyUSD,
		Balances:        map[string]float64{CurrencyUSD: initialUSD},
		OpenOrders:      []Order{},
		OrderHistory:    []Order{},
		OpenPositions:   []Position{},
		PositionHistory: []PositionHistoryItem{},
		ExecutionEvents: []ExecutionEvent{},
		SlippageConfig:  DefaultSlippageConfig(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns a deep copy of the snapshot so that transition functions can
// return new values without aliasing the caller's slices and maps.
func (s Snapshot) Clone() Snapshot {
	out := s

	out.Balances = make(map[string]float64, len(s.Balances))
	for k, v := range s.Balances {
		out.Balances[k] = v
	}

	out.OpenOrders = make([]Order, len(s.OpenOrders))
	copy(out.OpenOrders, s.OpenOrders)

	out.OrderHistory = make([]Order, len(s.OrderHistory))
	copy(out.OrderHistory, s.OrderHistory)

	out.OpenPositions = make([]Position, len(s.OpenPositions))
	copy(out.OpenPositions, s.OpenPositions)

	out.PositionHistory = make([]PositionHistoryItem, len(s.PositionHistory))
	copy(out.PositionHistory, s.PositionHistory)

	out.ExecutionEvents = make([]ExecutionEvent, len(s.ExecutionEvents))
	copy(out.ExecutionEvents, s.ExecutionEvents)

	return out
}
