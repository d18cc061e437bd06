// Package persistence is the durability boundary of the engine: it
// serializes ledger snapshots into a key-value store and keeps the
// execution-event audit trail. Schema versioning and any future migration
// live here, never in the ledger.
package persistence

import (
	"github.com/moznion/go-optional"
	"github.com/tradecanvas/paperbroker/internal/types"
)

// Store is a minimal durable key-value surface for snapshot blobs.
type Store interface {
	// Get returns the stored payload for key, or None when absent.
	Get(key string) (optional.Option[[]byte], error)
	// Put stores payload under key, replacing any previous value.
	Put(key string, payload []byte) error
	// Delete removes the entry for key. Deleting a missing key is a no-op.
	Delete(key string) error
	// Close releases the underlying resources.
	Close() error
}

// EventSink is implemented by stores that keep the append-only execution
// event audit trail in addition to snapshots.
type EventSink interface {
	// AppendEvents appends audit records; they are never mutated afterwards.
	AppendEvents(events []types.ExecutionEvent) error
}
