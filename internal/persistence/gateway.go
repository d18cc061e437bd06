package persistence

import (
	"encoding/json"

	"github.com/moznion/go-optional"
	"github.com/tradecanvas/paperbroker/internal/logger"
	"github.com/tradecanvas/paperbroker/internal/types"
	"github.com/tradecanvas/paperbroker/pkg/errors"
	"go.uber.org/zap"
)

// DefaultSnapshotKey is the store key used when the caller does not name one.
const DefaultSnapshotKey = "paperbroker:account"

// Gateway serializes ledger snapshots to a Store. An unreadable snapshot is
// reported as absent, never as an error to propagate: callers treat None as
// "no existing account".
type Gateway struct {
	store Store
	key   string
	log   *logger.Logger
}

// NewGateway creates a Gateway writing under the given key; an empty key
// falls back to DefaultSnapshotKey.
func NewGateway(store Store, key string, log *logger.Logger) *Gateway {
	if key == "" {
		key = DefaultSnapshotKey
	}

	return &Gateway{
		store: store,
		key:   key,
		log:   log,
	}
}

// Read loads the persisted snapshot. Absent, malformed, version-mismatched,
// or balance-less records all read as None.
func (g *Gateway) Read() optional.Option[types.Snapshot] {
	payloadOpt, err := g.store.Get(g.key)
	if err != nil {
		g.log.Warn("failed to read snapshot, treating as absent", zap.Error(err))

		return optional.None[types.Snapshot]()
	}

	if payloadOpt.IsNone() {
		return optional.None[types.Snapshot]()
	}

	payload := payloadOpt.Unwrap()
	if len(payload) == 0 {
		return optional.None[types.Snapshot]()
	}

	var snapshot types.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		g.log.Warn("malformed snapshot, treating as absent", zap.Error(err))

		return optional.None[types.Snapshot]()
	}

	if snapshot.Version != types.SnapshotVersion {
		g.log.Warn("snapshot version mismatch, treating as absent",
			zap.Int("found", snapshot.Version),
			zap.Int("expected", types.SnapshotVersion),
		)

		return optional.None[types.Snapshot]()
	}

	if snapshot.Balances == nil {
		g.log.Warn("snapshot missing balances, treating as absent")

		return optional.None[types.Snapshot]()
	}

	return optional.Some(snapshot)
}

// Write persists the snapshot; nil removes the stored entry. A failed write
// is reported but must never unwind an applied ledger transition; the
// in-memory state stays authoritative until the next successful write.
func (g *Gateway) Write(snapshot *types.Snapshot) error {
	if snapshot == nil {
		if err := g.store.Delete(g.key); err != nil {
			return errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to clear snapshot", err)
		}

		return nil
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSnapshotEncode, "failed to encode snapshot", err)
	}

	if err := g.store.Put(g.key, payload); err != nil {
		return errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to store snapshot", err)
	}

	return nil
}

// RecordEvents appends audit records when the store keeps an audit trail;
// other stores drop them silently (the snapshot still carries its bounded
// event log).
func (g *Gateway) RecordEvents(events []types.ExecutionEvent) error {
	sink, ok := g.store.(EventSink)
	if !ok || len(events) == 0 {
		return nil
	}

	return sink.AppendEvents(events)
}
