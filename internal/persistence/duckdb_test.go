package persistence

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/tradecanvas/paperbroker/internal/logger"
	"github.com/tradecanvas/paperbroker/internal/types"
)

type DuckDBStoreTestSuite struct {
	suite.Suite
	store *DuckDBStore
}

func TestDuckDBStoreSuite(t *testing.T) {
	suite.Run(t, new(DuckDBStoreTestSuite))
}

func (s *DuckDBStoreTestSuite) SetupTest() {
	store, err := NewDuckDBStore(":memory:", logger.NewNopLogger())
	s.Require().NoError(err)
	s.store = store
}

func (s *DuckDBStoreTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *DuckDBStoreTestSuite) TestGetAbsent() {
	payload, err := s.store.Get("missing")

	s.Require().NoError(err)
	s.True(payload.IsNone())
}

func (s *DuckDBStoreTestSuite) TestPutGetRoundTrip() {
	s.Require().NoError(s.store.Put("key-1", []byte(`{"version":1}`)))

	payload, err := s.store.Get("key-1")
	s.Require().NoError(err)
	s.Require().True(payload.IsSome())
	s.Equal(`{"version":1}`, string(payload.Unwrap()))
}

func (s *DuckDBStoreTestSuite) TestPutOverwrites() {
	s.Require().NoError(s.store.Put("key-1", []byte("first")))
	s.Require().NoError(s.store.Put("key-1", []byte("second")))

	payload, err := s.store.Get("key-1")
	s.Require().NoError(err)
	s.Require().True(payload.IsSome())
	s.Equal("second", string(payload.Unwrap()))
}

func (s *DuckDBStoreTestSuite) TestDelete() {
	s.Require().NoError(s.store.Put("key-1", []byte("payload")))
	s.Require().NoError(s.store.Delete("key-1"))

	payload, err := s.store.Get("key-1")
	s.Require().NoError(err)
	s.True(payload.IsNone())

	// Deleting an absent key is fine.
	s.Require().NoError(s.store.Delete("key-1"))
}

func (s *DuckDBStoreTestSuite) TestAppendAndCountEvents() {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	events := []types.ExecutionEvent{
		{ID: "event-1", Type: types.EventTypeOrderCreated, Time: now, Symbol: "BTCUSDT", OrderID: "order-1"},
		{ID: "event-2", Type: types.EventTypeOrderFilled, Time: now, Symbol: "BTCUSDT", OrderID: "order-1", Price: 100, Amount: 1},
	}

	s.Require().NoError(s.store.AppendEvents(events))
	s.Require().NoError(s.store.AppendEvents(nil))

	count, err := s.store.CountEvents()
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *DuckDBStoreTestSuite) TestExportEvents() {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.AppendEvents([]types.ExecutionEvent{
		{ID: "event-1", Type: types.EventTypeOrderFilled, Time: now, Symbol: "BTCUSDT", Price: 100, Amount: 1},
	}))

	dir := s.T().TempDir()

	path, err := s.store.ExportEvents(dir)
	s.Require().NoError(err)
	s.Equal(filepath.Join(dir, "execution_events.parquet"), path)

	info, err := os.Stat(path)
	s.Require().NoError(err)
	s.Positive(info.Size())
}

func (s *DuckDBStoreTestSuite) TestPersistsAcrossReopen() {
	path := filepath.Join(s.T().TempDir(), "broker.db")

	store, err := NewDuckDBStore(path, logger.NewNopLogger())
	s.Require().NoError(err)
	s.Require().NoError(store.Put("key-1", []byte("payload")))
	s.Require().NoError(store.Close())

	reopened, err := NewDuckDBStore(path, logger.NewNopLogger())
	s.Require().NoError(err)
	defer reopened.Close()

	payload, err := reopened.Get("key-1")
	s.Require().NoError(err)
	s.Require().True(payload.IsSome())
	s.Equal("payload", string(payload.Unwrap()))
}
