package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	"github.com/moznion/go-optional"
	"github.com/tradecanvas/paperbroker/internal/logger"
	"github.com/tradecanvas/paperbroker/internal/types"
	"github.com/tradecanvas/paperbroker/pkg/errors"
	"go.uber.org/zap"

	_ "github.com/marcboeker/go-duckdb"
)

// DuckDBStore keeps snapshots and the execution-event audit trail in a
// DuckDB database. Pass ":memory:" as the path for an ephemeral store.
type DuckDBStore struct {
	db  *sql.DB
	log *logger.Logger
	sq  squirrel.StatementBuilderType
}

// NewDuckDBStore opens (or creates) the database at path and prepares the
// schema.
func NewDuckDBStore(path string, log *logger.Logger) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to open database", err)
	}

	store := &DuckDBStore{
		db:  db,
		log: log,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := store.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return store, nil
}

func (s *DuckDBStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			key TEXT PRIMARY KEY,
			payload TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to create snapshots table", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS execution_events (
			event_id TEXT,
			event_type TEXT,
			event_time TIMESTAMP,
			symbol TEXT,
			order_id TEXT,
			position_id TEXT,
			price DOUBLE,
			amount DOUBLE,
			message TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, "failed to create execution_events table", err)
	}

	return nil
}

// Get implements Store.
func (s *DuckDBStore) Get(key string) (optional.Option[[]byte], error) {
	query := s.sq.
		Select("payload").
		From("snapshots").
		Where(squirrel.Eq{"key": key}).
		RunWith(s.db)

	var payload string

	err := query.QueryRow().Scan(&payload)
	if err == sql.ErrNoRows {
		return optional.None[[]byte](), nil
	}

	if err != nil {
		return optional.None[[]byte](), errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to read snapshot", err)
	}

	return optional.Some([]byte(payload)), nil
}

// Put implements Store. DuckDB supports upsert via ON CONFLICT.
func (s *DuckDBStore) Put(key string, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO snapshots (key, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (key) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`,
		key, string(payload),
	)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to write snapshot", err)
	}

	return nil
}

// Delete implements Store.
func (s *DuckDBStore) Delete(key string) error {
	query := s.sq.
		Delete("snapshots").
		Where(squirrel.Eq{"key": key}).
		RunWith(s.db)

	if _, err := query.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to delete snapshot", err)
	}

	return nil
}

// Close implements Store.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

// AppendEvents implements EventSink.
func (s *DuckDBStore) AppendEvents(events []types.ExecutionEvent) error {
	if len(events) == 0 {
		return nil
	}

	insert := s.sq.
		Insert("execution_events").
		Columns("event_id", "event_type", "event_time", "symbol", "order_id", "position_id", "price", "amount", "message")

	for _, e := range events {
		insert = insert.Values(e.ID, string(e.Type), e.Time, e.Symbol, e.OrderID, e.PositionID, e.Price, e.Amount, e.Message)
	}

	if _, err := insert.RunWith(s.db).Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to append execution events", err)
	}

	return nil
}

// CountEvents returns the number of audit records, mostly for tests and
// diagnostics.
func (s *DuckDBStore) CountEvents() (int, error) {
	query := s.sq.
		Select("COUNT(*)").
		From("execution_events").
		RunWith(s.db)

	var count int
	if err := query.QueryRow().Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to count execution events", err)
	}

	return count, nil
}

// ExportEvents writes the audit trail to a Parquet file under dir.
func (s *DuckDBStore) ExportEvents(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to create export directory", err)
	}

	path := filepath.Join(dir, "execution_events.parquet")

	_, err := s.db.Exec(fmt.Sprintf(`COPY execution_events TO '%s' (FORMAT PARQUET)`, path))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to export execution events", err)
	}

	s.log.Info("exported execution events", zap.String("path", path))

	return path, nil
}
