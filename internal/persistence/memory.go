package persistence

import (
	"sync"

	"github.com/moznion/go-optional"
	"github.com/tradecanvas/paperbroker/internal/types"
)

// MemoryStore is an in-process Store used by tests and ephemeral sessions.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	events  []types.ExecutionEvent
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]byte),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(key string) (optional.Option[[]byte], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.entries[key]
	if !ok {
		return optional.None[[]byte](), nil
	}

	out := make([]byte, len(payload))
	copy(out, payload)

	return optional.Some(out), nil
}

// Put implements Store.
func (s *MemoryStore) Put(key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(payload))
	copy(stored, payload)
	s.entries[key] = stored

	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)

	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// AppendEvents implements EventSink.
func (s *MemoryStore) AppendEvents(events []types.ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, events...)

	return nil
}

// Events returns a copy of the recorded audit trail.
func (s *MemoryStore) Events() []types.ExecutionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.ExecutionEvent, len(s.events))
	copy(out, s.events)

	return out
}
