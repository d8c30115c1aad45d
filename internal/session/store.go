package session

import (
	"context"
	"sync"
)

// Record binds a verified payment to the session id it was authorised under.
type Record struct {
	SessionID string `json:"session_id"`
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Signature string `json:"signature"`
	// Amount is in minor currency units.
	Amount int64 `json:"amount"`
}

// Store persists per-session authorization state keyed by session id.
//
// Move re-keys the state of one session id to another and is how id
// regeneration carries state forward. A missing source is not an error.
//
// Concurrent Save/Delete for the same id are only safe when the
// implementation (or the Guard's Locker) serialises them.
type Store interface {
	Load(ctx context.Context, id string) (Record, bool, error)
	Save(ctx context.Context, id string, rec Record) error
	Delete(ctx context.Context, id string) error
	Move(ctx context.Context, from, to string) error
}

// MemoryStore is an in-process Store for tests and single-instance development.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: map[string]Record{}}
}

func (m *MemoryStore) Load(_ context.Context, id string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	return rec, ok, nil
}

func (m *MemoryStore) Save(_ context.Context, id string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recs == nil {
		m.recs = map[string]Record{}
	}
	m.recs[id] = rec
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, id)
	return nil
}

func (m *MemoryStore) Move(_ context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[from]
	if !ok {
		return nil
	}
	delete(m.recs, from)
	if m.recs == nil {
		m.recs = map[string]Record{}
	}
	m.recs[to] = rec
	return nil
}
