package ledger

import (
	"context"
	"sort"
	"sync"

	"expense-ledger/src/models"
)

// MemoryStore keeps entries in a map keyed by their assigned ID.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	entries map[int64]models.LedgerEntry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[int64]models.LedgerEntry)}
}

func (s *MemoryStore) Insert(_ context.Context, entry *models.LedgerEntry) error {
	if err := validate(entry); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	stored := *entry
	stored.ID = &id
	s.entries[id] = stored
	entry.ID = &id
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// ListAll returns entries ordered by ID.
func (s *MemoryStore) ListAll(_ context.Context) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.LedgerEntry, 0, len(s.entries))
	for _, e := range s.entries {
		id := *e.ID
		e.ID = &id
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].ID < *out[j].ID })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, entry models.LedgerEntry) error {
	if entry.ID == nil {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[*entry.ID]; !ok {
		return ErrNotFound
	}
	delete(s.entries, *entry.ID)
	return nil
}
