package masterdata

import (
	"context"
	"sync"
)

// MemoryStore keeps the projection in process. It backs tests and the
// local development profile.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[Table]map[string]struct{}
}

// NewMemoryStore constructs an empty projection.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[Table]map[string]struct{})}
}

// Add inserts codes into a table.
func (m *MemoryStore) Add(table Table, codes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[table]
	if !ok {
		set = make(map[string]struct{}, len(codes))
		m.sets[table] = set
	}
	for _, code := range codes {
		set[Normalize(code)] = struct{}{}
	}
}

func (m *MemoryStore) Exists(ctx context.Context, table Table, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sets[table][Normalize(code)]
	return ok, nil
}

func (m *MemoryStore) Missing(ctx context.Context, table Table, codes []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var missing []string
	for _, code := range codes {
		if _, ok := m.sets[table][Normalize(code)]; !ok {
			missing = append(missing, code)
		}
	}
	return missing, nil
}

// Replace swaps the contents of a table.
func (m *MemoryStore) Replace(ctx context.Context, table Table, codes []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if code = Normalize(code); code != "" {
			set[code] = struct{}{}
		}
	}
	m.mu.Lock()
	m.sets[table] = set
	m.mu.Unlock()
	return nil
}
