package internal

import (
	"context"
	"sort"
	"sync"
)

var _ IncidentStore = (*MemoryStore)(nil)

// MemoryStore keeps incidents in process memory. It backs the "memory"
// store driver and the test fakes.
type MemoryStore struct {
	mu        sync.RWMutex
	incidents map[string]Incident
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{incidents: make(map[string]Incident)}
}

func (m *MemoryStore) UpsertIncidents(ctx context.Context, incidents []Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inc := range incidents {
		m.incidents[inc.ID] = inc
	}
	return nil
}

func (m *MemoryStore) FetchByIDs(ctx context.Context, ids []string) (map[string]Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := make(map[string]Incident, len(ids))
	for _, id := range ids {
		if inc, ok := m.incidents[id]; ok {
			found[id] = inc
		}
	}
	return found, nil
}

func (m *MemoryStore) FetchByStack(ctx context.Context, stack Stack) ([]Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var incidents []Incident
	for _, inc := range m.incidents {
		if inc.Stack == stack {
			incidents = append(incidents, inc)
		}
	}
	sort.Slice(incidents, func(i, j int) bool { return incidents[i].ID < incidents[j].ID })
	return incidents, nil
}

func (m *MemoryStore) CountByStack(ctx context.Context) (map[Stack]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[Stack]int)
	for _, inc := range m.incidents {
		counts[inc.Stack]++
	}
	return counts, nil
}

// Delete removes an incident; tests use it to simulate hydration drops.
func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.incidents, id)
}
