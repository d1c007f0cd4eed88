package flightplan

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]FlightPlan
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[string]FlightPlan)}
}

func (s *MemoryStore) CreatePlan(_ context.Context, p FlightPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[p.ID]; ok {
		return fmt.Errorf("flight plan %s already exists", p.ID)
	}
	s.plans[p.ID] = p
	return nil
}

func (s *MemoryStore) GetPlan(_ context.Context, id string) (*FlightPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) UpdatePlan(_ context.Context, p FlightPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[p.ID]; !ok {
		return fmt.Errorf("flight plan %s does not exist", p.ID)
	}
	s.plans[p.ID] = p
	return nil
}

// ListPlans returns plans ordered by departure time. An empty registration lists every plan.
func (s *MemoryStore) ListPlans(_ context.Context, registration string) ([]FlightPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []FlightPlan
	for _, p := range s.plans {
		if registration == "" || p.Registration == registration {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.Before(out[j].DepartureTime) })
	return out, nil
}
