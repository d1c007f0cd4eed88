package logbook

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// HoursAdjuster applies airframe-hour deltas to the aircraft records.
type HoursAdjuster interface {
	AdjustHours(registration string, delta decimal.Decimal)
}

// MemoryStore is an in-process Store. It backs the memory deployment and the tests.
type MemoryStore struct {
	mu       sync.RWMutex
	logbooks map[string]Logbook
	byKey    map[Key]string
	entries  map[string]Entry
	seq      int64
	hours    HoursAdjuster
}

// NewMemoryStore returns an empty store. hours may be nil.
func NewMemoryStore(hours HoursAdjuster) *MemoryStore {
	return &MemoryStore{
		logbooks: make(map[string]Logbook),
		byKey:    make(map[Key]string),
		entries:  make(map[string]Entry),
		hours:    hours,
	}
}

func (s *MemoryStore) FindLogbook(_ context.Context, key Key) (*Logbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	lb := s.logbooks[id]
	return &lb, nil
}

func (s *MemoryStore) GetLogbook(_ context.Context, id string) (*Logbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lb, ok := s.logbooks[id]
	if !ok {
		return nil, nil
	}
	return &lb, nil
}

func (s *MemoryStore) ListLogbooks(_ context.Context, month, year int) ([]Logbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Logbook
	for _, lb := range s.logbooks {
		if lb.Month == month && lb.Year == year {
			out = append(out, lb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Registration < out[j].Registration })
	return out, nil
}

func (s *MemoryStore) CreateLogbook(_ context.Context, lb Logbook) (Logbook, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := lb.Key()
	if id, ok := s.byKey[key]; ok {
		return s.logbooks[id], false, nil
	}
	s.logbooks[lb.ID] = lb
	s.byKey[key] = lb.ID
	return lb, true, nil
}

func (s *MemoryStore) GetEntry(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) ListEntries(_ context.Context, logbookID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.LogbookID == logbookID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) AppendEntry(_ context.Context, m Mutation, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lb, ok := s.logbooks[m.LogbookID]
	if !ok || lb.Version != m.ExpectedVersion {
		return Entry{}, ErrStaleVersion
	}

	s.seq++
	e.Seq = s.seq
	e.LogbookID = m.LogbookID
	s.entries[e.ID] = e

	s.apply(lb, m)
	return e, nil
}

func (s *MemoryStore) DeleteEntry(_ context.Context, m Mutation, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lb, ok := s.logbooks[m.LogbookID]
	if !ok || lb.Version != m.ExpectedVersion {
		return ErrStaleVersion
	}
	e, ok := s.entries[entryID]
	if !ok || e.LogbookID != m.LogbookID {
		return ErrStaleVersion
	}

	delete(s.entries, entryID)
	s.apply(lb, m)
	return nil
}

// apply must be called with s.mu held.
func (s *MemoryStore) apply(lb Logbook, m Mutation) {
	lb.CurrentHours = m.CurrentHours
	lb.Version++
	lb.UpdatedAt = m.At
	s.logbooks[lb.ID] = lb

	if s.hours != nil && !m.Delta.IsZero() {
		s.hours.AdjustHours(m.Registration, m.Delta)
	}
}
