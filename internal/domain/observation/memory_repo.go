package observation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/saude/saude/internal/platform/apperr"
)

// MemoryRepo is an in-process Repository for tests and local runs without a
// database. GetForUpdate takes no lock; callers serialize through TxRunner.
type MemoryRepo struct {
	mu     sync.Mutex
	store  map[int64]*Observation
	nextID int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[int64]*Observation)}
}

func clone(o *Observation) *Observation {
	c := *o
	return &c
}

func (m *MemoryRepo) Create(_ context.Context, o *Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	o.ID = m.nextID
	o.Version = 1
	m.store[o.ID] = clone(o)
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id int64) (*Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("%w: observation", apperr.ErrNotFound)
	}
	return clone(o), nil
}

func (m *MemoryRepo) GetForUpdate(ctx context.Context, id int64) (*Observation, error) {
	return m.GetByID(ctx, id)
}

func (m *MemoryRepo) match(o *Observation, f Filter) bool {
	switch {
	case f.PersonID != nil && (o.PersonID == nil || *o.PersonID != *f.PersonID):
		return false
	case f.ProviderID != nil && (o.ProviderID == nil || *o.ProviderID != *f.ProviderID):
		return false
	case f.ConceptID != 0 && o.ConceptID != f.ConceptID:
		return false
	case f.ValueConceptID != nil && (o.ValueAsConceptID == nil || *o.ValueAsConceptID != *f.ValueConceptID):
		return false
	case f.SharedOnly && !o.Shared():
		return false
	case f.Since != nil && o.Date.Before(*f.Since):
		return false
	case f.Until != nil && o.Date.After(*f.Until):
		return false
	}
	return true
}

func (m *MemoryRepo) List(_ context.Context, f Filter) ([]*Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Observation
	for _, o := range m.store {
		if m.match(o, f) {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID > out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryRepo) Count(ctx context.Context, f Filter) (int, error) {
	items, err := m.List(ctx, f)
	return len(items), err
}

func (m *MemoryRepo) LatestDate(ctx context.Context, f Filter) (*time.Time, error) {
	f.Limit = 1
	items, err := m.List(ctx, f)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0].Date, nil
}

func (m *MemoryRepo) UpdateValue(_ context.Context, o *Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[o.ID]
	if !ok {
		return fmt.Errorf("%w: observation", apperr.ErrNotFound)
	}
	o.Version = cur.Version + 1
	m.store[o.ID] = clone(o)
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return fmt.Errorf("%w: observation", apperr.ErrNotFound)
	}
	delete(m.store, id)
	return nil
}

// Len is the number of stored observations.
func (m *MemoryRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

// SetValue overwrites value_as_string directly, bypassing payload encoding.
func (m *MemoryRepo) SetValue(id int64, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.store[id]; ok {
		o.ValueAsString = &value
	}
}
