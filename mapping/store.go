package mapping

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Store errors. Duplicate creates carry the conflicting key in the wrapped
// message.
var (
	ErrDuplicate = errors.New("mapping already exists")
	ErrNotFound  = errors.New("mapping not found")
)

// Store is the narrow interface over the externally-owned mapping store.
// Implementations must allow concurrent reads and enforce the uniqueness
// constraint on Key at write time.
type Store interface {
	// Create inserts a new mapping, failing with ErrDuplicate if its key is
	// already bound.
	Create(ctx context.Context, m Mapping) error
	// Put upserts: an existing mapping under the same key is replaced.
	Put(ctx context.Context, m Mapping) error
	// Delete removes the mapping under the key, ErrNotFound if absent.
	Delete(ctx context.Context, k Key) error
	// List returns all mappings for one owner and device.
	List(ctx context.Context, ownerID, deviceName string) ([]Mapping, error)
	// ListOwner returns all mappings for one owner across devices.
	ListOwner(ctx context.Context, ownerID string) ([]Mapping, error)
}

// MemStore is the in-process Store used for tests and standalone runs. The
// embedding application supplies the durable implementation.
type MemStore struct {
	mu   sync.RWMutex
	rows map[Key]Mapping
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[Key]Mapping)}
}

func (s *MemStore) Create(_ context.Context, m Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := m.Key()
	if _, exists := s.rows[key]; exists {
		return errors.Wrapf(ErrDuplicate, "%s", key)
	}
	s.rows[key] = m
	return nil
}

func (s *MemStore) Put(_ context.Context, m Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[m.Key()] = m
	return nil
}

func (s *MemStore) Delete(_ context.Context, k Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[k]; !exists {
		return errors.Wrapf(ErrNotFound, "%s", k)
	}
	delete(s.rows, k)
	return nil
}

func (s *MemStore) List(_ context.Context, ownerID, deviceName string) ([]Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Mapping
	for k, m := range s.rows {
		if k.OwnerID == ownerID && k.DeviceName == deviceName {
			out = append(out, m)
		}
	}
	sortMappings(out)
	return out, nil
}

func (s *MemStore) ListOwner(_ context.Context, ownerID string) ([]Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Mapping
	for k, m := range s.rows {
		if k.OwnerID == ownerID {
			out = append(out, m)
		}
	}
	sortMappings(out)
	return out, nil
}

func sortMappings(ms []Mapping) {
	sort.Slice(ms, func(i, j int) bool {
		a, b := ms[i].Key(), ms[j].Key()
		if a.DeviceName != b.DeviceName {
			return a.DeviceName < b.DeviceName
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.Number < b.Number
	})
}
