package person

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound is returned when no person carries the requested id.
var ErrNotFound = errors.New("person not found")

// Store exposes person retrieval and mutation for HTTP handlers.
type Store interface {
	List() []Person
	FindByID(id uint64) (Person, error)
	Add(name string) Person
	Delete(id uint64) (Person, error)
	Update(id uint64, name string) (Person, error)
	Len() int
}

// IDPolicy decides which id a newly added person receives.
type IDPolicy string

const (
	// IDPolicyLast uses the id of the last inserted record plus one. Deleting
	// the last record and adding again can hand out an id that is still in use
	// further up the list.
	IDPolicyLast IDPolicy = "last"
	// IDPolicyMax uses the largest id in the collection plus one.
	IDPolicyMax IDPolicy = "max"
)

// ParseIDPolicy maps a config value onto an IDPolicy. Empty selects IDPolicyLast.
func ParseIDPolicy(raw string) (IDPolicy, error) {
	switch IDPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", IDPolicyLast:
		return IDPolicyLast, nil
	case IDPolicyMax:
		return IDPolicyMax, nil
	default:
		return "", fmt.Errorf("unknown id policy %q", raw)
	}
}

// MemoryStore implements Store with an in-memory slice guarded by one mutex.
// Reads and writes are serialized alike.
type MemoryStore struct {
	mu     sync.Mutex
	items  []Person
	policy IDPolicy
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied persons.
func NewMemoryStore(items []Person, policy IDPolicy) *MemoryStore {
	if policy == "" {
		policy = IDPolicyLast
	}
	return &MemoryStore{
		items:  append([]Person(nil), items...),
		policy: policy,
	}
}

// List returns a snapshot of every person in insertion order.
func (s *MemoryStore) List() []Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Person{}, s.items...)
}

// FindByID looks up a person by identifier.
func (s *MemoryStore) FindByID(id uint64) (Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		return s.items[i], nil
	}
	return Person{}, ErrNotFound
}

// Add allocates an id and appends a new person.
func (s *MemoryStore) Add(name string) Person {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Person{ID: s.nextID(), Name: name}
	s.items = append(s.items, p)
	return p
}

// Delete removes the person with the given id, keeping the others in order,
// and returns the removed record.
func (s *MemoryStore) Delete(id uint64) (Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Person{}, ErrNotFound
	}
	removed := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)
	return removed, nil
}

// Update replaces the name of the person with the given id.
func (s *MemoryStore) Update(id uint64, name string) (Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Person{}, ErrNotFound
	}
	s.items[i].Name = name
	return s.items[i], nil
}

// Len reports how many persons are stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// indexOf must be called with mu held.
func (s *MemoryStore) indexOf(id uint64) int {
	for i, item := range s.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// nextID must be called with mu held. Both policies wrap to 0 past
// math.MaxUint64; ids are handed out one at a time from 0, so only a seeded
// collection can get there.
func (s *MemoryStore) nextID() uint64 {
	if len(s.items) == 0 {
		return 0
	}
	if s.policy == IDPolicyMax {
		var highest uint64
		for _, item := range s.items {
			if item.ID > highest {
				highest = item.ID
			}
		}
		return highest + 1
	}
	return s.items[len(s.items)-1].ID + 1
}
