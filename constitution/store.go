package constitution

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrNotFound is returned by a Persister that has nothing saved yet.
var ErrNotFound = errors.New("constitution not found")

// Persister is the durable Configuration Store boundary.
type Persister interface {
	Load() (UserConstitution, error)
	Save(UserConstitution) error
}

// Store holds the active constitution. Readers get an immutable snapshot;
// Replace validates, persists, then swaps the pointer, so a reader never sees
// a half-applied update and a failed save leaves the old value in force.
type Store struct {
	cur     atomic.Pointer[UserConstitution]
	writeMu sync.Mutex
	persist Persister
}

// Open loads the saved constitution from p, falling back to Default when
// nothing has been saved.
func Open(p Persister) (*Store, error) {
	if p == nil {
		p = NewMemoryPersister()
	}

	c, err := p.Load()
	switch {
	case errors.Is(err, ErrNotFound):
		c = Default()
	case err != nil:
		return nil, fmt.Errorf("load constitution: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("load constitution: %w", err)
	}

	s := &Store{persist: p}
	s.cur.Store(&c)
	return s, nil
}

// Get returns the current constitution by value.
func (s *Store) Get() UserConstitution {
	return *s.cur.Load()
}

// Replace swaps in next after validating and persisting it.
func (s *Store) Replace(next UserConstitution) error {
	if err := next.Validate(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.persist.Save(next); err != nil {
		return fmt.Errorf("save constitution: %w", err)
	}
	s.cur.Store(&next)
	return nil
}

// MemoryPersister keeps the constitution in process memory.
type MemoryPersister struct {
	mu    sync.Mutex
	saved *UserConstitution
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Load() (UserConstitution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return UserConstitution{}, ErrNotFound
	}
	return *m.saved, nil
}

func (m *MemoryPersister) Save(c UserConstitution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = &c
	return nil
}
