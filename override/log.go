package override

import (
	"fmt"
	"sync"
)

// Log is the permanent override audit trail. Entries are never removed.
type Log interface {
	Append(Record) error
	Get(token string) (Record, error)
	List() ([]Record, error)
}

type MemoryLog struct {
	mu      sync.RWMutex
	records []Record
	byToken map[string]int
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{byToken: make(map[string]int)}
}

func (m *MemoryLog) Append(r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byToken[r.Token]; dup {
		return fmt.Errorf("duplicate override token %q", r.Token)
	}
	m.byToken[r.Token] = len(m.records)
	m.records = append(m.records, r)
	return nil
}

func (m *MemoryLog) Get(token string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byToken[token]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrRecordNotFound, token)
	}
	return m.records[i], nil
}

func (m *MemoryLog) List() ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out, nil
}
