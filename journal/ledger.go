package journal

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const dayLayout = "2006-01-02"

// Ledger serialises appends and serves consistent reads. Entries are held in
// an append-only slice, so a reader's view of the first n entries never
// changes underneath it.
type Ledger struct {
	mu     sync.RWMutex
	trades []Trade
	ids    map[string]struct{}
	daily  map[string]decimal.Decimal
	loc    *time.Location
	store  Store
}

// NewLedger returns an in-memory ledger whose trading days are cut in loc.
func NewLedger(loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{
		ids:   make(map[string]struct{}),
		daily: make(map[string]decimal.Decimal),
		loc:   loc,
	}
}

// Open builds a ledger on top of store and replays what it already holds.
func Open(store Store, loc *time.Location) (*Ledger, error) {
	l := NewLedger(loc)
	if store == nil {
		return l, nil
	}

	existing, err := store.All()
	if err != nil {
		return nil, fmt.Errorf("replay ledger: %w", err)
	}
	for _, t := range existing {
		if _, dup := l.ids[t.ID]; dup {
			continue
		}
		l.ids[t.ID] = struct{}{}
		l.trades = append(l.trades, t)
	}
	l.store = store
	return l, nil
}

func (l *Ledger) Location() *time.Location {
	return l.loc
}

// Append records t. A repeated id is a no-op and reports false, so retried
// writes never double count.
func (l *Ledger) Append(t Trade) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.ids[t.ID]; dup {
		return false, nil
	}
	if l.store != nil {
		if _, err := l.store.Insert(t); err != nil {
			return false, fmt.Errorf("append trade %s: %w", t.ID, err)
		}
	}

	l.ids[t.ID] = struct{}{}
	l.trades = append(l.trades, t)
	clear(l.daily)
	return true, nil
}

// DailyPnL sums realised P&L of Filled entries on date's trading day.
func (l *Ledger) DailyPnL(date time.Time) decimal.Decimal {
	key := date.In(l.loc).Format(dayLayout)

	l.mu.RLock()
	v, ok := l.daily[key]
	l.mu.RUnlock()
	if ok {
		return v
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.daily[key]; ok {
		return v
	}
	v = sumDay(l.trades, key, l.loc)
	l.daily[key] = v
	return v
}

// RecentOutcomes returns up to n entries, newest first. n <= 0 returns all.
func (l *Ledger) RecentOutcomes(n int) []Trade {
	return l.Snapshot().RecentOutcomes(n)
}

// Get looks up an entry by id.
func (l *Ledger) Get(id string) (Trade, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.trades) - 1; i >= 0; i-- {
		if l.trades[i].ID == id {
			return l.trades[i], true
		}
	}
	return Trade{}, false
}

// Corrections returns the entries whose Ref is id, oldest first.
func (l *Ledger) Corrections(id string) []Trade {
	snap := l.Snapshot()
	var out []Trade
	for _, t := range snap.trades {
		if t.Ref == id {
			out = append(out, t)
		}
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Between returns entries with start <= Timestamp < end in append order.
func (l *Ledger) Between(start, end time.Time) []Trade {
	snap := l.Snapshot()
	var out []Trade
	for _, t := range snap.trades {
		if !t.Timestamp.Before(start) && t.Timestamp.Before(end) {
			out = append(out, t)
		}
	}
	return out
}

// Snapshot pins the entries appended so far. Later appends are not visible
// through it.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.trades)
	return Snapshot{trades: l.trades[:n:n], loc: l.loc}
}

func (l *Ledger) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}

// Snapshot is an immutable point-in-time View of a Ledger.
type Snapshot struct {
	trades []Trade
	loc    *time.Location
}

func (s Snapshot) DailyPnL(date time.Time) decimal.Decimal {
	return sumDay(s.trades, date.In(s.loc).Format(dayLayout), s.loc)
}

func (s Snapshot) RecentOutcomes(n int) []Trade {
	if n <= 0 || n > len(s.trades) {
		n = len(s.trades)
	}
	out := make([]Trade, 0, n)
	for i := len(s.trades) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.trades[i])
	}
	return out
}

func (s Snapshot) Len() int {
	return len(s.trades)
}

func sumDay(trades []Trade, key string, loc *time.Location) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		if !t.HasPnL() {
			continue
		}
		if t.Timestamp.In(loc).Format(dayLayout) != key {
			continue
		}
		total = total.Add(t.PnL.Decimal)
	}
	return total
}
