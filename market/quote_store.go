package market

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// QuoteStore is an in-memory QuoteSource keyed by ticker. It backs the
// static provider and the simulated broker.
type QuoteStore struct {
	mu     sync.RWMutex
	quotes map[string]Quote

	// restamp, when set, replaces AsOf on every read so fixed prices never
	// go stale.
	restamp func() time.Time
}

func NewQuoteStore() *QuoteStore {
	return &QuoteStore{quotes: make(map[string]Quote)}
}

// NewLiveQuoteStore returns a store whose quotes are always reported as
// observed at now().
func NewLiveQuoteStore(now func() time.Time) *QuoteStore {
	qs := NewQuoteStore()
	qs.restamp = now
	return qs
}

func (qs *QuoteStore) Set(q Quote) {
	q.Ticker = NormalizeTicker(q.Ticker)
	if q.Sentiment == "" {
		q.Sentiment = Neutral
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.quotes[q.Ticker] = q
}

func (qs *QuoteStore) Get(ticker string) (Quote, error) {
	ticker = NormalizeTicker(ticker)

	qs.mu.RLock()
	defer qs.mu.RUnlock()
	q, ok := qs.quotes[ticker]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrQuoteNotFound, ticker)
	}
	if qs.restamp != nil {
		q.AsOf = qs.restamp()
	}
	return q, nil
}

func (qs *QuoteStore) GetQuote(ctx context.Context, ticker string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	return qs.Get(ticker)
}

// Tickers lists the symbols currently held.
func (qs *QuoteStore) Tickers() []string {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	out := make([]string, 0, len(qs.quotes))
	for t := range qs.quotes {
		out = append(out, t)
	}
	return out
}
