package market

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultFetchTimeout bounds a shared upstream call.
const DefaultFetchTimeout = 5 * time.Second

// QuoteCache sits in front of a slow QuoteSource. Quotes younger than maxAge
// are served from memory and concurrent misses for one ticker share a single
// upstream call. The shared call is detached from any one caller's context;
// each caller still stops waiting when its own context ends.
type QuoteCache struct {
	src     QuoteSource
	maxAge  time.Duration
	now     func() time.Time
	timeout time.Duration

	mu     sync.RWMutex
	quotes map[string]Quote
	group  singleflight.Group
}

func NewQuoteCache(src QuoteSource, maxAge time.Duration, now func() time.Time) *QuoteCache {
	if now == nil {
		now = time.Now
	}
	return &QuoteCache{
		src:     src,
		maxAge:  maxAge,
		now:     now,
		timeout: DefaultFetchTimeout,
		quotes:  make(map[string]Quote),
	}
}

// WithFetchTimeout sets the deadline of the shared upstream call.
func (c *QuoteCache) WithFetchTimeout(d time.Duration) *QuoteCache {
	if d > 0 {
		c.timeout = d
	}
	return c
}

func (c *QuoteCache) GetQuote(ctx context.Context, ticker string) (Quote, error) {
	ticker = NormalizeTicker(ticker)

	c.mu.RLock()
	q, ok := c.quotes[ticker]
	c.mu.RUnlock()
	if ok && c.maxAge > 0 && q.Fresh(c.now(), c.maxAge) {
		return q, nil
	}

	ch := c.group.DoChan(ticker, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		q, err := c.src.GetQuote(fetchCtx, ticker)
		if err != nil {
			return Quote{}, err
		}
		c.mu.Lock()
		c.quotes[ticker] = q
		c.mu.Unlock()
		return q, nil
	})

	select {
	case <-ctx.Done():
		return Quote{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Quote{}, res.Err
		}
		return res.Val.(Quote), nil
	}
}

// Invalidate drops the cached quote for ticker so the next read goes
// upstream.
func (c *QuoteCache) Invalidate(ticker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.quotes, NormalizeTicker(ticker))
}
