package market

import (
	"context"
	"fmt"
	"time"
)

// Fetch asks src for a quote and gives up after timeout. The call returns
// even when src ignores ctx. Every failure is wrapped in ErrQuoteUnavailable.
func Fetch(ctx context.Context, src QuoteSource, ticker string, timeout time.Duration) (Quote, error) {
	ticker = NormalizeTicker(ticker)
	if src == nil {
		return Quote{}, fmt.Errorf("%w: %s: no quote source", ErrQuoteUnavailable, ticker)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		q   Quote
		err error
	}
	ch := make(chan result, 1)
	go func() {
		q, err := src.GetQuote(ctx, ticker)
		ch <- result{q, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return Quote{}, fmt.Errorf("%w: %s: %w", ErrQuoteUnavailable, ticker, r.err)
		}
		if err := r.q.Validate(); err != nil {
			return Quote{}, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, ticker, err)
		}
		return r.q, nil
	case <-ctx.Done():
		return Quote{}, fmt.Errorf("%w: %s: %w", ErrQuoteUnavailable, ticker, ctx.Err())
	}
}
