package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrQuoteUnavailable wraps every failure to obtain a usable quote:
	// provider errors, timeouts, stale or malformed data.
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrQuoteNotFound    = errors.New("quote not found")
)

type Sentiment string

const (
	Bullish Sentiment = "BULLISH"
	Bearish Sentiment = "BEARISH"
	Neutral Sentiment = "NEUTRAL"
)

// ParseSentiment maps provider text onto a Sentiment. Anything unrecognised
// is NEUTRAL.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(strings.ToUpper(strings.TrimSpace(s))) {
	case Bullish:
		return Bullish
	case Bearish:
		return Bearish
	default:
		return Neutral
	}
}

// Quote is a point-in-time market observation for one ticker.
type Quote struct {
	Ticker        string          `json:"ticker"`
	Price         decimal.Decimal `json:"price"`
	ChangePercent float64         `json:"change_percent"`
	Volume        string          `json:"volume,omitempty"`
	Sentiment     Sentiment       `json:"sentiment"`
	AsOf          time.Time       `json:"as_of"`
}

// Age is how old the quote is relative to now.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.AsOf)
}

// Fresh reports whether the quote is no older than maxAge. A zero maxAge
// accepts any quote.
func (q Quote) Fresh(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return true
	}
	return !q.AsOf.IsZero() && q.Age(now) <= maxAge
}

func (q Quote) Validate() error {
	if q.Ticker == "" {
		return fmt.Errorf("quote ticker is required")
	}
	if q.Price.IsNegative() {
		return fmt.Errorf("quote price %s is negative", q.Price)
	}
	return nil
}

// QuoteSource supplies current quotes. Implementations should honour ctx
// cancellation; Fetch bounds them either way.
type QuoteSource interface {
	GetQuote(ctx context.Context, ticker string) (Quote, error)
}

// QuoteSourceFunc adapts a function to QuoteSource.
type QuoteSourceFunc func(ctx context.Context, ticker string) (Quote, error)

func (f QuoteSourceFunc) GetQuote(ctx context.Context, ticker string) (Quote, error) {
	return f(ctx, ticker)
}
