// Package sim is an in-process order router that fills market orders at the
// current quote.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rustyeddy/sentinel/broker"
	"github.com/rustyeddy/sentinel/id"
	"github.com/rustyeddy/sentinel/market"
	"github.com/shopspring/decimal"
)

var ErrNoPrice = errors.New("no price to fill against")

type Config struct {
	// Latency is how long each order spends in flight.
	Latency time.Duration
	// FailureRate is the probability in [0,1] that an order is rejected.
	FailureRate float64
	Now         func() time.Time
	Rand        *rand.Rand
}

type Router struct {
	mu       sync.Mutex
	quotes   market.QuoteSource
	cfg      Config
	fills    map[string]broker.OrderFill
	order    []string
	position map[string]decimal.Decimal
}

func NewRouter(quotes market.QuoteSource, cfg Config) *Router {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Router{
		quotes:   quotes,
		cfg:      cfg,
		fills:    make(map[string]broker.OrderFill),
		position: make(map[string]decimal.Decimal),
	}
}

// PlaceOrder fills req at the live quote, or at req.ReferencePrice when the
// quote source has nothing. Repeating a ClientID returns the original fill.
func (r *Router) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderFill, error) {
	if !req.Side.Valid() || !req.Quantity.IsPositive() {
		return broker.OrderFill{}, fmt.Errorf("%w: malformed order for %q", broker.ErrRejected, req.Ticker)
	}

	r.mu.Lock()
	if f, ok := r.fills[req.ClientID]; ok && req.ClientID != "" {
		r.mu.Unlock()
		return f, nil
	}
	r.mu.Unlock()

	if r.cfg.Latency > 0 {
		timer := time.NewTimer(r.cfg.Latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return broker.OrderFill{}, ctx.Err()
		}
	}

	price := req.ReferencePrice
	if r.quotes != nil {
		if q, err := r.quotes.GetQuote(ctx, req.Ticker); err == nil {
			price = q.Price
		}
	}
	if !price.IsPositive() {
		return broker.OrderFill{}, fmt.Errorf("%w: %s", ErrNoPrice, req.Ticker)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.fills[req.ClientID]; ok && req.ClientID != "" {
		return f, nil
	}
	if r.cfg.FailureRate > 0 && r.cfg.Rand.Float64() < r.cfg.FailureRate {
		return broker.OrderFill{}, fmt.Errorf("%w: simulated venue rejection", broker.ErrRejected)
	}

	fill := broker.OrderFill{
		OrderID:  id.New(),
		ClientID: req.ClientID,
		Ticker:   req.Ticker,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    price,
		FilledAt: r.cfg.Now().UTC(),
	}
	if req.ClientID != "" {
		r.fills[req.ClientID] = fill
	}
	r.order = append(r.order, fill.OrderID)

	qty := req.Quantity
	if req.Side == market.Sell {
		qty = qty.Neg()
	}
	r.position[req.Ticker] = r.position[req.Ticker].Add(qty)
	return fill, nil
}

// Position is the net filled quantity for ticker; short is negative.
func (r *Router) Position(ticker string) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position[ticker]
}

// Fills is the number of orders filled so far.
func (r *Router) Fills() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
