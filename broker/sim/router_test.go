package sim

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/rustyeddy/sentinel/broker"
	"github.com/rustyeddy/sentinel/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC)

func store() *market.QuoteStore {
	qs := market.NewQuoteStore()
	qs.Set(market.Quote{Ticker: "NVDA", Price: decimal.NewFromInt(131), AsOf: now})
	return qs
}

func order(client string, side market.Side, qty int64) broker.OrderRequest {
	return broker.OrderRequest{
		ClientID:       client,
		Ticker:         "NVDA",
		Side:           side,
		Quantity:       decimal.NewFromInt(qty),
		ReferencePrice: decimal.NewFromInt(130),
	}
}

func TestFillsAtQuote(t *testing.T) {
	t.Parallel()

	r := NewRouter(store(), Config{Now: func() time.Time { return now }})
	f, err := r.PlaceOrder(context.Background(), order("I1", market.Buy, 50))
	require.NoError(t, err)

	assert.NotEmpty(t, f.OrderID)
	assert.Equal(t, "I1", f.ClientID)
	assert.True(t, decimal.NewFromInt(131).Equal(f.Price))
	assert.True(t, decimal.NewFromInt(6550).Equal(f.Notional()))
	assert.Equal(t, now, f.FilledAt)
	assert.True(t, decimal.NewFromInt(50).Equal(r.Position("NVDA")))
}

func TestFallsBackToReferencePrice(t *testing.T) {
	t.Parallel()

	r := NewRouter(market.NewQuoteStore(), Config{})
	f, err := r.PlaceOrder(context.Background(), order("I1", market.Sell, 5))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(130).Equal(f.Price))
	assert.True(t, decimal.NewFromInt(-5).Equal(r.Position("NVDA")))

	req := order("I2", market.Buy, 1)
	req.ReferencePrice = decimal.Zero
	_, err = r.PlaceOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestClientIDIsIdempotent(t *testing.T) {
	t.Parallel()

	r := NewRouter(store(), Config{})
	a, err := r.PlaceOrder(context.Background(), order("I1", market.Buy, 10))
	require.NoError(t, err)
	b, err := r.PlaceOrder(context.Background(), order("I1", market.Buy, 10))
	require.NoError(t, err)

	assert.Equal(t, a.OrderID, b.OrderID)
	assert.Equal(t, 1, r.Fills())
	assert.True(t, decimal.NewFromInt(10).Equal(r.Position("NVDA")))
}

func TestFailureInjection(t *testing.T) {
	t.Parallel()

	r := NewRouter(store(), Config{FailureRate: 1, Rand: rand.New(rand.NewPCG(1, 2))})
	_, err := r.PlaceOrder(context.Background(), order("I1", market.Buy, 1))
	assert.ErrorIs(t, err, broker.ErrRejected)
	assert.Equal(t, 0, r.Fills())
}

func TestMalformedOrder(t *testing.T) {
	t.Parallel()

	r := NewRouter(store(), Config{})
	_, err := r.PlaceOrder(context.Background(), order("I1", market.Buy, 0))
	assert.ErrorIs(t, err, broker.ErrRejected)
	_, err = r.PlaceOrder(context.Background(), order("I2", "HOLD", 1))
	assert.ErrorIs(t, err, broker.ErrRejected)
}

func TestLatencyHonoursContext(t *testing.T) {
	t.Parallel()

	r := NewRouter(store(), Config{Latency: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.PlaceOrder(ctx, order("I1", market.Buy, 1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
