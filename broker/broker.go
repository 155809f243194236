// Package broker is the order-routing boundary the execution pipeline talks
// to.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/sentinel/market"
	"github.com/shopspring/decimal"
)

var ErrRejected = errors.New("order rejected")

type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderFill, error)
}

// OrderRequest is a market order. ClientID is the caller's idempotency key;
// a router sees the same ClientID at most once per fill.
type OrderRequest struct {
	ClientID       string
	Ticker         string
	Side           market.Side
	Quantity       decimal.Decimal
	ReferencePrice decimal.Decimal
}

type OrderFill struct {
	OrderID  string
	ClientID string
	Ticker   string
	Side     market.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
	FilledAt time.Time
}

// Notional is quantity times fill price.
func (f OrderFill) Notional() decimal.Decimal {
	return f.Quantity.Mul(f.Price)
}
