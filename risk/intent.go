// Package risk decides whether a proposed trade may proceed under the user's
// constitution. Evaluation is a fixed, ordered list of rules; the first rule
// that objects decides the verdict.
package risk

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/sentinel/id"
	"github.com/rustyeddy/sentinel/market"
	"github.com/shopspring/decimal"
)

var ErrInvalidIntent = errors.New("invalid trade intent")

// RiskMode selects the notional ceiling applied to an intent.
type RiskMode string

const (
	Conservative RiskMode = "Conservative"
	Balanced     RiskMode = "Balanced"
	Aggressive   RiskMode = "Aggressive"
)

func (m RiskMode) Valid() bool {
	switch m {
	case Conservative, Balanced, Aggressive:
		return true
	}
	return false
}

// ParseRiskMode accepts the mode names case-insensitively.
func ParseRiskMode(s string) (RiskMode, error) {
	for _, m := range []RiskMode{Conservative, Balanced, Aggressive} {
		if strings.EqualFold(strings.TrimSpace(s), string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown risk mode %q", s)
}

// Ceilings maps each mode to its maximum notional.
type Ceilings map[RiskMode]decimal.Decimal

func DefaultCeilings() Ceilings {
	return Ceilings{
		Conservative: decimal.NewFromInt(20_000),
		Balanced:     decimal.NewFromInt(50_000),
		Aggressive:   decimal.NewFromInt(100_000),
	}
}

// TradeIntent is a proposed trade awaiting admission. ID is the intent's
// identity across evaluation, override and execution.
type TradeIntent struct {
	ID          string          `json:"id"`
	Ticker      string          `json:"ticker"`
	Side        market.Side     `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Mode        RiskMode        `json:"risk_mode"`
	RequestedAt time.Time       `json:"requested_at"`
}

// NewIntent builds an intent with a fresh id.
func NewIntent(ticker string, side market.Side, quantity decimal.Decimal, mode RiskMode, at time.Time) TradeIntent {
	return TradeIntent{
		ID:          id.New(),
		Ticker:      market.NormalizeTicker(ticker),
		Side:        side,
		Quantity:    quantity,
		Mode:        mode,
		RequestedAt: at,
	}
}

func (i TradeIntent) Validate() error {
	switch {
	case i.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidIntent)
	case i.Ticker == "":
		return fmt.Errorf("%w: ticker is required", ErrInvalidIntent)
	case !i.Side.Valid():
		return fmt.Errorf("%w: unknown side %q", ErrInvalidIntent, i.Side)
	case !i.Quantity.IsPositive():
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidIntent)
	case !i.Mode.Valid():
		return fmt.Errorf("%w: unknown risk mode %q", ErrInvalidIntent, i.Mode)
	}
	return nil
}

// Same reports whether o describes exactly the same trade as i.
func (i TradeIntent) Same(o TradeIntent) bool {
	return i.ID == o.ID &&
		i.Ticker == o.Ticker &&
		i.Side == o.Side &&
		i.Quantity.Equal(o.Quantity) &&
		i.Mode == o.Mode &&
		i.RequestedAt.Equal(o.RequestedAt)
}
