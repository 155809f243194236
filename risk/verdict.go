package risk

import (
	"fmt"
	"time"

	"github.com/rustyeddy/sentinel/market"
	"github.com/shopspring/decimal"
)

type Outcome string

const (
	Approved Outcome = "APPROVED"
	Blocked  Outcome = "BLOCKED"
	Errored  Outcome = "ERROR"
)

// ReasonCode identifies which rule produced a Blocked or Error verdict.
type ReasonCode string

const (
	DailyLossExceeded   ReasonCode = "DAILY_LOSS_EXCEEDED"
	LateNightRestricted ReasonCode = "LATE_NIGHT_RESTRICTED"
	NotionalExceeded    ReasonCode = "NOTIONAL_EXCEEDED"
	RevengeTrading      ReasonCode = "REVENGE_TRADING"
	CooldownActive      ReasonCode = "COOLDOWN_ACTIVE"
	QuoteUnavailable    ReasonCode = "QUOTE_UNAVAILABLE"
	InvalidIntent       ReasonCode = "INVALID_INTENT"
)

// Verdict is the outcome of one evaluation. It is built once and never
// modified.
type Verdict struct {
	Outcome           Outcome         `json:"outcome"`
	Reason            ReasonCode      `json:"reason,omitempty"`
	Message           string          `json:"message,omitempty"`
	EstimatedNotional decimal.Decimal `json:"estimated_notional"`
	Ceiling           decimal.Decimal `json:"ceiling"`
	Intent            TradeIntent     `json:"intent"`
	Quote             market.Quote    `json:"quote"`
	EvaluatedAt       time.Time       `json:"evaluated_at"`

	// Cause is set on Error verdicts.
	Cause error `json:"-"`
}

func (v Verdict) IsApproved() bool { return v.Outcome == Approved }
func (v Verdict) IsBlocked() bool  { return v.Outcome == Blocked }
func (v Verdict) IsError() bool    { return v.Outcome == Errored }

// Err returns the cause of an Error verdict wrapped with its reason code, and
// nil for every other outcome.
func (v Verdict) Err() error {
	if v.Outcome != Errored {
		return nil
	}
	if v.Cause == nil {
		return fmt.Errorf("%s: %s", v.Reason, v.Message)
	}
	return fmt.Errorf("%s: %w", v.Reason, v.Cause)
}

func (v Verdict) String() string {
	switch v.Outcome {
	case Approved:
		return fmt.Sprintf("APPROVED notional=%s", v.EstimatedNotional.StringFixed(2))
	case Blocked:
		return fmt.Sprintf("BLOCKED %s: %s", v.Reason, v.Message)
	default:
		return fmt.Sprintf("ERROR %s: %s", v.Reason, v.Message)
	}
}
