// Package journal is the Trade Ledger: an append-only record of trade
// outcomes from which daily P&L and the risk score are derived.
package journal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/sentinel/market"
	"github.com/shopspring/decimal"
)

type Status string

const (
	Filled  Status = "FILLED"
	Blocked Status = "BLOCKED"
	Pending Status = "PENDING"
)

func (s Status) Valid() bool {
	switch s {
	case Filled, Blocked, Pending:
		return true
	}
	return false
}

// Emotion is the trader's own tag for the state of mind behind an entry.
type Emotion string

const (
	Fear       Emotion = "FEAR"
	Greed      Emotion = "GREED"
	Revenge    Emotion = "REVENGE"
	Discipline Emotion = "DISCIPLINE"
)

func (e Emotion) Valid() bool {
	switch e {
	case Fear, Greed, Revenge, Discipline:
		return true
	}
	return false
}

// ParseEmotion accepts any letter case.
func ParseEmotion(s string) (Emotion, error) {
	e := Emotion(strings.ToUpper(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", fmt.Errorf("%w: unknown emotion %q", ErrInvalidTrade, s)
	}
	return e, nil
}

var ErrInvalidTrade = errors.New("invalid trade")

// Trade is one immutable ledger entry. Corrections are new entries whose Ref
// names the trade they adjust.
type Trade struct {
	ID           string              `json:"id"`
	IntentID     string              `json:"intent_id,omitempty"`
	Ticker       string              `json:"ticker"`
	Side         market.Side         `json:"side"`
	Quantity     decimal.Decimal     `json:"quantity"`
	Price        decimal.Decimal     `json:"price"`
	Status       Status              `json:"status"`
	Timestamp    time.Time           `json:"timestamp"`
	PnL          decimal.NullDecimal `json:"pnl"`
	BlockReason  string              `json:"block_reason,omitempty"`
	OverrideUsed bool                `json:"override_used"`
	Ref          string              `json:"ref,omitempty"`
	Emotion      Emotion             `json:"emotion,omitempty"`
	Lessons      string              `json:"lessons,omitempty"`
}

// IsLoss reports whether the entry realised a negative P&L.
func (t Trade) IsLoss() bool {
	return t.Status == Filled && t.PnL.Valid && t.PnL.Decimal.IsNegative()
}

// HasPnL reports whether the entry carries realised P&L. Opening fills carry
// none until a settlement correction books it.
func (t Trade) HasPnL() bool {
	return t.Status == Filled && t.PnL.Valid
}

// IsSettlement reports whether the entry is a correction booking P&L.
func (t Trade) IsSettlement() bool {
	return t.Ref != "" && t.HasPnL()
}

// IsAnnotation reports whether the entry is a correction carrying only an
// emotion tag or lessons.
func (t Trade) IsAnnotation() bool {
	return t.Ref != "" && !t.PnL.Valid && (t.Emotion != "" || t.Lessons != "")
}

func (t Trade) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTrade)
	}
	if t.Ticker == "" {
		return fmt.Errorf("%w: %s: ticker is required", ErrInvalidTrade, t.ID)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: %s: unknown status %q", ErrInvalidTrade, t.ID, t.Status)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: %s: timestamp is required", ErrInvalidTrade, t.ID)
	}
	if t.Ref == "" && !t.Quantity.IsPositive() {
		return fmt.Errorf("%w: %s: quantity must be positive", ErrInvalidTrade, t.ID)
	}
	if t.Emotion != "" && !t.Emotion.Valid() {
		return fmt.Errorf("%w: %s: unknown emotion %q", ErrInvalidTrade, t.ID, t.Emotion)
	}
	return nil
}

// View is the read side the rule engine and risk score consume.
type View interface {
	DailyPnL(date time.Time) decimal.Decimal
	RecentOutcomes(n int) []Trade
}

// Store is durable backing for a Ledger.
type Store interface {
	// Insert stores t unless its id exists; inserted reports which.
	Insert(t Trade) (inserted bool, err error)
	// All returns every entry in append order.
	All() ([]Trade, error)
	Close() error
}
