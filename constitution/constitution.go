// Package constitution owns the user's risk constitution: the hard limits
// Sentinel enforces before any trade is admitted.
package constitution

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidConstitution is matched by every ValidationError.
var ErrInvalidConstitution = errors.New("invalid constitution")

// UserConstitution is the closed set of recognised risk options.
type UserConstitution struct {
	// MaxDailyLoss locks trading once the absolute daily P&L exceeds it.
	MaxDailyLoss decimal.Decimal `json:"max_daily_loss" yaml:"max_daily_loss"`
	// MaxLeverage is recorded and validated; no admission rule reads it.
	MaxLeverage float64 `json:"max_leverage" yaml:"max_leverage"`
	// CooldownMinutes is the mandatory pause after a realised loss.
	CooldownMinutes int `json:"cooldown_minutes" yaml:"cooldown_minutes"`
	// BlockRevengeTrading blocks entries after a run of quick losses.
	BlockRevengeTrading bool `json:"block_revenge_trading" yaml:"block_revenge_trading"`
	// BlockLateNight blocks entries between 00:00 and 04:00 local time.
	BlockLateNight bool `json:"block_late_night" yaml:"block_late_night"`
	AICoachEnabled bool `json:"ai_coach_enabled" yaml:"ai_coach_enabled"`
}

// Default is the constitution new users start with.
func Default() UserConstitution {
	return UserConstitution{
		MaxDailyLoss:        decimal.NewFromInt(5000),
		MaxLeverage:         3,
		CooldownMinutes:     15,
		BlockRevengeTrading: true,
		BlockLateNight:      true,
		AICoachEnabled:      true,
	}
}

// Cooldown is CooldownMinutes as a duration.
func (c UserConstitution) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// ValidationError names the offending field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid constitution: %s %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConstitution
}

// Validate checks the invariants every stored constitution must hold.
func (c UserConstitution) Validate() error {
	if !c.MaxDailyLoss.IsPositive() {
		return &ValidationError{Field: "max_daily_loss", Msg: "must be positive"}
	}
	if math.IsNaN(c.MaxLeverage) || math.IsInf(c.MaxLeverage, 0) {
		return &ValidationError{Field: "max_leverage", Msg: "must be finite"}
	}
	if c.MaxLeverage <= 0 {
		return &ValidationError{Field: "max_leverage", Msg: "must be positive"}
	}
	if c.CooldownMinutes < 0 {
		return &ValidationError{Field: "cooldown_minutes", Msg: "must be >= 0"}
	}
	return nil
}
