package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrDivisionByZero = errors.New("max daily loss is zero")

var hundred = decimal.NewFromInt(100)

// Score is the share of the daily loss budget already used, 0 to 100.
func Score(dailyPnL, maxDailyLoss decimal.Decimal) (float64, error) {
	if maxDailyLoss.IsZero() {
		return 0, ErrDivisionByZero
	}
	s := dailyPnL.Abs().Div(maxDailyLoss).Mul(hundred)
	switch {
	case s.IsNegative():
		return 0, nil
	case s.GreaterThan(hundred):
		return 100, nil
	}
	f, _ := s.Float64()
	return f, nil
}

type Band string

const (
	Safe    Band = "SAFE"
	Warning Band = "WARNING"
	Danger  Band = "DANGER"
)

func BandFor(score float64) Band {
	switch {
	case score < 50:
		return Safe
	case score < 80:
		return Warning
	}
	return Danger
}
