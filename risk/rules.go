package risk

import (
	"fmt"
	"time"

	"github.com/rustyeddy/sentinel/constitution"
	"github.com/rustyeddy/sentinel/journal"
	"github.com/rustyeddy/sentinel/market"
	"github.com/shopspring/decimal"
)

// Input is everything a rule may look at. Now is already in the engine's
// local time zone.
type Input struct {
	Intent       TradeIntent
	Constitution constitution.UserConstitution
	Ledger       journal.View
	Quote        QuoteResult
	Now          time.Time

	// Filled in by the engine once a quote is available.
	Notional decimal.Decimal
	Ceiling  decimal.Decimal
}

// Rule objects to an intent by returning a verdict and true.
type Rule struct {
	Name  string
	Check func(e *Engine, in *Input) (Verdict, bool)
}

// rules is the evaluation order. Rules before quoteRequired must not need a
// quote.
var rules = []Rule{
	{Name: "daily_loss", Check: dailyLoss},
	{Name: "late_night", Check: lateNight},
	{Name: "quote_required", Check: quoteRequired},
	{Name: "notional", Check: notionalCeiling},
	{Name: "revenge_trading", Check: revengeTrading},
	{Name: "cooldown", Check: cooldown},
}

func dailyLoss(_ *Engine, in *Input) (Verdict, bool) {
	pnl := in.Ledger.DailyPnL(in.Now)
	limit := in.Constitution.MaxDailyLoss
	if pnl.Abs().LessThanOrEqual(limit) {
		return Verdict{}, false
	}
	return block(in, DailyLossExceeded,
		fmt.Sprintf("daily loss limit $%s exceeded (today %s); trading locked",
			limit.StringFixed(2), pnl.StringFixed(2))), true
}

// lateNightEnd is the first hour of the day trading is allowed again.
const lateNightEnd = 4

func lateNight(_ *Engine, in *Input) (Verdict, bool) {
	if !in.Constitution.BlockLateNight || in.Now.Hour() >= lateNightEnd {
		return Verdict{}, false
	}
	return block(in, LateNightRestricted,
		fmt.Sprintf("late night protocol active (00:00-%02d:00 local)", lateNightEnd)), true
}

func quoteRequired(_ *Engine, in *Input) (Verdict, bool) {
	if in.Quote.Available() && in.Quote.Quote.Ticker == in.Intent.Ticker {
		return Verdict{}, false
	}
	cause := in.Quote.Err
	switch {
	case cause == nil && in.Quote.Available():
		cause = fmt.Errorf("%w: quote for %s does not match intent %s",
			market.ErrQuoteUnavailable, in.Quote.Quote.Ticker, in.Intent.Ticker)
	case cause == nil:
		cause = fmt.Errorf("%w: %s", market.ErrQuoteUnavailable, in.Intent.Ticker)
	}
	v := verdict(in, Errored, QuoteUnavailable, "no quote available for "+in.Intent.Ticker)
	v.Cause = cause
	return v, true
}

func notionalCeiling(_ *Engine, in *Input) (Verdict, bool) {
	if in.Notional.LessThanOrEqual(in.Ceiling) {
		return Verdict{}, false
	}
	return block(in, NotionalExceeded,
		fmt.Sprintf("notional $%s exceeds %s limit $%s",
			in.Notional.StringFixed(2), in.Intent.Mode, in.Ceiling.StringFixed(2))), true
}

func revengeTrading(e *Engine, in *Input) (Verdict, bool) {
	if !in.Constitution.BlockRevengeTrading || e.revengeCount <= 0 {
		return Verdict{}, false
	}
	losses := 0
	// Only realised P&L counts: opening fills, annotations and blocked
	// attempts carry none.
	for _, t := range in.Ledger.RecentOutcomes(0) {
		if !t.HasPnL() {
			continue
		}
		if !t.IsLoss() || in.Now.Sub(t.Timestamp) > e.revengeWindow {
			return Verdict{}, false
		}
		losses++
		if losses == e.revengeCount {
			return block(in, RevengeTrading,
				fmt.Sprintf("%d consecutive losses within %s; step away", losses, e.revengeWindow)), true
		}
	}
	return Verdict{}, false
}

func cooldown(_ *Engine, in *Input) (Verdict, bool) {
	period := in.Constitution.Cooldown()
	if period <= 0 {
		return Verdict{}, false
	}
	for _, t := range in.Ledger.RecentOutcomes(0) {
		if !t.IsLoss() {
			continue
		}
		until := t.Timestamp.Add(period)
		if !in.Now.Before(until) {
			return Verdict{}, false
		}
		return block(in, CooldownActive,
			fmt.Sprintf("cooldown after loss on %s; %s remaining",
				t.Ticker, until.Sub(in.Now).Round(time.Second))), true
	}
	return Verdict{}, false
}

func block(in *Input, code ReasonCode, msg string) Verdict {
	return verdict(in, Blocked, code, msg)
}

func verdict(in *Input, out Outcome, code ReasonCode, msg string) Verdict {
	return Verdict{
		Outcome:           out,
		Reason:            code,
		Message:           msg,
		EstimatedNotional: in.Notional,
		Ceiling:           in.Ceiling,
		Intent:            in.Intent,
		Quote:             in.Quote.Quote,
		EvaluatedAt:       in.Now,
	}
}
