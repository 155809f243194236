package risk

import (
	"time"

	"github.com/rustyeddy/sentinel/constitution"
	"github.com/rustyeddy/sentinel/journal"
	"github.com/rustyeddy/sentinel/market"
	"github.com/shopspring/decimal"
)

// QuoteResult is what the engine was told about the market for an intent's
// ticker. The zero value means no quote could be obtained.
type QuoteResult struct {
	Quote market.Quote
	Err   error
}

func QuoteOf(q market.Quote) QuoteResult {
	return QuoteResult{Quote: q}
}

func QuoteFailed(err error) QuoteResult {
	return QuoteResult{Err: err}
}

func (r QuoteResult) Available() bool {
	return r.Err == nil && r.Quote.Ticker != ""
}

type Config struct {
	Ceilings Ceilings
	Location *time.Location

	// RevengeLossCount consecutive losses inside RevengeWindow count as
	// revenge trading.
	RevengeLossCount int
	RevengeWindow    time.Duration

	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Ceilings:         DefaultCeilings(),
		Location:         time.Local,
		RevengeLossCount: 3,
		RevengeWindow:    time.Hour,
		Now:              time.Now,
	}
}

// Engine evaluates intents. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	ceilings      Ceilings
	loc           *time.Location
	revengeCount  int
	revengeWindow time.Duration
	now           func() time.Time
}

// NewEngine fills unset fields of cfg from DefaultConfig.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	ceilings := Ceilings{}
	for m, v := range def.Ceilings {
		ceilings[m] = v
	}
	for m, v := range cfg.Ceilings {
		ceilings[m] = v
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.RevengeLossCount == 0 {
		cfg.RevengeLossCount = def.RevengeLossCount
	}
	if cfg.RevengeWindow <= 0 {
		cfg.RevengeWindow = def.RevengeWindow
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &Engine{
		ceilings:      ceilings,
		loc:           cfg.Location,
		revengeCount:  cfg.RevengeLossCount,
		revengeWindow: cfg.RevengeWindow,
		now:           cfg.Now,
	}
}

func (e *Engine) Ceiling(m RiskMode) decimal.Decimal {
	return e.ceilings[m]
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

// Now is the engine clock in its configured zone.
func (e *Engine) Now() time.Time {
	return e.now().In(e.loc)
}

// RuleNames lists the rules in evaluation order.
func (e *Engine) RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}

// Evaluate runs the rules in order against one consistent view of the
// ledger and returns the first objection, or Approved with the estimated
// notional.
func (e *Engine) Evaluate(intent TradeIntent, c constitution.UserConstitution, ledger journal.View, quote QuoteResult) Verdict {
	in := &Input{
		Intent:       intent,
		Constitution: c,
		Ledger:       ledger,
		Quote:        quote,
		Now:          e.Now(),
		Ceiling:      e.ceilings[intent.Mode],
	}
	if snap, ok := ledger.(interface{ Snapshot() journal.Snapshot }); ok {
		in.Ledger = snap.Snapshot()
	}
	if err := intent.Validate(); err != nil {
		v := verdict(in, Errored, InvalidIntent, err.Error())
		v.Cause = err
		return v
	}
	if quote.Available() && quote.Quote.Ticker == intent.Ticker {
		in.Notional = intent.Quantity.Mul(quote.Quote.Price)
	}

	for _, r := range rules {
		if v, hit := r.Check(e, in); hit {
			return v
		}
	}
	return verdict(in, Approved, "", "")
}
