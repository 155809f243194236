// Package sentinel is the entry point for the presentation layer. It ties
// the constitution, ledger, rule engine, override authority and execution
// pipeline together behind one Service.
package sentinel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/sentinel/constitution"
	"github.com/rustyeddy/sentinel/journal"
	"github.com/rustyeddy/sentinel/logging"
	"github.com/rustyeddy/sentinel/market"
	"github.com/rustyeddy/sentinel/override"
	"github.com/rustyeddy/sentinel/pipeline"
	"github.com/rustyeddy/sentinel/risk"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Options struct {
	Constitution *constitution.Store
	Ledger       *journal.Ledger
	Engine       *risk.Engine
	Quotes       market.QuoteSource
	QuoteTimeout time.Duration
	Overrides    *override.Authority
	Pipeline     *pipeline.Pipeline
	Identity     Identity
	// RecordBlocked writes a ledger entry for every Blocked verdict.
	RecordBlocked bool
	Logger        *zap.Logger
}

type Service struct {
	constitution  *constitution.Store
	ledger        *journal.Ledger
	engine        *risk.Engine
	quotes        market.QuoteSource
	quoteTimeout  time.Duration
	overrides     *override.Authority
	pipeline      *pipeline.Pipeline
	identity      Identity
	recordBlocked bool
	logger        *zap.Logger
}

func New(opts Options) (*Service, error) {
	switch {
	case opts.Constitution == nil:
		return nil, errors.New("sentinel: constitution store is required")
	case opts.Ledger == nil:
		return nil, errors.New("sentinel: ledger is required")
	case opts.Engine == nil:
		return nil, errors.New("sentinel: engine is required")
	case opts.Pipeline == nil:
		return nil, errors.New("sentinel: pipeline is required")
	}
	logger := logging.OrNop(opts.Logger)
	if opts.Overrides == nil {
		opts.Overrides = override.NewAuthority(nil, nil, logger)
	}
	if opts.Identity == nil {
		opts.Identity = NewStaticIdentity("")
	}
	if opts.QuoteTimeout <= 0 {
		opts.QuoteTimeout = 5 * time.Second
	}
	return &Service{
		constitution:  opts.Constitution,
		ledger:        opts.Ledger,
		engine:        opts.Engine,
		quotes:        opts.Quotes,
		quoteTimeout:  opts.QuoteTimeout,
		overrides:     opts.Overrides,
		pipeline:      opts.Pipeline,
		identity:      opts.Identity,
		recordBlocked: opts.RecordBlocked,
		logger:        logger,
	}, nil
}

// Evaluate fetches a quote and runs the intent through the rule engine
// against the current constitution and ledger.
func (s *Service) Evaluate(ctx context.Context, intent risk.TradeIntent) risk.Verdict {
	qr := risk.QuoteFailed(fmt.Errorf("%w: no quote source", market.ErrQuoteUnavailable))
	if s.quotes != nil {
		q, err := market.Fetch(ctx, s.quotes, intent.Ticker, s.quoteTimeout)
		qr = risk.QuoteResult{Quote: q, Err: err}
	}

	v := s.engine.Evaluate(intent, s.constitution.Get(), s.ledger, qr)

	fields := []zap.Field{
		zap.String("intent", intent.ID),
		zap.String("ticker", intent.Ticker),
		zap.String("outcome", string(v.Outcome)),
		zap.String("reason", string(v.Reason)),
		zap.String("notional", v.EstimatedNotional.String()),
	}
	if v.IsError() {
		s.logger.Warn("evaluation error", append(fields, zap.Error(v.Err()))...)
	} else {
		s.logger.Info("verdict", fields...)
	}

	if v.IsBlocked() && s.recordBlocked {
		if _, err := s.pipeline.RecordBlocked(v); err != nil {
			s.logger.Error("record blocked verdict", zap.String("intent", intent.ID), zap.Error(err))
		}
	}
	return v
}

func (s *Service) RequestOverride(ctx context.Context, v risk.Verdict, justification string) (override.Record, error) {
	return s.overrides.RequestOverride(v, justification, s.identity.Actor(ctx))
}

func (s *Service) Submit(ctx context.Context, c pipeline.Clearance) (pipeline.Handle, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Handle{}, err
	}
	return s.pipeline.Submit(c)
}

func (s *Service) Confirm(ctx context.Context, handleID string) (journal.Trade, error) {
	return s.pipeline.Confirm(ctx, handleID)
}

func (s *Service) Cancel(handleID string) error {
	return s.pipeline.Cancel(handleID)
}

func (s *Service) Handle(handleID string) (pipeline.Handle, error) {
	return s.pipeline.Get(handleID)
}

// Settle books realised P&L against a filled trade.
func (s *Service) Settle(tradeID string, pnl decimal.Decimal) (journal.Trade, error) {
	return s.pipeline.Settle(tradeID, pnl)
}

// Annotate tags a ledger entry with the trader's emotion and lessons.
func (s *Service) Annotate(tradeID string, emotion journal.Emotion, lessons string) (journal.Trade, error) {
	return s.pipeline.Annotate(tradeID, emotion, lessons)
}

func (s *Service) RecentOutcomes(n int) []journal.Trade {
	return s.ledger.RecentOutcomes(n)
}

func (s *Service) DailyPnL(date time.Time) decimal.Decimal {
	return s.ledger.DailyPnL(date)
}

// Trades returns ledger entries with timestamps in [start, end).
func (s *Service) Trades(start, end time.Time) []journal.Trade {
	return s.ledger.Between(start, end)
}

// Trade returns one ledger entry with any corrections that reference it.
func (s *Service) Trade(tradeID string) (journal.Trade, []journal.Trade, error) {
	t, ok := s.ledger.Get(tradeID)
	if !ok {
		return journal.Trade{}, nil, fmt.Errorf("%w: %q", journal.ErrTradeNotFound, tradeID)
	}
	return t, s.ledger.Corrections(tradeID), nil
}

func (s *Service) Overrides() ([]override.Record, error) {
	return s.overrides.History()
}

// Override returns the audit record for token.
func (s *Service) Override(token string) (override.Record, error) {
	return s.overrides.Lookup(token)
}

// RiskReport is today's loss-budget usage.
type RiskReport struct {
	Score        float64         `json:"score"`
	Band         risk.Band       `json:"band"`
	DailyPnL     decimal.Decimal `json:"daily_pnl"`
	MaxDailyLoss decimal.Decimal `json:"max_daily_loss"`
	Date         string          `json:"date"`
}

// RiskScore reports how much of today's loss budget is used.
func (s *Service) RiskScore() (RiskReport, error) {
	now := s.engine.Now()
	c := s.constitution.Get()
	pnl := s.ledger.DailyPnL(now)

	score, err := risk.Score(pnl, c.MaxDailyLoss)
	if err != nil {
		return RiskReport{}, err
	}
	return RiskReport{
		Score:        score,
		Band:         risk.BandFor(score),
		DailyPnL:     pnl,
		MaxDailyLoss: c.MaxDailyLoss,
		Date:         now.Format(time.DateOnly),
	}, nil
}

func (s *Service) Constitution() constitution.UserConstitution {
	return s.constitution.Get()
}

// ReplaceConstitution validates, persists and then applies c.
func (s *Service) ReplaceConstitution(c constitution.UserConstitution) error {
	if err := s.constitution.Replace(c); err != nil {
		return err
	}
	s.logger.Info("constitution replaced",
		zap.String("max_daily_loss", c.MaxDailyLoss.String()),
		zap.Int("cooldown_minutes", c.CooldownMinutes),
		zap.Bool("block_revenge_trading", c.BlockRevengeTrading),
		zap.Bool("block_late_night", c.BlockLateNight),
	)
	return nil
}

func (s *Service) ResetConstitution() error {
	return s.ReplaceConstitution(constitution.Default())
}

// Engine exposes the rule engine for callers that need its clock or
// ceilings.
func (s *Service) Engine() *risk.Engine {
	return s.engine
}
