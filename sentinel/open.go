package sentinel

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/sentinel/broker/sim"
	"github.com/rustyeddy/sentinel/config"
	"github.com/rustyeddy/sentinel/constitution"
	"github.com/rustyeddy/sentinel/journal"
	"github.com/rustyeddy/sentinel/logging"
	"github.com/rustyeddy/sentinel/market"
	"github.com/rustyeddy/sentinel/override"
	"github.com/rustyeddy/sentinel/pipeline"
	"github.com/rustyeddy/sentinel/quotes"
	"github.com/rustyeddy/sentinel/risk"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Runtime is a Service built from configuration together with the
// resources it owns.
type Runtime struct {
	*Service
	Router *sim.Router
	// SQLite is nil when the ledger is in memory.
	SQLite *journal.SQLite

	closers []func() error
}

// Open builds a Service from cfg. The caller must Close the runtime.
func Open(cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger = logging.OrNop(logger)
	now := time.Now
	rt := &Runtime{}

	loc, _ := cfg.Location()

	var persister constitution.Persister
	if cfg.Constitution.Path != "" {
		persister = constitution.NewFileStore(cfg.Constitution.Path)
	}
	store, err := constitution.Open(persister)
	if err != nil {
		return nil, fmt.Errorf("open constitution: %w", err)
	}

	var (
		ledger   *journal.Ledger
		auditLog override.Log = override.NewMemoryLog()
	)
	if cfg.Journal.DBPath == "" {
		ledger = journal.NewLedger(loc)
	} else {
		db, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, err
		}
		rt.SQLite = db
		if ledger, err = journal.Open(db, loc); err != nil {
			db.Close()
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		rt.closers = append(rt.closers, ledger.Close)
		if auditLog, err = override.NewSQLiteLog(db.DB()); err != nil {
			rt.Close()
			return nil, err
		}
	}

	src, err := quoteSource(cfg.Quotes, now)
	if err != nil {
		rt.Close()
		return nil, err
	}
	cache := market.NewQuoteCache(src, cfg.Quotes.CacheTTL, now).WithFetchTimeout(cfg.Quotes.Timeout)

	engine := risk.NewEngine(cfg.Engine(now))
	authority := override.NewAuthority(auditLog, now, logger)
	rt.Router = sim.NewRouter(cache, sim.Config{
		Latency:     cfg.Broker.Latency,
		FailureRate: cfg.Broker.FailureRate,
		Now:         now,
	})
	pipe := pipeline.New(ledger, rt.Router, cache, authority, pipeline.Config{
		QuoteMaxAge:  cfg.Pipeline.QuoteMaxAge,
		QuoteTimeout: cfg.Quotes.Timeout,
		ExecTimeout:  cfg.Pipeline.ExecTimeout,
		Now:          now,
	}, logger)

	rt.Service, err = New(Options{
		Constitution:  store,
		Ledger:        ledger,
		Engine:        engine,
		Quotes:        cache,
		QuoteTimeout:  cfg.Quotes.Timeout,
		Overrides:     authority,
		Pipeline:      pipe,
		Identity:      NewStaticIdentity(cfg.Actor),
		RecordBlocked: true,
		Logger:        logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func quoteSource(qc config.QuotesConfig, now func() time.Time) (market.QuoteSource, error) {
	switch qc.Provider {
	case "http":
		c, err := quotes.NewClient(quotes.Options{
			URL:           qc.URL,
			Token:         qc.Token,
			Timeout:       qc.Timeout,
			RatePerSecond: qc.RatePerSecond,
			Burst:         qc.Burst,
			Paths:         qc.Paths,
			Now:           now,
		})
		if err != nil {
			return nil, fmt.Errorf("quote client: %w", err)
		}
		return c, nil
	default:
		qs := market.NewLiveQuoteStore(now)
		for ticker, price := range qc.Static {
			p, err := decimal.NewFromString(price)
			if err != nil {
				return nil, fmt.Errorf("static quote %s: %w", ticker, err)
			}
			qs.Set(market.Quote{Ticker: strings.ToUpper(ticker), Price: p})
		}
		return qs, nil
	}
}

func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}
