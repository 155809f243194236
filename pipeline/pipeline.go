// Package pipeline carries an admitted trade intent from confirmation to a
// ledger entry. It is the only writer of the trade ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/sentinel/broker"
	"github.com/rustyeddy/sentinel/id"
	"github.com/rustyeddy/sentinel/journal"
	"github.com/rustyeddy/sentinel/market"
	"github.com/rustyeddy/sentinel/override"
	"github.com/rustyeddy/sentinel/risk"
	"go.uber.org/zap"
)

var (
	ErrHandleNotFound   = errors.New("pipeline handle not found")
	ErrNotApproved      = errors.New("intent is not approved")
	ErrOverrideInvalid  = errors.New("override does not match intent")
	ErrOverrideConsumed = errors.New("override token already used")
	ErrIntentInFlight   = errors.New("intent already has an active pipeline")
	ErrIntentFilled     = errors.New("intent already filled")
	ErrExecutionFailed  = errors.New("execution failed")
)

// Clearance is what admits an intent into the pipeline: an Approved verdict,
// or a Blocked verdict together with the override granted for it.
type Clearance struct {
	Verdict  risk.Verdict
	Override *override.Record
}

// Handle is a point-in-time view of one pipeline run.
type Handle struct {
	ID            string           `json:"id"`
	State         State            `json:"state"`
	Intent        risk.TradeIntent `json:"intent"`
	Verdict       risk.Verdict     `json:"verdict"`
	OverrideToken string           `json:"override_token,omitempty"`
	Quote         market.Quote     `json:"quote"`
	TradeID       string           `json:"trade_id,omitempty"`
	Failure       string           `json:"failure,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Tokens verifies override records presented at submission.
type Tokens interface {
	Lookup(token string) (override.Record, error)
}

type Config struct {
	// QuoteMaxAge is how old the verdict's quote may be at confirmation
	// before it is fetched again.
	QuoteMaxAge  time.Duration
	QuoteTimeout time.Duration
	// ExecTimeout bounds an order once Processing has begun.
	ExecTimeout time.Duration
	Now         func() time.Time
}

func DefaultConfig() Config {
	return Config{
		QuoteMaxAge:  30 * time.Second,
		QuoteTimeout: 5 * time.Second,
		ExecTimeout:  30 * time.Second,
		Now:          time.Now,
	}
}

type tokenState int

const (
	reserved tokenState = iota + 1
	consumed
)

type run struct {
	Handle
	confirming bool
}

type Pipeline struct {
	ledger *journal.Ledger
	broker broker.Broker
	quotes market.QuoteSource
	tokens Tokens
	cfg    Config
	logger *zap.Logger

	// books serialises corrections so a trade is settled at most once.
	books sync.Mutex

	mu       sync.Mutex
	runs     map[string]*run
	inflight map[string]string
	filled   map[string]string
	tokenUse map[string]tokenState
}

// New builds a pipeline writing to ledger. Intents already filled in the
// ledger cannot be submitted again. tokens may be nil, in which case
// override records are trusted as presented.
func New(ledger *journal.Ledger, b broker.Broker, quotes market.QuoteSource, tokens Tokens, cfg Config, logger *zap.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.QuoteMaxAge <= 0 {
		cfg.QuoteMaxAge = def.QuoteMaxAge
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = def.QuoteTimeout
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = def.ExecTimeout
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		ledger:   ledger,
		broker:   b,
		quotes:   quotes,
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger,
		runs:     make(map[string]*run),
		inflight: make(map[string]string),
		filled:   make(map[string]string),
		tokenUse: make(map[string]tokenState),
	}
	for _, t := range ledger.RecentOutcomes(0) {
		if t.Status == journal.Filled && t.Ref == "" && t.IntentID != "" {
			p.filled[t.IntentID] = t.ID
		}
	}
	return p
}

// Submit opens a pipeline in Confirm for the cleared intent. An override
// token is reserved until the run ends; it is spent only when the order
// fills.
func (p *Pipeline) Submit(c Clearance) (Handle, error) {
	v := c.Verdict
	intent := v.Intent

	if err := intent.Validate(); err != nil {
		return Handle{}, err
	}
	var token string
	switch {
	case c.Override != nil:
		if err := p.checkOverride(v, *c.Override); err != nil {
			return Handle{}, err
		}
		token = c.Override.Token
	case !v.IsApproved():
		return Handle{}, fmt.Errorf("%w: %s %s", ErrNotApproved, v.Outcome, v.Reason)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.tokenUse[token] {
	case consumed:
		return Handle{}, fmt.Errorf("%w: %s", ErrOverrideConsumed, token)
	case reserved:
		return Handle{}, fmt.Errorf("%w: %s is reserved", ErrOverrideConsumed, token)
	}
	if tid, ok := p.filled[intent.ID]; ok {
		return Handle{}, fmt.Errorf("%w: %s as trade %s", ErrIntentFilled, intent.ID, tid)
	}
	if hid, ok := p.inflight[intent.ID]; ok {
		return Handle{}, fmt.Errorf("%w: %s in %s", ErrIntentInFlight, intent.ID, hid)
	}
	if token != "" {
		p.tokenUse[token] = reserved
	}

	now := p.cfg.Now().UTC()
	r := &run{Handle: Handle{
		ID:            id.New(),
		State:         Confirm,
		Intent:        intent,
		Verdict:       v,
		OverrideToken: token,
		Quote:         v.Quote,
		CreatedAt:     now,
		UpdatedAt:     now,
	}}
	p.runs[r.ID] = r
	p.inflight[intent.ID] = r.ID

	p.logger.Debug("pipeline submitted",
		zap.String("handle", r.ID),
		zap.String("intent", intent.ID),
		zap.String("ticker", intent.Ticker),
		zap.Bool("override", token != ""),
	)
	return r.Handle, nil
}

func (p *Pipeline) checkOverride(v risk.Verdict, rec override.Record) error {
	if !v.IsBlocked() {
		return fmt.Errorf("%w: override presented for %s verdict", ErrOverrideInvalid, v.Outcome)
	}
	if p.tokens != nil {
		issued, err := p.tokens.Lookup(rec.Token)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOverrideInvalid, err)
		}
		rec = issued
	}
	if !rec.Intent.Same(v.Intent) {
		return fmt.Errorf("%w: token %s was granted for intent %s", ErrOverrideInvalid, rec.Token, rec.Intent.ID)
	}
	if rec.BlockedReason != v.Reason {
		return fmt.Errorf("%w: token %s covers %s, verdict is %s", ErrOverrideInvalid, rec.Token, rec.BlockedReason, v.Reason)
	}
	return nil
}

// Confirm drives the run through Processing to Filled or Failed. Once
// Processing begins, cancelling ctx no longer affects the order.
func (p *Pipeline) Confirm(ctx context.Context, handleID string) (journal.Trade, error) {
	p.mu.Lock()
	r, ok := p.runs[handleID]
	if !ok {
		p.mu.Unlock()
		return journal.Trade{}, fmt.Errorf("%w: %q", ErrHandleNotFound, handleID)
	}
	if err := checkTransition(r.State, Processing); err != nil {
		p.mu.Unlock()
		return journal.Trade{}, err
	}
	if r.confirming {
		p.mu.Unlock()
		return journal.Trade{}, fmt.Errorf("%w: confirmation already in progress", ErrInvalidTransition)
	}
	r.confirming = true
	cached := r.Quote
	p.mu.Unlock()

	q, err := p.freshQuote(ctx, r.Intent.Ticker, cached)

	p.mu.Lock()
	r.confirming = false
	if err != nil {
		p.mu.Unlock()
		return journal.Trade{}, err
	}
	r.Quote = q
	p.setState(r, Processing)
	intent, token := r.Intent, r.OverrideToken
	p.mu.Unlock()

	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ExecTimeout)
	defer cancel()

	fill, err := p.broker.PlaceOrder(execCtx, broker.OrderRequest{
		ClientID:       intent.ID,
		Ticker:         intent.Ticker,
		Side:           intent.Side,
		Quantity:       intent.Quantity,
		ReferencePrice: q.Price,
	})
	if err != nil {
		return journal.Trade{}, p.fail(r, err)
	}

	trade := journal.Trade{
		ID:           id.New(),
		IntentID:     intent.ID,
		Ticker:       intent.Ticker,
		Side:         intent.Side,
		Quantity:     fill.Quantity,
		Price:        fill.Price,
		Status:       journal.Filled,
		Timestamp:    fill.FilledAt,
		OverrideUsed: token != "",
	}
	if trade.Timestamp.IsZero() {
		trade.Timestamp = p.cfg.Now().UTC()
	}
	if _, err := p.ledger.Append(trade); err != nil {
		p.logger.Error("order filled but ledger append failed",
			zap.String("handle", r.ID),
			zap.String("order", fill.OrderID),
			zap.Error(err),
		)
		return journal.Trade{}, p.fail(r, fmt.Errorf("record fill: %w", err))
	}

	p.mu.Lock()
	r.TradeID = trade.ID
	p.setState(r, Filled)
	delete(p.inflight, intent.ID)
	p.filled[intent.ID] = trade.ID
	if token != "" {
		p.tokenUse[token] = consumed
	}
	p.mu.Unlock()

	p.logger.Info("trade filled",
		zap.String("handle", r.ID),
		zap.String("trade", trade.ID),
		zap.String("ticker", trade.Ticker),
		zap.String("side", string(trade.Side)),
		zap.String("quantity", trade.Quantity.String()),
		zap.String("price", trade.Price.String()),
		zap.Bool("override", trade.OverrideUsed),
	)
	return trade, nil
}

func (p *Pipeline) freshQuote(ctx context.Context, ticker string, cached market.Quote) (market.Quote, error) {
	if cached.Ticker == ticker && cached.Fresh(p.cfg.Now(), p.cfg.QuoteMaxAge) {
		return cached, nil
	}
	q, err := market.Fetch(ctx, p.quotes, ticker, p.cfg.QuoteTimeout)
	if err != nil {
		return market.Quote{}, fmt.Errorf("refresh quote: %w", err)
	}
	if !q.Fresh(p.cfg.Now(), p.cfg.QuoteMaxAge) {
		return market.Quote{}, fmt.Errorf("refresh quote: %w: %s is %s old",
			market.ErrQuoteUnavailable, ticker, q.Age(p.cfg.Now()).Round(time.Second))
	}
	return q, nil
}

func (p *Pipeline) fail(r *run, cause error) error {
	p.mu.Lock()
	r.Failure = cause.Error()
	p.setState(r, Failed)
	p.releaseLocked(r)
	p.mu.Unlock()

	p.logger.Error("execution failed",
		zap.String("handle", r.ID),
		zap.String("intent", r.Intent.ID),
		zap.Error(cause),
	)
	return fmt.Errorf("%w: %w", ErrExecutionFailed, cause)
}

// Cancel abandons a run that has not started Processing.
func (p *Pipeline) Cancel(handleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.runs[handleID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrHandleNotFound, handleID)
	}
	if err := checkTransition(r.State, Cancelled); err != nil {
		return err
	}
	if r.confirming {
		return fmt.Errorf("%w: confirmation in progress", ErrInvalidTransition)
	}
	p.setState(r, Cancelled)
	p.releaseLocked(r)
	return nil
}

// Get returns the current view of a run.
func (p *Pipeline) Get(handleID string) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.runs[handleID]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrHandleNotFound, handleID)
	}
	return r.Handle, nil
}

func (p *Pipeline) setState(r *run, s State) {
	from := r.State
	r.State = s
	r.UpdatedAt = p.cfg.Now().UTC()
	p.logger.Debug("pipeline transition",
		zap.String("handle", r.ID),
		zap.String("from", string(from)),
		zap.String("to", string(s)),
	)
}

// releaseLocked frees the intent and returns an unspent token.
func (p *Pipeline) releaseLocked(r *run) {
	if p.inflight[r.Intent.ID] == r.ID {
		delete(p.inflight, r.Intent.ID)
	}
	if r.OverrideToken != "" && p.tokenUse[r.OverrideToken] == reserved {
		delete(p.tokenUse, r.OverrideToken)
	}
}
