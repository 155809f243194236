package sentinel

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/sentinel/broker/sim"
	"github.com/rustyeddy/sentinel/config"
	"github.com/rustyeddy/sentinel/constitution"
	"github.com/rustyeddy/sentinel/journal"
	"github.com/rustyeddy/sentinel/market"
	"github.com/rustyeddy/sentinel/override"
	"github.com/rustyeddy/sentinel/pipeline"
	"github.com/rustyeddy/sentinel/risk"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tenAM = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

type harness struct {
	svc    *Service
	quotes *market.QuoteStore
	ledger *journal.Ledger
}

func newHarness(t *testing.T, at time.Time) *harness {
	t.Helper()
	return newHarnessWithClock(t, func() time.Time { return at })
}

func newHarnessWithClock(t *testing.T, clock func() time.Time) *harness {
	t.Helper()

	store, err := constitution.Open(nil)
	require.NoError(t, err)
	qs := market.NewLiveQuoteStore(clock)
	qs.Set(market.Quote{Ticker: "NVDA", Price: decimal.NewFromInt(130)})
	qs.Set(market.Quote{Ticker: "TSLA", Price: decimal.NewFromInt(250)})

	ledger := journal.NewLedger(time.UTC)
	authority := override.NewAuthority(nil, clock, nil)
	pipe := pipeline.New(ledger, sim.NewRouter(qs, sim.Config{Now: clock}), qs, authority,
		pipeline.Config{Now: clock}, nil)

	svc, err := New(Options{
		Constitution:  store,
		Ledger:        ledger,
		Engine:        risk.NewEngine(risk.Config{Location: time.UTC, Now: clock}),
		Quotes:        qs,
		Overrides:     authority,
		Pipeline:      pipe,
		Identity:      StaticIdentity{Name: "trader", Session: "s1"},
		RecordBlocked: true,
	})
	require.NoError(t, err)
	return &harness{svc: svc, quotes: qs, ledger: ledger}
}

func buy(ticker string, qty int64, mode risk.RiskMode) risk.TradeIntent {
	return risk.NewIntent(ticker, market.Buy, decimal.NewFromInt(qty), mode, tenAM)
}

func TestEndToEndApprovedTrade(t *testing.T) {
	t.Parallel()

	h := newHarness(t, tenAM)
	ctx := context.Background()

	v := h.svc.Evaluate(ctx, buy("NVDA", 50, risk.Balanced))
	require.True(t, v.IsApproved(), v.String())
	assert.True(t, decimal.NewFromInt(6500).Equal(v.EstimatedNotional))

	handle, err := h.svc.Submit(ctx, pipeline.Clearance{Verdict: v})
	require.NoError(t, err)
	tr, err := h.svc.Confirm(ctx, handle.ID)
	require.NoError(t, err)
	assert.Equal(t, journal.Filled, tr.Status)

	recent := h.svc.RecentOutcomes(1)
	require.Len(t, recent, 1)
	assert.Equal(t, tr.ID, recent[0].ID)
	assert.True(t, h.svc.DailyPnL(tenAM).IsZero())
}

func TestBlockedThenOverridden(t *testing.T) {
	t.Parallel()

	h := newHarness(t, tenAM)
	ctx := WithActor(context.Background(), "desk-lead")

	v := h.svc.Evaluate(ctx, buy("TSLA", 400, risk.Balanced))
	require.Equal(t, risk.NotionalExceeded, v.Reason)
	assert.Equal(t, 1, h.ledger.Len(), "blocked attempt is journaled")

	_, err := h.svc.RequestOverride(ctx, v, "")
	assert.ErrorIs(t, err, override.ErrEmptyJustification)

	rec, err := h.svc.RequestOverride(ctx, v, "hedging the book")
	require.NoError(t, err)
	assert.Equal(t, "desk-lead", rec.Actor)

	handle, err := h.svc.Submit(ctx, pipeline.Clearance{Verdict: v, Override: &rec})
	require.NoError(t, err)
	tr, err := h.svc.Confirm(ctx, handle.ID)
	require.NoError(t, err)
	assert.True(t, tr.OverrideUsed)

	_, err = h.svc.Submit(ctx, pipeline.Clearance{Verdict: v, Override: &rec})
	assert.ErrorIs(t, err, pipeline.ErrOverrideConsumed)

	hist, err := h.svc.Overrides()
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestQuoteUnavailableIsError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, tenAM)
	v := h.svc.Evaluate(context.Background(), buy("ZZZZ", 1, risk.Balanced))
	assert.Equal(t, risk.Errored, v.Outcome)
	assert.ErrorIs(t, v.Err(), market.ErrQuoteUnavailable)
	assert.Equal(t, 0, h.ledger.Len())
}

func TestRiskScoreFollowsLedger(t *testing.T) {
	t.Parallel()

	h := newHarness(t, tenAM)
	ctx := context.Background()

	r, err := h.svc.RiskScore()
	require.NoError(t, err)
	assert.Equal(t, risk.Safe, r.Band)

	v := h.svc.Evaluate(ctx, buy("NVDA", 10, risk.Balanced))
	handle, err := h.svc.Submit(ctx, pipeline.Clearance{Verdict: v})
	require.NoError(t, err)
	tr, err := h.svc.Confirm(ctx, handle.ID)
	require.NoError(t, err)

	_, err = h.svc.Settle(tr.ID, decimal.NewFromInt(-2500))
	require.NoError(t, err)

	r, err = h.svc.RiskScore()
	require.NoError(t, err)
	assert.InDelta(t, 50, r.Score, 1e-9)
	assert.Equal(t, risk.Warning, r.Band)
	assert.Equal(t, "2026-03-09", r.Date)

	// The fresh loss now triggers the default cooldown.
	v = h.svc.Evaluate(ctx, buy("NVDA", 1, risk.Balanced))
	assert.Equal(t, risk.CooldownActive, v.Reason)
}

type stepClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

func TestRevengeTradingAfterSettledLosses(t *testing.T) {
	t.Parallel()

	clock := &stepClock{at: tenAM}
	h := newHarnessWithClock(t, clock.Now)
	ctx := context.Background()

	c := constitution.Default()
	c.CooldownMinutes = 0
	c.BlockRevengeTrading = true
	require.NoError(t, h.svc.ReplaceConstitution(c))

	for i := range 3 {
		v := h.svc.Evaluate(ctx, buy("NVDA", 10, risk.Balanced))
		require.True(t, v.IsApproved(), "trade %d: %s", i, v.String())
		handle, err := h.svc.Submit(ctx, pipeline.Clearance{Verdict: v})
		require.NoError(t, err)
		tr, err := h.svc.Confirm(ctx, handle.ID)
		require.NoError(t, err)
		assert.False(t, tr.HasPnL(), "opening fill carries no realised P&L")

		clock.Advance(30 * time.Second)
		_, err = h.svc.Settle(tr.ID, decimal.NewFromInt(-100))
		require.NoError(t, err)
		clock.Advance(30 * time.Second)
	}

	v := h.svc.Evaluate(ctx, buy("NVDA", 10, risk.Balanced))
	assert.Equal(t, risk.RevengeTrading, v.Reason, v.String())
	assert.True(t, decimal.NewFromInt(-300).Equal(h.svc.DailyPnL(tenAM)))

	// A win settled after the losses ends the streak.
	clock.Advance(time.Minute)
	c.BlockRevengeTrading = false
	require.NoError(t, h.svc.ReplaceConstitution(c))
	v = h.svc.Evaluate(ctx, buy("NVDA", 10, risk.Balanced))
	require.True(t, v.IsApproved(), v.String())
	handle, err := h.svc.Submit(ctx, pipeline.Clearance{Verdict: v})
	require.NoError(t, err)
	tr, err := h.svc.Confirm(ctx, handle.ID)
	require.NoError(t, err)
	_, err = h.svc.Settle(tr.ID, decimal.NewFromInt(50))
	require.NoError(t, err)

	c.BlockRevengeTrading = true
	require.NoError(t, h.svc.ReplaceConstitution(c))
	v = h.svc.Evaluate(ctx, buy("NVDA", 10, risk.Balanced))
	assert.True(t, v.IsApproved(), v.String())
}

func TestAnnotateAndSettleOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, tenAM)
	ctx := context.Background()

	v := h.svc.Evaluate(ctx, buy("NVDA", 10, risk.Balanced))
	handle, err := h.svc.Submit(ctx, pipeline.Clearance{Verdict: v})
	require.NoError(t, err)
	tr, err := h.svc.Confirm(ctx, handle.ID)
	require.NoError(t, err)

	note, err := h.svc.Annotate(tr.ID, journal.Discipline, "waited for the pullback")
	require.NoError(t, err)
	assert.Equal(t, tr.ID, note.Ref)
	assert.True(t, note.IsAnnotation())

	_, err = h.svc.Settle(tr.ID, decimal.NewFromInt(-40))
	require.NoError(t, err)
	_, err = h.svc.Settle(tr.ID, decimal.NewFromInt(-40))
	assert.ErrorIs(t, err, pipeline.ErrAlreadySettled)
	assert.True(t, decimal.NewFromInt(-40).Equal(h.svc.DailyPnL(tenAM)))

	orig, refs, err := h.svc.Trade(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, orig.ID)
	require.Len(t, refs, 2)
	assert.Equal(t, journal.Discipline, refs[0].Emotion)
	assert.True(t, refs[1].IsSettlement())
}

func TestReplaceConstitution(t *testing.T) {
	t.Parallel()

	h := newHarness(t, tenAM)

	bad := h.svc.Constitution()
	bad.MaxDailyLoss = decimal.NewFromInt(-1)
	assert.ErrorIs(t, h.svc.ReplaceConstitution(bad), constitution.ErrInvalidConstitution)
	assert.True(t, constitution.Default().MaxDailyLoss.Equal(h.svc.Constitution().MaxDailyLoss))

	c := h.svc.Constitution()
	c.MaxDailyLoss = decimal.NewFromInt(100)
	require.NoError(t, h.svc.ReplaceConstitution(c))
	assert.True(t, decimal.NewFromInt(100).Equal(h.svc.Constitution().MaxDailyLoss))

	_, err := h.svc.RiskScore()
	require.NoError(t, err)

	require.NoError(t, h.svc.ResetConstitution())
	assert.Equal(t, constitution.Default().CooldownMinutes, h.svc.Constitution().CooldownMinutes)
}

func TestStaticIdentity(t *testing.T) {
	t.Parallel()

	id := NewStaticIdentity("")
	assert.Equal(t, "local", id.Name)
	assert.NotEmpty(t, id.Session)
	assert.Equal(t, "local/"+id.Session, id.Actor(context.Background()))
	assert.Equal(t, "bob", id.Actor(WithActor(context.Background(), "bob")))
}

func TestOpenPersistsAcrossRestarts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Constitution.Path = filepath.Join(dir, "constitution.yaml")
	cfg.Journal.DBPath = filepath.Join(dir, "sentinel.db")
	cfg.Rules.Timezone = "UTC"
	cfg.Broker.Latency = 0

	rt, err := Open(cfg, nil)
	require.NoError(t, err)

	c := rt.Constitution()
	c.BlockLateNight = false
	require.NoError(t, rt.ReplaceConstitution(c))

	ctx := context.Background()
	v := rt.Evaluate(ctx, risk.NewIntent("NVDA", market.Buy, decimal.NewFromInt(1), risk.Balanced, time.Now()))
	require.True(t, v.IsApproved(), v.String())
	handle, err := rt.Submit(ctx, pipeline.Clearance{Verdict: v})
	require.NoError(t, err)
	tr, err := rt.Confirm(ctx, handle.ID)
	require.NoError(t, err)

	blocked := rt.Evaluate(ctx, risk.NewIntent("SPY", market.Buy, decimal.NewFromInt(1000), risk.Conservative, time.Now()))
	require.True(t, blocked.IsBlocked())
	_, err = rt.RequestOverride(ctx, blocked, "testing restart")
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	rt, err = Open(cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	assert.False(t, rt.Constitution().BlockLateNight)
	recent := rt.RecentOutcomes(0)
	require.Len(t, recent, 2)
	assert.Equal(t, tr.ID, recent[1].ID)
	assert.Equal(t, journal.Blocked, recent[0].Status)

	hist, err := rt.Overrides()
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	_, err = rt.Submit(ctx, pipeline.Clearance{Verdict: v})
	assert.ErrorIs(t, err, pipeline.ErrIntentFilled)
}
