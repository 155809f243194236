package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rustyeddy/sentinel/id"
	"github.com/rustyeddy/sentinel/journal"
	"github.com/rustyeddy/sentinel/risk"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotSettleable  = errors.New("trade cannot be settled")
	ErrAlreadySettled = errors.New("trade already settled")
	ErrNotAnnotatable = errors.New("trade cannot be annotated")
)

// RecordBlocked writes a Blocked entry for a refused intent so the journal
// shows attempts next to executions. Blocked entries carry no P&L.
func (p *Pipeline) RecordBlocked(v risk.Verdict) (journal.Trade, error) {
	if !v.IsBlocked() {
		return journal.Trade{}, fmt.Errorf("record blocked: verdict is %s", v.Outcome)
	}
	t := journal.Trade{
		ID:          id.New(),
		IntentID:    v.Intent.ID,
		Ticker:      v.Intent.Ticker,
		Side:        v.Intent.Side,
		Quantity:    v.Intent.Quantity,
		Price:       v.Quote.Price,
		Status:      journal.Blocked,
		Timestamp:   v.EvaluatedAt.UTC(),
		BlockReason: string(v.Reason),
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = p.cfg.Now().UTC()
	}
	if _, err := p.ledger.Append(t); err != nil {
		return journal.Trade{}, fmt.Errorf("record blocked: %w", err)
	}
	return t, nil
}

// Settle books realised P&L for a filled trade as a new correction entry that
// references it. The original entry is never edited. A trade settles once;
// later calls fail with ErrAlreadySettled.
func (p *Pipeline) Settle(tradeID string, pnl decimal.Decimal) (journal.Trade, error) {
	p.books.Lock()
	defer p.books.Unlock()

	orig, ok := p.ledger.Get(tradeID)
	if !ok {
		return journal.Trade{}, fmt.Errorf("%w: %q", journal.ErrTradeNotFound, tradeID)
	}
	if orig.Status != journal.Filled || orig.Ref != "" {
		return journal.Trade{}, fmt.Errorf("%w: %s is %s", ErrNotSettleable, tradeID, describe(orig))
	}
	for _, c := range p.ledger.Corrections(tradeID) {
		if c.IsSettlement() {
			return journal.Trade{}, fmt.Errorf("%w: %s by %s", ErrAlreadySettled, tradeID, c.ID)
		}
	}

	t := journal.Trade{
		ID:        id.New(),
		IntentID:  orig.IntentID,
		Ticker:    orig.Ticker,
		Side:      orig.Side,
		Quantity:  decimal.Zero,
		Price:     orig.Price,
		Status:    journal.Filled,
		Timestamp: p.cfg.Now().UTC(),
		PnL:       decimal.NewNullDecimal(pnl),
		Ref:       orig.ID,
	}
	if _, err := p.ledger.Append(t); err != nil {
		return journal.Trade{}, fmt.Errorf("settle %s: %w", tradeID, err)
	}
	p.logger.Info("trade settled",
		zap.String("trade", tradeID),
		zap.String("correction", t.ID),
		zap.String("pnl", pnl.String()),
	)
	return t, nil
}

// Annotate records the trader's emotion tag and lessons for an entry as a new
// correction that references it. The correction carries no P&L.
func (p *Pipeline) Annotate(tradeID string, emotion journal.Emotion, lessons string) (journal.Trade, error) {
	if emotion == "" && strings.TrimSpace(lessons) == "" {
		return journal.Trade{}, fmt.Errorf("%w: emotion or lessons required", ErrNotAnnotatable)
	}
	if emotion != "" && !emotion.Valid() {
		return journal.Trade{}, fmt.Errorf("%w: unknown emotion %q", ErrNotAnnotatable, emotion)
	}

	p.books.Lock()
	defer p.books.Unlock()

	orig, ok := p.ledger.Get(tradeID)
	if !ok {
		return journal.Trade{}, fmt.Errorf("%w: %q", journal.ErrTradeNotFound, tradeID)
	}
	if orig.Ref != "" {
		return journal.Trade{}, fmt.Errorf("%w: %s is a correction", ErrNotAnnotatable, tradeID)
	}

	t := journal.Trade{
		ID:        id.New(),
		IntentID:  orig.IntentID,
		Ticker:    orig.Ticker,
		Side:      orig.Side,
		Quantity:  decimal.Zero,
		Price:     orig.Price,
		Status:    orig.Status,
		Timestamp: p.cfg.Now().UTC(),
		Ref:       orig.ID,
		Emotion:   emotion,
		Lessons:   strings.TrimSpace(lessons),
	}
	if _, err := p.ledger.Append(t); err != nil {
		return journal.Trade{}, fmt.Errorf("annotate %s: %w", tradeID, err)
	}
	p.logger.Info("trade annotated",
		zap.String("trade", tradeID),
		zap.String("correction", t.ID),
		zap.String("emotion", string(emotion)),
	)
	return t, nil
}

func describe(t journal.Trade) string {
	if t.Ref != "" {
		return "a correction"
	}
	return string(t.Status)
}
