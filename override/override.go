// Package override grants audited, single-use bypasses of blocked verdicts.
package override

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/sentinel/id"
	"github.com/rustyeddy/sentinel/risk"
	"go.uber.org/zap"
)

var (
	ErrEmptyJustification = errors.New("override justification is required")
	ErrNotBlocked         = errors.New("only blocked verdicts can be overridden")
	ErrRecordNotFound     = errors.New("override record not found")
)

// Record is one granted override. Token scopes the bypass to a single
// submission of Intent.
type Record struct {
	Token         string           `json:"token"`
	Intent        risk.TradeIntent `json:"intent"`
	BlockedReason risk.ReasonCode  `json:"blocked_reason"`
	Justification string           `json:"justification"`
	Actor         string           `json:"actor"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Authority issues overrides. Its only state is the audit log it appends to.
type Authority struct {
	log    Log
	now    func() time.Time
	logger *zap.Logger
}

func NewAuthority(log Log, now func() time.Time, logger *zap.Logger) *Authority {
	if log == nil {
		log = NewMemoryLog()
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authority{log: log, now: now, logger: logger}
}

// RequestOverride records the justification for bypassing v and returns the
// record holding the bypass token. Nothing is written when the request is
// rejected.
func (a *Authority) RequestOverride(v risk.Verdict, justification, actor string) (Record, error) {
	justification = strings.TrimSpace(justification)
	if justification == "" {
		return Record{}, ErrEmptyJustification
	}
	if !v.IsBlocked() {
		return Record{}, fmt.Errorf("%w: verdict is %s", ErrNotBlocked, v.Outcome)
	}

	rec := Record{
		Token:         id.New(),
		Intent:        v.Intent,
		BlockedReason: v.Reason,
		Justification: justification,
		Actor:         actor,
		Timestamp:     a.now().UTC(),
	}
	if err := a.log.Append(rec); err != nil {
		return Record{}, fmt.Errorf("record override: %w", err)
	}

	a.logger.Warn("override granted",
		zap.String("token", rec.Token),
		zap.String("intent", rec.Intent.ID),
		zap.String("ticker", rec.Intent.Ticker),
		zap.String("reason", string(rec.BlockedReason)),
		zap.String("actor", rec.Actor),
		zap.String("justification", rec.Justification),
	)
	return rec, nil
}

// Lookup returns the audit record for token.
func (a *Authority) Lookup(token string) (Record, error) {
	return a.log.Get(token)
}

// History returns every override ever granted, oldest first.
func (a *Authority) History() ([]Record, error) {
	return a.log.List()
}
