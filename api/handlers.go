package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rustyeddy/sentinel/constitution"
	"github.com/rustyeddy/sentinel/journal"
	"github.com/rustyeddy/sentinel/market"
	"github.com/rustyeddy/sentinel/override"
	"github.com/rustyeddy/sentinel/pipeline"
	"github.com/rustyeddy/sentinel/risk"
	"github.com/rustyeddy/sentinel/sentinel"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type handler struct {
	svc      *sentinel.Service
	verdicts *verdictCache
	logger   *zap.Logger
}

func newHandler(svc *sentinel.Service, vc *verdictCache, logger *zap.Logger) *handler {
	return &handler{svc: svc, verdicts: vc, logger: logger}
}

func (h *handler) register(r *gin.RouterGroup) {
	r.POST("/evaluate", h.evaluate)
	r.POST("/overrides", h.requestOverride)
	r.GET("/overrides", h.listOverrides)
	r.POST("/pipelines", h.submit)
	r.GET("/pipelines/:id", h.getPipeline)
	r.POST("/pipelines/:id/confirm", h.confirm)
	r.POST("/pipelines/:id/cancel", h.cancel)
	r.POST("/trades/:id/settle", h.settle)
	r.POST("/trades/:id/annotate", h.annotate)
	r.GET("/ledger/recent", h.recent)
	r.GET("/ledger/pnl", h.pnl)
	r.GET("/ledger/export", h.export)
	r.GET("/risk", h.riskScore)
	r.GET("/constitution", h.getConstitution)
	r.PUT("/constitution", h.putConstitution)
	r.POST("/constitution/reset", h.resetConstitution)
}

type evaluateRequest struct {
	Ticker   string          `json:"ticker" binding:"required"`
	Side     string          `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	RiskMode string          `json:"risk_mode"`
}

type verdictResponse struct {
	risk.Verdict
	Error string `json:"error,omitempty"`
}

func (h *handler) evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	side := market.Buy
	if req.Side != "" {
		s, err := market.ParseSide(req.Side)
		if err != nil {
			badRequest(c, err)
			return
		}
		side = s
	}
	mode := risk.Balanced
	if req.RiskMode != "" {
		m, err := risk.ParseRiskMode(req.RiskMode)
		if err != nil {
			badRequest(c, err)
			return
		}
		mode = m
	}

	intent := risk.NewIntent(req.Ticker, side, req.Quantity, mode, time.Now().UTC())
	v := h.svc.Evaluate(c.Request.Context(), intent)
	h.verdicts.put(v)

	resp := verdictResponse{Verdict: v}
	if err := v.Err(); err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

type overrideRequest struct {
	IntentID      string `json:"intent_id" binding:"required"`
	Justification string `json:"justification"`
}

func (h *handler) requestOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	v, ok := h.verdicts.get(req.IntentID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no verdict for intent %q", req.IntentID)})
		return
	}
	rec, err := h.svc.RequestOverride(c.Request.Context(), v, req.Justification)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *handler) listOverrides(c *gin.Context) {
	recs, err := h.svc.Overrides()
	if err != nil {
		fail(c, err)
		return
	}
	if recs == nil {
		recs = []override.Record{}
	}
	c.JSON(http.StatusOK, recs)
}

type submitRequest struct {
	IntentID      string `json:"intent_id" binding:"required"`
	OverrideToken string `json:"override_token"`
}

func (h *handler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	v, ok := h.verdicts.get(req.IntentID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no verdict for intent %q", req.IntentID)})
		return
	}
	clr := pipeline.Clearance{Verdict: v}
	if req.OverrideToken != "" {
		rec, err := h.svc.Override(req.OverrideToken)
		if err != nil {
			fail(c, fmt.Errorf("%w: %w", pipeline.ErrOverrideInvalid, err))
			return
		}
		clr.Override = &rec
	}
	handle, err := h.svc.Submit(c.Request.Context(), clr)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, handle)
}

func (h *handler) getPipeline(c *gin.Context) {
	handle, err := h.svc.Handle(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handle)
}

func (h *handler) confirm(c *gin.Context) {
	tr, err := h.svc.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (h *handler) cancel(c *gin.Context) {
	if err := h.svc.Cancel(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	handle, err := h.svc.Handle(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handle)
}

type settleRequest struct {
	PnL decimal.Decimal `json:"pnl"`
}

func (h *handler) settle(c *gin.Context) {
	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tr, err := h.svc.Settle(c.Param("id"), req.PnL)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tr)
}

type annotateRequest struct {
	Emotion string `json:"emotion"`
	Lessons string `json:"lessons"`
}

func (h *handler) annotate(c *gin.Context) {
	var req annotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var emotion journal.Emotion
	if req.Emotion != "" {
		e, err := journal.ParseEmotion(req.Emotion)
		if err != nil {
			badRequest(c, err)
			return
		}
		emotion = e
	}
	tr, err := h.svc.Annotate(c.Param("id"), emotion, req.Lessons)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tr)
}

func (h *handler) recent(c *gin.Context) {
	n := 20
	if s := c.Query("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			badRequest(c, fmt.Errorf("n must be a non-negative integer"))
			return
		}
		n = v
	}
	trades := h.svc.RecentOutcomes(n)
	if trades == nil {
		trades = []journal.Trade{}
	}
	c.JSON(http.StatusOK, trades)
}

// day resolves the ?date= parameter in the engine's zone, defaulting to
// today.
func (h *handler) day(c *gin.Context) (time.Time, bool) {
	loc := h.svc.Engine().Location()
	s := c.Query("date")
	if s == "" {
		return h.svc.Engine().Now(), true
	}
	d, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		badRequest(c, fmt.Errorf("date must be YYYY-MM-DD"))
		return time.Time{}, false
	}
	return d, true
}

func (h *handler) pnl(c *gin.Context) {
	d, ok := h.day(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date": d.Format(time.DateOnly),
		"pnl":  h.svc.DailyPnL(d),
	})
}

func (h *handler) export(c *gin.Context) {
	d, ok := h.day(c)
	if !ok {
		return
	}
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	trades := h.svc.Trades(start, start.AddDate(0, 0, 1))

	switch c.DefaultQuery("format", "csv") {
	case "csv":
		var buf bytes.Buffer
		if err := journal.WriteCSV(&buf, trades); err != nil {
			fail(c, err)
			return
		}
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	case "org":
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(journal.FormatTradesOrg(trades)))
	default:
		badRequest(c, fmt.Errorf("format must be csv or org"))
	}
}

func (h *handler) riskScore(c *gin.Context) {
	r, err := h.svc.RiskScore()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *handler) getConstitution(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Constitution())
}

func (h *handler) putConstitution(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		badRequest(c, err)
		return
	}
	next, err := constitution.DecodeJSON(body)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.svc.ReplaceConstitution(next); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Constitution())
}

func (h *handler) resetConstitution(c *gin.Context) {
	if err := h.svc.ResetConstitution(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Constitution())
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// fail maps service errors onto HTTP statuses.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrHandleNotFound),
		errors.Is(err, journal.ErrTradeNotFound),
		errors.Is(err, override.ErrRecordNotFound) && !errors.Is(err, pipeline.ErrOverrideInvalid):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrInvalidTransition),
		errors.Is(err, pipeline.ErrIntentInFlight),
		errors.Is(err, pipeline.ErrIntentFilled),
		errors.Is(err, pipeline.ErrOverrideConsumed),
		errors.Is(err, pipeline.ErrAlreadySettled),
		errors.Is(err, risk.ErrDivisionByZero):
		status = http.StatusConflict
	case errors.Is(err, pipeline.ErrOverrideInvalid),
		errors.Is(err, pipeline.ErrNotApproved),
		errors.Is(err, pipeline.ErrNotSettleable),
		errors.Is(err, pipeline.ErrNotAnnotatable),
		errors.Is(err, override.ErrNotBlocked),
		errors.Is(err, risk.ErrInvalidIntent):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, override.ErrEmptyJustification),
		errors.Is(err, constitution.ErrInvalidConstitution):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrQuoteUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, pipeline.ErrExecutionFailed):
		status = http.StatusBadGateway
	}

	body := gin.H{"error": err.Error()}
	var ve *constitution.ValidationError
	if errors.As(err, &ve) {
		body["field"] = ve.Field
	}
	c.JSON(status, body)
}
