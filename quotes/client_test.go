package quotes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rustyeddy/sentinel/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, srv *httptest.Server, paths Paths) *Client {
	t.Helper()
	c, err := NewClient(Options{
		URL:   srv.URL + "/v1/quote/{ticker}",
		Token: "test-token",
		Paths: paths,
		Now:   func() time.Time { return fixed },
	})
	require.NoError(t, err)
	return c
}

func TestGetQuote_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/quote/NVDA", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"price": 130.25, "changePercent": -1.5, "volume": "41.2M", "sentiment": "bullish", "asOf": "2026-03-09T14:59:30Z"}`))
	}))
	defer server.Close()

	q, err := newTestClient(t, server, Paths{}).GetQuote(context.Background(), "nvda")
	require.NoError(t, err)

	assert.Equal(t, "NVDA", q.Ticker)
	assert.True(t, decimal.RequireFromString("130.25").Equal(q.Price))
	assert.InDelta(t, -1.5, q.ChangePercent, 1e-9)
	assert.Equal(t, "41.2M", q.Volume)
	assert.Equal(t, market.Bullish, q.Sentiment)
	assert.Equal(t, fixed.Add(-30*time.Second), q.AsOf)
}

func TestGetQuote_NestedPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"last": "88.10", "ts": 1773068400}}`))
	}))
	defer server.Close()

	q, err := newTestClient(t, server, Paths{Price: "data.last", AsOf: "data.ts"}).GetQuote(context.Background(), "AMD")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("88.10").Equal(q.Price))
	assert.Equal(t, market.Neutral, q.Sentiment)
	assert.Equal(t, int64(1773068400), q.AsOf.Unix())
}

func TestGetQuote_MissingTimestampUsesClock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": 10}`))
	}))
	defer server.Close()

	q, err := newTestClient(t, server, Paths{}).GetQuote(context.Background(), "F")
	require.NoError(t, err)
	assert.Equal(t, fixed, q.AsOf)
}

func TestGetQuote_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		bad    bool
	}{
		{"http error", http.StatusUnauthorized, `{"error":"bad token"}`, false},
		{"not json", http.StatusOK, `<html>`, true},
		{"no price", http.StatusOK, `{"last": 1}`, true},
		{"zero price", http.StatusOK, `{"price": 0}`, true},
		{"bad timestamp", http.StatusOK, `{"price": 1, "asOf": "yesterday"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(t, server, Paths{}).GetQuote(context.Background(), "NVDA")
			require.Error(t, err)
			if tt.bad {
				assert.ErrorIs(t, err, ErrBadResponse)
			} else {
				assert.Contains(t, err.Error(), "status 401")
			}
		})
	}
}

func TestGetQuote_RateLimited(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"price": 1}`))
	}))
	defer server.Close()

	c, err := NewClient(Options{URL: server.URL + "/{ticker}", RatePerSecond: 0.001, Burst: 1})
	require.NoError(t, err)

	_, err = c.GetQuote(context.Background(), "A")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.GetQuote(ctx, "B")
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGetQuote_ThroughFetchTimeout(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(block)

	_, err := market.Fetch(context.Background(), newTestClient(t, server, Paths{}), "NVDA", 20*time.Millisecond)
	assert.ErrorIs(t, err, market.ErrQuoteUnavailable)
}

func TestNewClientRequiresPlaceholder(t *testing.T) {
	_, err := NewClient(Options{URL: "https://example.com/quote"})
	assert.Error(t, err)
}
