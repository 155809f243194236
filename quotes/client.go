// Package quotes fetches quotes from an HTTP JSON provider. Field locations
// in the response are configurable, so any provider returning one JSON
// object per ticker can be used.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rustyeddy/sentinel/market"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

var ErrBadResponse = errors.New("unusable quote response")

// Paths are gjson paths into the provider's response body.
type Paths struct {
	Price         string `json:"price" yaml:"price"`
	ChangePercent string `json:"change_percent" yaml:"change_percent"`
	Volume        string `json:"volume" yaml:"volume"`
	Sentiment     string `json:"sentiment" yaml:"sentiment"`
	AsOf          string `json:"as_of" yaml:"as_of"`
}

func DefaultPaths() Paths {
	return Paths{
		Price:         "price",
		ChangePercent: "changePercent",
		Volume:        "volume",
		Sentiment:     "sentiment",
		AsOf:          "asOf",
	}
}

type Options struct {
	// URL is the request URL; "{ticker}" is replaced with the escaped
	// symbol.
	URL     string
	Token   string
	Timeout time.Duration
	// RatePerSecond limits outgoing requests; zero disables limiting.
	RatePerSecond float64
	Burst         int
	Paths         Paths
	HTTP          *http.Client
	Now           func() time.Time
}

// Client is a market.QuoteSource backed by an HTTP API.
type Client struct {
	url        string
	token      string
	paths      Paths
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

func NewClient(opts Options) (*Client, error) {
	if !strings.Contains(opts.URL, "{ticker}") {
		return nil, fmt.Errorf("quote url %q must contain {ticker}", opts.URL)
	}
	if _, err := url.Parse(strings.ReplaceAll(opts.URL, "{ticker}", "X")); err != nil {
		return nil, fmt.Errorf("quote url: %w", err)
	}

	c := &Client{
		url:        opts.URL,
		token:      opts.Token,
		paths:      opts.Paths,
		httpClient: opts.HTTP,
		now:        opts.Now,
	}
	if c.paths.Price == "" {
		c.paths = DefaultPaths()
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return c, nil
}

// GetQuote fetches the current quote for ticker.
func (c *Client) GetQuote(ctx context.Context, ticker string) (market.Quote, error) {
	ticker = market.NormalizeTicker(ticker)
	if ticker == "" {
		return market.Quote{}, fmt.Errorf("ticker is required")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return market.Quote{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	apiURL := strings.ReplaceAll(c.url, "{ticker}", url.PathEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return market.Quote{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return market.Quote{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return market.Quote{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return market.Quote{}, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return c.parse(ticker, body)
}

func (c *Client) parse(ticker string, body []byte) (market.Quote, error) {
	if !gjson.ValidBytes(body) {
		return market.Quote{}, fmt.Errorf("%w: body is not JSON", ErrBadResponse)
	}

	res := gjson.GetManyBytes(body, c.paths.Price, c.paths.ChangePercent, c.paths.Volume, c.paths.Sentiment, c.paths.AsOf)
	price, change, volume, sentiment, asOf := res[0], res[1], res[2], res[3], res[4]

	if !price.Exists() {
		return market.Quote{}, fmt.Errorf("%w: no price at %q", ErrBadResponse, c.paths.Price)
	}
	p, err := decimal.NewFromString(price.String())
	if err != nil {
		return market.Quote{}, fmt.Errorf("%w: price %q: %v", ErrBadResponse, price.String(), err)
	}
	if !p.IsPositive() {
		return market.Quote{}, fmt.Errorf("%w: price %s is not positive", ErrBadResponse, p)
	}

	q := market.Quote{
		Ticker:        ticker,
		Price:         p,
		ChangePercent: change.Float(),
		Volume:        volume.String(),
		Sentiment:     market.ParseSentiment(sentiment.String()),
		AsOf:          c.now().UTC(),
	}
	if asOf.Exists() {
		switch asOf.Type {
		case gjson.Number:
			q.AsOf = time.Unix(asOf.Int(), 0).UTC()
		default:
			t, err := time.Parse(time.RFC3339, asOf.String())
			if err != nil {
				return market.Quote{}, fmt.Errorf("%w: as of %q: %v", ErrBadResponse, asOf.String(), err)
			}
			q.AsOf = t.UTC()
		}
	}
	return q, nil
}
