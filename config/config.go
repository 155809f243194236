// Package config holds Sentinel's application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rustyeddy/sentinel/quotes"
	"github.com/rustyeddy/sentinel/risk"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Constitution ConstitutionConfig `json:"constitution" yaml:"constitution"`
	Journal      JournalConfig      `json:"journal" yaml:"journal"`
	Quotes       QuotesConfig       `json:"quotes" yaml:"quotes"`
	Rules        RulesConfig        `json:"rules" yaml:"rules"`
	Pipeline     PipelineConfig     `json:"pipeline" yaml:"pipeline"`
	Broker       BrokerConfig       `json:"broker" yaml:"broker"`
	API          APIConfig          `json:"api" yaml:"api"`
	Log          LogConfig          `json:"log" yaml:"log"`
	Actor        string             `json:"actor" yaml:"actor"`
}

// ConstitutionConfig locates the persisted constitution. An empty path keeps
// it in memory.
type ConstitutionConfig struct {
	Path string `json:"path" yaml:"path"`
}

// JournalConfig locates the SQLite ledger. An empty path keeps it in memory.
type JournalConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

type QuotesConfig struct {
	Provider      string            `json:"provider" yaml:"provider"` // "static" or "http"
	URL           string            `json:"url,omitempty" yaml:"url,omitempty"`
	Token         string            `json:"token,omitempty" yaml:"token,omitempty"`
	Timeout       time.Duration     `json:"timeout" yaml:"timeout"`
	CacheTTL      time.Duration     `json:"cache_ttl" yaml:"cache_ttl"`
	RatePerSecond float64           `json:"rate_per_second" yaml:"rate_per_second"`
	Burst         int               `json:"burst" yaml:"burst"`
	Paths         quotes.Paths      `json:"paths" yaml:"paths"`
	Static        map[string]string `json:"static,omitempty" yaml:"static,omitempty"`
}

type RulesConfig struct {
	Timezone         string                     `json:"timezone" yaml:"timezone"`
	Ceilings         map[string]decimal.Decimal `json:"ceilings" yaml:"ceilings"`
	RevengeLossCount int                        `json:"revenge_loss_count" yaml:"revenge_loss_count"`
	RevengeWindow    time.Duration              `json:"revenge_window" yaml:"revenge_window"`
}

type PipelineConfig struct {
	QuoteMaxAge time.Duration `json:"quote_max_age" yaml:"quote_max_age"`
	ExecTimeout time.Duration `json:"exec_timeout" yaml:"exec_timeout"`
}

// BrokerConfig tunes the simulated order router.
type BrokerConfig struct {
	Latency     time.Duration `json:"latency" yaml:"latency"`
	FailureRate float64       `json:"failure_rate" yaml:"failure_rate"`
}

type APIConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "json" or "console"
}

// Default returns a configuration that runs locally with no external
// services.
func Default() *Config {
	ceilings := map[string]decimal.Decimal{}
	for m, v := range risk.DefaultCeilings() {
		ceilings[strings.ToLower(string(m))] = v
	}
	return &Config{
		Constitution: ConstitutionConfig{Path: "./constitution.yaml"},
		Journal:      JournalConfig{DBPath: "./sentinel.db"},
		Quotes: QuotesConfig{
			Provider: "static",
			Timeout:  5 * time.Second,
			CacheTTL: 5 * time.Second,
			Burst:    1,
			Paths:    quotes.DefaultPaths(),
			Static: map[string]string{
				"AAPL": "189.50",
				"MSFT": "415.20",
				"NVDA": "130.00",
				"SPY":  "512.40",
				"TSLA": "248.75",
			},
		},
		Rules: RulesConfig{
			Timezone:         "Local",
			Ceilings:         ceilings,
			RevengeLossCount: 3,
			RevengeWindow:    time.Hour,
		},
		Pipeline: PipelineConfig{
			QuoteMaxAge: 30 * time.Second,
			ExecTimeout: 30 * time.Second,
		},
		Broker: BrokerConfig{Latency: 250 * time.Millisecond},
		API:    APIConfig{Addr: "127.0.0.1:8686"},
		Log:    LogConfig{Level: "info", Format: "console"},
		Actor:  "local",
	}
}

// Validate returns the first problem found.
func (c *Config) Validate() error {
	switch c.Quotes.Provider {
	case "static":
		for t, p := range c.Quotes.Static {
			if d, err := decimal.NewFromString(p); err != nil || !d.IsPositive() {
				return fmt.Errorf("quotes.static.%s must be a positive price", t)
			}
		}
	case "http":
		if c.Quotes.URL == "" {
			return fmt.Errorf("quotes.url is required for the http provider")
		}
		if !strings.Contains(c.Quotes.URL, "{ticker}") {
			return fmt.Errorf("quotes.url must contain {ticker}")
		}
	default:
		return fmt.Errorf("quotes.provider must be 'static' or 'http'")
	}
	if c.Quotes.Timeout <= 0 {
		return fmt.Errorf("quotes.timeout must be positive")
	}
	if c.Quotes.CacheTTL < 0 {
		return fmt.Errorf("quotes.cache_ttl cannot be negative")
	}
	if c.Quotes.RatePerSecond < 0 {
		return fmt.Errorf("quotes.rate_per_second cannot be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("rules.timezone: %w", err)
	}
	if _, err := c.Ceilings(); err != nil {
		return err
	}
	if c.Rules.RevengeLossCount < 0 {
		return fmt.Errorf("rules.revenge_loss_count cannot be negative")
	}
	if c.Rules.RevengeWindow <= 0 {
		return fmt.Errorf("rules.revenge_window must be positive")
	}
	if c.Pipeline.QuoteMaxAge <= 0 {
		return fmt.Errorf("pipeline.quote_max_age must be positive")
	}
	if c.Quotes.CacheTTL > c.Pipeline.QuoteMaxAge {
		return fmt.Errorf("quotes.cache_ttl (%s) cannot exceed pipeline.quote_max_age (%s)",
			c.Quotes.CacheTTL, c.Pipeline.QuoteMaxAge)
	}
	if c.Pipeline.ExecTimeout <= 0 {
		return fmt.Errorf("pipeline.exec_timeout must be positive")
	}
	if c.Broker.Latency < 0 {
		return fmt.Errorf("broker.latency cannot be negative")
	}
	if c.Broker.FailureRate < 0 || c.Broker.FailureRate > 1 {
		return fmt.Errorf("broker.failure_rate must be between 0 and 1")
	}
	if c.API.Addr == "" {
		return fmt.Errorf("api.addr is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}
	return nil
}

// Location resolves rules.timezone; "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Rules.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	return time.LoadLocation(c.Rules.Timezone)
}

// Ceilings converts rules.ceilings into per-mode limits.
func (c *Config) Ceilings() (risk.Ceilings, error) {
	out := risk.Ceilings{}
	for name, v := range c.Rules.Ceilings {
		m, err := risk.ParseRiskMode(name)
		if err != nil {
			return nil, fmt.Errorf("rules.ceilings: %w", err)
		}
		if !v.IsPositive() {
			return nil, fmt.Errorf("rules.ceilings.%s must be positive", name)
		}
		out[m] = v
	}
	return out, nil
}

// Engine builds the risk engine settings. Call Validate first.
func (c *Config) Engine(now func() time.Time) risk.Config {
	loc, _ := c.Location()
	ceilings, _ := c.Ceilings()
	return risk.Config{
		Ceilings:         ceilings,
		Location:         loc,
		RevengeLossCount: c.Rules.RevengeLossCount,
		RevengeWindow:    c.Rules.RevengeWindow,
		Now:              now,
	}
}

// SaveToFile writes the configuration as JSON for .json paths and YAML
// otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
