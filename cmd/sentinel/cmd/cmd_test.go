package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/sentinel/config"
	"github.com/rustyeddy/sentinel/constitution"
	"github.com/rustyeddy/sentinel/market"
	"github.com/rustyeddy/sentinel/pipeline"
	"github.com/rustyeddy/sentinel/risk"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntent(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		args    []string
		side    string
		mode    string
		wantErr bool
	}{
		{name: "buy balanced", args: []string{"nvda", "50"}, side: "buy", mode: "balanced"},
		{name: "sell aggressive", args: []string{"TSLA", "1.5"}, side: "SELL", mode: "Aggressive"},
		{name: "bad quantity", args: []string{"NVDA", "lots"}, side: "buy", mode: "balanced", wantErr: true},
		{name: "zero quantity", args: []string{"NVDA", "0"}, side: "buy", mode: "balanced", wantErr: true},
		{name: "bad side", args: []string{"NVDA", "5"}, side: "hold", mode: "balanced", wantErr: true},
		{name: "bad mode", args: []string{"NVDA", "5"}, side: "buy", mode: "yolo", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in, err := parseIntent(tt.args, tt.side, tt.mode, at)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.ToUpper(tt.args[0]), in.Ticker)
			assert.NotEmpty(t, in.ID)
			assert.Equal(t, at, in.RequestedAt)
		})
	}
}

func TestDayBounds(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC) // 22:00 on the 9th in New York

	start, end, err := dayBounds(ny, "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, ny), start)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, ny), end)

	start, _, err = dayBounds(ny, "2026-01-02", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, ny), start)

	_, _, err = dayBounds(ny, "01/02/2026", now)
	assert.Error(t, err)
}

func TestDecodeConstitution(t *testing.T) {
	t.Parallel()

	yml := []byte(`max_daily_loss: 2500
max_leverage: 2
cooldown_minutes: 30
block_revenge_trading: true
block_late_night: false
ai_coach_enabled: false
`)
	c, err := decodeConstitution("limits.yaml", yml)
	require.NoError(t, err)
	assert.True(t, c.MaxDailyLoss.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, 30, c.CooldownMinutes)
	assert.False(t, c.BlockLateNight)

	_, err = decodeConstitution("limits.yaml", []byte("max_daily_loss: 2500\n"))
	assert.ErrorIs(t, err, constitution.ErrInvalidConstitution)

	_, err = decodeConstitution("limits.json", []byte(`{"max_daily_loss": 1}`))
	assert.ErrorIs(t, err, constitution.ErrInvalidConstitution)
}

func TestConfirmPrompt(t *testing.T) {
	t.Parallel()
	h := pipeline.Handle{
		Intent:  risk.TradeIntent{Ticker: "NVDA", Side: market.Buy, Quantity: decimal.NewFromInt(5)},
		Quote:   market.Quote{Price: decimal.NewFromInt(130)},
		Verdict: risk.Verdict{EstimatedNotional: decimal.NewFromInt(650)},
	}

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		ok, err := confirm(strings.NewReader(tt.input), &out, h)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "input %q", tt.input)
		assert.Contains(t, out.String(), "Confirm BUY 5 NVDA @ 130.00 (notional 650.00)?")
	}
}

// run executes the CLI with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLIEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Journal.DBPath = filepath.Join(dir, "sentinel.db")
	cfg.Constitution.Path = filepath.Join(dir, "constitution.yaml")
	cfg.Broker.Latency = 0
	cfg.Log.Level = "error"
	cfgPath := filepath.Join(dir, "sentinel.yaml")
	require.NoError(t, cfg.SaveToFile(cfgPath))

	limits := filepath.Join(dir, "limits.json")
	require.NoError(t, os.WriteFile(limits, []byte(`{
		"max_daily_loss": 5000,
		"max_leverage": 3,
		"cooldown_minutes": 15,
		"block_revenge_trading": true,
		"block_late_night": false,
		"ai_coach_enabled": true
	}`), 0o644))

	out, err := run(t, "--config", cfgPath, "constitution", "set", "-f", limits)
	require.NoError(t, err, out)
	assert.Contains(t, out, "block_late_night: false")

	out, err = run(t, "--config", cfgPath, "check", "NVDA", "10")
	require.NoError(t, err, out)
	assert.Contains(t, out, "APPROVED BUY 10 NVDA")

	out, err = run(t, "--config", cfgPath, "trade", "TSLA", "1000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTIONAL_EXCEEDED")

	out, err = run(t, "--config", cfgPath, "trade", "NVDA", "10", "--yes")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ FILLED BUY 10 NVDA @ 130.00")
	m := regexp.MustCompile(`\(trade (\w+)\)`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	tradeID := m[1]

	out, err = run(t, "--config", cfgPath, "journal", "settle", tradeID, "--", "-250")
	require.NoError(t, err, out)
	assert.Contains(t, out, "P&L -250.00")

	_, err = run(t, "--config", cfgPath, "journal", "settle", tradeID, "--", "-250")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already settled")

	out, err = run(t, "--config", cfgPath, "journal", "tag", tradeID, "fear", "--lessons", "cut it before the stop")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Tagged "+tradeID+": FEAR")

	_, err = run(t, "--config", cfgPath, "journal", "tag", tradeID, "boredom")
	require.Error(t, err)

	out, err = run(t, "--config", cfgPath, "journal", "autopsy", tradeID)
	require.NoError(t, err, out)
	assert.Contains(t, out, ":TRADE_ID: "+tradeID)
	assert.Contains(t, out, ":REF: "+tradeID)
	assert.Contains(t, out, ":PNL: -250.00")
	assert.Contains(t, out, ":EMOTION: FEAR")
	assert.Contains(t, out, "- cut it before the stop")

	out, err = run(t, "--config", cfgPath, "journal", "recent", "-n", "5")
	require.NoError(t, err, out)
	assert.Contains(t, out, "NOTIONAL_EXCEEDED")
	assert.Contains(t, out, "FILLED")

	out, err = run(t, "--config", cfgPath, "risk")
	require.NoError(t, err, out)
	assert.Contains(t, out, "(SAFE)")
	assert.Contains(t, out, "Daily P&L:      -250.00")

	out, err = run(t, "--config", cfgPath, "constitution", "reset")
	require.NoError(t, err, out)
	assert.Contains(t, out, "block_late_night: true")
}
