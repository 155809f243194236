package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rustyeddy/sentinel/config"
	"github.com/rustyeddy/sentinel/market"
	"github.com/rustyeddy/sentinel/pipeline"
	"github.com/rustyeddy/sentinel/risk"
	"github.com/rustyeddy/sentinel/sentinel"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <ticker> <quantity>",
	Short: "Evaluate a trade intent without executing it",
	Long: `Run an intent through the rule engine and print the verdict.

Blocked verdicts are still written to the ledger.

Examples:
  sentinel check NVDA 50
  sentinel check TSLA 400 --side sell --mode aggressive`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

var tradeCmd = &cobra.Command{
	Use:   "trade <ticker> <quantity>",
	Short: "Evaluate, confirm and execute a trade",
	Long: `Evaluate an intent and, when approved, stage it for confirmation
and send it to the simulated order router.

A blocked intent proceeds only with --justify, which records an override
in the audit log.

Examples:
  sentinel trade NVDA 50
  sentinel trade TSLA 400 --justify "closing a hedge" --yes`,
	Args: cobra.ExactArgs(2),
	RunE: runTrade,
}

var (
	intentSide    string
	intentMode    string
	tradeJustify  string
	tradeActor    string
	tradeAssumeOK bool
)

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(tradeCmd)

	for _, c := range []*cobra.Command{checkCmd, tradeCmd} {
		c.Flags().StringVarP(&intentSide, "side", "s", "buy", "order side (buy or sell)")
		c.Flags().StringVarP(&intentMode, "mode", "m", "balanced", "risk mode (conservative, balanced, aggressive)")
	}
	tradeCmd.Flags().StringVarP(&tradeJustify, "justify", "j", "", "justification for overriding a block")
	tradeCmd.Flags().StringVar(&tradeActor, "actor", "", "actor recorded on an override (default: config actor)")
	tradeCmd.Flags().BoolVarP(&tradeAssumeOK, "yes", "y", false, "confirm without prompting")
}

// parseIntent builds an intent from positional args and the side and mode
// flags.
func parseIntent(args []string, side, mode string, at time.Time) (risk.TradeIntent, error) {
	qty, err := decimal.NewFromString(args[1])
	if err != nil {
		return risk.TradeIntent{}, fmt.Errorf("quantity %q: %w", args[1], err)
	}
	s, err := market.ParseSide(side)
	if err != nil {
		return risk.TradeIntent{}, err
	}
	m, err := risk.ParseRiskMode(mode)
	if err != nil {
		return risk.TradeIntent{}, err
	}
	intent := risk.NewIntent(args[0], s, qty, m, at)
	if err := intent.Validate(); err != nil {
		return risk.TradeIntent{}, err
	}
	return intent, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	intent, err := parseIntent(args, intentSide, intentMode, time.Now())
	if err != nil {
		return err
	}
	return withRuntime(func(rt *sentinel.Runtime, _ *config.Config) error {
		v := rt.Evaluate(cmd.Context(), intent)
		printVerdict(cmd.OutOrStdout(), v)
		return v.Err()
	})
}

func runTrade(cmd *cobra.Command, args []string) error {
	intent, err := parseIntent(args, intentSide, intentMode, time.Now())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if tradeActor != "" {
		ctx = sentinel.WithActor(ctx, tradeActor)
	}

	return withRuntime(func(rt *sentinel.Runtime, _ *config.Config) error {
		out := cmd.OutOrStdout()
		v := rt.Evaluate(ctx, intent)
		printVerdict(out, v)

		clr := pipeline.Clearance{Verdict: v}
		switch {
		case v.IsError():
			return v.Err()
		case v.IsBlocked() && tradeJustify == "":
			return fmt.Errorf("trade blocked by %s; rerun with --justify to override", v.Reason)
		case v.IsBlocked():
			rec, err := rt.RequestOverride(ctx, v, tradeJustify)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Override %s granted to %s\n", rec.Token, rec.Actor)
			clr.Override = &rec
		}

		h, err := rt.Submit(ctx, clr)
		if err != nil {
			return err
		}

		if !tradeAssumeOK {
			ok, err := confirm(cmd.InOrStdin(), out, h)
			if err != nil || !ok {
				if cerr := rt.Cancel(h.ID); cerr != nil {
					return errors.Join(err, cerr)
				}
				fmt.Fprintln(out, "Cancelled.")
				return err
			}
		}

		tr, err := rt.Confirm(ctx, h.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ %s %s %s %s @ %s (trade %s)\n",
			tr.Status, tr.Side, tr.Quantity, tr.Ticker, tr.Price.StringFixed(2), tr.ID)
		return nil
	})
}

// confirm asks the user to accept the staged handle.
func confirm(in io.Reader, out io.Writer, h pipeline.Handle) (bool, error) {
	fmt.Fprintf(out, "Confirm %s %s %s @ %s (notional %s)? [y/N] ",
		h.Intent.Side, h.Intent.Quantity, h.Intent.Ticker,
		h.Quote.Price.StringFixed(2), h.Verdict.EstimatedNotional.StringFixed(2))

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func printVerdict(out io.Writer, v risk.Verdict) {
	fmt.Fprintf(out, "%s %s %s %s\n", v.Outcome, v.Intent.Side, v.Intent.Quantity, v.Intent.Ticker)
	if v.Reason != "" {
		fmt.Fprintf(out, "  Reason:   %s\n", v.Reason)
	}
	if v.Message != "" {
		fmt.Fprintf(out, "  Message:  %s\n", v.Message)
	}
	if !v.IsError() {
		fmt.Fprintf(out, "  Price:    %s\n", v.Quote.Price.StringFixed(2))
		fmt.Fprintf(out, "  Notional: %s (ceiling %s, %s)\n",
			v.EstimatedNotional.StringFixed(2), v.Ceiling.StringFixed(2), v.Intent.Mode)
	}
}
