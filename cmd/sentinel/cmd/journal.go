package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rustyeddy/sentinel/config"
	"github.com/rustyeddy/sentinel/journal"
	"github.com/rustyeddy/sentinel/sentinel"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade ledger",
	Long: `Query and export the trade ledger.

Subcommands:
  recent   - List the most recent entries
  day      - List entries for a day
  export   - Write a day's entries as CSV or Org
  autopsy  - Print an Org review block for one trade
  settle   - Book realised P&L against a filled trade
  tag      - Record the emotion and lessons behind a trade

Examples:
  sentinel journal recent -n 10
  sentinel journal day 2026-03-09
  sentinel journal export --date 2026-03-09 -o trades.csv
  sentinel journal autopsy <trade-id>
  sentinel journal settle <trade-id> -- -250.00
  sentinel journal tag <trade-id> fear --lessons "sold into the dip"`,
}

var journalRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recent entries, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJournalRecent,
}

var journalDayCmd = &cobra.Command{
	Use:   "day [YYYY-MM-DD]",
	Short: "List entries for a day (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalDay,
}

var journalExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a day's entries",
	Args:  cobra.NoArgs,
	RunE:  runJournalExport,
}

var journalAutopsyCmd = &cobra.Command{
	Use:   "autopsy <trade-id>",
	Short: "Print an Org-mode review block for a trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalAutopsy,
}

var journalSettleCmd = &cobra.Command{
	Use:   "settle <trade-id> <pnl>",
	Short: "Book realised P&L against a filled trade",
	Args:  cobra.ExactArgs(2),
	RunE:  runJournalSettle,
}

var journalTagCmd = &cobra.Command{
	Use:   "tag <trade-id> [FEAR|GREED|REVENGE|DISCIPLINE]",
	Short: "Record the emotion and lessons behind a trade",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runJournalTag,
}

var (
	journalTagLessons string
	journalRecentN    int
	journalExportDate string
	journalExportFmt  string
	journalExportOut  string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRecentCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalExportCmd)
	journalCmd.AddCommand(journalAutopsyCmd)
	journalCmd.AddCommand(journalSettleCmd)
	journalCmd.AddCommand(journalTagCmd)

	journalRecentCmd.Flags().IntVarP(&journalRecentN, "number", "n", 20, "entries to show (0 for all)")
	journalExportCmd.Flags().StringVar(&journalExportDate, "date", "", "day to export, YYYY-MM-DD (default today)")
	journalExportCmd.Flags().StringVar(&journalExportFmt, "format", "csv", "csv or org")
	journalExportCmd.Flags().StringVarP(&journalExportOut, "output", "o", "", "output file (default stdout)")
	journalTagCmd.Flags().StringVarP(&journalTagLessons, "lessons", "l", "", "what to carry into the next trade")
}

func runJournalRecent(cmd *cobra.Command, args []string) error {
	if journalRecentN < 0 {
		return fmt.Errorf("--number must be >= 0")
	}
	return withRuntime(func(rt *sentinel.Runtime, _ *config.Config) error {
		printTrades(cmd.OutOrStdout(), rt.RecentOutcomes(journalRecentN))
		return nil
	})
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	day := ""
	if len(args) == 1 {
		day = args[0]
	}
	return withRuntime(func(rt *sentinel.Runtime, _ *config.Config) error {
		start, end, err := dayBounds(rt.Engine().Location(), day, rt.Engine().Now())
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
		trades, err := tradesBetween(rt, start, end)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printTrades(out, trades)
		fmt.Fprintf(out, "\nRealised P&L %s: %s\n", start.Format(time.DateOnly), rt.DailyPnL(start).StringFixed(2))
		return nil
	})
}

func runJournalExport(cmd *cobra.Command, args []string) error {
	if journalExportFmt != "csv" && journalExportFmt != "org" {
		return fmt.Errorf("--format must be csv or org, got %q", journalExportFmt)
	}
	return withRuntime(func(rt *sentinel.Runtime, _ *config.Config) error {
		start, end, err := dayBounds(rt.Engine().Location(), journalExportDate, rt.Engine().Now())
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
		trades, err := tradesBetween(rt, start, end)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if journalExportOut != "" {
			f, err := os.Create(journalExportOut)
			if err != nil {
				return fmt.Errorf("create export: %w", err)
			}
			defer f.Close()
			out = f
		}

		if journalExportFmt == "org" {
			_, err = fmt.Fprintln(out, journal.FormatTradesOrg(trades))
			return err
		}
		return journal.WriteCSV(out, trades)
	})
}

func runJournalAutopsy(cmd *cobra.Command, args []string) error {
	return withRuntime(func(rt *sentinel.Runtime, _ *config.Config) error {
		t, corrections, err := tradeWithCorrections(rt, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, journal.FormatTradeOrg(t))
		for _, c := range corrections {
			fmt.Fprintln(out)
			fmt.Fprintln(out, journal.FormatTradeOrg(c))
		}
		return nil
	})
}

func runJournalSettle(cmd *cobra.Command, args []string) error {
	pnl, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("pnl %q: %w", args[1], err)
	}
	return withRuntime(func(rt *sentinel.Runtime, _ *config.Config) error {
		t, err := rt.Settle(args[0], pnl)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Settled %s: P&L %s (entry %s)\n", args[0], pnl.StringFixed(2), t.ID)
		return nil
	})
}

func runJournalTag(cmd *cobra.Command, args []string) error {
	var emotion journal.Emotion
	if len(args) == 2 {
		e, err := journal.ParseEmotion(args[1])
		if err != nil {
			return err
		}
		emotion = e
	}
	return withRuntime(func(rt *sentinel.Runtime, _ *config.Config) error {
		t, err := rt.Annotate(args[0], emotion, journalTagLessons)
		if err != nil {
			return err
		}
		label := string(emotion)
		if label == "" {
			label = "lessons"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Tagged %s: %s (entry %s)\n", args[0], label, t.ID)
		return nil
	})
}

// dayBounds returns [start, end) for day in loc. An empty day means the day
// containing now.
func dayBounds(loc *time.Location, day string, now time.Time) (time.Time, time.Time, error) {
	if day == "" {
		day = now.In(loc).Format(time.DateOnly)
	}
	return journal.DayBounds(loc, day)
}

// tradesBetween reads from the database when there is one, so entries come
// back in timestamp order, and from the in-memory ledger otherwise.
func tradesBetween(rt *sentinel.Runtime, start, end time.Time) ([]journal.Trade, error) {
	if rt.SQLite == nil {
		return rt.Trades(start, end), nil
	}
	trades, err := rt.SQLite.ListBetween(start, end)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	return trades, nil
}

func tradeWithCorrections(rt *sentinel.Runtime, tradeID string) (journal.Trade, []journal.Trade, error) {
	if rt.SQLite == nil {
		return rt.Trade(tradeID)
	}
	t, err := rt.SQLite.GetTrade(tradeID)
	if err != nil {
		return journal.Trade{}, nil, err
	}
	corrections, err := rt.SQLite.Corrections(tradeID)
	if err != nil {
		return journal.Trade{}, nil, fmt.Errorf("query corrections: %w", err)
	}
	return t, corrections, nil
}

func printTrades(out io.Writer, trades []journal.Trade) {
	if len(trades) == 0 {
		fmt.Fprintln(out, "No entries.")
		return
	}
	fmt.Fprintf(out, "%-10s %-20s %-6s %-4s %10s %10s %-8s %10s  %s\n",
		"ID", "TIME", "TICKER", "SIDE", "QTY", "PRICE", "STATUS", "PNL", "NOTE")
	for _, t := range trades {
		pnl := "-"
		if t.PnL.Valid {
			pnl = t.PnL.Decimal.StringFixed(2)
		}
		note := t.BlockReason
		switch {
		case t.IsAnnotation():
			note = "tags " + shortID(t.Ref)
			if t.Emotion != "" {
				note += " " + string(t.Emotion)
			}
		case t.Ref != "":
			note = "settles " + shortID(t.Ref)
		case t.OverrideUsed:
			note = "override"
		}
		fmt.Fprintf(out, "%-10s %-20s %-6s %-4s %10s %10s %-8s %10s  %s\n",
			shortID(t.ID), t.Timestamp.Local().Format("2006-01-02 15:04:05"), t.Ticker, t.Side,
			t.Quantity, t.Price.StringFixed(2), t.Status, pnl, note)
	}
}

func shortID(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
