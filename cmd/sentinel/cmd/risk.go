package cmd

import (
	"fmt"

	"github.com/rustyeddy/sentinel/config"
	"github.com/rustyeddy/sentinel/sentinel"
	"github.com/spf13/cobra"
)

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Show today's risk score",
	Long: `Report how much of today's daily loss budget has been used.

The score runs from 0 to 100: below 50 is SAFE, below 80 WARNING, and
DANGER above that.`,
	Args: cobra.NoArgs,
	RunE: runRisk,
}

func init() {
	rootCmd.AddCommand(riskCmd)
}

func runRisk(cmd *cobra.Command, args []string) error {
	return withRuntime(func(rt *sentinel.Runtime, _ *config.Config) error {
		r, err := rt.RiskScore()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Risk score %s: %.1f (%s)\n", r.Date, r.Score, r.Band)
		fmt.Fprintf(out, "  Daily P&L:      %s\n", r.DailyPnL.StringFixed(2))
		fmt.Fprintf(out, "  Max daily loss: %s\n", r.MaxDailyLoss.StringFixed(2))
		return nil
	})
}
