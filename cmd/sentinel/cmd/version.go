package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the sentinel CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sentinel version %s\n", version)
		fmt.Fprintln(out, "Pre-trade risk guardrails for discretionary traders")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
