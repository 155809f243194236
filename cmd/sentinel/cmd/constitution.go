package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rustyeddy/sentinel/config"
	"github.com/rustyeddy/sentinel/constitution"
	"github.com/rustyeddy/sentinel/sentinel"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var constitutionCmd = &cobra.Command{
	Use:   "constitution",
	Short: "Show or change the risk constitution",
	Long: `Manage the limits Sentinel enforces.

Subcommands:
  show   - Print the active constitution
  set    - Replace it from a YAML or JSON document
  reset  - Restore the defaults

Examples:
  sentinel constitution show
  sentinel constitution set -f limits.yaml
  sentinel constitution reset`,
}

var constitutionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active constitution",
	Args:  cobra.NoArgs,
	RunE:  runConstitutionShow,
}

var constitutionSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the constitution from a file",
	Long: `Replace the constitution with a complete document. Every key is
required and unknown keys are rejected. Use "-" to read stdin.`,
	Args: cobra.NoArgs,
	RunE: runConstitutionSet,
}

var constitutionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default constitution",
	Args:  cobra.NoArgs,
	RunE:  runConstitutionReset,
}

var constitutionFile string

func init() {
	rootCmd.AddCommand(constitutionCmd)
	constitutionCmd.AddCommand(constitutionShowCmd)
	constitutionCmd.AddCommand(constitutionSetCmd)
	constitutionCmd.AddCommand(constitutionResetCmd)

	constitutionSetCmd.Flags().StringVarP(&constitutionFile, "file", "f", "", "constitution document (required)")
	constitutionSetCmd.MarkFlagRequired("file")
}

func runConstitutionShow(cmd *cobra.Command, args []string) error {
	return withRuntime(func(rt *sentinel.Runtime, _ *config.Config) error {
		return printConstitution(cmd.OutOrStdout(), rt.Constitution())
	})
}

func runConstitutionSet(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if constitutionFile == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(constitutionFile)
	}
	if err != nil {
		return fmt.Errorf("read constitution: %w", err)
	}
	c, err := decodeConstitution(constitutionFile, data)
	if err != nil {
		return err
	}

	return withRuntime(func(rt *sentinel.Runtime, _ *config.Config) error {
		if err := rt.ReplaceConstitution(c); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Constitution updated")
		return printConstitution(cmd.OutOrStdout(), rt.Constitution())
	})
}

func runConstitutionReset(cmd *cobra.Command, args []string) error {
	return withRuntime(func(rt *sentinel.Runtime, _ *config.Config) error {
		if err := rt.ResetConstitution(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Constitution reset to defaults")
		return printConstitution(cmd.OutOrStdout(), rt.Constitution())
	})
}

// decodeConstitution accepts JSON, or YAML which is converted to JSON so
// both go through the same schema check.
func decodeConstitution(name string, data []byte) (constitution.UserConstitution, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".json" {
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return constitution.UserConstitution{}, fmt.Errorf("%w: %v", constitution.ErrInvalidConstitution, err)
		}
		js, err := json.Marshal(doc)
		if err != nil {
			return constitution.UserConstitution{}, fmt.Errorf("%w: %v", constitution.ErrInvalidConstitution, err)
		}
		data = js
	}
	return constitution.DecodeJSON(data)
}

func printConstitution(out io.Writer, c constitution.UserConstitution) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
