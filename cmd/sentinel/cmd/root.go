package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/sentinel/config"
	"github.com/rustyeddy/sentinel/logging"
	"github.com/rustyeddy/sentinel/sentinel"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Pre-trade risk guardrails for discretionary traders",
	Long: `Sentinel checks every trade intent against your risk constitution
before it reaches the broker.

It provides tools for:
  - Evaluating intents against daily loss, notional, revenge and cooldown rules
  - Overriding blocked verdicts with an audited justification
  - Confirming approved trades through a simulated order router
  - Reviewing the trade ledger and today's risk score

Settings come from a YAML or JSON file, SENTINEL_* environment variables
and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnv()
	},
}

var (
	cfgFile   string
	envFile   string
	logLevel  string
	logFormat string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override log.format (json or console)")
}

// loadEnv applies the dotenv file. A missing default file is fine; a
// missing file named on the command line is not.
func loadEnv() error {
	if envFile == "" {
		return nil
	}
	err := godotenv.Load(envFile)
	if errors.Is(err, fs.ErrNotExist) && !rootCmd.PersistentFlags().Changed("env-file") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// openRuntime loads configuration and builds the service. Callers must
// close the returned runtime and sync the logger.
func openRuntime() (*sentinel.Runtime, *config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, nil, err
	}
	rt, err := sentinel.Open(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	return rt, cfg, logger, nil
}

// withRuntime runs fn against a freshly opened runtime and releases it.
func withRuntime(fn func(rt *sentinel.Runtime, cfg *config.Config) error) error {
	rt, cfg, logger, err := openRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer rt.Close()
	return fn(rt, cfg)
}
