package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/sentinel/api"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Run the Sentinel HTTP/JSON API until interrupted.

Example:
  sentinel serve --addr 127.0.0.1:8686`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: api.addr from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, cfg, logger, err := openRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer rt.Close()

	addr := cfg.API.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv, err := api.NewServer(api.ServerConfig{Addr: addr, Service: rt.Service, Logger: logger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Start(ctx); err != nil {
		logger.Error("api stopped", zap.Error(err))
		return err
	}
	logger.Info("api shut down")
	return nil
}
