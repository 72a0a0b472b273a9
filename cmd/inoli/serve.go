package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/inoli/internal/orchestrator"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the band and run the relay",
	Long: `Run the relay: listen on the socket, find a supported band, authenticate and
keep it connected. Telemetry is broadcast to every attached client and
commands from clients are applied to the band.

The first connection to a band requires confirming the pairing by tapping
the band when it vibrates.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Duration("scan-timeout", 10*time.Second, "How long one discovery scan runs")
	serveCmd.Flags().Duration("connect-timeout", 30*time.Second, "Link establishment timeout")
	serveCmd.Flags().Duration("auth-timeout", 90*time.Second, "Pairing confirmation timeout (0 waits for the band)")
	serveCmd.Flags().Duration("reconnect-interval", 3*time.Second, "Minimum pause between connect attempts")
	serveCmd.Flags().Duration("poll-interval", time.Minute, "Battery poll period (0 disables)")
	serveCmd.Flags().Int("command-queue", 64, "Pending client commands kept before the oldest is dropped")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"socket":  cfg.Socket,
		"adapter": cfg.Adapter,
		"devices": len(cfg.Devices),
	}).Info("Starting relay")

	if err := orchestrator.Serve(ctx, cfg, logger); err != nil {
		return err
	}
	if ctx.Err() != nil {
		logger.Info("Relay stopped")
	}
	return nil
}
