package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "inoli",
	Short: "Mi Band 1 relay",
	Long: `inoli keeps a Mi Band 1 family fitness band connected over Bluetooth Low Energy
and relays it to local programs through a unix socket:

- Authenticate with the band and keep the link alive across drops
- Publish live battery, step and heart-rate readings to every attached client
- Accept control commands (alerts, heart-rate modes, step counter) from clients
- Monitor the relay from a terminal UI or send one-off requests`,
	Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(configCmd)

	// Global flags; names match config keys with dashes for underscores
	rootCmd.PersistentFlags().String("config", "", "Config file (default $HOME/.config/inoli/inoli.yaml or ./inoli.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("socket", "/tmp/inoli.sock", "Relay socket path")
	rootCmd.PersistentFlags().Int("adapter", 0, "HCI adapter index")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
