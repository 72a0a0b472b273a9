package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/inoli/internal/device"
	goble "github.com/srg/inoli/internal/device/go-ble"
	"github.com/srg/inoli/internal/orchestrator"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby bands",
	Long: `Scan for Bluetooth Low Energy devices and mark the ones inoli can drive.

A device is supported when its address is in the built-in registry or in the
devices list of the config file.`,
	RunE: runScan,
}

var scanDuration time.Duration

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	if scanDuration <= 0 {
		return fmt.Errorf("invalid duration %s: must be positive", scanDuration)
	}

	bandOpts, err := orchestrator.BandOptions(cfg, logger)
	if err != nil {
		return err
	}
	registry, err := orchestrator.Registry(cfg, bandOpts)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "Scanning for %s...\n", scanDuration)
	advs, err := goble.NewScanner(cfg.Adapter, logger).Scan(ctx, scanDuration)
	if err != nil {
		return err
	}
	return displayScanResults(cmd.OutOrStdout(), advs, registry)
}

// displayScanResults prints supported devices first, then by signal strength,
// followed by the registered devices that did not answer.
func displayScanResults(out io.Writer, advs []device.Advertisement, registry *device.Registry) error {
	if len(advs) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return displayMissing(out, advs, registry)
	}

	type row struct {
		adv   device.Advertisement
		model string
	}
	rows := make([]row, 0, len(advs))
	for _, adv := range advs {
		r := row{adv: adv}
		if entry, ok := registry.Lookup(adv.Addr()); ok {
			r.model = entry.Model
		}
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if (rows[i].model != "") != (rows[j].model != "") {
			return rows[i].model != ""
		}
		return rows[i].adv.RSSI() > rows[j].adv.RSSI()
	})

	supported := color.New(color.FgGreen, color.Bold)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI\tMODEL")
	fmt.Fprintln(w, "-------\t----\t----\t-----")
	for _, r := range rows {
		name := r.adv.LocalName()
		if name == "" {
			name = "-"
		}
		model := "-"
		if r.model != "" {
			model = supported.Sprint(r.model)
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", r.adv.Addr(), name, r.adv.RSSI(), model)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return displayMissing(out, advs, registry)
}

func displayMissing(out io.Writer, advs []device.Advertisement, registry *device.Registry) error {
	seen := make(map[string]bool, len(advs))
	for _, adv := range advs {
		seen[device.NormalizeAddress(adv.Addr())] = true
	}
	var missing []device.RegistryEntry
	for _, e := range registry.Entries() {
		if !seen[e.Address] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	fmt.Fprintf(out, "\nRegistered but not seen (%d):\n", len(missing))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, e := range missing {
		fmt.Fprintf(w, "  %s\t%s\n", e.Address, e.Model)
	}
	return w.Flush()
}
