package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/inoli/internal/device"
	"github.com/srg/inoli/internal/ipc"
)

// requestCmd represents the request command
var requestCmd = &cobra.Command{
	Use:   "request <battery|steps|steps-set N|heartrate|hr-continuous on|off|alert mild|high|name>",
	Short: "Send one command to the relay",
	Long: `Send a single command frame to a running relay.

Reads (battery, steps, heartrate) wait for the matching reading and print it.
The band name is logged by the relay itself.`,
	Example: `  inoli request battery
  inoli request steps-set 0
  inoli request alert high
  inoli request hr-continuous on`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRequest,
}

var requestWait time.Duration

func init() {
	requestCmd.Flags().DurationVarP(&requestWait, "wait", "w", 5*time.Second, "How long to wait for a reading (0 to skip)")
}

// parseRequest maps command-line words onto a Command.
func parseRequest(args []string) (ipc.Command, error) {
	verb := strings.ToLower(args[0])
	arg := ""
	if len(args) > 1 {
		arg = strings.ToLower(args[1])
	}

	needArg := func() error {
		if arg == "" {
			return fmt.Errorf("%s requires an argument", verb)
		}
		return nil
	}
	noArg := func(cmd ipc.Command) (ipc.Command, error) {
		if arg != "" {
			return ipc.Command{}, fmt.Errorf("%s takes no argument", verb)
		}
		return cmd, nil
	}

	switch verb {
	case "battery":
		return noArg(ipc.Command{Kind: ipc.KindBattery, Action: ipc.Get})
	case "steps":
		return noArg(ipc.Command{Kind: ipc.KindSteps, Action: ipc.Get})
	case "heartrate", "hr":
		return noArg(ipc.Command{Kind: ipc.KindHeartrate, Action: ipc.Get})
	case "name":
		return noArg(ipc.Command{Kind: ipc.KindName, Action: ipc.Get})
	case "steps-set":
		if err := needArg(); err != nil {
			return ipc.Command{}, err
		}
		n, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return ipc.Command{}, fmt.Errorf("invalid step count %q: %w", arg, err)
		}
		return ipc.Command{Kind: ipc.KindSteps, Action: ipc.Set, Steps: uint32(n)}, nil
	case "hr-continuous":
		if err := needArg(); err != nil {
			return ipc.Command{}, err
		}
		enable, err := parseSwitch(arg)
		if err != nil {
			return ipc.Command{}, err
		}
		return ipc.Command{Kind: ipc.KindHeartrateContinuous, Action: ipc.Set, Enable: enable}, nil
	case "alert":
		if err := needArg(); err != nil {
			return ipc.Command{}, err
		}
		switch arg {
		case "mild":
			return ipc.Command{Kind: ipc.KindAlert, Action: ipc.Set, Level: device.AlertMild}, nil
		case "high":
			return ipc.Command{Kind: ipc.KindAlert, Action: ipc.Set, Level: device.AlertHigh}, nil
		}
		return ipc.Command{}, fmt.Errorf("invalid alert level %q (must be mild or high)", arg)
	}
	return ipc.Command{}, fmt.Errorf("unknown request %q", args[0])
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid switch %q (must be on or off)", s)
}

// replyKind is the message that answers cmd, if any.
func replyKind(cmd ipc.Command) (ipc.MessageKind, bool) {
	if cmd.Action != ipc.Get {
		return 0, false
	}
	switch cmd.Kind {
	case ipc.KindBattery:
		return ipc.MessageBattery, true
	case ipc.KindSteps:
		return ipc.MessageSteps, true
	case ipc.KindHeartrate:
		return ipc.MessageHeartrate, true
	}
	return 0, false
}

func runRequest(cmd *cobra.Command, args []string) error {
	req, err := parseRequest(args)
	if err != nil {
		return err
	}
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client, err := ipc.Dial(ctx, cfg.Socket, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	want, wait := replyKind(req)
	var messages <-chan ipc.Message
	if wait && requestWait > 0 {
		messages = client.Messages(ctx)
	}

	if err := client.Send(req); err != nil {
		return err
	}
	logger.WithField("command", req.String()).Debug("Request sent")
	if messages == nil {
		return nil
	}

	timeout := time.NewTimer(requestWait)
	defer timeout.Stop()
	for {
		select {
		case m, ok := <-messages:
			if !ok {
				return ErrRelayClosed
			}
			if m.Kind == want {
				fmt.Fprintln(cmd.OutOrStdout(), formatReading(m))
				return nil
			}
		case <-timeout.C:
			return fmt.Errorf("no %s reading within %s", want, requestWait)
		}
	}
}

func formatReading(m ipc.Message) string {
	switch m.Kind {
	case ipc.MessageBattery:
		return fmt.Sprintf("battery: %d%%", m.Value)
	case ipc.MessageHeartrate:
		return fmt.Sprintf("heart rate: %d bpm", m.Value)
	case ipc.MessageSteps:
		return fmt.Sprintf("steps: %d", m.Value)
	}
	return m.String()
}
