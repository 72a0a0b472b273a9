package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/inoli/internal/ipc"
)

// ErrNoDevice is returned when a command arrives while no band is connected.
var ErrNoDevice = errors.New("no device connected")

// UnsupportedError reports a command the connected model cannot serve.
type UnsupportedError struct {
	Command ipc.Command
	Model   string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s is not supported by %s", e.Command, e.Model)
}

// RunCommands applies queued commands until ctx is done or cmds is closed.
// Failures are logged and never stop the loop.
func (o *Orchestrator) RunCommands(ctx context.Context, cmds <-chan ipc.Command) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-cmds:
			if !ok {
				return nil
			}
			if err := o.Dispatch(ctx, cmd); err != nil {
				entry := o.logger.WithFields(logrus.Fields{"command": cmd.String(), "error": err})
				var unsupported *UnsupportedError
				if errors.Is(err, ErrNoDevice) || errors.As(err, &unsupported) {
					entry.Info("Command dropped")
				} else {
					entry.Warn("Command failed")
				}
			}
		}
	}
}

// Dispatch applies one command to the current device. Reads are published to
// the broker as messages.
func (o *Orchestrator) Dispatch(ctx context.Context, cmd ipc.Command) error {
	dev := o.Current()
	if dev == nil {
		return ErrNoDevice
	}
	unsupported := &UnsupportedError{Command: cmd, Model: dev.Model()}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch cmd.Kind {
	case ipc.KindBattery:
		b, ok := dev.AsBattery()
		if !ok {
			return unsupported
		}
		info, err := b.Battery(ctx)
		if err != nil {
			return err
		}
		return o.broker.Publish(ctx, ipc.BatteryMessage(info.Level))

	case ipc.KindSteps:
		s, ok := dev.AsSteps()
		if !ok {
			return unsupported
		}
		if cmd.Action == ipc.Set {
			return s.SetSteps(ctx, cmd.Steps)
		}
		steps, err := s.Steps(ctx)
		if err != nil {
			return err
		}
		return o.broker.Publish(ctx, ipc.StepsMessage(steps))

	case ipc.KindHeartrate, ipc.KindHeartrateContinuous, ipc.KindHeartrateSleep:
		h, ok := dev.AsHeartRate()
		if !ok {
			return unsupported
		}
		switch cmd.Kind {
		case ipc.KindHeartrateContinuous:
			return h.SetHeartRateContinuous(ctx, cmd.Enable)
		case ipc.KindHeartrateSleep:
			return h.SetHeartRateSleep(ctx, cmd.Enable)
		}
		return h.MeasureHeartRate(ctx)

	case ipc.KindAlert:
		a, ok := dev.AsAlert()
		if !ok {
			return unsupported
		}
		return a.Alert(ctx, cmd.Level)
	}

	s, ok := dev.AsSettings()
	if !ok {
		return unsupported
	}
	switch cmd.Kind {
	case ipc.KindName:
		name, err := s.Name(ctx)
		if err != nil {
			return err
		}
		o.logger.WithFields(logrus.Fields{"address": dev.Address(), "name": name}).Info("Band name")
		return nil
	case ipc.KindDateTime:
		when := cmd.Time
		if when.IsZero() {
			when = time.Now()
		}
		return s.SetDateTime(ctx, when)
	case ipc.KindAlarm:
		if cmd.Action != ipc.Set {
			return unsupported
		}
		return s.SetAlarm(ctx, cmd.Alarm)
	case ipc.KindWearLocation:
		if cmd.Action != ipc.Set {
			return unsupported
		}
		return s.SetWearLocation(ctx, cmd.Wear)
	}
	return fmt.Errorf("unhandled command %s", cmd)
}
