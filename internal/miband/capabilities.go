package miband

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/inoli/internal/codec"
	"github.com/srg/inoli/internal/device"
)

// ----------------------------
// Alert
// ----------------------------

func (b *Band) Alert(ctx context.Context, level device.AlertLevel) error {
	if level != device.AlertMild && level != device.AlertHigh {
		return &codec.ParseError{Field: "alert level", Expected: []byte{byte(device.AlertMild), byte(device.AlertHigh)}, Actual: byte(level)}
	}
	return b.write(ctx, CharAlertLevel, []byte{byte(level)}, false)
}

// ----------------------------
// Battery
// ----------------------------

func (b *Band) Battery(ctx context.Context) (codec.BatteryInfo, error) {
	raw, err := b.read(ctx, CharBattery)
	if err != nil {
		return codec.BatteryInfo{}, err
	}
	return codec.DecodeBatteryInfo(raw, b.opts.Location)
}

func (b *Band) BatteryStream(ctx context.Context) (<-chan codec.BatteryInfo, error) {
	raw, err := b.stream(ctx, CharBattery)
	if err != nil {
		return nil, err
	}
	return decodeStream(ctx, "battery", raw, func(data []byte) (codec.BatteryInfo, error) {
		return codec.DecodeBatteryInfo(data, b.opts.Location)
	}, b.logger), nil
}

// ----------------------------
// Steps
// ----------------------------

func (b *Band) Steps(ctx context.Context) (uint32, error) {
	raw, err := b.read(ctx, CharRealtimeSteps)
	if err != nil {
		return 0, err
	}
	return codec.DecodeSteps(raw)
}

func (b *Band) SetSteps(ctx context.Context, steps uint32) error {
	return b.control(ctx, codec.SetStepsPayload(steps))
}

func (b *Band) NotifySteps(ctx context.Context) (<-chan uint32, error) {
	raw, err := b.stream(ctx, CharRealtimeSteps)
	if err != nil {
		return nil, err
	}
	if err := b.control(ctx, codec.StepsNotifyPayload(true)); err != nil {
		return nil, fmt.Errorf("enable realtime steps: %w", err)
	}
	return decodeStream(ctx, "steps", raw, codec.DecodeSteps, b.logger), nil
}

// ----------------------------
// HeartRate
// ----------------------------

func (b *Band) MeasureHeartRate(ctx context.Context) error {
	return b.write(ctx, CharHeartRateControl, codec.HeartRateManualPayload(), true)
}

func (b *Band) SetHeartRateContinuous(ctx context.Context, enable bool) error {
	return b.write(ctx, CharHeartRateControl, codec.HeartRateContinuousPayload(enable), true)
}

func (b *Band) SetHeartRateSleep(ctx context.Context, enable bool) error {
	for _, p := range codec.HeartRateSleepPayloads(enable) {
		if err := b.write(ctx, CharHeartRateControl, p, true); err != nil {
			return err
		}
	}
	return nil
}

func (b *Band) HeartRateStream(ctx context.Context) (<-chan byte, error) {
	raw, err := b.stream(ctx, CharHeartRateMeasurement)
	if err != nil {
		return nil, err
	}
	return decodeStream(ctx, "heart_rate", raw, codec.DecodeHeartRate, b.logger), nil
}

// ----------------------------
// Settings
// ----------------------------

func (b *Band) Name(ctx context.Context) (string, error) {
	raw, err := b.read(ctx, CharDeviceName)
	if err != nil {
		return "", err
	}
	return codec.DecodeName(raw), nil
}

// DeviceInfo returns the record cached during Connect.
func (b *Band) DeviceInfo() (codec.DeviceInfo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info, b.hasInfo
}

func (b *Band) SetDateTime(ctx context.Context, t time.Time) error {
	return b.write(ctx, CharDateTime, codec.DateTimePayload(t, b.opts.Location), true)
}

func (b *Band) SetAlarm(ctx context.Context, slot codec.AlarmSlot) error {
	b.logger.WithFields(logrus.Fields{
		"slot":    slot.ID,
		"enabled": slot.Enabled,
		"when":    slot.When.Format(time.RFC3339),
	}).Info("Setting alarm")
	return b.control(ctx, slot.Payload(b.opts.Location))
}

func (b *Band) SetWearLocation(ctx context.Context, loc codec.WearLocation) error {
	return b.control(ctx, codec.WearLocationPayload(loc))
}

func (b *Band) SetStepGoal(ctx context.Context, goal uint16) error {
	return b.control(ctx, codec.StepGoalPayload(goal))
}

func (b *Band) Sync(ctx context.Context) error { return b.control(ctx, codec.SyncPayload()) }

func (b *Band) Reboot(ctx context.Context) error { return b.control(ctx, codec.RebootPayload()) }

func (b *Band) FactoryReset(ctx context.Context) error {
	b.logger.Warn("Factory reset requested")
	return b.control(ctx, codec.FactoryResetPayload())
}
