package device

import (
	"context"
	"fmt"
	"time"

	"github.com/srg/inoli/internal/codec"
)

// AlertLevel is the vibration intensity of an alert.
type AlertLevel byte

const (
	AlertMild AlertLevel = 1
	AlertHigh AlertLevel = 2
)

func (l AlertLevel) String() string {
	switch l {
	case AlertMild:
		return "mild"
	case AlertHigh:
		return "high"
	}
	return fmt.Sprintf("level(%d)", byte(l))
}

// Alert vibrates the device.
type Alert interface {
	Alert(ctx context.Context, level AlertLevel) error
}

// Battery reports battery state.
type Battery interface {
	Battery(ctx context.Context) (codec.BatteryInfo, error)
	// BatteryStream yields decoded records until ctx is done or the link drops.
	BatteryStream(ctx context.Context) (<-chan codec.BatteryInfo, error)
}

// Steps reads and writes the step counter.
type Steps interface {
	Steps(ctx context.Context) (uint32, error)
	SetSteps(ctx context.Context, steps uint32) error
	// NotifySteps enables realtime step notifications and yields each count.
	NotifySteps(ctx context.Context) (<-chan uint32, error)
}

// HeartRate drives the heart-rate sensor.
type HeartRate interface {
	// MeasureHeartRate starts a single measurement; the result arrives on the stream.
	MeasureHeartRate(ctx context.Context) error
	SetHeartRateContinuous(ctx context.Context, enable bool) error
	SetHeartRateSleep(ctx context.Context, enable bool) error
	HeartRateStream(ctx context.Context) (<-chan byte, error)
}

// Settings covers identity, clock and maintenance operations.
type Settings interface {
	Name(ctx context.Context) (string, error)
	DeviceInfo() (codec.DeviceInfo, bool)
	SetDateTime(ctx context.Context, t time.Time) error
	SetAlarm(ctx context.Context, slot codec.AlarmSlot) error
	SetWearLocation(ctx context.Context, loc codec.WearLocation) error
	SetStepGoal(ctx context.Context, goal uint16) error
	Sync(ctx context.Context) error
	Reboot(ctx context.Context) error
	FactoryReset(ctx context.Context) error
}

// BluetoothDevice is a connected wearable exposing a model-specific capability set.
//
// Each As* accessor reports false when the model does not support the
// capability; that is a normal condition, not a failure.
type BluetoothDevice interface {
	Address() string
	Model() string

	// Connect is a no-op if already connected.
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	// Done is closed when the current connection ends.
	Done() <-chan struct{}

	AsAlert() (Alert, bool)
	AsBattery() (Battery, bool)
	AsHeartRate() (HeartRate, bool)
	AsSteps() (Steps, bool)
	AsSettings() (Settings, bool)
}
