package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/srg/inoli/internal/codec"
	"github.com/srg/inoli/internal/device"
	"github.com/srg/inoli/internal/ipc"
	"github.com/srg/inoli/internal/testutils"
)

// fakeDevice is a connected band with a configurable capability set.
type fakeDevice struct {
	address   string
	heartRate bool

	mu        sync.Mutex
	connects  int
	done      chan struct{}
	calls     []string
	battery   byte
	steps     uint32
	streamErr error

	batteries chan codec.BatteryInfo
	stepsC    chan uint32
	beats     chan byte
}

func newFakeDevice(address string, heartRate bool) *fakeDevice {
	return &fakeDevice{
		address:   address,
		heartRate: heartRate,
		done:      make(chan struct{}),
		battery:   80,
		steps:     1200,
		batteries: make(chan codec.BatteryInfo, 4),
		stepsC:    make(chan uint32, 4),
		beats:     make(chan byte, 4),
	}
}

func (d *fakeDevice) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

func (d *fakeDevice) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// dropLink simulates the band going out of range.
func (d *fakeDevice) dropLink() {
	d.mu.Lock()
	defer d.mu.Unlock()
	close(d.done)
}

func (d *fakeDevice) Address() string { return d.address }
func (d *fakeDevice) Model() string {
	if d.heartRate {
		return "MI1S"
	}
	return "MI1A"
}

func (d *fakeDevice) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	return nil
}

func (d *fakeDevice) Disconnect() error { d.record("disconnect"); return nil }
func (d *fakeDevice) IsConnected() bool { return true }
func (d *fakeDevice) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func (d *fakeDevice) AsAlert() (device.Alert, bool)       { return d, true }
func (d *fakeDevice) AsBattery() (device.Battery, bool)   { return d, true }
func (d *fakeDevice) AsSteps() (device.Steps, bool)       { return d, true }
func (d *fakeDevice) AsSettings() (device.Settings, bool) { return d, true }
func (d *fakeDevice) AsHeartRate() (device.HeartRate, bool) {
	if !d.heartRate {
		return nil, false
	}
	return d, true
}

func (d *fakeDevice) Alert(ctx context.Context, level device.AlertLevel) error {
	d.record("alert " + level.String())
	return nil
}

func (d *fakeDevice) Battery(ctx context.Context) (codec.BatteryInfo, error) {
	d.record("battery")
	return codec.BatteryInfo{Level: d.battery, Status: codec.BatteryNotCharging}, nil
}

func (d *fakeDevice) BatteryStream(ctx context.Context) (<-chan codec.BatteryInfo, error) {
	return d.batteries, d.streamErr
}

func (d *fakeDevice) Steps(ctx context.Context) (uint32, error) {
	d.record("steps")
	return d.steps, nil
}

func (d *fakeDevice) SetSteps(ctx context.Context, steps uint32) error {
	d.record("set-steps")
	d.mu.Lock()
	d.steps = steps
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) NotifySteps(ctx context.Context) (<-chan uint32, error) {
	return d.stepsC, d.streamErr
}

func (d *fakeDevice) MeasureHeartRate(ctx context.Context) error {
	d.record("measure-hr")
	return nil
}

func (d *fakeDevice) SetHeartRateContinuous(ctx context.Context, enable bool) error {
	d.record("hr-continuous")
	return nil
}

func (d *fakeDevice) SetHeartRateSleep(ctx context.Context, enable bool) error {
	d.record("hr-sleep")
	return nil
}

func (d *fakeDevice) HeartRateStream(ctx context.Context) (<-chan byte, error) {
	return d.beats, d.streamErr
}

func (d *fakeDevice) Name(ctx context.Context) (string, error) {
	d.record("name")
	return "MI", nil
}

func (d *fakeDevice) DeviceInfo() (codec.DeviceInfo, bool) { return codec.DeviceInfo{}, true }

func (d *fakeDevice) SetDateTime(ctx context.Context, t time.Time) error {
	d.record("datetime")
	return nil
}

func (d *fakeDevice) SetAlarm(ctx context.Context, slot codec.AlarmSlot) error {
	d.record(fmt.Sprintf("alarm %d", slot.ID))
	return nil
}

func (d *fakeDevice) SetWearLocation(ctx context.Context, loc codec.WearLocation) error {
	d.record("wear " + loc.String())
	return nil
}

func (d *fakeDevice) SetStepGoal(ctx context.Context, goal uint16) error { return nil }
func (d *fakeDevice) Sync(ctx context.Context) error                     { return nil }
func (d *fakeDevice) Reboot(ctx context.Context) error                   { return nil }
func (d *fakeDevice) FactoryReset(ctx context.Context) error             { return nil }

// fakeBroker records messenger registrations and published messages.
type fakeBroker struct {
	mu         sync.Mutex
	messengers []string
	published  []ipc.Message
	commands   chan ipc.Command
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{commands: make(chan ipc.Command, 8)}
}

func (b *fakeBroker) AddMessenger(ctx context.Context, name string, src <-chan ipc.Message) {
	b.mu.Lock()
	b.messengers = append(b.messengers, name)
	b.mu.Unlock()

	go func() {
		for m := range src {
			_ = b.Publish(ctx, m)
		}
	}()
}

func (b *fakeBroker) Publish(ctx context.Context, m ipc.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, m)
	return nil
}

func (b *fakeBroker) Transmit(ctx context.Context) error { <-ctx.Done(); return nil }
func (b *fakeBroker) Serve(ctx context.Context) error    { <-ctx.Done(); return nil }
func (b *fakeBroker) Commands() <-chan ipc.Command       { return b.commands }

func (b *fakeBroker) Messengers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.messengers...)
}

func (b *fakeBroker) Published() []ipc.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ipc.Message(nil), b.published...)
}

// fakeFinder returns scripted results, then always finds the registered entry.
type fakeFinder struct {
	mu      sync.Mutex
	address string
	errs    []error
	calls   int
}

func (f *fakeFinder) Find(ctx context.Context, timeout time.Duration, registry *device.Registry) (device.Advertisement, device.RegistryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, device.RegistryEntry{}, err
	}
	entry, _ := registry.Lookup(f.address)
	return testutils.NewAdvertisementBuilder(f.address).WithName("MI").Build(), entry, nil
}

func (f *fakeFinder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
