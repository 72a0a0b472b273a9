package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/srg/inoli/internal/codec"
	"github.com/srg/inoli/internal/device"
	"github.com/srg/inoli/internal/ipc"
	"github.com/srg/inoli/internal/miband"
	"github.com/srg/inoli/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bandAddress = "C8:0F:10:80:D0:AA"

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fixture builds an orchestrator whose registry hands out fresh fake devices.
type fixture struct {
	t      *testing.T
	o      *Orchestrator
	broker *fakeBroker
	finder *fakeFinder

	mu      sync.Mutex
	devices []*fakeDevice
}

func newFixture(t *testing.T, heartRate bool, opts Options, findErrs ...error) *fixture {
	helper := testutils.NewTestHelper(t)
	f := &fixture{t: t, broker: newFakeBroker(), finder: &fakeFinder{address: bandAddress, errs: findErrs}}

	registry := device.NewRegistry()
	registry.Register(bandAddress, "fake", func(p device.Peripheral) device.BluetoothDevice {
		d := newFakeDevice(p.Address(), heartRate)
		f.mu.Lock()
		f.devices = append(f.devices, d)
		f.mu.Unlock()
		return d
	})
	dial := func(address string) device.Peripheral {
		return testutils.NewFakePeripheral(address).Build()
	}

	if opts.ReconnectInterval == 0 {
		opts.ReconnectInterval = time.Millisecond
	}
	f.o = New(registry, f.finder, dial, f.broker, opts, helper.Logger)
	return f
}

func (f *fixture) device(i int) *fakeDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.devices) {
		return nil
	}
	return f.devices[i]
}

func (f *fixture) deviceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.devices)
}

func (f *fixture) runDevice(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- f.o.RunDevice(ctx) }()
	return done
}

func TestWireMessengersCapabilityAbsence(t *testing.T) {
	tests := []struct {
		name      string
		heartRate bool
		expected  []string
	}{
		{"model without heart rate", false, []string{"battery", "steps"}},
		{"model with heart rate", true, []string{"battery", "steps", "heartrate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.heartRate, Options{})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			dev := newFakeDevice(bandAddress, tt.heartRate)
			_, ok := dev.AsHeartRate()
			assert.Equal(t, tt.heartRate, ok)

			wired := f.o.wireMessengers(ctx, dev)
			assert.Equal(t, tt.expected, wired)
			assert.Equal(t, tt.expected, f.broker.Messengers())
		})
	}
}

func TestWireMessengersRelaysStreams(t *testing.T) {
	f := newFixture(t, true, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev := newFakeDevice(bandAddress, true)
	f.o.wireMessengers(ctx, dev)

	dev.batteries <- codec.BatteryInfo{Level: 55}
	dev.stepsC <- 4321
	dev.beats <- 72

	require.Eventually(t, func() bool { return len(f.broker.Published()) == 3 }, waitFor, tick)
	assert.ElementsMatch(t, []ipc.Message{
		ipc.BatteryMessage(55), ipc.StepsMessage(4321), ipc.HeartrateMessage(72),
	}, f.broker.Published())
}

func TestWireMessengersSkipsFailedStreams(t *testing.T) {
	f := newFixture(t, true, Options{})
	dev := newFakeDevice(bandAddress, true)
	dev.streamErr = errors.New("subscribe failed")

	assert.Empty(t, f.o.wireMessengers(context.Background(), dev))
	assert.Empty(t, f.broker.Messengers())
}

func TestRunDeviceRetriesAndReconnects(t *testing.T) {
	f := newFixture(t, false, Options{BreakerFailures: 10},
		&device.NotFoundError{Resource: "supported device"},
		fmt.Errorf("authenticate: %w", miband.ErrAuthTimeout),
		&device.TransportError{Op: "authenticate", Err: device.ErrNotConnected},
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := f.runDevice(ctx)

	require.Eventually(t, func() bool { return f.o.Current() != nil }, waitFor, tick)
	assert.Equal(t, 4, f.finder.Calls())
	first := f.device(0)
	require.NotNil(t, first)
	assert.Same(t, first, f.o.Current())

	first.dropLink()
	require.Eventually(t, func() bool {
		second := f.device(1)
		return second != nil && f.o.Current() == device.BluetoothDevice(second)
	}, waitFor, tick)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("device loop did not stop")
	}
	assert.Nil(t, f.o.Current())
	assert.Contains(t, f.device(1).Calls(), "disconnect")
}

func TestSessionAppliesConfiguredSettings(t *testing.T) {
	pocket := codec.WearPocket
	var resolvedAt time.Time
	f := newFixture(t, false, Options{
		WearLocation: &pocket,
		Alarms: func(now time.Time) ([]codec.AlarmSlot, error) {
			resolvedAt = now
			return []codec.AlarmSlot{{ID: 1, Enabled: true, When: now}, {ID: 2, When: now}}, nil
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.runDevice(ctx)

	require.Eventually(t, func() bool { return f.o.Current() != nil }, waitFor, tick)
	assert.False(t, resolvedAt.IsZero())
	assert.Equal(t, []string{"wear pocket", "alarm 1", "alarm 2"}, f.device(0).Calls())
}

func TestSessionSkipsUnresolvableAlarms(t *testing.T) {
	f := newFixture(t, false, Options{
		Alarms: func(time.Time) ([]codec.AlarmSlot, error) { return nil, errors.New("bad alarm") },
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.runDevice(ctx)

	require.Eventually(t, func() bool { return f.o.Current() != nil }, waitFor, tick)
	assert.Empty(t, f.device(0).Calls())
}

func TestRunDeviceFatalError(t *testing.T) {
	boom := errors.New("adapter exploded")
	f := newFixture(t, false, Options{}, boom)

	select {
	case err := <-f.runDevice(context.Background()):
		assert.ErrorIs(t, err, boom)
	case <-time.After(waitFor):
		t.Fatal("fatal error did not end the loop")
	}
	assert.Zero(t, f.deviceCount())
}

func TestRunDeviceBreakerOpens(t *testing.T) {
	errs := make([]error, 20)
	for i := range errs {
		errs[i] = &device.NotFoundError{Resource: "supported device"}
	}
	f := newFixture(t, false, Options{BreakerFailures: 2, BreakerCooldown: time.Hour}, errs...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.runDevice(ctx)

	require.Eventually(t, func() bool { return f.o.breaker.State() == gobreaker.StateOpen }, waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, f.finder.Calls(), "no attempts while the breaker is open")
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, shouldRetry(&device.NotFoundError{Resource: "device"}))
	assert.True(t, shouldRetry(fmt.Errorf("discover: %w", device.ErrServicesUnresolved)))
	assert.True(t, shouldRetry(miband.ErrAuthTimeout))
	assert.True(t, shouldRetry(gobreaker.ErrOpenState))
	assert.False(t, shouldRetry(&miband.ProtocolError{State: miband.Failed}))
	assert.False(t, shouldRetry(errors.New("permission denied")))
}

func TestDispatch(t *testing.T) {
	f := newFixture(t, true, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, f.o.Dispatch(ctx, ipc.Command{Kind: ipc.KindBattery}), ErrNoDevice)

	dev := newFakeDevice(bandAddress, true)
	f.o.setCurrent(dev)

	tests := []struct {
		name      string
		cmd       ipc.Command
		call      string
		published []ipc.Message
	}{
		{"battery get publishes level", ipc.Command{Kind: ipc.KindBattery}, "battery", []ipc.Message{ipc.BatteryMessage(80)}},
		{"steps get publishes count", ipc.Command{Kind: ipc.KindSteps}, "steps", []ipc.Message{ipc.StepsMessage(1200)}},
		{"steps set", ipc.Command{Kind: ipc.KindSteps, Action: ipc.Set, Steps: 10}, "set-steps", nil},
		{"heartrate measures", ipc.Command{Kind: ipc.KindHeartrate}, "measure-hr", nil},
		{"heartrate continuous", ipc.Command{Kind: ipc.KindHeartrateContinuous, Action: ipc.Set, Enable: true}, "hr-continuous", nil},
		{"heartrate sleep", ipc.Command{Kind: ipc.KindHeartrateSleep, Action: ipc.Set}, "hr-sleep", nil},
		{"alert", ipc.Command{Kind: ipc.KindAlert, Action: ipc.Set, Level: device.AlertHigh}, "alert high", nil},
		{"name", ipc.Command{Kind: ipc.KindName}, "name", nil},
		{"datetime", ipc.Command{Kind: ipc.KindDateTime, Action: ipc.Set}, "datetime", nil},
		{"alarm", ipc.Command{Kind: ipc.KindAlarm, Action: ipc.Set}, "alarm 0", nil},
		{"wear location", ipc.Command{Kind: ipc.KindWearLocation, Action: ipc.Set, Wear: codec.WearRight}, "wear right", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(f.broker.Published())
			require.NoError(t, f.o.Dispatch(ctx, tt.cmd))

			calls := dev.Calls()
			require.NotEmpty(t, calls)
			assert.Equal(t, tt.call, calls[len(calls)-1])
			if tt.published == nil {
				assert.Len(t, f.broker.Published(), before)
			} else {
				assert.Equal(t, tt.published, f.broker.Published()[before:])
			}
		})
	}

	t.Run("alarm get is unsupported", func(t *testing.T) {
		var unsupported *UnsupportedError
		assert.ErrorAs(t, f.o.Dispatch(ctx, ipc.Command{Kind: ipc.KindAlarm}), &unsupported)
	})
}

func TestDispatchUnsupportedCapability(t *testing.T) {
	f := newFixture(t, false, Options{})
	f.o.setCurrent(newFakeDevice(bandAddress, false))

	err := f.o.Dispatch(context.Background(), ipc.Command{Kind: ipc.KindHeartrate})
	var unsupported *UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "MI1A", unsupported.Model)
}

func TestRunCommandsSurvivesFailures(t *testing.T) {
	f := newFixture(t, false, Options{})
	dev := newFakeDevice(bandAddress, false)
	f.o.setCurrent(dev)

	cmds := make(chan ipc.Command, 3)
	cmds <- ipc.Command{Kind: ipc.KindHeartrate}
	cmds <- ipc.Command{Kind: ipc.KindAlert, Action: ipc.Set, Level: device.AlertMild}
	cmds <- ipc.Command{Kind: ipc.KindSteps, Action: ipc.Set, Steps: 3}
	close(cmds)

	require.NoError(t, f.o.RunCommands(context.Background(), cmds))
	assert.Equal(t, []string{"alert mild", "set-steps"}, dev.Calls())
}

func TestRunLivenessPublishesBattery(t *testing.T) {
	f := newFixture(t, false, Options{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.o.RunLiveness(ctx) }()

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, f.broker.Published(), "nothing is polled without a device")

	f.o.setCurrent(newFakeDevice(bandAddress, false))
	require.Eventually(t, func() bool {
		published := f.broker.Published()
		return len(published) > 0 && published[0] == ipc.BatteryMessage(80)
	}, waitFor, tick)

	cancel()
	assert.NoError(t, <-done)
}

func TestListen(t *testing.T) {
	helper := testutils.NewTestHelper(t)

	t.Run("fresh path", func(t *testing.T) {
		l, err := Listen(helper.SocketPath(), helper.Logger)
		require.NoError(t, err)
		_ = l.Close()
	})

	t.Run("stale socket is replaced", func(t *testing.T) {
		path := helper.SocketPath()
		stale, err := net.Listen("unix", path)
		require.NoError(t, err)
		stale.(*net.UnixListener).SetUnlinkOnClose(false)
		require.NoError(t, stale.Close())
		_, err = os.Lstat(path)
		require.NoError(t, err, "stale socket file left behind")

		l, err := Listen(path, helper.Logger)
		require.NoError(t, err)
		_ = l.Close()
	})

	t.Run("live socket is refused", func(t *testing.T) {
		_, path := helper.Listen()
		_, err := Listen(path, helper.Logger)
		assert.ErrorContains(t, err, "in use")
	})

	t.Run("regular file is refused", func(t *testing.T) {
		path := helper.SocketPath()
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		_, err := Listen(path, helper.Logger)
		assert.ErrorContains(t, err, "not a socket")
	})
}

func TestRunRelaysThroughBroker(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	listener, path := helper.Listen()
	broker := ipc.New(listener, ipc.Options{}, helper.Logger)

	var mu sync.Mutex
	var dev *fakeDevice
	registry := device.NewRegistry()
	registry.Register(bandAddress, "fake", func(p device.Peripheral) device.BluetoothDevice {
		mu.Lock()
		defer mu.Unlock()
		dev = newFakeDevice(p.Address(), false)
		return dev
	})
	o := New(registry, &fakeFinder{address: bandAddress}, func(a string) device.Peripheral {
		return testutils.NewFakePeripheral(a).Build()
	}, broker, Options{ReconnectInterval: time.Millisecond}, helper.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool { return o.Current() != nil }, waitFor, tick)

	client, err := ipc.Dial(ctx, path, helper.Logger)
	require.NoError(t, err)
	messages := client.Messages(ctx)
	require.NoError(t, client.Send(ipc.Command{Kind: ipc.KindBattery}))

	select {
	case m := <-messages:
		assert.Equal(t, ipc.BatteryMessage(80), m)
	case <-time.After(waitFor):
		t.Fatal("no battery message relayed")
	}

	mu.Lock()
	dev.stepsC <- 99
	mu.Unlock()
	select {
	case m := <-messages:
		assert.Equal(t, ipc.StepsMessage(99), m)
	case <-time.After(waitFor):
		t.Fatal("no steps message relayed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not stop")
	}
}
