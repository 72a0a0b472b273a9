// Package orchestrator keeps one band connected and relays it through the IPC
// broker: discovery, reconnects with backoff, messenger wiring, command
// dispatch and a periodic liveness poll.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/srg/inoli/internal/codec"
	"github.com/srg/inoli/internal/device"
	"github.com/srg/inoli/internal/groutine"
	"github.com/srg/inoli/internal/ipc"
	"github.com/srg/inoli/internal/miband"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const commandTimeout = 30 * time.Second

// Broker is the IPC side the orchestrator drives.
type Broker interface {
	AddMessenger(ctx context.Context, name string, src <-chan ipc.Message)
	Publish(ctx context.Context, m ipc.Message) error
	Transmit(ctx context.Context) error
	Serve(ctx context.Context) error
	Commands() <-chan ipc.Command
}

// Finder locates a supported device nearby.
type Finder interface {
	Find(ctx context.Context, timeout time.Duration, registry *device.Registry) (device.Advertisement, device.RegistryEntry, error)
}

// Dialer creates the transport for an address.
type Dialer func(address string) device.Peripheral

// Options tunes the reconnect loop and the liveness poll.
type Options struct {
	ScanTimeout       time.Duration
	ReconnectInterval time.Duration
	ReconnectBurst    int
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
	// PollInterval is the battery poll period; zero disables it.
	PollInterval time.Duration

	// WearLocation and Alarms are written to the band after every connect.
	WearLocation *codec.WearLocation
	Alarms       func(now time.Time) ([]codec.AlarmSlot, error)
}

// Orchestrator owns the device session.
type Orchestrator struct {
	registry *device.Registry
	finder   Finder
	dial     Dialer
	broker   Broker
	opts     Options
	logger   *logrus.Logger

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[device.BluetoothDevice]

	mu      sync.RWMutex
	current device.BluetoothDevice
}

func New(registry *device.Registry, finder Finder, dial Dialer, broker Broker, opts Options, logger *logrus.Logger) *Orchestrator {
	if opts.ReconnectBurst < 1 {
		opts.ReconnectBurst = 1
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}

	o := &Orchestrator{
		registry: registry,
		finder:   finder,
		dial:     dial,
		broker:   broker,
		opts:     opts,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(opts.ReconnectInterval), opts.ReconnectBurst),
	}
	o.breaker = gobreaker.NewCircuitBreaker[device.BluetoothDevice](gobreaker.Settings{
		Name:        "band-connect",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state change")
		},
		// Fatal errors end the loop anyway and must not count as successes.
		IsSuccessful: func(err error) bool {
			return err == nil || !shouldRetry(err)
		},
	})
	return o
}

// shouldRetry reports whether a failed connect attempt may be repeated.
func shouldRetry(err error) bool {
	return device.IsRetryable(err) ||
		errors.Is(err, miband.ErrAuthTimeout) ||
		errors.Is(err, device.ErrNotConnected) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Current returns the connected device, or nil.
func (o *Orchestrator) Current() device.BluetoothDevice {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

func (o *Orchestrator) setCurrent(dev device.BluetoothDevice) {
	o.mu.Lock()
	o.current = dev
	o.mu.Unlock()
}

// Run serves until ctx is done or a fatal error occurs.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return groutine.Run(ctx, "ipc-transmit", o.broker.Transmit) })
	g.Go(func() error { return groutine.Run(ctx, "ipc-accept", o.broker.Serve) })
	g.Go(func() error { return groutine.Run(ctx, "device-loop", o.RunDevice) })
	g.Go(func() error {
		return groutine.Run(ctx, "command-loop", func(ctx context.Context) error {
			return o.RunCommands(ctx, o.broker.Commands())
		})
	})
	g.Go(func() error { return groutine.Run(ctx, "liveness", o.RunLiveness) })

	return g.Wait()
}

// ----------------------------
// Device loop
// ----------------------------

// RunDevice connects, serves the session until the link drops, and repeats.
// Retryable failures are paced by the limiter and the circuit breaker; any
// other failure is returned.
func (o *Orchestrator) RunDevice(ctx context.Context) error {
	for {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil
		}

		dev, err := o.breaker.Execute(func() (device.BluetoothDevice, error) {
			return o.connect(ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !shouldRetry(err) {
				return fmt.Errorf("device session: %w", err)
			}
			level := logrus.WarnLevel
			if errors.Is(err, gobreaker.ErrOpenState) {
				level = logrus.DebugLevel
			}
			o.logger.WithError(err).Log(level, "Connect attempt failed, retrying")
			continue
		}

		o.session(ctx, dev)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (o *Orchestrator) connect(ctx context.Context) (device.BluetoothDevice, error) {
	adv, entry, err := o.finder.Find(ctx, o.opts.ScanTimeout, o.registry)
	if err != nil {
		return nil, err
	}

	logger := o.logger.WithFields(logrus.Fields{"address": adv.Addr(), "model": entry.Model})
	logger.Info("Connecting to band")

	dev := entry.New(o.dial(adv.Addr()))
	if err := dev.Connect(ctx); err != nil {
		return nil, err
	}
	logger.Info("Band connected")
	return dev, nil
}

// session relays dev until its link drops or ctx is done.
func (o *Orchestrator) session(ctx context.Context, dev device.BluetoothDevice) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := o.logger.WithField("address", dev.Address())
	o.applySettings(ctx, dev)
	wired := o.wireMessengers(ctx, dev)
	logger.WithField("messengers", wired).Info("Band session started")

	o.setCurrent(dev)
	defer o.setCurrent(nil)

	select {
	case <-dev.Done():
		logger.Warn("Band link lost")
	case <-ctx.Done():
		if err := dev.Disconnect(); err != nil {
			logger.WithError(err).Debug("Disconnect on shutdown failed")
		}
	}
}

// applySettings writes the configured wear location and alarms. Failures are
// logged; the session goes on without them.
func (o *Orchestrator) applySettings(ctx context.Context, dev device.BluetoothDevice) {
	if o.opts.WearLocation == nil && o.opts.Alarms == nil {
		return
	}
	logger := o.logger.WithField("address", dev.Address())
	s, ok := dev.AsSettings()
	if !ok {
		logger.Debug("Band has no settings capability, skipping configured settings")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if loc := o.opts.WearLocation; loc != nil {
		if err := s.SetWearLocation(ctx, *loc); err != nil {
			logger.WithError(err).WithField("wear_location", loc.String()).Warn("Failed to set wear location")
		}
	}
	if o.opts.Alarms == nil {
		return
	}
	slots, err := o.opts.Alarms(time.Now())
	if err != nil {
		logger.WithError(err).Warn("Failed to resolve alarms")
		return
	}
	for _, slot := range slots {
		if err := s.SetAlarm(ctx, slot); err != nil {
			logger.WithError(err).WithField("alarm", slot.ID).Warn("Failed to set alarm")
		}
	}
}

// wireMessengers registers one messenger per stream capability dev supports
// and returns their names.
func (o *Orchestrator) wireMessengers(ctx context.Context, dev device.BluetoothDevice) []string {
	var wired []string
	add := func(name string, src <-chan ipc.Message, err error) {
		if err != nil {
			o.logger.WithError(err).WithField("messenger", name).Warn("Failed to open stream")
			return
		}
		o.broker.AddMessenger(ctx, name, src)
		wired = append(wired, name)
	}

	if b, ok := dev.AsBattery(); ok {
		src, err := b.BatteryStream(ctx)
		add("battery", relay(ctx, src, func(v codec.BatteryInfo) ipc.Message { return ipc.BatteryMessage(v.Level) }), err)
	}
	if s, ok := dev.AsSteps(); ok {
		src, err := s.NotifySteps(ctx)
		add("steps", relay(ctx, src, ipc.StepsMessage), err)
	}
	if h, ok := dev.AsHeartRate(); ok {
		src, err := h.HeartRateStream(ctx)
		add("heartrate", relay(ctx, src, ipc.HeartrateMessage), err)
	}
	return wired
}

// relay maps a capability stream onto messages. A nil src yields nil.
func relay[T any](ctx context.Context, src <-chan T, conv func(T) ipc.Message) <-chan ipc.Message {
	if src == nil {
		return nil
	}
	out := make(chan ipc.Message)
	groutine.Go(ctx, "relay", func(ctx context.Context) {
		defer close(out)
		for v := range src {
			select {
			case out <- conv(v):
			case <-ctx.Done():
				return
			}
		}
	})
	return out
}

// ----------------------------
// Liveness
// ----------------------------

// RunLiveness publishes the battery level every PollInterval.
func (o *Orchestrator) RunLiveness(ctx context.Context) error {
	if o.opts.PollInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := o.Dispatch(ctx, ipc.Command{Kind: ipc.KindBattery, Action: ipc.Get})
			if err != nil && !errors.Is(err, ErrNoDevice) {
				o.logger.WithError(err).Warn("Liveness poll failed")
			}
		}
	}
}
