package miband

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/inoli/internal/codec"
	"github.com/srg/inoli/internal/device"
	"github.com/srg/inoli/internal/groutine"
)

// Options configures a Band.
type Options struct {
	User codec.UserRecord
	// Location is the zone of the band's clock; nil means time.Local.
	Location *time.Location
	// AuthTimeout bounds the handshake locally; zero waits for the band.
	AuthTimeout time.Duration
	Logger      *logrus.Logger
	// Now is the clock pushed after authentication; nil means time.Now.
	Now func() time.Time
}

// Band is a Mi Band 1 family device.
type Band struct {
	p      device.Peripheral
	model  Model
	opts   Options
	logger *logrus.Entry

	connectMu sync.Mutex

	mu      sync.RWMutex
	chars   *CharacteristicRegistry
	info    codec.DeviceInfo
	hasInfo bool
	state   AuthState

	alert     device.Alert
	battery   device.Battery
	heartRate device.HeartRate
	steps     device.Steps
	settings  device.Settings
}

var _ device.BluetoothDevice = (*Band)(nil)

// New builds a band for peripheral p. Capabilities are fixed by the model.
func New(p device.Peripheral, model Model, opts Options) *Band {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	b := &Band{
		p:     p,
		model: model,
		opts:  opts,
		logger: opts.Logger.WithFields(logrus.Fields{
			"address": p.Address(),
			"model":   model.Name,
		}),
		chars: NewCharacteristicRegistry(),
	}
	b.alert, b.battery, b.steps, b.settings = b, b, b, b
	if model.HeartRate {
		b.heartRate = b
	}
	return b
}

func (b *Band) Address() string { return b.p.Address() }
func (b *Band) Model() string   { return b.model.Name }

func (b *Band) AsAlert() (device.Alert, bool)         { return b.alert, b.alert != nil }
func (b *Band) AsBattery() (device.Battery, bool)     { return b.battery, b.battery != nil }
func (b *Band) AsHeartRate() (device.HeartRate, bool) { return b.heartRate, b.heartRate != nil }
func (b *Band) AsSteps() (device.Steps, bool)         { return b.steps, b.steps != nil }
func (b *Band) AsSettings() (device.Settings, bool)   { return b.settings, b.settings != nil }

// State reports the connection and authentication progress.
func (b *Band) State() AuthState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Band) setState(s AuthState) {
	b.mu.Lock()
	prev := b.state
	b.state = s
	b.mu.Unlock()
	if prev != s {
		b.logger.WithFields(logrus.Fields{"from": prev, "state": s}).Debug("Band state changed")
	}
}

func (b *Band) IsConnected() bool {
	return b.p.IsConnected() && b.State() == Authenticated
}

func (b *Band) Done() <-chan struct{} { return b.p.Done() }

// ----------------------------
// Connection lifecycle
// ----------------------------

// Connect links, discovers, fetches the device info and authenticates. It is a
// no-op when already authenticated on a live link.
func (b *Band) Connect(ctx context.Context) error {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()

	if b.IsConnected() {
		return nil
	}

	tail, err := device.AddressTail(b.Address())
	if err != nil {
		return err
	}

	b.setState(Discovering)
	if err := b.p.Connect(ctx); err != nil && !errors.Is(err, device.ErrAlreadyConnected) {
		b.setState(Disconnected)
		return fmt.Errorf("connect %s: %w", b.Address(), err)
	}

	if err := b.discover(ctx); err != nil {
		b.abort()
		return err
	}

	if err := b.fetchInfo(ctx); err != nil {
		b.abort()
		return err
	}
	b.setState(InfoFetched)

	if err := b.authenticate(ctx, tail); err != nil {
		b.abort()
		return err
	}
	b.logger.Info("Band authenticated")

	b.afterAuthentication(ctx)
	b.watchLink()
	return nil
}

func (b *Band) discover(ctx context.Context) error {
	chars, err := b.p.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover %s: %w", b.Address(), err)
	}

	b.mu.Lock()
	b.chars.Rebuild(chars)
	b.hasInfo = false
	missing := b.chars.Missing(b.model.required())
	b.mu.Unlock()

	if len(missing) > 0 {
		return fmt.Errorf("discover %s: %w: missing %v", b.Address(), device.ErrServicesUnresolved, missing)
	}
	b.logger.WithField("characteristics", len(chars)).Debug("Characteristic registry rebuilt")
	return nil
}

func (b *Band) fetchInfo(ctx context.Context) error {
	raw, err := b.read(ctx, CharDeviceInfo)
	if err != nil {
		return fmt.Errorf("read device info: %w", err)
	}
	info, err := codec.DecodeDeviceInfo(raw)
	if err != nil {
		return fmt.Errorf("read device info: %w", err)
	}

	b.mu.Lock()
	b.info, b.hasInfo = info, true
	b.mu.Unlock()

	b.logger.WithFields(logrus.Fields{
		"device_id": fmt.Sprintf("%08x", info.ID),
		"firmware":  info.Firmware.String(),
		"profile":   info.Profile.String(),
	}).Info("Device info fetched")
	return nil
}

func (b *Band) authenticate(ctx context.Context, tail byte) error {
	if b.opts.AuthTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.AuthTimeout)
		defer cancel()
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	notes, err := b.subscribe(subCtx, CharNotification)
	if err != nil {
		return fmt.Errorf("subscribe notifications: %w", err)
	}

	b.mu.RLock()
	info := b.info
	b.mu.RUnlock()

	h := &handshake{
		send: func(ctx context.Context, authFlag byte) error {
			user := b.opts.User
			user.AuthFlag = authFlag
			return b.write(ctx, CharUserInfo, user.Encode(info.Feature, info.Appearance, tail), true)
		},
		setState: b.setState,
		logger:   b.logger,
	}
	if err := h.run(ctx, notes); err != nil {
		if !b.p.IsConnected() {
			return fmt.Errorf("authenticate: %w", &device.TransportError{Op: "authenticate", Err: device.ErrNotConnected})
		}
		return fmt.Errorf("authenticate: %w", err)
	}
	return nil
}

// afterAuthentication pushes the clock and asks for low-latency parameters. Both
// are best effort.
func (b *Band) afterAuthentication(ctx context.Context) {
	if err := b.SetDateTime(ctx, b.opts.Now()); err != nil {
		b.logger.WithField("error", err).Warn("Failed to set band date/time")
	}
	if err := b.write(ctx, CharLEParams, codec.LowLatency.Encode(), true); err != nil {
		b.logger.WithField("error", err).Warn("Failed to request low-latency connection parameters")
	}
}

// watchLink discards the registry once the link drops.
func (b *Band) watchLink() {
	done := b.p.Done()
	groutine.Go(context.Background(), "band-link-watch", func(ctx context.Context) {
		<-done
		b.reset()
		b.logger.Info("Band disconnected")
	})
}

func (b *Band) reset() {
	b.mu.Lock()
	b.chars.Clear()
	b.hasInfo = false
	b.state = Disconnected
	b.mu.Unlock()
}

func (b *Band) abort() {
	if err := b.p.Disconnect(); err != nil {
		b.logger.WithField("error", err).Debug("Disconnect after failed connect")
	}
	b.mu.Lock()
	b.chars.Clear()
	b.hasInfo = false
	if b.state != TimedOut && b.state != Failed {
		b.state = Disconnected
	}
	b.mu.Unlock()
}

func (b *Band) Disconnect() error {
	err := b.p.Disconnect()
	b.reset()
	return err
}

// ----------------------------
// Characteristic access
// ----------------------------

func (b *Band) char(u uuid.UUID) (device.Characteristic, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.chars.Get(u)
}

func (b *Band) read(ctx context.Context, u uuid.UUID) ([]byte, error) {
	c, err := b.char(u)
	if err != nil {
		return nil, err
	}
	return c.Read(ctx)
}

func (b *Band) write(ctx context.Context, u uuid.UUID, data []byte, withResponse bool) error {
	c, err := b.char(u)
	if err != nil {
		return err
	}
	b.logger.WithFields(logrus.Fields{
		"uuid": device.ShortUUID(u),
		"data": fmt.Sprintf("% x", data),
	}).Debug("Write")
	return c.Write(ctx, data, withResponse)
}

func (b *Band) subscribe(ctx context.Context, u uuid.UUID) (<-chan []byte, error) {
	c, err := b.char(u)
	if err != nil {
		return nil, err
	}
	return c.Subscribe(ctx)
}

func (b *Band) control(ctx context.Context, payload []byte) error {
	return b.write(ctx, CharControlPoint, payload, true)
}
