package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/inoli/internal/device"
	"github.com/srg/inoli/internal/groutine"
)

// ----------------------------
// Configuration Constants
// ----------------------------

const (
	// DefaultChannelBuffer is the default buffer size for notification channels
	DefaultChannelBuffer = 128

	// DefaultConnectTimeout bounds the dial when Options.ConnectTimeout is zero
	DefaultConnectTimeout = 30 * time.Second
)

// ----------------------------
// Adapter
// ----------------------------

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newDevice

var (
	adapterMu  sync.Mutex
	adapterDev = map[int]ble.Device{}
)

// OpenAdapter returns the HCI device for the given index, opening it on first use.
func OpenAdapter(adapter int) (ble.Device, error) {
	adapterMu.Lock()
	defer adapterMu.Unlock()

	if dev, ok := adapterDev[adapter]; ok {
		return dev, nil
	}
	dev, err := DeviceFactory(adapter)
	if err != nil {
		return nil, &device.TransportError{Op: fmt.Sprintf("open adapter hci%d", adapter), Err: NormalizeError(err)}
	}
	adapterDev[adapter] = dev
	ble.SetDefaultDevice(dev)
	return dev, nil
}

// ----------------------------
// BLE Connection
// ----------------------------

// Options configures a Connection.
type Options struct {
	Adapter        int
	ConnectTimeout time.Duration
}

// Connection implements device.Peripheral over go-ble.
type Connection struct {
	address string
	opts    Options
	logger  *logrus.Logger

	connMutex   sync.RWMutex
	client      ble.Client
	isConnected bool
	ctx         context.Context
	cancel      context.CancelCauseFunc

	writeMutex sync.Mutex
}

var _ device.Peripheral = (*Connection)(nil)

func NewConnection(address string, opts Options, logger *logrus.Logger) *Connection {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	return &Connection{
		address: device.NormalizeAddress(address),
		opts:    opts,
		logger:  logger,
	}
}

func (c *Connection) Address() string { return c.address }

// Connect dials the peripheral and starts watching for link loss.
func (c *Connection) Connect(ctx context.Context) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if strings.TrimSpace(c.address) == "" {
		return fmt.Errorf("device address is empty")
	}
	if c.isConnected {
		return device.ErrAlreadyConnected
	}

	dev, err := OpenAdapter(c.opts.Adapter)
	if err != nil {
		c.logger.WithField("error", err).Error("Failed to open BLE adapter")
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"address": c.address,
		"timeout": c.opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	client, err := dev.Dial(dialCtx, ble.NewAddr(c.address))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": c.address,
			"error":   err,
		}).Warn("Failed to dial BLE device")
		if dialCtx.Err() != nil && ctx.Err() == nil {
			// the band is out of range or asleep
			return &device.NotFoundError{Resource: "device", UUIDs: []string{c.address}}
		}
		return &device.TransportError{Op: "dial " + c.address, Err: NormalizeError(err)}
	}

	c.client = client
	c.isConnected = true
	c.ctx, c.cancel = context.WithCancelCause(context.Background())

	linkCtx := c.ctx
	linkCancel := c.cancel
	if watcher, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(linkCtx, "ble-connection-monitor", func(monitorCtx context.Context) {
			select {
			case <-watcher.Disconnected():
				c.logger.WithField("address", c.address).Warn("BLE link dropped")
				c.markDisconnected(client)
				linkCancel(device.ErrNotConnected)
			case <-monitorCtx.Done():
			}
		})
	} else {
		c.logger.Debug("Client does not support Disconnected() channel")
	}

	c.logger.WithField("address", c.address).Info("BLE device connected")
	return nil
}

func (c *Connection) markDisconnected(client ble.Client) {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()
	if c.client == client {
		c.client = nil
		c.isConnected = false
	}
}

// Discover walks the full GATT profile of the current link.
func (c *Connection) Discover(ctx context.Context) ([]device.Characteristic, error) {
	c.connMutex.RLock()
	client, linkCtx := c.client, c.ctx
	c.connMutex.RUnlock()
	if client == nil {
		return nil, device.ErrNotConnected
	}

	c.logger.WithField("address", c.address).Debug("Discovering services and characteristics...")

	type result struct {
		profile *ble.Profile
		err     error
	}
	done := make(chan result, 1)
	go func() {
		p, err := client.DiscoverProfile(true)
		done <- result{p, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, &device.TransportError{Op: "discover profile", Err: fmt.Errorf("%w: %v", device.ErrServicesUnresolved, res.err)}
	}
	if res.profile == nil || len(res.profile.Services) == 0 {
		return nil, device.ErrServicesUnresolved
	}

	var out []device.Characteristic
	for _, svc := range res.profile.Services {
		for _, bc := range svc.Characteristics {
			u, err := device.FromLittleEndian(bc.UUID)
			if err != nil {
				c.logger.WithField("error", err).Debug("Skipping characteristic with malformed UUID")
				continue
			}
			out = append(out, newCharacteristic(u, bc, client, linkCtx, &c.writeMutex, c.logger))
		}
	}

	c.logger.WithFields(logrus.Fields{
		"address":         c.address,
		"services":        len(res.profile.Services),
		"characteristics": len(out),
	}).Debug("Profile discovered successfully")
	return out, nil
}

func (c *Connection) Disconnect() error {
	c.connMutex.Lock()
	if c.client == nil || !c.isConnected {
		c.connMutex.Unlock()
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	}
	client, cancel := c.client, c.cancel
	c.client = nil
	c.isConnected = false
	c.connMutex.Unlock()

	c.logger.WithField("address", c.address).Info("Disconnecting BLE device...")
	if cancel != nil {
		cancel(nil)
	}
	if err := client.CancelConnection(); err != nil {
		c.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}
	return nil
}

func (c *Connection) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.client != nil && c.isConnected
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Done is closed when the current link ends; it is already closed when not connected.
func (c *Connection) Done() <-chan struct{} {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	if c.ctx == nil || !c.isConnected {
		return closedChan
	}
	return c.ctx.Done()
}
