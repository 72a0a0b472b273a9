package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/inoli/internal/device"
	"github.com/srg/inoli/internal/groutine"
)

// ----------------------------
// BLECharacteristic
// ----------------------------

// BLECharacteristic is a characteristic bound to one link. Notifications are fanned
// out to every subscriber; the remote subscription is held while any subscriber is.
type BLECharacteristic struct {
	uuid       uuid.UUID
	link       context.Context
	client     ble.Client
	char       *ble.Characteristic
	writeMutex *sync.Mutex
	logger     *logrus.Logger

	// remote subscribe/unsubscribe; swapped in tests
	enable  func(h ble.NotificationHandler) error
	disable func() error

	mu     sync.Mutex
	subs   map[uint64]chan []byte
	nextID uint64
	active bool
}

var _ device.Characteristic = (*BLECharacteristic)(nil)

func newCharacteristic(u uuid.UUID, c *ble.Characteristic, client ble.Client, link context.Context, writeMutex *sync.Mutex, logger *logrus.Logger) *BLECharacteristic {
	indicate := c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0
	return &BLECharacteristic{
		uuid:       u,
		link:       link,
		client:     client,
		char:       c,
		writeMutex: writeMutex,
		logger:     logger,
		enable: func(h ble.NotificationHandler) error {
			return client.Subscribe(c, indicate, h)
		},
		disable: func() error {
			return client.Unsubscribe(c, indicate)
		},
		subs: make(map[uint64]chan []byte),
	}
}

func (c *BLECharacteristic) UUID() uuid.UUID { return c.uuid }

func (c *BLECharacteristic) name() string { return device.ShortUUID(c.uuid) }

// Read reads the current value, giving up when ctx is done.
func (c *BLECharacteristic) Read(ctx context.Context) ([]byte, error) {
	if err := c.link.Err(); err != nil {
		return nil, &device.TransportError{Op: "read " + c.name(), Err: device.ErrNotConnected}
	}

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		data, err := c.client.ReadCharacteristic(c.char)
		resultCh <- readResult{data: data, err: err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return nil, &device.TransportError{Op: "read " + c.name(), Err: NormalizeError(r.err)}
		}
		return r.data, nil
	case <-c.link.Done():
		return nil, &device.TransportError{Op: "read " + c.name(), Err: device.ErrNotConnected}
	case <-ctx.Done():
		return nil, &device.TransportError{Op: "read " + c.name(), Err: fmt.Errorf("%w: %v", device.ErrTimeout, ctx.Err())}
	}
}

// Write sends data; writes on one link are serialized.
func (c *BLECharacteristic) Write(ctx context.Context, data []byte, withResponse bool) error {
	if err := c.link.Err(); err != nil {
		return &device.TransportError{Op: "write " + c.name(), Err: device.ErrNotConnected}
	}

	errCh := make(chan error, 1)
	go func() {
		c.writeMutex.Lock()
		defer c.writeMutex.Unlock()
		errCh <- c.client.WriteCharacteristic(c.char, data, !withResponse)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return &device.TransportError{Op: "write " + c.name(), Err: NormalizeError(err)}
		}
		return nil
	case <-c.link.Done():
		return &device.TransportError{Op: "write " + c.name(), Err: device.ErrNotConnected}
	case <-ctx.Done():
		return &device.TransportError{Op: "write " + c.name(), Err: fmt.Errorf("%w: %v", device.ErrTimeout, ctx.Err())}
	}
}

// Subscribe registers a new notification consumer.
func (c *BLECharacteristic) Subscribe(ctx context.Context) (<-chan []byte, error) {
	if err := c.link.Err(); err != nil {
		return nil, &device.TransportError{Op: "subscribe " + c.name(), Err: device.ErrNotConnected}
	}

	c.mu.Lock()
	if !c.active {
		if err := c.enable(c.dispatch); err != nil {
			c.mu.Unlock()
			return nil, &device.TransportError{Op: "subscribe " + c.name(), Err: NormalizeError(err)}
		}
		c.active = true
	}
	id := c.nextID
	c.nextID++
	ch := make(chan []byte, DefaultChannelBuffer)
	c.subs[id] = ch
	c.mu.Unlock()

	groutine.Go(ctx, "ble-subscription-"+c.name(), func(subCtx context.Context) {
		select {
		case <-subCtx.Done():
		case <-c.link.Done():
		}
		c.unsubscribe(id)
	})
	return ch, nil
}

func (c *BLECharacteristic) unsubscribe(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.subs[id]
	if !ok {
		return
	}
	delete(c.subs, id)
	close(ch)

	if len(c.subs) == 0 && c.active {
		c.active = false
		if c.link.Err() == nil {
			if err := c.disable(); err != nil {
				c.logger.WithFields(logrus.Fields{
					"uuid":  c.name(),
					"error": err,
				}).Debug("Failed to unsubscribe from characteristic notifications")
			}
		}
	}
}

// dispatch fans a notification out to every subscriber. A full subscriber loses
// its oldest pending value.
func (c *BLECharacteristic) dispatch(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.subs {
		v := append([]byte(nil), data...)
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
			c.logger.WithField("uuid", c.name()).Debug("Subscriber full, dropped oldest notification")
		}
	}
}
