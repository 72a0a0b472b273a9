package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/srg/inoli/internal/device"
)

// ----------------------------
// FakeCharacteristic
// ----------------------------

// FakeCharacteristic is an in-memory characteristic. It serves a fixed value,
// records writes and pushes notifications to subscribers.
type FakeCharacteristic struct {
	uuid uuid.UUID
	p    *FakePeripheral

	mu       sync.Mutex
	value    []byte
	writes   [][]byte
	subs     []chan []byte
	ReadErr  error
	WriteErr error
	onWrite  func(data []byte)
}

func (c *FakeCharacteristic) UUID() uuid.UUID { return c.uuid }

func (c *FakeCharacteristic) Read(ctx context.Context) ([]byte, error) {
	if err := c.p.linkErr(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	return append([]byte(nil), c.value...), nil
}

func (c *FakeCharacteristic) Write(ctx context.Context, data []byte, withResponse bool) error {
	if err := c.p.linkErr(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.WriteErr != nil {
		c.mu.Unlock()
		return c.WriteErr
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	react := c.onWrite
	c.mu.Unlock()

	if react != nil {
		react(data)
	}
	return nil
}

func (c *FakeCharacteristic) Subscribe(ctx context.Context) (<-chan []byte, error) {
	link, err := c.p.currentLink()
	if err != nil {
		return nil, err
	}
	ch := make(chan []byte, 64)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-link.Done():
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s == ch {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch, nil
}

// Notify pushes data to every current subscriber.
func (c *FakeCharacteristic) Notify(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subs {
		select {
		case s <- append([]byte(nil), data...):
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (c *FakeCharacteristic) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Writes returns a copy of every payload written so far.
func (c *FakeCharacteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *FakeCharacteristic) SetValue(v []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = append([]byte(nil), v...)
}

// ----------------------------
// FakePeripheral
// ----------------------------

// FakePeripheral implements device.Peripheral in memory.
type FakePeripheral struct {
	address string

	mu          sync.Mutex
	order       []uuid.UUID
	chars       map[uuid.UUID]*FakeCharacteristic
	link        context.Context
	dropLink    context.CancelFunc
	connects    int
	discovers   int
	ConnectErr  error
	DiscoverErr error
}

var _ device.Peripheral = (*FakePeripheral)(nil)

func (p *FakePeripheral) Address() string { return p.address }

func (p *FakePeripheral) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return p.ConnectErr
	}
	if p.link != nil && p.link.Err() == nil {
		return device.ErrAlreadyConnected
	}
	p.link, p.dropLink = context.WithCancel(context.Background())
	p.connects++
	return nil
}

func (p *FakePeripheral) Discover(ctx context.Context) ([]device.Characteristic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.link == nil || p.link.Err() != nil {
		return nil, device.ErrNotConnected
	}
	p.discovers++
	if p.DiscoverErr != nil {
		return nil, p.DiscoverErr
	}
	out := make([]device.Characteristic, 0, len(p.order))
	for _, u := range p.order {
		out = append(out, p.chars[u])
	}
	return out, nil
}

func (p *FakePeripheral) Disconnect() error {
	p.DropLink()
	return nil
}

// DropLink simulates the remote side going away.
func (p *FakePeripheral) DropLink() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dropLink != nil {
		p.dropLink()
	}
}

func (p *FakePeripheral) IsConnected() bool {
	return p.linkErr() == nil
}

func (p *FakePeripheral) Done() <-chan struct{} {
	link, err := p.currentLink()
	if err != nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return link.Done()
}

// Connects reports how many links were established.
func (p *FakePeripheral) Connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

// Discovers reports how many discoveries ran.
func (p *FakePeripheral) Discovers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discovers
}

// Char returns the characteristic with the given UUID; it panics on a miss.
func (p *FakePeripheral) Char(id string) *FakeCharacteristic {
	u, err := device.ParseUUID(id)
	if err != nil {
		panic(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.chars[u]
	if !ok {
		panic(fmt.Sprintf("fake peripheral has no characteristic %s", id))
	}
	return c
}

// RemoveChar drops a characteristic from future discoveries.
func (p *FakePeripheral) RemoveChar(id string) {
	u := mustUUID(id)
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.chars, u)
	for i, o := range p.order {
		if o == u {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

func (p *FakePeripheral) currentLink() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.link == nil || p.link.Err() != nil {
		return nil, &device.TransportError{Op: "fake", Err: device.ErrNotConnected}
	}
	return p.link, nil
}

func (p *FakePeripheral) linkErr() error {
	_, err := p.currentLink()
	return err
}

// ----------------------------
// Builder
// ----------------------------

// FakePeripheralBuilder assembles a FakePeripheral.
type FakePeripheralBuilder struct {
	p *FakePeripheral
}

func NewFakePeripheral(address string) *FakePeripheralBuilder {
	return &FakePeripheralBuilder{p: &FakePeripheral{
		address: device.NormalizeAddress(address),
		chars:   make(map[uuid.UUID]*FakeCharacteristic),
	}}
}

// WithCharacteristic adds a characteristic serving value on read.
func (b *FakePeripheralBuilder) WithCharacteristic(id string, value []byte) *FakePeripheralBuilder {
	u := mustUUID(id)
	if _, ok := b.p.chars[u]; !ok {
		b.p.order = append(b.p.order, u)
	}
	b.p.chars[u] = &FakeCharacteristic{uuid: u, p: b.p, value: value}
	return b
}

// OnWrite runs react after every write to the characteristic.
func (b *FakePeripheralBuilder) OnWrite(id string, react func(p *FakePeripheral, data []byte)) *FakePeripheralBuilder {
	c := b.p.chars[mustUUID(id)]
	if c == nil {
		panic(fmt.Sprintf("OnWrite: unknown characteristic %s", id))
	}
	p := b.p
	c.onWrite = func(data []byte) { react(p, data) }
	return b
}

// NotifyOnWrite answers the n-th write to writeID with scripts[n] notified on
// notifyID. Writes beyond the scripts get no answer.
func (b *FakePeripheralBuilder) NotifyOnWrite(writeID, notifyID string, scripts ...[][]byte) *FakePeripheralBuilder {
	var mu sync.Mutex
	n := 0
	return b.OnWrite(writeID, func(p *FakePeripheral, _ []byte) {
		mu.Lock()
		i := n
		n++
		mu.Unlock()
		if i >= len(scripts) {
			return
		}
		target := p.Char(notifyID)
		for _, payload := range scripts[i] {
			target.Notify(payload)
		}
	})
}

func (b *FakePeripheralBuilder) Build() *FakePeripheral {
	return b.p
}

func mustUUID(id string) uuid.UUID {
	u, err := device.ParseUUID(id)
	if err != nil {
		panic(err)
	}
	return u
}
