package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/go-ble/ble"
	"github.com/srg/inoli/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig describes one characteristic of a mocked peripheral.
// ReadErr and WriteErr are what the remote returns for every read or write.
type CharacteristicConfig struct {
	UUID       ble.UUID
	Properties ble.Property
	Value      []byte
	ReadErr    error
	WriteErr   error
}

// PeripheralDeviceBuilder builds a mocked ble.Device whose Dial yields a client
// serving the configured GATT profile.
type PeripheralDeviceBuilder struct {
	services    []*ble.Service
	configs     map[*ble.Characteristic]CharacteristicConfig
	unreachable bool
}

func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{configs: make(map[*ble.Characteristic]CharacteristicConfig)}
}

// WithService adds a primary service and its characteristics.
func (b *PeripheralDeviceBuilder) WithService(u ble.UUID, chars ...CharacteristicConfig) *PeripheralDeviceBuilder {
	svc := &ble.Service{UUID: u}
	for _, cfg := range chars {
		props := cfg.Properties
		if props == 0 {
			props = ble.CharRead | ble.CharWrite | ble.CharNotify
		}
		c := &ble.Characteristic{UUID: cfg.UUID, Property: props, Value: cfg.Value}
		svc.Characteristics = append(svc.Characteristics, c)
		b.configs[c] = cfg
	}
	b.services = append(b.services, svc)
	return b
}

// Unreachable makes Dial block until its context ends, as for a band out of range.
func (b *PeripheralDeviceBuilder) Unreachable() *PeripheralDeviceBuilder {
	b.unreachable = true
	return b
}

// MockedPeripheral is the built device together with the client it dials.
type MockedPeripheral struct {
	Device  *mocks.MockDevice
	Client  *mocks.MockClient
	Profile *ble.Profile

	disconnected chan struct{}
	dropOnce     sync.Once
}

// Drop closes the client's Disconnected channel, as the stack does on link loss.
func (p *MockedPeripheral) Drop() {
	p.dropOnce.Do(func() { close(p.disconnected) })
}

// Characteristic returns the profile characteristic with the given UUID.
func (p *MockedPeripheral) Characteristic(u ble.UUID) *ble.Characteristic {
	for _, svc := range p.Profile.Services {
		for _, c := range svc.Characteristics {
			if c.UUID.Equal(u) {
				return c
			}
		}
	}
	return nil
}

// Build creates the mocked device and sets up its expectations.
func (b *PeripheralDeviceBuilder) Build() *MockedPeripheral {
	p := &MockedPeripheral{
		Device:       &mocks.MockDevice{},
		Client:       &mocks.MockClient{},
		Profile:      &ble.Profile{Services: b.services},
		disconnected: make(chan struct{}),
	}

	if b.unreachable {
		p.Device.On("Dial", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).Return(nil, errors.New("dial: context deadline exceeded"))
		return p
	}

	p.Device.On("Dial", mock.Anything, mock.Anything).Return(p.Client, nil)
	p.Client.On("DiscoverProfile", true).Return(p.Profile, nil)
	p.Client.On("CancelConnection").Return(nil)
	p.Client.On("Disconnected").Return(p.disconnected)

	for c, cfg := range b.configs {
		p.Client.On("Subscribe", c, false, mock.Anything).Return(nil)
		p.Client.On("Subscribe", c, true, mock.Anything).Return(nil)
		p.Client.On("Unsubscribe", c, false).Return(nil)
		p.Client.On("Unsubscribe", c, true).Return(nil)
		p.Client.On("WriteCharacteristic", c, mock.Anything, mock.Anything).Return(cfg.WriteErr)
		if cfg.ReadErr != nil {
			p.Client.On("ReadCharacteristic", c).Return(nil, cfg.ReadErr)
		} else {
			p.Client.On("ReadCharacteristic", c).Return(cfg.Value, nil)
		}
	}
	return p
}
