// Package mocks holds testify mocks for the go-ble Device and Client interfaces.
package mocks

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockDevice is a mock ble.Device.
type MockDevice struct {
	mock.Mock
}

var _ ble.Device = (*MockDevice)(nil)

func (m *MockDevice) AddService(svc *ble.Service) error {
	return m.Called(svc).Error(0)
}

func (m *MockDevice) RemoveAllServices() error {
	return m.Called().Error(0)
}

func (m *MockDevice) SetServices(svcs []*ble.Service) error {
	return m.Called(svcs).Error(0)
}

func (m *MockDevice) Stop() error {
	return m.Called().Error(0)
}

func (m *MockDevice) Advertise(ctx context.Context, adv ble.Advertisement) error {
	return m.Called(ctx, adv).Error(0)
}

func (m *MockDevice) AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error {
	return m.Called(ctx, name, uuids).Error(0)
}

func (m *MockDevice) AdvertiseMfgData(ctx context.Context, id uint16, b []byte) error {
	return m.Called(ctx, id, b).Error(0)
}

func (m *MockDevice) AdvertiseServiceData16(ctx context.Context, id uint16, b []byte) error {
	return m.Called(ctx, id, b).Error(0)
}

func (m *MockDevice) AdvertiseIBeaconData(ctx context.Context, b []byte) error {
	return m.Called(ctx, b).Error(0)
}

func (m *MockDevice) AdvertiseIBeacon(ctx context.Context, u ble.UUID, major, minor uint16, pwr int8) error {
	return m.Called(ctx, u, major, minor, pwr).Error(0)
}

func (m *MockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return m.Called(ctx, allowDup, h).Error(0)
}

// Dial returns the configured client. A Run hook may block on ctx to emulate a
// peripheral that never answers.
func (m *MockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, a)
	var client ble.Client
	if c := args.Get(0); c != nil {
		client = c.(ble.Client)
	}
	return client, args.Error(1)
}

// MockClient is a mock ble.Client.
type MockClient struct {
	mock.Mock
}

var _ ble.Client = (*MockClient)(nil)

func (m *MockClient) Addr() ble.Addr {
	if a := m.Called().Get(0); a != nil {
		return a.(ble.Addr)
	}
	return nil
}

func (m *MockClient) Name() string {
	return m.Called().String(0)
}

func (m *MockClient) Profile() *ble.Profile {
	if p := m.Called().Get(0); p != nil {
		return p.(*ble.Profile)
	}
	return nil
}

func (m *MockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	var p *ble.Profile
	if v := args.Get(0); v != nil {
		p = v.(*ble.Profile)
	}
	return p, args.Error(1)
}

func (m *MockClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	var s []*ble.Service
	if v := args.Get(0); v != nil {
		s = v.([]*ble.Service)
	}
	return s, args.Error(1)
}

func (m *MockClient) DiscoverIncludedServices(filter []ble.UUID, s *ble.Service) ([]*ble.Service, error) {
	args := m.Called(filter, s)
	var out []*ble.Service
	if v := args.Get(0); v != nil {
		out = v.([]*ble.Service)
	}
	return out, args.Error(1)
}

func (m *MockClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	var out []*ble.Characteristic
	if v := args.Get(0); v != nil {
		out = v.([]*ble.Characteristic)
	}
	return out, args.Error(1)
}

func (m *MockClient) DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error) {
	args := m.Called(filter, c)
	var out []*ble.Descriptor
	if v := args.Get(0); v != nil {
		out = v.([]*ble.Descriptor)
	}
	return out, args.Error(1)
}

func (m *MockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	var b []byte
	if v := args.Get(0); v != nil {
		b = v.([]byte)
	}
	return b, args.Error(1)
}

func (m *MockClient) ReadLongCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	var b []byte
	if v := args.Get(0); v != nil {
		b = v.([]byte)
	}
	return b, args.Error(1)
}

func (m *MockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *MockClient) ReadDescriptor(d *ble.Descriptor) ([]byte, error) {
	args := m.Called(d)
	var b []byte
	if v := args.Get(0); v != nil {
		b = v.([]byte)
	}
	return b, args.Error(1)
}

func (m *MockClient) WriteDescriptor(d *ble.Descriptor, v []byte) error {
	return m.Called(d, v).Error(0)
}

func (m *MockClient) ReadRSSI() int {
	return m.Called().Int(0)
}

func (m *MockClient) ExchangeMTU(rxMTU int) (int, error) {
	args := m.Called(rxMTU)
	return args.Int(0), args.Error(1)
}

func (m *MockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *MockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *MockClient) ClearSubscriptions() error {
	return m.Called().Error(0)
}

func (m *MockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *MockClient) Disconnected() <-chan struct{} {
	if ch := m.Called().Get(0); ch != nil {
		switch c := ch.(type) {
		case chan struct{}:
			return c
		case <-chan struct{}:
			return c
		}
	}
	return nil
}

func (m *MockClient) Conn() ble.Conn {
	if c := m.Called().Get(0); c != nil {
		return c.(ble.Conn)
	}
	return nil
}
