package testutils

import "github.com/srg/inoli/internal/device"

// Advertisement is an in-memory scan result.
type Advertisement struct {
	addr        string
	name        string
	rssi        int
	connectable bool
}

func (a *Advertisement) Addr() string      { return a.addr }
func (a *Advertisement) LocalName() string { return a.name }
func (a *Advertisement) RSSI() int         { return a.rssi }
func (a *Advertisement) Connectable() bool { return a.connectable }

// AdvertisementBuilder builds fake advertisements with a fluent API.
// Builders start connectable with an RSSI of -60 dBm.
type AdvertisementBuilder struct {
	adv Advertisement
}

func NewAdvertisementBuilder(addr string) *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: Advertisement{addr: addr, rssi: -60, connectable: true}}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

// NotConnectable marks the advertisement as a broadcast-only beacon.
func (b *AdvertisementBuilder) NotConnectable() *AdvertisementBuilder {
	b.adv.connectable = false
	return b
}

func (b *AdvertisementBuilder) Build() device.Advertisement {
	adv := b.adv
	return &adv
}

// Advertisements builds one advertisement per builder, in order.
func Advertisements(builders ...*AdvertisementBuilder) []device.Advertisement {
	out := make([]device.Advertisement, 0, len(builders))
	for _, b := range builders {
		out = append(out, b.Build())
	}
	return out
}
