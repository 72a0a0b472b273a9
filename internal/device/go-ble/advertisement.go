package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/inoli/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement
type BLEAdvertisement struct {
	adv ble.Advertisement
}

func NewBLEAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string { return a.adv.LocalName() }
func (a *BLEAdvertisement) Connectable() bool { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int         { return a.adv.RSSI() }
func (a *BLEAdvertisement) Addr() string      { return device.NormalizeAddress(a.adv.Addr().String()) }
