//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// newDevice opens HCI adapter hci<adapter>.
func newDevice(adapter int) (ble.Device, error) {
	return linux.NewDevice(ble.OptDeviceID(adapter))
}
