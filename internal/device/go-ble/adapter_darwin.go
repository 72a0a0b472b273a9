//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// newDevice opens the CoreBluetooth central. macOS exposes a single adapter,
// so the index is ignored.
func newDevice(_ int) (ble.Device, error) {
	return darwin.NewDevice()
}
