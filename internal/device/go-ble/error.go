package goble

import (
	"fmt"
	"strings"

	"github.com/srg/inoli/internal/device"
)

// NormalizeError maps known go-ble and HCI error strings to structured ConnectionError types.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "no such device"),
		containsIgnoreCase(msg, "can't init hci"),
		containsIgnoreCase(msg, "can't open adapter"):
		return fmt.Errorf("%w: %v", device.ErrAdapterNotFound, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"),
		containsIgnoreCase(msg, "connection closed"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "can't discover services"),
		containsIgnoreCase(msg, "can't discover characteristics"):
		return fmt.Errorf("%w: %v", device.ErrServicesUnresolved, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
