package main

import (
	"errors"
	"io/fs"
	"syscall"

	"github.com/srg/inoli/internal/device"
	"github.com/srg/inoli/internal/miband"
)

// Command-level errors
var (
	// ErrRelayClosed indicates the relay closed the socket while a command was
	// waiting for a reply.
	ErrRelayClosed = errors.New("relay closed the connection")
)

// FormatUserError turns well-known failures into an actionable message.
func FormatUserError(err error) string {
	var notFound *device.NotFoundError
	var protocol *miband.ProtocolError

	switch {
	case errors.Is(err, device.ErrAdapterNotFound):
		return "Bluetooth adapter not found; check that it is powered on and that inoli may use raw HCI sockets (" + err.Error() + ")"
	case errors.Is(err, miband.ErrAuthTimeout):
		return "the band did not confirm pairing in time; tap it when it vibrates (" + err.Error() + ")"
	case errors.As(err, &protocol):
		return "the band rejected authentication; check the user profile in the config (" + err.Error() + ")"
	case errors.As(err, &notFound):
		return "no supported band found nearby; add its address under devices in the config (" + err.Error() + ")"
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, fs.ErrNotExist):
		return "cannot reach the relay; is 'inoli serve' running? (" + err.Error() + ")"
	}
	return err.Error()
}
