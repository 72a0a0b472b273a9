package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ----------------------------
// Errors
// ----------------------------

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "adapter", "device", "service", "characteristic"
	UUIDs    []string // identifiers of the missing resource
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected       ConnectionState = "not_connected"
	AlreadyConnected   ConnectionState = "already_connected"
	ServicesUnresolved ConnectionState = "services_unresolved"
	AdapterNotFound    ConnectionState = "adapter_not_found"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected       = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected   = &ConnectionError{State: AlreadyConnected}
	ErrServicesUnresolved = &ConnectionError{State: ServicesUnresolved}
	ErrAdapterNotFound    = &ConnectionError{State: AdapterNotFound}
)

// ErrTimeout is returned when a transport operation does not complete in time.
var ErrTimeout = errors.New("timeout")

// TransportError wraps a failed BLE operation.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transport failure the reconnect loop should
// recover from: a missing resource or unresolved services. Everything else is fatal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	return errors.Is(err, ErrServicesUnresolved) || errors.Is(err, ErrAdapterNotFound)
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ----------------------------
// Transport boundary
// ----------------------------

// Characteristic is a discovered GATT characteristic of a connected peripheral.
type Characteristic interface {
	UUID() uuid.UUID
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte, withResponse bool) error
	// Subscribe delivers notifications in arrival order until ctx is done or
	// the link drops, then closes the channel.
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

// Peripheral is the link to one remote device.
type Peripheral interface {
	Address() string
	Connect(ctx context.Context) error
	// Discover returns every characteristic of every service on the current link.
	Discover(ctx context.Context) ([]Characteristic, error)
	Disconnect() error
	IsConnected() bool
	// Done is closed when the current link drops or is disconnected.
	Done() <-chan struct{}
}

// Advertisement is the part of a scan result discovery needs.
type Advertisement interface {
	Addr() string
	LocalName() string
	RSSI() int
	Connectable() bool
}

// ----------------------------
// Addresses
// ----------------------------

// NormalizeAddress upper-cases a colon separated hardware address.
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// AddressTail returns the last octet of a hardware address.
func AddressTail(address string) (byte, error) {
	address = NormalizeAddress(address)
	i := strings.LastIndexByte(address, ':')
	if i < 0 || len(address)-i != 3 {
		return 0, fmt.Errorf("invalid hardware address %q", address)
	}
	var b byte
	if _, err := fmt.Sscanf(address[i+1:], "%02X", &b); err != nil {
		return 0, fmt.Errorf("invalid hardware address %q: %w", address, err)
	}
	return b, nil
}
