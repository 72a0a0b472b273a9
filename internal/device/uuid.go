package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// baseUUID is the Bluetooth SIG base 0000xxxx-0000-1000-8000-00805f9b34fb.
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// UUID16 expands a 16-bit assigned number into a full UUID.
func UUID16(short uint16) uuid.UUID {
	u := baseUUID
	u[2] = byte(short >> 8)
	u[3] = byte(short)
	return u
}

// ParseUUID accepts the 16-bit ("fee0", "0xFEE0"), 32-bit and 128-bit forms,
// with or without dashes.
func ParseUUID(s string) (uuid.UUID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	switch len(s) {
	case 4, 8:
		var v uint32
		if _, err := fmt.Sscanf(s, "%x", &v); err != nil {
			return uuid.Nil, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		u := baseUUID
		u[0], u[1], u[2], u[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
		return u, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u, nil
}

// FromLittleEndian converts a UUID in BLE wire order (2, 4 or 16 bytes, least
// significant byte first) into a full UUID.
func FromLittleEndian(b []byte) (uuid.UUID, error) {
	switch len(b) {
	case 2:
		return UUID16(uint16(b[1])<<8 | uint16(b[0])), nil
	case 4:
		u := baseUUID
		u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
		return u, nil
	case 16:
		var u uuid.UUID
		for i := range b {
			u[i] = b[15-i]
		}
		return u, nil
	}
	return uuid.Nil, fmt.Errorf("invalid UUID length %d", len(b))
}

// ShortUUID returns the 16-bit form of a SIG-based UUID, or the full string otherwise.
func ShortUUID(u uuid.UUID) string {
	if u[0] == 0 && u[1] == 0 && [12]byte(u[4:]) == [12]byte(baseUUID[4:]) {
		return fmt.Sprintf("%02x%02x", u[2], u[3])
	}
	return u.String()
}
