package device

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUUID(t *testing.T) {
	fee0 := uuid.MustParse("0000fee0-0000-1000-8000-00805f9b34fb")

	tests := []struct {
		name  string
		input string
		want  uuid.UUID
	}{
		{"16-bit lowercase", "fee0", fee0},
		{"16-bit with 0x prefix", "0xFEE0", fee0},
		{"32-bit", "0000fee0", fee0},
		{"full with dashes", "0000FEE0-0000-1000-8000-00805F9B34FB", fee0},
		{"full without dashes", "0000fee000001000800000805f9b34fb", fee0},
		{"vendor 128-bit", "6e400001-b5a3-f393-e0a9-e50e24dcca9e", uuid.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUUID(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseUUID("not-a-uuid")
	assert.Error(t, err)
}

func TestUUID16(t *testing.T) {
	assert.Equal(t, "00002a37-0000-1000-8000-00805f9b34fb", UUID16(0x2A37).String())
	assert.Equal(t, "2a37", ShortUUID(UUID16(0x2A37)))
	assert.Equal(t, "6e400001-b5a3-f393-e0a9-e50e24dcca9e", ShortUUID(uuid.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")))
}

func TestFromLittleEndian(t *testing.T) {
	u, err := FromLittleEndian([]byte{0xE0, 0xFE})
	require.NoError(t, err)
	assert.Equal(t, UUID16(0xFEE0), u)

	u, err = FromLittleEndian([]byte{0xE0, 0xFE, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, UUID16(0xFEE0), u)

	full := uuid.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	le := make([]byte, 16)
	for i := range le {
		le[i] = full[15-i]
	}
	u, err = FromLittleEndian(le)
	require.NoError(t, err)
	assert.Equal(t, full, u)

	_, err = FromLittleEndian([]byte{1, 2, 3})
	assert.Error(t, err)
}
