package ipc

import (
	"testing"

	"github.com/srg/inoli/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageMarshalBinary(t *testing.T) {
	tests := []struct {
		name     string
		msg      Message
		expected []byte
	}{
		{"steps", StepsMessage(500), []byte{'M', 'S', 'G', 13, 0xF4, 0x01, 0x00, 0x00}},
		{"battery", BatteryMessage(77), []byte{'M', 'S', 'G', 11, 77}},
		{"heartrate", HeartrateMessage(64), []byte{'M', 'S', 'G', 12, 64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.msg.MarshalBinary()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)

			back, n, err := parseMessage(got[len(MessageMagic):])
			require.NoError(t, err)
			assert.Equal(t, len(got)-len(MessageMagic), n)
			assert.Equal(t, tt.msg, back)
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		_, err := Message{Kind: 99}.MarshalBinary()
		assert.Error(t, err)
	})
}

func TestParseMessageErrors(t *testing.T) {
	_, n, err := parseMessage([]byte{99, 1})
	var perr *codec.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, byte(99), perr.Actual)
	assert.Equal(t, 1, n)

	_, _, err = parseMessage([]byte{13, 0xF4, 0x01})
	assert.ErrorIs(t, err, errNeedMore)
}

func TestMessageString(t *testing.T) {
	assert.Equal(t, "battery(77)", BatteryMessage(77).String())
	assert.Equal(t, "steps(500)", StepsMessage(500).String())
}
