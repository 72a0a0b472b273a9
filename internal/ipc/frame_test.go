package ipc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains every frame currently buffered in s.
func collect(t *testing.T, s *FrameScanner[Command]) ([]Command, []error) {
	t.Helper()
	var cmds []Command
	var errs []error
	for {
		cmd, ok, err := s.Next()
		if !ok {
			return cmds, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cmds = append(cmds, cmd)
	}
}

func TestFrameScanner(t *testing.T) {
	t.Run("unknown command does not affect the next frame", func(t *testing.T) {
		s := NewCommandScanner(0)
		s.Write(append(frame(0xFF, 0x00), frame(0x53, 0x00)...))

		cmds, errs := collect(t, s)
		require.Len(t, errs, 1)
		var unknown *UnknownCommandError
		assert.ErrorAs(t, errs[0], &unknown)
		assert.Equal(t, []Command{{Kind: KindBattery, Action: Get}}, cmds)
		assert.Zero(t, s.Buffered())
	})

	t.Run("garbage between frames is skipped", func(t *testing.T) {
		s := NewCommandScanner(0)
		in := []byte("xx")
		in = append(in, frame(0x50, 0x01, 0x0A, 0, 0, 0)...)
		in = append(in, "noise C"...)
		in = append(in, frame(244, 0x00)...)
		s.Write(in)

		cmds, errs := collect(t, s)
		assert.Empty(t, errs)
		assert.Equal(t, []Command{
			{Kind: KindSteps, Action: Set, Steps: 10},
			{Kind: KindName, Action: Get},
		}, cmds)
	})

	t.Run("split frame is completed by later writes", func(t *testing.T) {
		s := NewCommandScanner(0)
		whole := frame(0x50, 0x01, 0x0A, 0x00, 0x00, 0x00)

		s.Write(whole[:2])
		cmds, _ := collect(t, s)
		assert.Empty(t, cmds)
		assert.Equal(t, 2, s.Buffered(), "partial magic is retained")

		s.Write(whole[2:6])
		cmds, _ = collect(t, s)
		assert.Empty(t, cmds)

		s.Write(whole[6:])
		cmds, _ = collect(t, s)
		assert.Equal(t, []Command{{Kind: KindSteps, Action: Set, Steps: 10}}, cmds)
	})

	t.Run("bytes without magic are discarded", func(t *testing.T) {
		s := NewCommandScanner(0)
		s.Write([]byte("hello world"))
		cmds, errs := collect(t, s)
		assert.Empty(t, cmds)
		assert.Empty(t, errs)
		assert.Zero(t, s.Buffered())
	})

	t.Run("limit drops the oldest bytes", func(t *testing.T) {
		s := NewCommandScanner(16)
		s.Write(bytes.Repeat([]byte{'z'}, 40))
		assert.Equal(t, 16, s.Buffered())

		s.Write(frame(0x53, 0x00))
		cmds, _ := collect(t, s)
		assert.Equal(t, []Command{{Kind: KindBattery, Action: Get}}, cmds)
	})
}

func TestMessageScanner(t *testing.T) {
	s := NewMessageScanner(0)
	var in []byte
	for _, m := range []Message{BatteryMessage(50), StepsMessage(1234), HeartrateMessage(70)} {
		b, err := m.MarshalBinary()
		require.NoError(t, err)
		in = append(in, b...)
	}

	s.Write(in[:7])
	s.Write(in[7:])

	var got []Message
	for {
		m, ok, err := s.Next()
		if !ok {
			break
		}
		require.NoError(t, err)
		got = append(got, m)
	}
	assert.Equal(t, []Message{BatteryMessage(50), StepsMessage(1234), HeartrateMessage(70)}, got)
}
