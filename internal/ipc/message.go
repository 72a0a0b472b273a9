package ipc

import (
	"encoding/binary"
	"fmt"

	"github.com/srg/inoli/internal/codec"
)

// MessageMagic prefixes every outbound frame.
var MessageMagic = []byte("MSG")

// MessageKind is the stable wire id of an outbound telemetry message.
type MessageKind byte

const (
	MessageBattery   MessageKind = 11
	MessageHeartrate MessageKind = 12
	MessageSteps     MessageKind = 13
)

func (k MessageKind) String() string {
	switch k {
	case MessageBattery:
		return "battery"
	case MessageHeartrate:
		return "heartrate"
	case MessageSteps:
		return "steps"
	}
	return fmt.Sprintf("message(%d)", byte(k))
}

// width is the payload size of a kind, or 0 if the kind is unknown.
func (k MessageKind) width() int {
	switch k {
	case MessageBattery, MessageHeartrate:
		return 1
	case MessageSteps:
		return 4
	}
	return 0
}

// Message is one unit of outbound telemetry. Battery and Heartrate carry a
// single byte in Value.
type Message struct {
	Kind  MessageKind
	Value uint32
}

func BatteryMessage(level byte) Message { return Message{Kind: MessageBattery, Value: uint32(level)} }
func HeartrateMessage(bpm byte) Message { return Message{Kind: MessageHeartrate, Value: uint32(bpm)} }
func StepsMessage(count uint32) Message { return Message{Kind: MessageSteps, Value: count} }
func (m Message) String() string        { return fmt.Sprintf("%s(%d)", m.Kind, m.Value) }

// MarshalBinary encodes the message as a complete "MSG" frame.
func (m Message) MarshalBinary() ([]byte, error) {
	width := m.Kind.width()
	if width == 0 {
		return nil, fmt.Errorf("ipc: cannot encode unknown message kind %d", byte(m.Kind))
	}

	out := make([]byte, 0, len(MessageMagic)+1+width)
	out = append(out, MessageMagic...)
	out = append(out, byte(m.Kind))
	if width == 1 {
		return append(out, byte(m.Value)), nil
	}
	return binary.LittleEndian.AppendUint32(out, m.Value), nil
}

// parseMessage decodes the bytes following the magic.
func parseMessage(body []byte) (Message, int, error) {
	if len(body) < 1 {
		return Message{}, 0, errNeedMore
	}

	kind := MessageKind(body[0])
	width := kind.width()
	if width == 0 {
		return Message{}, 1, &codec.ParseError{
			Field:    "message kind",
			Expected: []byte{byte(MessageBattery), byte(MessageHeartrate), byte(MessageSteps)},
			Position: len(MessageMagic),
			Actual:   body[0],
		}
	}
	if len(body) < 1+width {
		return Message{}, 0, errNeedMore
	}

	m := Message{Kind: kind}
	if width == 1 {
		m.Value = uint32(body[1])
	} else {
		m.Value = binary.LittleEndian.Uint32(body[1:5])
	}
	return m, 1 + width, nil
}
