package ipc

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/srg/inoli/internal/codec"
	"github.com/srg/inoli/internal/device"
)

// CommandMagic prefixes every inbound frame.
var CommandMagic = []byte("CMD")

// Kind identifies a Command variant.
type Kind int

const (
	KindAlarm Kind = iota
	KindAlert
	KindBattery
	KindDateTime
	KindHeartrate
	KindHeartrateContinuous
	KindHeartrateSleep
	KindName
	KindSteps
	KindWearLocation
)

var kindNames = [...]string{
	KindAlarm:               "alarm",
	KindAlert:               "alert",
	KindBattery:             "battery",
	KindDateTime:            "datetime",
	KindHeartrate:           "heartrate",
	KindHeartrateContinuous: "heartrate_continuous",
	KindHeartrateSleep:      "heartrate_sleep",
	KindName:                "name",
	KindSteps:               "steps",
	KindWearLocation:        "wear_location",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Wire codes. Kinds without a code are only reachable through the Go API.
const (
	codeSteps               byte = 80
	codeBattery             byte = 83
	codeHeartrate           byte = 139
	codeAlert               byte = 145
	codeHeartrateContinuous byte = 173
	codeName                byte = 244
)

var wireCodes = map[Kind]byte{
	KindSteps:               codeSteps,
	KindBattery:             codeBattery,
	KindHeartrate:           codeHeartrate,
	KindAlert:               codeAlert,
	KindHeartrateContinuous: codeHeartrateContinuous,
	KindName:                codeName,
}

// Action selects between reading and changing a value.
type Action byte

const (
	Get Action = 0
	Set Action = 1
)

func (a Action) String() string {
	if a == Set {
		return "set"
	}
	return "get"
}

// Command is one inbound control request. Only the fields relevant to Kind
// are meaningful.
type Command struct {
	Kind   Kind
	Action Action

	Steps  uint32
	Enable bool
	Level  device.AlertLevel
	Time   time.Time
	Wear   codec.WearLocation
	Alarm  codec.AlarmSlot
}

func (c Command) String() string {
	switch c.Kind {
	case KindSteps:
		if c.Action == Set {
			return fmt.Sprintf("steps(set, %d)", c.Steps)
		}
	case KindAlert:
		return fmt.Sprintf("alert(%s)", c.Level)
	case KindHeartrateContinuous, KindHeartrateSleep:
		return fmt.Sprintf("%s(%t)", c.Kind, c.Enable)
	}
	return fmt.Sprintf("%s(%s)", c.Kind, c.Action)
}

// UnknownCommandError reports a frame whose kind byte is not a known command.
type UnknownCommandError struct {
	Kind byte
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command kind %d", e.Kind)
}

// MarshalBinary encodes the command as a complete "CMD" frame.
func (c Command) MarshalBinary() ([]byte, error) {
	code, ok := wireCodes[c.Kind]
	if !ok {
		return nil, fmt.Errorf("ipc: %s has no wire encoding", c.Kind)
	}
	if c.Action != Get && c.Action != Set {
		return nil, fmt.Errorf("ipc: invalid action %d", byte(c.Action))
	}

	out := append([]byte{}, CommandMagic...)
	out = append(out, code, byte(c.Action))

	switch c.Kind {
	case KindSteps:
		if c.Action == Set {
			out = binary.LittleEndian.AppendUint32(out, c.Steps)
		}
	case KindHeartrateContinuous:
		out = append(out, boolByte(c.Enable))
	case KindAlert:
		if c.Level != device.AlertMild && c.Level != device.AlertHigh {
			return nil, fmt.Errorf("ipc: invalid alert level %d", byte(c.Level))
		}
		out = append(out, byte(c.Level))
	}
	return out, nil
}

// parseCommand decodes the bytes following the magic. Kind and action are
// consumed before any validation so that a bad frame never swallows the
// next one.
func parseCommand(body []byte) (Command, int, error) {
	if len(body) < 2 {
		return Command{}, 0, errNeedMore
	}

	code, action := body[0], Action(body[1])
	if action != Get && action != Set {
		return Command{}, 2, &codec.ParseError{
			Field:    "command action",
			Expected: []byte{byte(Get), byte(Set)},
			Position: len(CommandMagic) + 1,
			Actual:   body[1],
		}
	}

	payload := body[2:]
	switch code {
	case codeSteps:
		cmd := Command{Kind: KindSteps, Action: action}
		if action == Get {
			return cmd, 2, nil
		}
		if len(payload) < 4 {
			return Command{}, 0, errNeedMore
		}
		cmd.Steps = binary.LittleEndian.Uint32(payload)
		return cmd, 6, nil
	case codeBattery:
		return Command{Kind: KindBattery, Action: action}, 2, nil
	case codeHeartrate:
		return Command{Kind: KindHeartrate, Action: action}, 2, nil
	case codeName:
		return Command{Kind: KindName, Action: action}, 2, nil
	case codeHeartrateContinuous:
		if len(payload) < 1 {
			return Command{}, 0, errNeedMore
		}
		return Command{Kind: KindHeartrateContinuous, Action: action, Enable: payload[0] != 0}, 3, nil
	case codeAlert:
		if len(payload) < 1 {
			return Command{}, 0, errNeedMore
		}
		level := device.AlertLevel(payload[0])
		if level != device.AlertMild && level != device.AlertHigh {
			return Command{}, 3, &codec.ParseError{
				Field:    "alert level",
				Expected: []byte{byte(device.AlertMild), byte(device.AlertHigh)},
				Position: len(CommandMagic) + 2,
				Actual:   payload[0],
			}
		}
		return Command{Kind: KindAlert, Action: action, Level: level}, 3, nil
	}
	return Command{}, 2, &UnknownCommandError{Kind: code}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
