package codec

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Control point opcodes.
const (
	OpStepsNotify  byte = 0x03
	OpAlarm        byte = 0x04
	OpStepGoal     byte = 0x05
	OpFactoryReset byte = 0x09
	OpSync         byte = 0x0B
	OpReboot       byte = 0x0C
	OpWearLocation byte = 0x0F
	OpSetSteps     byte = 0x14
)

// WearLocation tells the band where it is worn.
type WearLocation byte

const (
	WearLeft   WearLocation = 0
	WearRight  WearLocation = 1
	WearNeck   WearLocation = 2
	WearPocket WearLocation = 3
)

var wearNames = []string{"left", "right", "neck", "pocket"}

func (w WearLocation) String() string {
	if int(w) < len(wearNames) {
		return wearNames[w]
	}
	return "unknown"
}

// ParseWearLocation accepts the names printed by String.
func ParseWearLocation(s string) (WearLocation, error) {
	for i, n := range wearNames {
		if strings.EqualFold(s, n) {
			return WearLocation(i), nil
		}
	}
	return 0, fmt.Errorf("invalid wear location %q (must be one of %s)", s, strings.Join(wearNames, ", "))
}

// DecodeWearLocation parses a single wear-location byte.
func DecodeWearLocation(b byte) (WearLocation, error) {
	if b > byte(WearPocket) {
		return 0, &ParseError{Field: "wear location", Expected: byteRange(0, 3), Position: 0, Actual: b}
	}
	return WearLocation(b), nil
}

// StepsNotifyPayload toggles realtime step notifications.
func StepsNotifyPayload(enable bool) []byte { return []byte{OpStepsNotify, boolByte(enable)} }

// StepGoalPayload sets the daily step goal.
func StepGoalPayload(goal uint16) []byte {
	return []byte{OpStepGoal, 0, byte(goal), byte(goal >> 8)}
}

// SetStepsPayload overwrites the band's step counter.
func SetStepsPayload(steps uint32) []byte {
	b := []byte{OpSetSteps, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(b[1:], steps)
	return b
}

// WearLocationPayload tells the band where it is worn.
func WearLocationPayload(loc WearLocation) []byte { return []byte{OpWearLocation, byte(loc)} }

func FactoryResetPayload() []byte { return []byte{OpFactoryReset} }

func SyncPayload() []byte { return []byte{OpSync} }

func RebootPayload() []byte { return []byte{OpReboot} }

// StepsSize is the wire size of the realtime step counter.
const StepsSize = 4

// DecodeSteps parses the realtime steps characteristic.
func DecodeSteps(b []byte) (uint32, error) {
	if err := checkLength("steps", b, StepsSize); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// HeartRateManualPayload requests a single on-demand measurement.
func HeartRateManualPayload() []byte { return []byte{0x15, 0x02, 0x01} }

// HeartRateContinuousPayload toggles continuous measurement.
func HeartRateContinuousPayload(enable bool) []byte { return []byte{0x15, 0x01, boolByte(enable)} }

// HeartRateSleepPayloads toggles sleep-assist measurement; both writes are sent in order.
func HeartRateSleepPayloads(enable bool) [][]byte {
	return [][]byte{{0x15, 0x00, boolByte(enable)}, {0x14, 0x00}}
}

// DecodeHeartRate extracts bpm from a heart-rate measurement notification.
func DecodeHeartRate(b []byte) (byte, error) {
	if len(b) < 2 {
		return 0, &LengthError{Record: "heart rate", Expected: 2, Actual: len(b)}
	}
	return b[1], nil
}

// DecodeName strips the 3-byte prefix of the name characteristic and decodes the
// rest as UTF-8, replacing invalid sequences.
func DecodeName(b []byte) string {
	if len(b) <= 3 {
		return ""
	}
	return strings.ToValidUTF8(strings.TrimRight(string(b[3:]), "\x00"), "�")
}
