package codec

import (
	"encoding/binary"
	"time"
)

// BatteryInfoSize is the wire size of the battery record.
const BatteryInfoSize = 10

// BatteryStatus is the charging state tag of a battery record.
type BatteryStatus byte

const (
	BatteryLow         BatteryStatus = 1
	BatteryCharging    BatteryStatus = 2
	BatteryNotCharging BatteryStatus = 3
	BatteryFull        BatteryStatus = 4
)

func (s BatteryStatus) String() string {
	switch s {
	case BatteryLow:
		return "low"
	case BatteryCharging:
		return "charging"
	case BatteryNotCharging:
		return "not charging"
	case BatteryFull:
		return "full"
	}
	return "unknown"
}

// BatteryInfo is the battery characteristic record.
type BatteryInfo struct {
	Level       byte
	LastCharged time.Time
	Cycles      uint16
	Status      BatteryStatus
}

// DecodeBatteryInfo parses a 10-byte battery record; its date is interpreted in loc.
func DecodeBatteryInfo(b []byte, loc *time.Location) (BatteryInfo, error) {
	if err := checkLength("battery info", b, BatteryInfoSize); err != nil {
		return BatteryInfo{}, err
	}
	when, err := DecodeDateTime(b[1:7], loc)
	if err != nil {
		return BatteryInfo{}, err
	}
	status := BatteryStatus(b[9])
	if status < BatteryLow || status > BatteryFull {
		return BatteryInfo{}, &ParseError{Field: "battery status", Expected: byteRange(1, 4), Position: 9, Actual: b[9]}
	}
	return BatteryInfo{
		Level:       b[0],
		LastCharged: when,
		Cycles:      binary.LittleEndian.Uint16(b[7:9]),
		Status:      status,
	}, nil
}

// Encode lays the record out as the band reports it.
func (bi BatteryInfo) Encode(loc *time.Location) []byte {
	b := make([]byte, BatteryInfoSize)
	b[0] = bi.Level
	dt := EncodeDateTime(bi.LastCharged, loc)
	copy(b[1:7], dt[:])
	binary.LittleEndian.PutUint16(b[7:9], bi.Cycles)
	b[9] = byte(bi.Status)
	return b
}
