package codec

import (
	"encoding/binary"
	"fmt"
)

// DeviceInfoSize is the wire size of the device information record.
const DeviceInfoSize = 20

// Version is a 4-byte firmware/profile version, displayed most significant byte first.
type Version [4]byte

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[3], v[2], v[1], v[0])
}

// DeviceInfo is the read-only identity record of a band.
type DeviceInfo struct {
	ID              uint32
	Feature         byte
	Appearance      byte
	HardwareVersion byte
	Profile         Version
	Firmware        Version
	FirmwareHeart   Version
}

// DecodeDeviceInfo parses the 20-byte device information record.
func DecodeDeviceInfo(b []byte) (DeviceInfo, error) {
	if err := checkLength("device info", b, DeviceInfoSize); err != nil {
		return DeviceInfo{}, err
	}
	info := DeviceInfo{
		ID:              binary.BigEndian.Uint32(b[0:4]),
		Feature:         b[4],
		Appearance:      b[5],
		HardwareVersion: b[6],
	}
	copy(info.Profile[:], b[8:12])
	copy(info.Firmware[:], b[12:16])
	copy(info.FirmwareHeart[:], b[16:20])
	return info, nil
}

// Encode lays the record out as the band does; the reserved byte is zero.
func (d DeviceInfo) Encode() []byte {
	b := make([]byte, DeviceInfoSize)
	binary.BigEndian.PutUint32(b[0:4], d.ID)
	b[4] = d.Feature
	b[5] = d.Appearance
	b[6] = d.HardwareVersion
	copy(b[8:12], d.Profile[:])
	copy(b[12:16], d.Firmware[:])
	copy(b[16:20], d.FirmwareHeart[:])
	return b
}
