package codec

import "encoding/binary"

// LEParamsSize is the wire size of the connection parameter record.
const LEParamsSize = 12

// LEParams are the link-layer connection parameters, all little-endian u16.
type LEParams struct {
	MinConnInterval   uint16
	MaxConnInterval   uint16
	Latency           uint16
	Timeout           uint16
	ConnInterval      uint16
	AdvertiseInterval uint16
}

// LowLatency is the profile requested right after authentication.
var LowLatency = LEParams{
	MinConnInterval: 39,
	MaxConnInterval: 49,
	Latency:         0,
	Timeout:         500,
}

// Encode writes the six fields in order.
func (p LEParams) Encode() []byte {
	b := make([]byte, LEParamsSize)
	for i, f := range []uint16{p.MinConnInterval, p.MaxConnInterval, p.Latency, p.Timeout, p.ConnInterval, p.AdvertiseInterval} {
		binary.LittleEndian.PutUint16(b[i*2:], f)
	}
	return b
}

// DecodeLEParams parses the 12-byte connection parameter record.
func DecodeLEParams(b []byte) (LEParams, error) {
	if err := checkLength("le params", b, LEParamsSize); err != nil {
		return LEParams{}, err
	}
	return LEParams{
		MinConnInterval:   binary.LittleEndian.Uint16(b[0:2]),
		MaxConnInterval:   binary.LittleEndian.Uint16(b[2:4]),
		Latency:           binary.LittleEndian.Uint16(b[4:6]),
		Timeout:           binary.LittleEndian.Uint16(b[6:8]),
		ConnInterval:      binary.LittleEndian.Uint16(b[8:10]),
		AdvertiseInterval: binary.LittleEndian.Uint16(b[10:12]),
	}, nil
}
