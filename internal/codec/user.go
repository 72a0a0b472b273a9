package codec

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/sigurn/crc8"
)

// UserRecordSize is the wire size of the user record.
const UserRecordSize = 20

const (
	userAliasOffset    = 11
	userAliasSize      = 8
	userChecksumOffset = 19
)

// Sex as understood by the band.
type Sex byte

const (
	Female Sex = 0
	Male   Sex = 1
)

// ParseSex accepts "male"/"female" (and "m"/"f").
func ParseSex(s string) (Sex, error) {
	switch s {
	case "male", "m":
		return Male, nil
	case "female", "f":
		return Female, nil
	}
	return 0, fmt.Errorf("invalid sex %q (must be male or female)", s)
}

func (s Sex) String() string {
	if s == Male {
		return "male"
	}
	return "female"
}

var maximTable = crc8.MakeTable(crc8.CRC8_MAXIM)

// UserRecord is the write-only profile the band authenticates against.
type UserRecord struct {
	ID       uint32
	Sex      Sex
	Age      byte
	Height   byte // cm
	Weight   byte // kg
	Alias    string
	AuthFlag byte
}

// Encode builds the 20-byte record. feature and appearance are echoed from the
// device info; addressTail is the last octet of the band's link-layer address.
func (u UserRecord) Encode(feature, appearance, addressTail byte) []byte {
	b := make([]byte, UserRecordSize)
	binary.LittleEndian.PutUint32(b[0:4], u.ID)
	b[4] = byte(u.Sex)
	b[5] = u.Age
	b[6] = u.Height
	b[7] = u.Weight
	b[8] = u.AuthFlag
	b[9] = feature
	b[10] = appearance
	copy(b[userAliasOffset:userAliasOffset+userAliasSize], truncateUTF8(u.Alias, userAliasSize))
	b[userChecksumOffset] = UserChecksum(b, addressTail)
	return b
}

// UserChecksum is CRC-8/MAXIM over the first 19 bytes XOR the address tail.
func UserChecksum(record []byte, addressTail byte) byte {
	n := userChecksumOffset
	if len(record) < n {
		n = len(record)
	}
	return crc8.Checksum(record[:n], maximTable) ^ addressTail
}

// VerifyUserRecord recomputes the embedded checksum of an encoded record.
func VerifyUserRecord(record []byte, addressTail byte) error {
	if err := checkLength("user record", record, UserRecordSize); err != nil {
		return err
	}
	want := UserChecksum(record, addressTail)
	if record[userChecksumOffset] != want {
		return &ParseError{Field: "user record checksum", Expected: []byte{want}, Position: userChecksumOffset, Actual: record[userChecksumOffset]}
	}
	return nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) []byte {
	if len(s) <= n {
		return []byte(s)
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return []byte(s[:cut])
}
