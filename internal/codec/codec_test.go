package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRecordChecksum(t *testing.T) {
	tests := []struct {
		name string
		user UserRecord
		tail byte
	}{
		{"default profile", UserRecord{ID: 141279967, Sex: Male, Age: 23, Height: 170, Weight: 50, Alias: "Bob"}, 0xAA},
		{"retry flag", UserRecord{ID: 1, Sex: Female, Age: 40, Height: 160, Weight: 60, Alias: "alice", AuthFlag: 1}, 0x01},
		{"empty alias", UserRecord{ID: 0xFFFFFFFF, Age: 255, Height: 255, Weight: 255}, 0x00},
		{"long alias", UserRecord{ID: 7, Alias: "averyveryverylongname"}, 0xFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.user.Encode(0x05, 0x03, tt.tail)
			require.Len(t, b, UserRecordSize)
			assert.NoError(t, VerifyUserRecord(b, tt.tail))
			assert.Equal(t, UserChecksum(b, tt.tail), b[19])

			// the tail is xor-ed in last, so switching tails flips exactly those bits
			other := tt.tail ^ 0x5A
			assert.Equal(t, b[19]^tt.tail^other, UserChecksum(b, other))

			var perr *ParseError
			assert.ErrorAs(t, VerifyUserRecord(b, other), &perr)
		})
	}
}

func TestUserRecordLayout(t *testing.T) {
	u := UserRecord{ID: 0x04030201, Sex: Male, Age: 23, Height: 170, Weight: 50, Alias: "Bob", AuthFlag: 1}
	b := u.Encode(0x11, 0x22, 0xAA)

	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, b[0:4])
	assert.Equal(t, []byte{1, 23, 170, 50, 1, 0x11, 0x22}, b[4:11])
	assert.Equal(t, []byte{'B', 'o', 'b', 0, 0, 0, 0, 0}, b[11:19])
}

func TestUserRecordAliasTruncation(t *testing.T) {
	tests := []struct {
		name  string
		alias string
		want  string
	}{
		{"fits", "Bob", "Bob"},
		{"exact", "12345678", "12345678"},
		{"ascii overflow", "123456789", "12345678"},
		{"does not split a rune", "abcdefgΩ", "abcdefg"},
		{"multibyte fits", "Grüße-", "Grüße-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := UserRecord{Alias: tt.alias}.Encode(0, 0, 0)
			alias := b[11:19]
			end := 0
			for end < len(alias) && alias[end] != 0 {
				end++
			}
			assert.Equal(t, tt.want, string(alias[:end]))
		})
	}
}

func TestDeviceInfoRoundTrip(t *testing.T) {
	info := DeviceInfo{
		ID:              0xDEADBEEF,
		Feature:         0x05,
		Appearance:      0x03,
		HardwareVersion: 0x02,
		Profile:         Version{0x01, 0x02, 0x00, 0x01},
		Firmware:        Version{0x10, 0x04, 0x01, 0x04},
		FirmwareHeart:   Version{0x00, 0x00, 0x00, 0x00},
	}

	decoded, err := DecodeDeviceInfo(info.Encode())
	require.NoError(t, err)
	assert.Equal(t, info, decoded)
	assert.Equal(t, "4.1.4.16", decoded.Firmware.String())
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, info.Encode()[0:4], "id is big-endian")
}

func TestBatteryInfoRoundTrip(t *testing.T) {
	for _, status := range []BatteryStatus{BatteryLow, BatteryCharging, BatteryNotCharging, BatteryFull} {
		t.Run(status.String(), func(t *testing.T) {
			bi := BatteryInfo{
				Level:       77,
				LastCharged: time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC),
				Cycles:      300,
				Status:      status,
			}
			decoded, err := DecodeBatteryInfo(bi.Encode(time.UTC), time.UTC)
			require.NoError(t, err)
			assert.Equal(t, bi, decoded)
		})
	}
}

func TestBatteryInfoRejectsUnknownStatus(t *testing.T) {
	b := BatteryInfo{Level: 50, LastCharged: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Status: BatteryFull}.Encode(time.UTC)
	b[9] = 9

	_, err := DecodeBatteryInfo(b, time.UTC)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 9, perr.Position)
	assert.Equal(t, byte(9), perr.Actual)
	assert.Equal(t, []byte{1, 2, 3, 4}, perr.Expected)
}

func TestLEParams(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		p := LEParams{MinConnInterval: 1, MaxConnInterval: 0x0203, Latency: 4, Timeout: 0xFFFF, ConnInterval: 6, AdvertiseInterval: 7}
		decoded, err := DecodeLEParams(p.Encode())
		require.NoError(t, err)
		assert.Equal(t, p, decoded)
	})

	t.Run("low latency profile", func(t *testing.T) {
		assert.Equal(t, []byte{39, 0, 49, 0, 0, 0, 0xF4, 0x01, 0, 0, 0, 0}, LowLatency.Encode())
	})
}

func TestDateTime(t *testing.T) {
	t.Run("utc round trip", func(t *testing.T) {
		want := time.Date(2024, 3, 15, 13, 45, 30, 0, time.UTC)
		b := EncodeDateTime(want, time.UTC)
		assert.Equal(t, [6]byte{24, 3, 15, 13, 45, 30}, b)

		got, err := DecodeDateTime(b[:], time.UTC)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("local wall clock on the wire", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*3600)
		want := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
		b := EncodeDateTime(want, loc)
		assert.Equal(t, [6]byte{25, 1, 1, 1, 0, 0}, b)

		got, err := DecodeDateTime(b[:], loc)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, time.UTC, got.Location())
	})

	t.Run("invalid month", func(t *testing.T) {
		_, err := DecodeDateTime([]byte{24, 13, 1, 0, 0, 0}, time.UTC)
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, 1, perr.Position)
	})

	t.Run("day past end of month", func(t *testing.T) {
		_, err := DecodeDateTime([]byte{24, 2, 30, 0, 0, 0}, time.UTC)
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, 2, perr.Position)
	})

	t.Run("years outside the wire range clamp", func(t *testing.T) {
		assert.Equal(t, [6]byte{0, 1, 1, 0, 0, 0}, EncodeDateTime(time.Time{}, time.UTC))
		assert.Equal(t, [6]byte{0, 1, 1, 0, 0, 0}, EncodeDateTime(time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC), time.UTC))
		assert.Equal(t, [6]byte{255, 12, 31, 23, 59, 59}, EncodeDateTime(time.Date(2300, 6, 1, 0, 0, 0, 0, time.UTC), time.UTC))

		b := EncodeDateTime(time.Date(2256, 1, 1, 0, 0, 0, 0, time.UTC), nil)
		got, err := DecodeDateTime(b[:], nil)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2255, 12, 31, 23, 59, 59, 0, time.UTC), got)
	})

	t.Run("characteristic payload", func(t *testing.T) {
		p := DateTimePayload(time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC), time.UTC)
		assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, p)
	})
}

func TestLengthGuard(t *testing.T) {
	decoders := map[string]struct {
		size   int
		decode func([]byte) error
	}{
		"device info": {DeviceInfoSize, func(b []byte) error { _, err := DecodeDeviceInfo(b); return err }},
		"battery":     {BatteryInfoSize, func(b []byte) error { _, err := DecodeBatteryInfo(b, time.UTC); return err }},
		"le params":   {LEParamsSize, func(b []byte) error { _, err := DecodeLEParams(b); return err }},
		"datetime":    {DateTimeSize, func(b []byte) error { _, err := DecodeDateTime(b, time.UTC); return err }},
		"steps":       {StepsSize, func(b []byte) error { _, err := DecodeSteps(b); return err }},
		"user record": {UserRecordSize, func(b []byte) error { return VerifyUserRecord(b, 0) }},
	}

	for name, d := range decoders {
		for _, n := range []int{0, d.size - 1, d.size + 1, 64} {
			t.Run(name, func(t *testing.T) {
				var lerr *LengthError
				err := d.decode(make([]byte, n))
				require.True(t, errors.As(err, &lerr), "expected LengthError, got %v", err)
				assert.Equal(t, d.size, lerr.Expected)
				assert.Equal(t, n, lerr.Actual)
			})
		}
	}
}

func TestControlPayloads(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"set steps", SetStepsPayload(500), []byte{0x14, 0xF4, 0x01, 0, 0}},
		{"step goal", StepGoalPayload(10000), []byte{0x05, 0, 0x10, 0x27}},
		{"wear location", WearLocationPayload(WearRight), []byte{0x0F, 1}},
		{"factory reset", FactoryResetPayload(), []byte{0x09}},
		{"sync", SyncPayload(), []byte{0x0B}},
		{"reboot", RebootPayload(), []byte{0x0C}},
		{"steps notify", StepsNotifyPayload(true), []byte{0x03, 1}},
		{"heart rate manual", HeartRateManualPayload(), []byte{0x15, 0x02, 0x01}},
		{"heart rate continuous off", HeartRateContinuousPayload(false), []byte{0x15, 0x01, 0}},
		{"alarm", AlarmSlot{
			ID: 2, Enabled: true, When: time.Date(2024, 1, 2, 7, 30, 0, 0, time.UTC), SmartWake: true, Repeat: Workweek,
		}.Payload(time.UTC), []byte{0x04, 2, 1, 24, 1, 2, 7, 30, 0, 1, 0x1F}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	assert.Equal(t, [][]byte{{0x15, 0x00, 1}, {0x14, 0x00}}, HeartRateSleepPayloads(true))
}

func TestWeekdays(t *testing.T) {
	assert.Equal(t, Weekdays(0b11111), Workweek)
	assert.Equal(t, Weekdays(0b1100000), Weekend)
	assert.Equal(t, Weekdays(0b1111111), Everyday)

	w, err := ParseWeekdays("mon, wed,sun")
	require.NoError(t, err)
	assert.Equal(t, Monday|Wednesday|Sunday, w)

	_, err = ParseWeekdays("caturday")
	assert.Error(t, err)
}

func TestDecodeName(t *testing.T) {
	assert.Equal(t, "MI", DecodeName([]byte{0x01, 0x02, 0x03, 'M', 'I'}))
	assert.Equal(t, "", DecodeName([]byte{0x01, 0x02}))
	assert.Equal(t, "a�b", DecodeName([]byte{0, 0, 0, 'a', 0xFF, 'b'}))
}

func TestDecodeHeartRateAndSteps(t *testing.T) {
	bpm, err := DecodeHeartRate([]byte{0x00, 72})
	require.NoError(t, err)
	assert.Equal(t, byte(72), bpm)

	_, err = DecodeHeartRate([]byte{0x00})
	var lerr *LengthError
	assert.ErrorAs(t, err, &lerr)

	steps, err := DecodeSteps([]byte{0xF4, 0x01, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, uint32(500), steps)
}

func TestWearLocation(t *testing.T) {
	loc, err := ParseWearLocation("Pocket")
	require.NoError(t, err)
	assert.Equal(t, WearPocket, loc)

	_, err = DecodeWearLocation(4)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}
