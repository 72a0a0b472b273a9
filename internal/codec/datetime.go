package codec

import "time"

// DateTimeSize is the wire size of a compact date-time.
const DateTimeSize = 6

// EncodeDateTime writes t as year-2000, month, day, hour, minute, second using
// the wall clock of loc. A nil loc means UTC. Wall clocks outside 2000..2255
// are clamped to the nearest representable second.
func EncodeDateTime(t time.Time, loc *time.Location) [DateTimeSize]byte {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	switch {
	case t.Year() < 2000:
		t = time.Date(2000, time.January, 1, 0, 0, 0, 0, loc)
	case t.Year() > 2255:
		t = time.Date(2255, time.December, 31, 23, 59, 59, 0, loc)
	}
	return [DateTimeSize]byte{
		byte(t.Year() - 2000),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
	}
}

// DecodeDateTime reads a compact date-time whose fields are wall-clock values in
// loc and returns the instant in UTC.
func DecodeDateTime(b []byte, loc *time.Location) (time.Time, error) {
	if err := checkLength("datetime", b, DateTimeSize); err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}

	limits := [DateTimeSize]struct{ lo, hi byte }{
		{0, 255}, {1, 12}, {1, 31}, {0, 23}, {0, 59}, {0, 59},
	}
	names := [DateTimeSize]string{"year", "month", "day", "hour", "minute", "second"}
	for i, l := range limits {
		if b[i] < l.lo || b[i] > l.hi {
			return time.Time{}, &ParseError{Field: "datetime " + names[i], Expected: byteRange(l.lo, l.hi), Position: i, Actual: b[i]}
		}
	}

	t := time.Date(2000+int(b[0]), time.Month(b[1]), int(b[2]), int(b[3]), int(b[4]), int(b[5]), 0, loc)
	if t.Day() != int(b[2]) {
		// Feb 30 and friends normalize into the next month
		return time.Time{}, &ParseError{Field: "datetime day", Expected: byteRange(1, byte(daysIn(t.AddDate(0, -1, 0)))), Position: 2, Actual: b[2]}
	}
	return t.UTC(), nil
}

// DateTimePayload builds the 12-byte date-time characteristic write: the compact
// form followed by 0xFF padding.
func DateTimePayload(t time.Time, loc *time.Location) []byte {
	out := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	dt := EncodeDateTime(t, loc)
	copy(out, dt[:])
	return out
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
