package codec

import (
	"fmt"
	"strings"
	"time"
)

// Weekdays is the alarm repeat bitmask, Monday in bit 0.
type Weekdays byte

const (
	Once      Weekdays = 0
	Monday    Weekdays = 1 << 0
	Tuesday   Weekdays = 1 << 1
	Wednesday Weekdays = 1 << 2
	Thursday  Weekdays = 1 << 3
	Friday    Weekdays = 1 << 4
	Saturday  Weekdays = 1 << 5
	Sunday    Weekdays = 1 << 6

	Workweek Weekdays = Monday | Tuesday | Wednesday | Thursday | Friday
	Weekend  Weekdays = Saturday | Sunday
	Everyday Weekdays = Workweek | Weekend
)

var weekdayNames = map[string]Weekdays{
	"once": Once, "mon": Monday, "tue": Tuesday, "wed": Wednesday, "thu": Thursday,
	"fri": Friday, "sat": Saturday, "sun": Sunday,
	"workweek": Workweek, "weekend": Weekend, "everyday": Everyday,
}

// ParseWeekdays accepts a comma separated list such as "mon,wed" or "weekend".
func ParseWeekdays(s string) (Weekdays, error) {
	var w Weekdays
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		d, ok := weekdayNames[part]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", part)
		}
		w |= d
	}
	return w, nil
}

// AlarmSlot is one of the band's alarm slots.
type AlarmSlot struct {
	ID        byte
	Enabled   bool
	When      time.Time
	SmartWake bool
	Repeat    Weekdays
}

// Payload builds the control-point write for this slot.
func (a AlarmSlot) Payload(loc *time.Location) []byte {
	dt := EncodeDateTime(a.When, loc)
	out := make([]byte, 0, 11)
	out = append(out, OpAlarm, a.ID, boolByte(a.Enabled))
	out = append(out, dt[:]...)
	out = append(out, boolByte(a.SmartWake), byte(a.Repeat&Everyday))
	return out
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
