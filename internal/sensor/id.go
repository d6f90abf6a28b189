package sensor

import (
	"fmt"
	"strconv"
	"strings"
)

// ID addresses one sensor on the wire. The frame format reserves six bits
// for it, so valid ids are 0 through MaxID.
type ID uint8

// MaxID is the highest id a frame can carry.
const MaxID ID = 0b111111

// Valid reports whether id fits the 6-bit wire field.
func (id ID) Valid() bool {
	return id <= MaxID
}

// String returns the display name used in alerts and logs, e.g. "Sensor #33".
func (id ID) String() string {
	return "Sensor #" + strconv.Itoa(int(id))
}

// ParseID parses a decimal sensor id such as a URL path segment.
func ParseID(s string) (ID, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid sensor id %q", s)
	}
	if n < 0 || n > int(MaxID) {
		return 0, fmt.Errorf("sensor id %d out of range (0-%d)", n, MaxID)
	}
	return ID(n), nil
}
