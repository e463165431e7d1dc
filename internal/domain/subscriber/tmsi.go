package subscriber

import (
	"fmt"
	"strconv"
)

// ReservedTMSI is the first value of the reserved top range.
const ReservedTMSI uint32 = 0xC0000000

// FormatTMSI renders a temporary identity as 8 upper-case hex digits.
func FormatTMSI(v uint32) string {
	return fmt.Sprintf("%08X", v)
}

// ParseTMSI parses an 8 hex digit temporary identity.
func ParseTMSI(s string) (uint32, error) {
	if len(s) != 8 {
		return 0, fmt.Errorf("invalid tmsi %q: want 8 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid tmsi %q: %w", s, err)
	}
	return uint32(v), nil
}
