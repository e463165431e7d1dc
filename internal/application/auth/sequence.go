package auth

import (
	"fmt"
	"strconv"
)

const (
	// SequenceStep is how far the counter moves per issued vector and after a resync.
	SequenceStep = 32

	sequenceBits = 48
	sequenceMask = uint64(1)<<sequenceBits - 1
)

// ParseSequence reads a 48-bit counter from hex. Empty means zero.
func ParseSequence(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence %q: %w", s, err)
	}
	if v > sequenceMask {
		return 0, fmt.Errorf("invalid sequence %q: wider than %d bits", s, sequenceBits)
	}
	return v, nil
}

// FormatSequence renders a counter as 12 hex digits.
func FormatSequence(v uint64) string {
	return fmt.Sprintf("%012X", v&sequenceMask)
}

// AdvanceSequence adds step modulo 2^48.
func AdvanceSequence(v uint64, step uint64) uint64 {
	return (v + step) & sequenceMask
}
