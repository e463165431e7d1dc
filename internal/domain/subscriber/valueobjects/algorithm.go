package valueobjects

import (
	"fmt"
	"strings"
)

// AlgorithmFamily selects how a subscriber is challenged.
type AlgorithmFamily string

const (
	AlgorithmNone     AlgorithmFamily = "none"
	AlgorithmComp128  AlgorithmFamily = "comp128"
	AlgorithmMilenage AlgorithmFamily = "milenage"
)

var validAlgorithms = map[AlgorithmFamily]bool{
	AlgorithmNone:     true,
	AlgorithmComp128:  true,
	AlgorithmMilenage: true,
}

// ParseAlgorithm accepts the configured spelling; an empty value means none.
func ParseAlgorithm(s string) (AlgorithmFamily, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return AlgorithmNone, nil
	}
	a := AlgorithmFamily(s)
	if !validAlgorithms[a] {
		return "", fmt.Errorf("unknown algorithm family: %q", s)
	}
	return a, nil
}

func (a AlgorithmFamily) String() string {
	return string(a)
}

func (a AlgorithmFamily) IsValid() bool {
	return validAlgorithms[a]
}

// HasSequence reports whether the family carries a sequence counter between challenges.
func (a AlgorithmFamily) HasSequence() bool {
	return a == AlgorithmMilenage
}
