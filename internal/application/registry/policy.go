package registry

import (
	"fmt"
	"regexp"
	"strings"

	vo "github.com/orris-inc/cellcore/internal/domain/subscriber/valueobjects"
	"github.com/orris-inc/cellcore/internal/shared/errors"
)

// Policy is an immutable snapshot of the registration policy.
type Policy struct {
	Mode     vo.PolicyMode
	Patterns []*regexp.Regexp
	// Reason explains an unconfigured policy.
	Reason string
}

// Unconfigured returns the reject-everything policy.
func Unconfigured(reason string) Policy {
	return Policy{Mode: vo.PolicyUnconfigured, Reason: reason}
}

// NewPolicy resolves the configured mode. An explicit mode wins; without one
// the mode follows from what is configured, and configuring both a table and
// patterns is an error.
func NewPolicy(mode string, patterns []string, haveTable bool) (Policy, error) {
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return Policy{}, err
	}

	switch vo.PolicyMode(strings.ToLower(strings.TrimSpace(mode))) {
	case vo.PolicyTable:
		return Policy{Mode: vo.PolicyTable}, nil
	case vo.PolicyPattern:
		if len(compiled) == 0 {
			return Policy{}, errors.NewConfigError("pattern policy without accept patterns")
		}
		return Policy{Mode: vo.PolicyPattern, Patterns: compiled}, nil
	case "":
	default:
		return Policy{}, errors.NewConfigError("unknown registration policy", mode)
	}

	switch {
	case haveTable && len(compiled) > 0:
		return Policy{}, errors.NewConfigError("both a subscriber table and accept patterns are configured",
			"set registry.policy to table or pattern")
	case haveTable:
		return Policy{Mode: vo.PolicyTable}, nil
	case len(compiled) > 0:
		return Policy{Mode: vo.PolicyPattern, Patterns: compiled}, nil
	default:
		return Policy{}, errors.NewConfigError("no registration policy configured",
			"provide a subscriber table or accept patterns")
	}
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.NewConfigError("invalid accept pattern", fmt.Sprintf("%q: %v", p, err))
		}
		out = append(out, re)
	}
	return out, nil
}

// Accepts reports whether an identity matches one of the patterns.
func (p Policy) Accepts(imsi string) bool {
	for _, re := range p.Patterns {
		if re.MatchString(imsi) {
			return true
		}
	}
	return false
}

// PatternStrings returns the source of every pattern.
func (p Policy) PatternStrings() []string {
	out := make([]string, len(p.Patterns))
	for i, re := range p.Patterns {
		out[i] = re.String()
	}
	return out
}
