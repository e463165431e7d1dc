// Package subscriber holds the configured subscriber profiles and the runtime
// registrations built from them.
package subscriber

import (
	"fmt"
	"strings"

	vo "github.com/orris-inc/cellcore/internal/domain/subscriber/valueobjects"
)

// AuthDisabledSecret as a profile key turns authentication off for that subscriber.
const AuthDisabledSecret = "*"

// DefaultAMF is used for milenage profiles that do not configure one.
const DefaultAMF = "8000"

// Secret is the key material handed to the vector service.
type Secret struct {
	Key string `json:"key"`
	OP  string `json:"op,omitempty"`
	AMF string `json:"amf,omitempty"`
}

// Disabled reports whether the secret is the auth-disabled sentinel.
func (s Secret) Disabled() bool {
	return s.Key == AuthDisabledSecret
}

// AuthState is the outstanding challenge of a subscriber, if any.
type AuthState struct {
	Phase            vo.AuthPhase `json:"phase"`
	Challenge        string       `json:"challenge,omitempty"`
	Expected         string       `json:"-"`
	ExpectedExtended string       `json:"-"`
	AUTN             string       `json:"autn,omitempty"`
}

// Profile is one provisioned subscriber. Profiles are only created by a
// configuration reload.
type Profile struct {
	IMSI      string             `json:"imsi"`
	Secret    Secret             `json:"-"`
	Algorithm vo.AlgorithmFamily `json:"algorithm"`
	Number    string             `json:"number,omitempty"`
	ShortCode string             `json:"short_code,omitempty"`
	Active    bool               `json:"active"`
	// Sequence is the 48-bit milenage counter as 12 hex digits.
	Sequence string    `json:"sequence,omitempty"`
	Auth     AuthState `json:"auth"`
}

// RequiresAuth reports whether a registration must pass a challenge.
func (p *Profile) RequiresAuth() bool {
	return !p.Secret.Disabled() && p.Algorithm != vo.AlgorithmNone
}

// SameSecret reports whether two profiles would produce the same vectors.
func (p *Profile) SameSecret(other *Profile) bool {
	return p.Algorithm == other.Algorithm &&
		strings.EqualFold(p.Secret.Key, other.Secret.Key) &&
		strings.EqualFold(p.Secret.OP, other.Secret.OP) &&
		strings.EqualFold(p.effectiveAMF(), other.effectiveAMF())
}

func (p *Profile) effectiveAMF() string {
	if p.Secret.AMF == "" && p.Algorithm == vo.AlgorithmMilenage {
		return DefaultAMF
	}
	return p.Secret.AMF
}

// Validate checks the profile is usable as configured.
func (p *Profile) Validate() error {
	if p.IMSI == "" {
		return fmt.Errorf("profile without imsi")
	}
	if !p.Algorithm.IsValid() {
		return fmt.Errorf("profile %s: unknown algorithm %q", p.IMSI, p.Algorithm)
	}
	if p.Secret.Disabled() || p.Algorithm == vo.AlgorithmNone {
		return nil
	}
	if p.Secret.Key == "" {
		return fmt.Errorf("profile %s: %s requires a key", p.IMSI, p.Algorithm)
	}
	if p.Algorithm == vo.AlgorithmMilenage && p.Secret.OP == "" {
		return fmt.Errorf("profile %s: milenage requires op", p.IMSI)
	}
	return nil
}

// ResetAuth drops any outstanding challenge.
func (p *Profile) ResetAuth() {
	p.Auth = AuthState{Phase: vo.AuthPhaseIdle}
}

// Clone returns a copy safe to hand out of the store.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
