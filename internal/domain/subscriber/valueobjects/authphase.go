package valueobjects

// AuthPhase is the position of a subscriber in the challenge/response exchange.
type AuthPhase string

const (
	AuthPhaseIdle         AuthPhase = "idle"
	AuthPhaseChallenged   AuthPhase = "challenged"
	AuthPhaseReChallenged AuthPhase = "rechallenged"
	AuthPhaseVerified     AuthPhase = "verified"
	AuthPhaseFailed       AuthPhase = "failed"
)

var authPhaseTransitions = map[AuthPhase][]AuthPhase{
	AuthPhaseIdle: {
		AuthPhaseChallenged,
		AuthPhaseVerified,
	},
	AuthPhaseChallenged: {
		AuthPhaseChallenged,
		AuthPhaseVerified,
		AuthPhaseReChallenged,
	},
	AuthPhaseReChallenged: {
		AuthPhaseChallenged,
		AuthPhaseVerified,
		AuthPhaseFailed,
	},
	AuthPhaseVerified: {
		AuthPhaseIdle,
	},
	AuthPhaseFailed: {
		AuthPhaseIdle,
		AuthPhaseChallenged,
	},
}

func (p AuthPhase) String() string {
	return string(p)
}

// Pending reports whether a challenge is outstanding.
func (p AuthPhase) Pending() bool {
	return p == AuthPhaseChallenged || p == AuthPhaseReChallenged
}

func (p AuthPhase) CanTransitionTo(target AuthPhase) bool {
	for _, allowed := range authPhaseTransitions[p] {
		if allowed == target {
			return true
		}
	}
	return false
}
