package valueobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    AlgorithmFamily
		wantErr bool
	}{
		{"", AlgorithmNone, false},
		{"COMP128", AlgorithmComp128, false},
		{" milenage ", AlgorithmMilenage, false},
		{"xor", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, AlgorithmMilenage.HasSequence())
	assert.False(t, AlgorithmComp128.HasSequence())
}

func TestAuthPhaseTransitions(t *testing.T) {
	assert.True(t, AuthPhaseIdle.CanTransitionTo(AuthPhaseChallenged))
	assert.True(t, AuthPhaseChallenged.CanTransitionTo(AuthPhaseReChallenged))
	assert.True(t, AuthPhaseReChallenged.CanTransitionTo(AuthPhaseFailed))
	assert.False(t, AuthPhaseChallenged.CanTransitionTo(AuthPhaseFailed))
	assert.False(t, AuthPhaseIdle.CanTransitionTo(AuthPhaseFailed))

	assert.True(t, AuthPhaseChallenged.Pending())
	assert.True(t, AuthPhaseReChallenged.Pending())
	assert.False(t, AuthPhaseVerified.Pending())
}
