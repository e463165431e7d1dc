package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateGeneratorProducesEveryPattern(t *testing.T) {
	g := NewCandidateGenerator(1, 2)
	seen := make(map[string]bool)

	for i := 0; i < 500; i++ {
		c, name := g.Next(7)
		assert.Len(t, c, 7)
		for _, r := range c {
			assert.True(t, r >= '0' && r <= '9', "candidate %q", c)
		}
		seen[name] = true
	}

	assert.Len(t, seen, len(catalog))
}

func TestCandidateGeneratorIsDeterministicPerSeed(t *testing.T) {
	a := NewCandidateGenerator(7, 7)
	b := NewCandidateGenerator(7, 7)
	for i := 0; i < 20; i++ {
		ca, _ := a.Next(6)
		cb, _ := b.Next(6)
		assert.Equal(t, ca, cb)
	}

	c, name := a.Next(0)
	assert.Empty(t, c)
	assert.Empty(t, name)
}

func TestCandidatePatterns(t *testing.T) {
	g := NewCandidateGenerator(3, 4)

	for i := 0; i < 50; i++ {
		p := palindrome(g.rng, 7)
		for j := 0; j < 3; j++ {
			assert.Equal(t, p[j], p[6-j])
		}

		s := splitHalves(g.rng, 8)
		assert.Equal(t, s[:4], s[4:])

		a := alternatingPairs(g.rng, 6)
		assert.Equal(t, a[0], a[2])
		assert.Equal(t, a[1], a[5])

		run := repeatedRun(g.rng, 6)
		assert.Equal(t, run[3], run[5])

		up := steppedRun(g.rng, 6, 1)
		assert.Equal(t, (up[3]-'0'+1)%10, up[4]-'0')
	}
}
