package routing

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// pattern builds a memorable digit string of length n.
type pattern struct {
	name  string
	build func(rng *rand.Rand, n int) string
}

var catalog = []pattern{
	{name: "repeated-run", build: repeatedRun},
	{name: "palindrome", build: palindrome},
	{name: "ascending-run", build: func(rng *rand.Rand, n int) string { return steppedRun(rng, n, 1) }},
	{name: "descending-run", build: func(rng *rand.Rand, n int) string { return steppedRun(rng, n, 9) }},
	{name: "alternating-pairs", build: alternatingPairs},
	{name: "split-halves", build: splitHalves},
}

// CandidateGenerator produces easy to remember numbers. It is safe for concurrent use.
type CandidateGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewCandidateGenerator seeds a generator. Tests pass fixed seeds.
func NewCandidateGenerator(seed1, seed2 uint64) *CandidateGenerator {
	return &CandidateGenerator{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Next returns a candidate of n digits and the pattern that produced it.
func (g *CandidateGenerator) Next(n int) (string, string) {
	if n <= 0 {
		return "", ""
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	p := catalog[g.rng.IntN(len(catalog))]
	return p.build(g.rng, n), p.name
}

func digit(rng *rand.Rand) byte {
	return byte('0' + rng.IntN(10))
}

func randomDigits(rng *rand.Rand, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(digit(rng))
	}
	return b.String()
}

// repeatedRun: random head, then the same digit for the second half.
func repeatedRun(rng *rand.Rand, n int) string {
	run := (n + 1) / 2
	return randomDigits(rng, n-run) + strings.Repeat(string(digit(rng)), run)
}

func palindrome(rng *rand.Rand, n int) string {
	b := []byte(randomDigits(rng, n))
	for i := 0; i < n/2; i++ {
		b[n-1-i] = b[i]
	}
	return string(b)
}

// steppedRun: random head, then a run moving by step (mod 10) per digit.
func steppedRun(rng *rand.Rand, n int, step int) string {
	run := (n + 1) / 2
	b := []byte(randomDigits(rng, n-run))
	d := rng.IntN(10)
	for i := 0; i < run; i++ {
		b = append(b, byte('0'+d))
		d = (d + step) % 10
	}
	return string(b)
}

func alternatingPairs(rng *rand.Rand, n int) string {
	pair := [2]byte{digit(rng), digit(rng)}
	b := make([]byte, n)
	for i := range b {
		b[i] = pair[i%2]
	}
	return string(b)
}

// splitHalves repeats the first half; an odd middle digit stays random.
func splitHalves(rng *rand.Rand, n int) string {
	half := randomDigits(rng, n/2)
	if n%2 == 1 {
		return half + string(digit(rng)) + half
	}
	return half + half
}
