// vi: sw=4 ts=4:

/*

	Mnemonic:	rng
	Abstract:	The single simulation-scoped PRNG. Spec §5 requires every
				random draw in a run to come from one injected source so
				that two runs with the same seed produce byte-identical
				logs; nothing in this package (or any other) may call the
				package-level math/rand default source.

	Date:		31 July 2026
	Author:		E. Scott Daniels
*/

package gizmos

import "math/rand"

// Rng wraps math/rand.Rand; stdlib is the right tool here (see DESIGN.md —
// no pack dependency offers a seedable PRNG and the stdlib one is exactly
// what a discrete-event simulator needs).
type Rng struct {
	r *rand.Rand
}

func Mk_rng(seed int64) *Rng {
	return &Rng{r: rand.New(rand.NewSource(seed))}
}

// Float64 returns a uniform draw in [0,1).
func (g *Rng) Float64() float64 { return g.r.Float64() }

// Intn returns a uniform draw in [0,n).
func (g *Rng) Intn(n int) int { return g.r.Intn(n) }

// Uniform returns a uniform draw in [lo,hi).
func (g *Rng) Uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + g.Float64()*(hi-lo)
}

// Jitter returns v scaled by a uniform factor in [1-frac, 1+frac].
func (g *Rng) Jitter(v float64, frac float64) float64 {
	return v * (1 - frac + 2*frac*g.Float64())
}
