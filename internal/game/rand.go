package game

import (
	"math/rand"
	"time"
)

// Rand is the randomness the engine needs: picking distinct cells for seeding
// and shuffling spread order. Inject a seeded or scripted implementation to get
// reproducible games.
type Rand interface {
	// Choose returns k distinct integers from [0, n), uniformly.
	Choose(k, n int) []int
	// Shuffle permutes n elements through swap.
	Shuffle(n int, swap func(i, j int))
}

type mathRand struct{ r *rand.Rand }

// NewRand returns a Rand backed by math/rand with a fixed seed.
func NewRand(seed int64) Rand {
	return mathRand{r: rand.New(rand.NewSource(seed))}
}

// NewTimeRand seeds from the wall clock.
func NewTimeRand() Rand { return NewRand(time.Now().UnixNano()) }

func (m mathRand) Choose(k, n int) []int {
	if k > n {
		k = n
	}
	return m.r.Perm(n)[:k]
}

func (m mathRand) Shuffle(n int, swap func(i, j int)) { m.r.Shuffle(n, swap) }
