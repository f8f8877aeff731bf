package session

import (
	"math/rand/v2"
)

// Shuffler returns a uniformly random permutation of [0, n).
type Shuffler func(n int) []int

// RandomShuffler draws from the global generator and is safe for concurrent
// use.
func RandomShuffler() Shuffler {
	return rand.Perm
}

// SeededShuffler is deterministic for a given seed. Not safe for concurrent
// use.
func SeededShuffler(seed uint64) Shuffler {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return r.Perm
}

// anchoredPerm draws a permutation and rotates it so first is at index 0.
func anchoredPerm(shuffle Shuffler, n, first int) []int {
	if shuffle == nil {
		shuffle = RandomShuffler()
	}
	perm := shuffle(n)
	k := 0
	for i, v := range perm {
		if v == first {
			k = i
			break
		}
	}
	out := make([]int, 0, n)
	out = append(out, perm[k:]...)
	out = append(out, perm[:k]...)
	return out
}
