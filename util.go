package forecaster

import (
	"math/rand/v2"
	"slices"
	"strings"
)

// drawSelectionStream keeps draw subsampling independent of the per draw
// simulation streams
const drawSelectionStream = 0xd4a5

func indentExpand(indent string, growth int) string {
	return strings.Repeat(indent, growth)
}

// selectDraws returns the retained draw indices in ascending order. All draws
// are kept when n is 0. Otherwise n draws are sampled without replacement when
// available and with replacement when more are requested than stored.
func selectDraws(available, n int, seed uint64) []int {
	if n == 0 || (n == available && n > 0) {
		res := make([]int, available)
		for i := range res {
			res[i] = i
		}
		return res
	}
	rng := rand.New(rand.NewPCG(seed, drawSelectionStream))

	var res []int
	if n <= available {
		res = rng.Perm(available)[:n]
	} else {
		res = make([]int, n)
		for i := range res {
			res[i] = rng.IntN(available)
		}
	}
	slices.Sort(res)
	return res
}
