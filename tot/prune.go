package tot

import (
	"cmp"
	"slices"
)

// pruneLevel applies two-stage beam pruning. Each parent's children are
// ranked and cut to beam first (pool), then the pool is ranked and cut to
// beam again (next). All sorts are stable, so ties keep generation order.
func pruneLevel(groups [][]Node, beam int) (pool, next []Node) {
	pool = []Node{}
	for _, children := range groups {
		pool = append(pool, topByScore(children, beam)...)
	}
	return pool, topByScore(pool, beam)
}

func topByScore(nodes []Node, k int) []Node {
	ranked := slices.Clone(nodes)
	slices.SortStableFunc(ranked, func(a, b Node) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	if ranked == nil {
		ranked = []Node{}
	}
	return ranked
}
