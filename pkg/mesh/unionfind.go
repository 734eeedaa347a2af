package mesh

// UnionFind is a disjoint-set forest over 0..n-1. The root of every set is
// its smallest member, so labelings do not depend on union order.
type UnionFind struct{ parent []int }

// NewUnionFind returns n singleton sets.
func NewUnionFind(n int) *UnionFind {
	uf := &UnionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

// Find returns the smallest member of x's set.
func (u *UnionFind) Find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// Union merges the sets holding a and b.
func (u *UnionFind) Union(a, b int) {
	ra, rb := u.Find(a), u.Find(b)
	if ra < rb {
		u.parent[rb] = ra
	} else if rb < ra {
		u.parent[ra] = rb
	}
}

// Groups lists the members of every set in ascending order, with sets
// ordered by their smallest member.
func (u *UnionFind) Groups() [][]int {
	index := make(map[int]int)
	var out [][]int
	for i := range u.parent {
		r := u.Find(i)
		gi, ok := index[r]
		if !ok {
			gi = len(out)
			index[r] = gi
			out = append(out, nil)
		}
		out[gi] = append(out[gi], i)
	}
	return out
}
