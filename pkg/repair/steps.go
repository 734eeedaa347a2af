package repair

import (
	"context"
	"math"
	"sort"

	"github.com/chazu/voxbrep/pkg/diag"
	"github.com/chazu/voxbrep/pkg/geom"
	"github.com/chazu/voxbrep/pkg/mesh"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

type cellKey [3]int64

func cellOf(p v3.Vec, size float64) cellKey {
	return cellKey{
		int64(math.Floor(p.X / size)),
		int64(math.Floor(p.Y / size)),
		int64(math.Floor(p.Z / size)),
	}
}

// mergeVertices snaps every vertex onto the first earlier vertex within eps,
// using a uniform hash grid with cell size eps. Unreferenced duplicates are
// left for Compact.
func mergeVertices(m *mesh.Mesh, eps float64) int {
	grid := make(map[cellKey][]int)
	remap := make([]int, len(m.Vertices))
	merged := 0
	for i, p := range m.Vertices {
		c := cellOf(p, eps)
		target := -1
	search:
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for dz := int64(-1); dz <= 1; dz++ {
					for _, j := range grid[cellKey{c[0] + dx, c[1] + dy, c[2] + dz}] {
						if m.Vertices[j].Sub(p).Length() <= eps {
							target = j
							break search
						}
					}
				}
			}
		}
		if target >= 0 {
			remap[i] = target
			merged++
			continue
		}
		remap[i] = i
		grid[c] = append(grid[c], i)
	}
	if merged == 0 {
		return 0
	}
	for ti, t := range m.Triangles {
		m.Triangles[ti] = mesh.Triangle{remap[t[0]], remap[t[1]], remap[t[2]]}
	}
	return merged
}

// cleanTriangles drops triangles with a repeated index or an altitude below
// eps, then resolves duplicates: copies with one winding collapse to the
// first, while a face present in both windings is a zero-thickness sheet and
// goes entirely.
func cleanTriangles(m *mesh.Mesh, eps float64) (degenerate, duplicate int) {
	type group struct {
		first    int
		fwd, bwd int
	}
	keep := make([]bool, len(m.Triangles))
	groups := make(map[[3]int]*group)
	var order [][3]int
	for ti, t := range m.Triangles {
		if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] || altitude(m, t) < eps {
			degenerate++
			continue
		}
		key, twisted := canonical(t)
		g, ok := groups[key]
		if !ok {
			g = &group{first: ti}
			groups[key] = g
			order = append(order, key)
		}
		if twisted {
			g.bwd++
		} else {
			g.fwd++
		}
	}
	for _, key := range order {
		g := groups[key]
		n := g.fwd + g.bwd
		if g.fwd > 0 && g.bwd > 0 {
			duplicate += n
			continue
		}
		keep[g.first] = true
		duplicate += n - 1
	}
	if degenerate == 0 && duplicate == 0 {
		return 0, 0
	}
	out := m.Triangles[:0]
	for ti, t := range m.Triangles {
		if keep[ti] {
			out = append(out, t)
		}
	}
	m.Triangles = out
	return degenerate, duplicate
}

// canonical rotates t so its smallest index comes first and reports whether
// the remaining two are in descending order.
func canonical(t mesh.Triangle) ([3]int, bool) {
	for t[0] > t[1] || t[0] > t[2] {
		t = mesh.Triangle{t[1], t[2], t[0]}
	}
	if t[1] < t[2] {
		return [3]int{t[0], t[1], t[2]}, false
	}
	return [3]int{t[0], t[2], t[1]}, true
}

func altitude(m *mesh.Mesh, t mesh.Triangle) float64 {
	c := m.Corners(t)
	longest := 0.0
	for k := 0; k < 3; k++ {
		longest = math.Max(longest, c[k].Sub(c[(k+1)%3]).Length())
	}
	if longest == 0 {
		return 0
	}
	return geom.Normal(c[0], c[1], c[2]).Length() / longest
}

// spoke is one triangle around a shared edge.
type spoke struct {
	tri    int
	fwd    bool
	angle  float64
	normal v3.Vec
}

// pairAroundEdge sorts the triangles on a non-manifold edge by dihedral
// angle and links neighbours that have opposite winding and enclose solid
// between them. Triangles left unpaired become boundary.
func pairAroundEdge(m *mesh.Mesh, e mesh.Edge, uses []mesh.EdgeUse) [][2]int {
	a, b := m.Vertices[e.A], m.Vertices[e.B]
	u := b.Sub(a).Normalize()
	ref := v3.Vec{X: 1}
	if math.Abs(u.X) > 0.9 {
		ref = v3.Vec{Y: 1}
	}
	n1 := u.Cross(ref).Normalize()
	n2 := u.Cross(n1)

	spokes := make([]spoke, len(uses))
	for i, use := range uses {
		t := m.Triangles[use.Tri]
		c := t[0] + t[1] + t[2] - e.A - e.B
		w := m.Vertices[c].Sub(a)
		spokes[i] = spoke{
			tri:    use.Tri,
			fwd:    use.Forward,
			angle:  math.Atan2(w.Dot(n2), w.Dot(n1)),
			normal: geom.UnitNormal(m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]),
		}
	}
	sort.Slice(spokes, func(i, j int) bool {
		if spokes[i].angle != spokes[j].angle {
			return spokes[i].angle < spokes[j].angle
		}
		return spokes[i].tri < spokes[j].tri
	})

	solid := func(s, t spoke) bool {
		if s.fwd == t.fwd {
			return false
		}
		delta := math.Mod(t.angle-s.angle+2*math.Pi, 2*math.Pi)
		mid := s.angle + delta/2
		d := n1.MulScalar(math.Cos(mid)).Add(n2.MulScalar(math.Sin(mid)))
		return d.Dot(s.normal) < 0
	}

	n := len(spokes)
	var best [][2]int
	for offset := 0; offset < 2; offset++ {
		var pairs [][2]int
		for i := offset; i+1 < n+offset; i += 2 {
			s, t := spokes[i%n], spokes[(i+1)%n]
			if solid(s, t) {
				pairs = append(pairs, [2]int{s.tri, t.tri})
			}
		}
		if len(pairs) > len(best) {
			best = pairs
		}
	}
	return best
}

// splitNonManifold gives each fan around a vertex its own copy of that
// vertex. Triangles are in the same fan when they share a manifold edge at
// the vertex, or were paired across a non-manifold one. The fan holding the
// lowest triangle keeps the original; copies are nudged toward their fan so
// the merge step does not fuse them back.
func splitNonManifold(m *mesh.Mesh, eps float64) int {
	em := m.EdgeMap()
	linked := make(map[mesh.Edge][][2]int)
	for _, e := range mesh.SortedEdges(em) {
		if uses := em[e]; len(uses) > 2 {
			linked[e] = pairAroundEdge(m, e, uses)
		}
	}

	incident := make([][]int, len(m.Vertices))
	for ti, t := range m.Triangles {
		for _, v := range t {
			incident[v] = append(incident[v], ti)
		}
	}

	nudge := math.Max(10*eps, 1e-4*m.MeanEdgeLength())
	type split struct {
		vertex int
		fans   [][]int
	}
	var splits []split
	for v, tris := range incident {
		if len(tris) < 2 {
			continue
		}
		pos := make(map[int]int, len(tris))
		for i, ti := range tris {
			pos[ti] = i
		}
		uf := mesh.NewUnionFind(len(tris))
		seen := make(map[mesh.Edge]bool)
		for _, ti := range tris {
			for _, w := range m.Triangles[ti] {
				if w == v {
					continue
				}
				e := mesh.MakeEdge(v, w)
				if seen[e] {
					continue
				}
				seen[e] = true
				uses := em[e]
				switch {
				case len(uses) == 2:
					uf.Union(pos[uses[0].Tri], pos[uses[1].Tri])
				case len(uses) > 2:
					for _, p := range linked[e] {
						uf.Union(pos[p[0]], pos[p[1]])
					}
				}
			}
		}
		fans := uf.Groups()
		if len(fans) < 2 {
			continue
		}
		for i := range fans {
			for j := range fans[i] {
				fans[i][j] = tris[fans[i][j]]
			}
		}
		splits = append(splits, split{vertex: v, fans: fans})
	}

	count := 0
	for _, s := range splits {
		origin := m.Vertices[s.vertex]
		for _, fan := range s.fans[1:] {
			var centroid v3.Vec
			n := 0
			for _, ti := range fan {
				for _, w := range m.Triangles[ti] {
					if w != s.vertex {
						centroid = centroid.Add(m.Vertices[w])
						n++
					}
				}
			}
			p := origin
			if n > 0 {
				dir := centroid.DivScalar(float64(n)).Sub(origin)
				if l := dir.Length(); l > 0 {
					p = origin.Add(dir.MulScalar(nudge / l))
				}
			}
			copyIdx := len(m.Vertices)
			m.Vertices = append(m.Vertices, p)
			for _, ti := range fan {
				for k, w := range m.Triangles[ti] {
					if w == s.vertex {
						m.Triangles[ti][k] = copyIdx
					}
				}
			}
			count++
		}
	}
	return count
}

// unifyOrientation walks each component across manifold edges and flips
// triangles whose winding disagrees with the component's majority.
func unifyOrientation(m *mesh.Mesh) int {
	em := m.EdgeMap()
	visited := make([]bool, len(m.Triangles))
	flip := make([]bool, len(m.Triangles))
	flipped := 0
	for start := range m.Triangles {
		if visited[start] {
			continue
		}
		visited[start] = true
		comp := []int{start}
		for q := 0; q < len(comp); q++ {
			ti := comp[q]
			t := m.Triangles[ti]
			for k := 0; k < 3; k++ {
				e := mesh.MakeEdge(t[k], t[(k+1)%3])
				uses := em[e]
				if len(uses) != 2 {
					continue
				}
				other, mine := uses[0], uses[1]
				if other.Tri == ti {
					other, mine = mine, other
				}
				if visited[other.Tri] {
					continue
				}
				visited[other.Tri] = true
				// Consistent neighbours traverse the edge in opposite
				// directions once both flips are applied.
				same := other.Forward == mine.Forward
				flip[other.Tri] = flip[ti] != same
				comp = append(comp, other.Tri)
			}
		}
		n := 0
		for _, ti := range comp {
			if flip[ti] {
				n++
			}
		}
		if 2*n > len(comp) {
			for _, ti := range comp {
				flip[ti] = !flip[ti]
			}
			n = len(comp) - n
		}
		flipped += n
	}
	for ti, f := range flip {
		if f {
			t := m.Triangles[ti]
			m.Triangles[ti] = mesh.Triangle{t[0], t[2], t[1]}
		}
	}
	return flipped
}

// boundaryLoops traces closed loops of boundary edges in the direction a
// filling triangle must traverse them.
func boundaryLoops(m *mesh.Mesh) [][]int {
	em := m.EdgeMap()
	out := make(map[int][]int)
	for _, e := range mesh.SortedEdges(em) {
		uses := em[e]
		if len(uses) != 1 {
			continue
		}
		from, to := e.B, e.A
		if !uses[0].Forward {
			from, to = e.A, e.B
		}
		out[from] = append(out[from], to)
	}
	starts := make([]int, 0, len(out))
	for v, nexts := range out {
		sort.Ints(nexts)
		starts = append(starts, v)
	}
	sort.Ints(starts)

	used := make(map[[2]int]bool)
	var loops [][]int
	for _, start := range starts {
		for {
			loop := []int{start}
			cur := start
			closed := false
			for {
				next := -1
				for _, w := range out[cur] {
					if !used[[2]int{cur, w}] {
						next = w
						break
					}
				}
				if next < 0 {
					break
				}
				used[[2]int{cur, next}] = true
				if next == start {
					closed = true
					break
				}
				loop = append(loop, next)
				cur = next
			}
			if len(loop) == 1 && !closed {
				break
			}
			if closed && len(loop) >= 3 {
				loops = append(loops, loop)
			}
			if !closed {
				break
			}
		}
	}
	return loops
}

// fillHoles closes every boundary loop no longer than maxEdges.
func fillHoles(m *mesh.Mesh, maxEdges int) (int, error) {
	loops := boundaryLoops(m)
	for _, loop := range loops {
		if len(loop) > maxEdges {
			return 0, &diag.Error{
				Code: diag.CodeUnrepairableTopology, Stage: diag.StageRepair,
				Metric: diag.MetricHoleSize, Count: len(loop),
				Message: "hole boundary exceeds the fill limit",
			}
		}
	}
	for _, loop := range loops {
		m.Triangles = append(m.Triangles, triangulateLoop(m, loop)...)
	}
	return len(loops), nil
}

// triangulateLoop ear-clips a loop in the plane of its Newell normal,
// falling back to a fan when no clean ear remains.
func triangulateLoop(m *mesh.Mesh, loop []int) []mesh.Triangle {
	if len(loop) == 3 {
		return []mesh.Triangle{{loop[0], loop[1], loop[2]}}
	}
	pts := make([]v3.Vec, len(loop))
	for i, v := range loop {
		pts[i] = m.Vertices[v]
	}
	n := geom.Newell(pts)
	if n.Length() == 0 {
		return fanLoop(loop)
	}
	n = n.Normalize()
	ref := v3.Vec{X: 1}
	if math.Abs(n.X) > 0.9 {
		ref = v3.Vec{Y: 1}
	}
	e1 := n.Cross(ref).Normalize()
	e2 := n.Cross(e1)
	flat := make(map[int][2]float64, len(loop))
	for i, v := range loop {
		flat[v] = [2]float64{pts[i].Dot(e1), pts[i].Dot(e2)}
	}

	ring := append([]int(nil), loop...)
	var out []mesh.Triangle
	for len(ring) > 3 {
		ear := -1
		for i := range ring {
			a, b, c := ring[(i+len(ring)-1)%len(ring)], ring[i], ring[(i+1)%len(ring)]
			if geom.Orient2(flat[a], flat[b], flat[c]) <= 0 {
				continue
			}
			tri := [3][2]float64{flat[a], flat[b], flat[c]}
			clear := true
			for _, w := range ring {
				if w == a || w == b || w == c {
					continue
				}
				if geom.PointInTriangle2(flat[w], tri) {
					clear = false
					break
				}
			}
			if clear {
				ear = i
				break
			}
		}
		if ear < 0 {
			return append(out, fanLoop(ring)...)
		}
		k := len(ring)
		out = append(out, mesh.Triangle{ring[(ear+k-1)%k], ring[ear], ring[(ear+1)%k]})
		ring = append(ring[:ear], ring[ear+1:]...)
	}
	return append(out, mesh.Triangle{ring[0], ring[1], ring[2]})
}

func fanLoop(loop []int) []mesh.Triangle {
	out := make([]mesh.Triangle, 0, len(loop)-2)
	for i := 1; i+1 < len(loop); i++ {
		out = append(out, mesh.Triangle{loop[0], loop[i], loop[i+1]})
	}
	return out
}

// removeIntersections deletes every triangle involved in an intersection
// together with its edge neighbours, leaving holes for the next pass.
func removeIntersections(ctx context.Context, m *mesh.Mesh) (int, error) {
	pairs, err := m.SelfIntersections(ctx)
	if err != nil || len(pairs) == 0 {
		return 0, err
	}
	drop := make([]bool, len(m.Triangles))
	for _, p := range pairs {
		drop[p.A] = true
		drop[p.B] = true
	}
	em := m.EdgeMap()
	seeds := append([]bool(nil), drop...)
	for ti, seed := range seeds {
		if !seed {
			continue
		}
		t := m.Triangles[ti]
		for k := 0; k < 3; k++ {
			for _, u := range em[mesh.MakeEdge(t[k], t[(k+1)%3])] {
				drop[u.Tri] = true
			}
		}
	}
	out := m.Triangles[:0]
	removed := 0
	for ti, t := range m.Triangles {
		if drop[ti] {
			removed++
			continue
		}
		out = append(out, t)
	}
	m.Triangles = out
	return removed, nil
}
