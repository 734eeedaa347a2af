package simplify

import (
	"container/heap"
	"math"
	"sort"

	"github.com/chazu/voxbrep/pkg/geom"
	"github.com/chazu/voxbrep/pkg/mesh"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"
	"github.com/samber/lo"
)

// minNormalDot is the smallest cosine allowed between a triangle's normal
// before and after a collapse.
const minNormalDot = 0.2

// box is a live triangle's entry in the collision tree.
type box struct {
	tri  int
	rect rtreego.Rect
}

func (b *box) Bounds() rtreego.Rect { return b.rect }

// state is the working mesh during simplification. Triangles and vertices
// are never renumbered; dead ones are dropped by result.
type state struct {
	verts  []v3.Vec
	tris   []mesh.Triangle
	alive  []bool
	vAlive []bool
	vtris  [][]int
	quad   []*quadric
	stamp  []int
	reps   [][]int

	orig     *mesh.Mesh
	origTree *rtreego.Rtree
	tree     *rtreego.Rtree
	boxes    []*box

	pad    float64
	maxDev float64
}

func newState(m *mesh.Mesh, maxDev float64) *state {
	nv, nt := len(m.Vertices), len(m.Triangles)
	st := &state{
		verts:  append([]v3.Vec(nil), m.Vertices...),
		tris:   append([]mesh.Triangle(nil), m.Triangles...),
		alive:  make([]bool, nt),
		vAlive: make([]bool, nv),
		vtris:  make([][]int, nv),
		quad:   make([]*quadric, nv),
		stamp:  make([]int, nv),
		reps:   make([][]int, nv),
		orig:   m,
		boxes:  make([]*box, nt),
		pad:    m.Pad(),
		maxDev: maxDev,
	}
	st.origTree, _ = m.TriangleIndex()
	for i := range st.quad {
		st.quad[i] = newQuadric()
		st.reps[i] = []int{i}
	}
	objs := make([]rtreego.Spatial, nt)
	for ti, t := range m.Triangles {
		st.alive[ti] = true
		c := m.Corners(t)
		for _, v := range t {
			st.vAlive[v] = true
			st.vtris[v] = append(st.vtris[v], ti)
			addPlane(st.quad[v], c[0], c[1], c[2])
		}
		st.boxes[ti] = &box{tri: ti, rect: st.rect(c)}
		objs[ti] = st.boxes[ti]
	}
	st.tree = rtreego.NewTree(3, 25, 50, objs...)
	return st
}

func (st *state) rect(c [3]v3.Vec) rtreego.Rect {
	return mesh.RectOf(geom.Bounds(c[0], c[1], c[2]), st.pad)
}

func (st *state) corners(t mesh.Triangle) [3]v3.Vec {
	return [3]v3.Vec{st.verts[t[0]], st.verts[t[1]], st.verts[t[2]]}
}

func (st *state) push(q *queue, a, b int) {
	Q := sum(st.quad[a], st.quad[b])
	pos, c := optimum(Q, st.verts[a], st.verts[b])
	heap.Push(q, &candidate{
		a:       a,
		b:       b,
		stampA:  st.stamp[a],
		stampB:  st.stamp[b],
		cost:    math.Max(c, 0),
		length2: st.verts[a].Sub(st.verts[b]).Length2(),
		pos:     pos,
	})
}

func (st *state) current(c *candidate) bool {
	return st.vAlive[c.a] && st.vAlive[c.b] && st.stamp[c.a] == c.stampA && st.stamp[c.b] == c.stampB
}

// neighbours returns the sorted 1-ring of v.
func (st *state) neighbours(v int) []int {
	var out []int
	for _, ti := range st.vtris[v] {
		for _, u := range st.tris[ti] {
			if u != v {
				out = append(out, u)
			}
		}
	}
	out = lo.Uniq(out)
	sort.Ints(out)
	return out
}

func has(t mesh.Triangle, v int) bool {
	return t[0] == v || t[1] == v || t[2] == v
}

func third(t mesh.Triangle, a, b int) int {
	for _, v := range t {
		if v != a && v != b {
			return v
		}
	}
	return -1
}

// collapse tries to merge c.b into c.a at c.pos. It returns the number of
// triangles removed and the deviation of the new patch, or ok=false when a
// check rejects the collapse and nothing changed.
func (st *state) collapse(c *candidate) (removed int, dev float64, ok bool) {
	a, b, p := c.a, c.b, c.pos

	var shared, kept, moved []int
	for _, ti := range st.vtris[b] {
		if has(st.tris[ti], a) {
			shared = append(shared, ti)
		} else {
			moved = append(moved, ti)
		}
	}
	for _, ti := range st.vtris[a] {
		if !has(st.tris[ti], b) {
			kept = append(kept, ti)
		}
	}
	if len(shared) != 2 {
		return 0, 0, false
	}

	// Link condition: the only common neighbours are the two apexes.
	apex := []int{third(st.tris[shared[0]], a, b), third(st.tris[shared[1]], a, b)}
	sort.Ints(apex)
	common := lo.Intersect(st.neighbours(a), st.neighbours(b))
	sort.Ints(common)
	if apex[0] == apex[1] || len(common) != 2 || common[0] != apex[0] || common[1] != apex[1] {
		return 0, 0, false
	}

	// The fan around the surviving vertex after the collapse.
	fan := append(append([]int(nil), kept...), moved...)
	sort.Ints(fan)
	next := make(map[int]mesh.Triangle, len(fan))
	for _, ti := range fan {
		t := st.tris[ti]
		for k := range t {
			if t[k] == b {
				t[k] = a
			}
		}
		next[ti] = t
	}
	old := st.verts[a]
	st.verts[a] = p
	defer func() {
		if !ok {
			st.verts[a] = old
		}
	}()

	if !st.fanValid(fan, next, old, st.verts[b], a, b) {
		return 0, 0, false
	}
	dev, within := st.deviation(fan, next, a, b)
	if !within {
		return 0, 0, false
	}
	if st.intersects(fan, next, shared) {
		return 0, 0, false
	}

	for _, ti := range shared {
		st.alive[ti] = false
		st.tree.Delete(st.boxes[ti])
	}
	for _, ti := range fan {
		st.tris[ti] = next[ti]
		st.tree.Delete(st.boxes[ti])
		st.boxes[ti].rect = st.rect(st.corners(next[ti]))
		st.tree.Insert(st.boxes[ti])
	}
	for _, v := range apex {
		st.vtris[v] = lo.Filter(st.vtris[v], func(ti int, _ int) bool { return st.alive[ti] })
	}
	st.vtris[a] = fan
	st.vtris[b] = nil
	st.vAlive[b] = false
	st.quad[a] = sum(st.quad[a], st.quad[b])
	st.reps[a] = append(st.reps[a], st.reps[b]...)
	st.reps[b] = nil
	st.stamp[a]++
	return len(shared), dev, true
}

// fanValid checks the new fan: no duplicate faces, no flipped or collapsed
// triangles, and every edge at the surviving vertex used exactly twice in
// opposite directions.
func (st *state) fanValid(fan []int, next map[int]mesh.Triangle, oldA, oldB v3.Vec, a, b int) bool {
	type key [3]int
	seen := make(map[key]bool, len(fan))
	uses := make(map[mesh.Edge]int, 2*len(fan))
	minArea := st.pad * st.pad
	for _, ti := range fan {
		t := next[ti]
		k := key(t)
		sort.Ints(k[:])
		if seen[k] {
			return false
		}
		seen[k] = true

		before := st.corners(st.tris[ti])
		for i, v := range st.tris[ti] {
			switch v {
			case a:
				before[i] = oldA
			case b:
				before[i] = oldB
			}
		}
		after := st.corners(t)
		if geom.Area(after[0], after[1], after[2]) <= minArea {
			return false
		}
		if geom.UnitNormal(before[0], before[1], before[2]).Dot(geom.UnitNormal(after[0], after[1], after[2])) < minNormalDot {
			return false
		}

		for i := 0; i < 3; i++ {
			u, w := t[i], t[(i+1)%3]
			if u != a && w != a {
				continue
			}
			e := mesh.MakeEdge(u, w)
			if u == e.A {
				uses[e]++
			} else {
				uses[e] += 1 << 16
			}
		}
	}
	for _, n := range uses {
		if n != 1+1<<16 {
			return false
		}
	}
	return true
}

// deviation measures the two-sided distance between the new fan and the
// input surface: the new vertex against the input triangles, and every input
// vertex represented by the merged pair against the new fan.
func (st *state) deviation(fan []int, next map[int]mesh.Triangle, a, b int) (float64, bool) {
	limit := st.maxDev + st.pad
	p := st.verts[a]

	dev := math.Inf(1)
	query := mesh.RectOf(geom.Bounds(p), limit)
	for _, s := range st.origTree.SearchIntersect(query) {
		c := st.orig.Corners(st.orig.Triangles[s.(*mesh.TriBox).Tri])
		dev = math.Min(dev, geom.PointTriangleDistance(p, c[0], c[1], c[2]))
	}
	if dev > limit {
		return dev, false
	}

	for _, r := range append(append([]int(nil), st.reps[a]...), st.reps[b]...) {
		q := st.orig.Vertices[r]
		best := math.Inf(1)
		for _, ti := range fan {
			c := st.corners(next[ti])
			best = math.Min(best, geom.PointTriangleDistance(q, c[0], c[1], c[2]))
		}
		if best > limit {
			return best, false
		}
		dev = math.Max(dev, best)
	}
	return dev, true
}

// intersects reports whether any new fan triangle would cross another live
// triangle or another triangle of the fan. Fan entries in the tree still
// carry their old boxes, so the fan is tested pairwise.
func (st *state) intersects(fan []int, next map[int]mesh.Triangle, shared []int) bool {
	for x, i := range fan {
		ti := next[i]
		ci := st.corners(ti)
		for _, s := range st.tree.SearchIntersect(st.rect(ci)) {
			j := s.(*box).tri
			if _, inFan := next[j]; inFan || !st.alive[j] || j == shared[0] || j == shared[1] {
				continue
			}
			tj := st.tris[j]
			if geom.TrianglesIntersect(ci, st.corners(tj), ti, tj) {
				return true
			}
		}
		for _, j := range fan[x+1:] {
			tj := next[j]
			if geom.TrianglesIntersect(ci, st.corners(tj), ti, tj) {
				return true
			}
		}
	}
	return false
}

// result compacts the live triangles into a new mesh.
func (st *state) result() *mesh.Mesh {
	out := &mesh.Mesh{Vertices: st.verts}
	for ti, t := range st.tris {
		if st.alive[ti] {
			out.Triangles = append(out.Triangles, t)
		}
	}
	out.Compact()
	return out
}
