package mesh

import "sort"

// Edge is an undirected edge with A < B.
type Edge struct{ A, B int }

// MakeEdge orders a and b into an Edge.
func MakeEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{a, b}
}

// EdgeUse records one triangle's use of an edge and whether the triangle
// traverses it from A to B.
type EdgeUse struct {
	Tri     int
	Forward bool
}

// EdgeMap indexes every edge to the triangles that use it.
func (m *Mesh) EdgeMap() map[Edge][]EdgeUse {
	em := make(map[Edge][]EdgeUse, len(m.Triangles)*3/2)
	for ti, t := range m.Triangles {
		for k := 0; k < 3; k++ {
			a, b := t[k], t[(k+1)%3]
			e := MakeEdge(a, b)
			em[e] = append(em[e], EdgeUse{Tri: ti, Forward: a == e.A})
		}
	}
	return em
}

// SortedEdges returns the keys of em in a stable order.
func SortedEdges(em map[Edge][]EdgeUse) []Edge {
	edges := make([]Edge, 0, len(em))
	for e := range em {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A < edges[j].A
		}
		return edges[i].B < edges[j].B
	})
	return edges
}

// Topology summarises the combinatorial state of a mesh.
type Topology struct {
	Vertices            int // referenced vertices only
	Edges               int
	Faces               int
	BoundaryEdges       int
	NonManifoldEdges    int
	InconsistentEdges   int // two-triangle edges traversed the same way twice
	NonManifoldVertices int // vertices whose triangle fan is not a single disc
	Components          int
}

// Closed reports whether every edge is shared by exactly two triangles.
func (t Topology) Closed() bool {
	return t.BoundaryEdges == 0 && t.NonManifoldEdges == 0
}

// Manifold reports whether the mesh is an edge- and vertex-manifold.
func (t Topology) Manifold() bool {
	return t.NonManifoldEdges == 0 && t.NonManifoldVertices == 0
}

// Euler returns V - E + F.
func (t Topology) Euler() int {
	return t.Vertices - t.Edges + t.Faces
}

// Genus returns the total genus for a closed, orientable mesh, summing
// (2 - chi_i)/2 over components. It is meaningful only when Closed holds.
func (t Topology) Genus() int {
	return (2*t.Components - t.Euler()) / 2
}

// Analyze computes the mesh topology. Triangles with invalid indices must be
// rejected before calling it.
func (m *Mesh) Analyze() Topology {
	em := m.EdgeMap()
	topo := Topology{Edges: len(em), Faces: len(m.Triangles)}
	for _, uses := range em {
		switch len(uses) {
		case 1:
			topo.BoundaryEdges++
		case 2:
			if uses[0].Forward == uses[1].Forward {
				topo.InconsistentEdges++
			}
		default:
			topo.NonManifoldEdges++
		}
	}
	topo.NonManifoldVertices = m.nonManifoldVertices()
	used := make([]bool, len(m.Vertices))
	for _, t := range m.Triangles {
		for _, i := range t {
			used[i] = true
		}
	}
	for _, u := range used {
		if u {
			topo.Vertices++
		}
	}
	topo.Components = len(m.Components())
	return topo
}

// VertexFans groups the triangles around each vertex into fans: maximal sets
// connected through edges incident to that vertex. A manifold vertex has one.
func (m *Mesh) VertexFans() map[int][][]int {
	incident := make(map[int][]int)
	for ti, t := range m.Triangles {
		for _, v := range t {
			incident[v] = append(incident[v], ti)
		}
	}
	fans := make(map[int][][]int, len(incident))
	for v, tris := range incident {
		if len(tris) == 1 {
			fans[v] = [][]int{tris}
			continue
		}
		// Union triangles around v that share a second vertex.
		uf := NewUnionFind(len(tris))
		byOther := make(map[int]int)
		for i, ti := range tris {
			for _, w := range m.Triangles[ti] {
				if w == v {
					continue
				}
				if j, ok := byOther[w]; ok {
					uf.Union(i, j)
				} else {
					byOther[w] = i
				}
			}
		}
		for _, group := range uf.Groups() {
			fan := make([]int, len(group))
			for k, i := range group {
				fan[k] = tris[i]
			}
			fans[v] = append(fans[v], fan)
		}
	}
	return fans
}

func (m *Mesh) nonManifoldVertices() int {
	n := 0
	for _, fan := range m.VertexFans() {
		if len(fan) > 1 {
			n++
		}
	}
	return n
}

// Components partitions triangles into edge-connected groups, each sorted
// ascending and ordered by their lowest triangle.
func (m *Mesh) Components() [][]int {
	uf := NewUnionFind(len(m.Triangles))
	for _, uses := range m.EdgeMap() {
		for _, u := range uses[1:] {
			uf.Union(uses[0].Tri, u.Tri)
		}
	}
	return uf.Groups()
}
