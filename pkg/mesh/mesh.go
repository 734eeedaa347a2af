// Package mesh defines the indexed triangle mesh that flows between pipeline
// stages, along with the topology, volume and intersection queries the
// stages and the validation gate share.
//
// Triangles are wound counter-clockwise when viewed from outside, so normals
// computed with the right-hand rule point out of the solid.
package mesh

import (
	"fmt"

	"github.com/chazu/voxbrep/pkg/geom"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Triangle holds three indices into Mesh.Vertices.
type Triangle [3]int

// Mesh is an indexed triangle mesh.
type Mesh struct {
	Vertices  []v3.Vec
	Triangles []Triangle
}

// Clone returns a deep copy of m.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Vertices:  make([]v3.Vec, len(m.Vertices)),
		Triangles: make([]Triangle, len(m.Triangles)),
	}
	copy(out.Vertices, m.Vertices)
	copy(out.Triangles, m.Triangles)
	return out
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Vertices) }

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.Triangles) }

// IsEmpty reports whether the mesh has no triangles.
func (m *Mesh) IsEmpty() bool { return len(m.Triangles) == 0 }

// Corners returns the positions of triangle t's vertices.
func (m *Mesh) Corners(t Triangle) [3]v3.Vec {
	return [3]v3.Vec{m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]}
}

// Bounds returns the box around every vertex. An empty mesh has a zero box.
func (m *Mesh) Bounds() sdf.Box3 {
	if len(m.Vertices) == 0 {
		return sdf.Box3{}
	}
	return geom.Bounds(m.Vertices...)
}

// InvalidIndices counts triangles that reference a vertex outside the vertex
// list or repeat an index.
func (m *Mesh) InvalidIndices() int {
	n := 0
	for _, t := range m.Triangles {
		if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
			n++
			continue
		}
		for _, i := range t {
			if i < 0 || i >= len(m.Vertices) {
				n++
				break
			}
		}
	}
	return n
}

// SignedVolume returns the volume enclosed by the mesh via the divergence
// theorem. It is positive for a closed outward-wound surface.
func (m *Mesh) SignedVolume() float64 {
	var vol float64
	for _, t := range m.Triangles {
		a, b, c := m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
		vol += a.Dot(b.Cross(c))
	}
	return vol / 6
}

// Area returns the total surface area.
func (m *Mesh) Area() float64 {
	var area float64
	for _, t := range m.Triangles {
		area += geom.Area(m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]])
	}
	return area
}

// FaceNormals returns the unit normal of every triangle.
func (m *Mesh) FaceNormals() []v3.Vec {
	out := make([]v3.Vec, len(m.Triangles))
	for i, t := range m.Triangles {
		out[i] = geom.UnitNormal(m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]])
	}
	return out
}

// VertexNormals returns area-weighted vertex normals.
func (m *Mesh) VertexNormals() []v3.Vec {
	out := make([]v3.Vec, len(m.Vertices))
	for _, t := range m.Triangles {
		n := geom.Normal(m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]])
		for _, i := range t {
			out[i] = out[i].Add(n)
		}
	}
	for i, n := range out {
		if l := n.Length(); l > 0 {
			out[i] = n.DivScalar(l)
		}
	}
	return out
}

// MeanEdgeLength returns the average length over all triangle edges.
func (m *Mesh) MeanEdgeLength() float64 {
	if len(m.Triangles) == 0 {
		return 0
	}
	var sum float64
	for _, t := range m.Triangles {
		for k := 0; k < 3; k++ {
			sum += m.Vertices[t[k]].Sub(m.Vertices[t[(k+1)%3]]).Length()
		}
	}
	return sum / float64(3*len(m.Triangles))
}

// Compact drops unreferenced vertices, keeping the relative order of the
// remaining ones, and returns the old-to-new index map (-1 for dropped).
func (m *Mesh) Compact() []int {
	used := make([]bool, len(m.Vertices))
	for _, t := range m.Triangles {
		for _, i := range t {
			used[i] = true
		}
	}
	remap := make([]int, len(m.Vertices))
	verts := m.Vertices[:0:0]
	for i, v := range m.Vertices {
		if !used[i] {
			remap[i] = -1
			continue
		}
		remap[i] = len(verts)
		verts = append(verts, v)
	}
	for i, t := range m.Triangles {
		m.Triangles[i] = Triangle{remap[t[0]], remap[t[1]], remap[t[2]]}
	}
	m.Vertices = verts
	return remap
}

// Subset returns a compacted mesh holding only the listed triangles.
func (m *Mesh) Subset(tris []int) *Mesh {
	out := &Mesh{Triangles: make([]Triangle, 0, len(tris))}
	remap := make(map[int]int)
	for _, ti := range tris {
		var nt Triangle
		for k, vi := range m.Triangles[ti] {
			ni, ok := remap[vi]
			if !ok {
				ni = len(out.Vertices)
				remap[vi] = ni
				out.Vertices = append(out.Vertices, m.Vertices[vi])
			}
			nt[k] = ni
		}
		out.Triangles = append(out.Triangles, nt)
	}
	return out
}

// Flip reverses the winding of every triangle.
func (m *Mesh) Flip() {
	for i, t := range m.Triangles {
		m.Triangles[i] = Triangle{t[0], t[2], t[1]}
	}
}

func (m *Mesh) String() string {
	return fmt.Sprintf("mesh(%d vertices, %d triangles)", len(m.Vertices), len(m.Triangles))
}
