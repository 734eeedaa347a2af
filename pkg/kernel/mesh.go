package kernel

import (
	"github.com/chazu/voxbrep/pkg/mesh"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Mesh is a triangle mesh suitable for rendering and export.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	PartName string    `json:"partName"` // which shell this came from
}

// FromMesh flattens an indexed mesh, attaching area-weighted vertex normals.
func FromMesh(m *mesh.Mesh, part string) *Mesh {
	out := &Mesh{
		Vertices: make([]float32, 0, 3*len(m.Vertices)),
		Normals:  make([]float32, 0, 3*len(m.Vertices)),
		Indices:  make([]uint32, 0, 3*len(m.Triangles)),
		PartName: part,
	}
	normals := m.VertexNormals()
	for i, v := range m.Vertices {
		n := normals[i]
		out.Vertices = append(out.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
		out.Normals = append(out.Normals, float32(n.X), float32(n.Y), float32(n.Z))
	}
	for _, t := range m.Triangles {
		out.Indices = append(out.Indices, uint32(t[0]), uint32(t[1]), uint32(t[2]))
	}
	return out
}

// Indexed converts m back to an indexed mesh. Normals are dropped.
func (m *Mesh) Indexed() *mesh.Mesh {
	out := &mesh.Mesh{
		Vertices:  make([]v3.Vec, 0, m.VertexCount()),
		Triangles: make([]mesh.Triangle, 0, m.TriangleCount()),
	}
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		out.Vertices = append(out.Vertices, v3.Vec{
			X: float64(m.Vertices[i]),
			Y: float64(m.Vertices[i+1]),
			Z: float64(m.Vertices[i+2]),
		})
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		out.Triangles = append(out.Triangles, mesh.Triangle{int(m.Indices[i]), int(m.Indices[i+1]), int(m.Indices[i+2])})
	}
	return out
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}
