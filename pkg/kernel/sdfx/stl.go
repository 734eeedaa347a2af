package sdfx

import (
	"fmt"

	"github.com/chazu/voxbrep/pkg/mesh"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
)

// STLWriter writes meshes as STL through the sdfx renderer.
type STLWriter struct{}

// WriteMesh writes m to path. Winding is kept, so outward normals stay
// outward in the file.
func (STLWriter) WriteMesh(path string, m *mesh.Mesh) error {
	if m == nil || m.IsEmpty() {
		return fmt.Errorf("sdfx: write %s: empty mesh", path)
	}
	if err := render.SaveSTL(path, Triangles(m)); err != nil {
		return fmt.Errorf("sdfx: write %s: %w", path, err)
	}
	return nil
}

// Triangles converts an indexed mesh to sdfx triangles.
func Triangles(m *mesh.Mesh) []*sdf.Triangle3 {
	out := make([]*sdf.Triangle3, len(m.Triangles))
	for i, t := range m.Triangles {
		c := m.Corners(t)
		out[i] = &sdf.Triangle3{c[0], c[1], c[2]}
	}
	return out
}
