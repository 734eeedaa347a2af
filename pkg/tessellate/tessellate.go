// Package tessellate produces renderable triangle meshes, one per part.
// Parts are either the shells of a reconstructed solid or the grid shapes
// of a phantom scene.
package tessellate

import (
	"fmt"
	"path/filepath"

	"github.com/chazu/voxbrep/pkg/graph"
	"github.com/chazu/voxbrep/pkg/kernel"
	"github.com/chazu/voxbrep/pkg/solid"
)

// PartName names shell i of a solid, e.g. "outer-0" or "void-3".
func PartName(s *solid.Solid, i int) string {
	return fmt.Sprintf("%s-%d", s.Shells[i].Role, i)
}

// Shells flattens every shell of s into its own mesh. The tessellator is
// read-only and never mutates the solid.
func Shells(s *solid.Solid) []*kernel.Mesh {
	if s == nil {
		return nil
	}
	meshes := make([]*kernel.Mesh, 0, len(s.Shells))
	for i, sh := range s.Shells {
		meshes = append(meshes, kernel.FromMesh(sh.Mesh, PartName(s, i)))
	}
	return meshes
}

// Write stores each shell of s as dir/<base>-<part>.stl and returns the
// paths in shell order.
func Write(dir, base string, s *solid.Solid, w kernel.MeshWriter) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	paths := make([]string, 0, len(s.Shells))
	for i, sh := range s.Shells {
		path := filepath.Join(dir, fmt.Sprintf("%s-%s.stl", base, PartName(s, i)))
		if err := w.WriteMesh(path, sh.Mesh); err != nil {
			return paths, fmt.Errorf("tessellate: shell %d: %w", i, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Scene meshes the shape under every grid root of g with kernel k. Grids
// are named after their node, falling back to the short ID.
func Scene(g *graph.Scene, k kernel.Kernel) ([]*kernel.Mesh, error) {
	if g == nil {
		return nil, nil
	}

	var meshes []*kernel.Mesh
	for _, n := range g.Grids() {
		if len(n.Children) != 1 {
			return nil, fmt.Errorf("tessellate: grid %s has %d shapes", n.ID.Short(), len(n.Children))
		}
		s, err := graph.Build(g, k, n.Children[0])
		if err != nil {
			return nil, fmt.Errorf("tessellate: error walking grid %s: %w", n.ID.Short(), err)
		}
		m, err := k.ToMesh(s)
		if err != nil {
			return nil, fmt.Errorf("tessellate: ToMesh failed for grid %s: %w", n.ID.Short(), err)
		}

		if n.Name != "" {
			m.PartName = n.Name
		} else {
			m.PartName = n.ID.Short()
		}
		meshes = append(meshes, m)
	}
	return meshes, nil
}
