// Package kernel defines the boundary between the voxel pipeline and the
// geometry kernels on either side of it. Primitive kernels (sdfx) build
// analytic solids that are voxelized into phantom grids; CAD kernels
// (freecad) turn a reconstructed solid into a boundary representation.
// The abstraction allows swapping backends without changing the pipeline.
package kernel

import (
	"context"
	"fmt"

	"github.com/chazu/voxbrep/pkg/mesh"
	"github.com/chazu/voxbrep/pkg/solid"
	"github.com/chazu/voxbrep/pkg/voxel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Solid is an opaque handle to a kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
	// Inside reports whether p lies strictly inside the solid.
	Inside(p v3.Vec) bool
}

// Kernel builds analytic solids.
type Kernel interface {
	// Primitives
	Box(x, y, z float64) Solid
	Sphere(radius float64) Solid
	Cylinder(height, radius float64, segments int) Solid

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}

// MeshWriter persists a triangle mesh in an exchange format.
type MeshWriter interface {
	WriteMesh(path string, m *mesh.Mesh) error
}

// Assembler converts a reconstructed solid into a CAD file.
type Assembler interface {
	Assemble(ctx context.Context, s *solid.Solid, path string) error
}

// Voxelize samples s at every voxel centre of the described grid; origin is
// the centre of voxel (0,0,0). A voxel is occupied when its centre is inside s.
func Voxelize(s Solid, dims [3]int, spacing, origin v3.Vec) (*voxel.Grid, error) {
	if s == nil {
		return nil, fmt.Errorf("kernel: voxelize: nil solid")
	}
	return voxel.FromFunc(dims, spacing, origin, func(x, y, z int) bool {
		return s.Inside(v3.Vec{
			X: origin.X + float64(x)*spacing.X,
			Y: origin.Y + float64(y)*spacing.Y,
			Z: origin.Z + float64(z)*spacing.Z,
		})
	})
}
