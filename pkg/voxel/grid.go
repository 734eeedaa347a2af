// Package voxel defines the immutable binary occupancy grid consumed by the
// reconstruction pipeline, plus the NPY reader and writer used to move grids
// on and off disk.
package voxel

import (
	"fmt"
	"math"

	"github.com/chazu/voxbrep/pkg/diag"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Grid is a 3D binary occupancy array with per-axis spacing and an origin.
// Voxel (x, y, z) has its centre at Origin + Spacing*(x, y, z). A Grid is
// never mutated after construction.
type Grid struct {
	nx, ny, nz int
	spacing    v3.Vec
	origin     v3.Vec
	occ        []bool // x + nx*(y + ny*z)
	count      int
}

// New builds a Grid from a flat occupancy buffer laid out x-fastest. The
// buffer is copied. Dimensions must be positive and spacing positive and
// finite; anything else is diag.ErrInvalidGrid.
func New(dims [3]int, occupancy []bool, spacing, origin v3.Vec) (*Grid, error) {
	if err := checkShape(dims, spacing, origin); err != nil {
		return nil, err
	}
	n := dims[0] * dims[1] * dims[2]
	if len(occupancy) != n {
		return nil, diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid,
			"occupancy buffer has %d entries, dimensions %dx%dx%d need %d",
			len(occupancy), dims[0], dims[1], dims[2], n)
	}
	occ := make([]bool, n)
	copy(occ, occupancy)
	return newGrid(dims, occ, spacing, origin), nil
}

// FromFunc builds a Grid by evaluating fn at every voxel index.
func FromFunc(dims [3]int, spacing, origin v3.Vec, fn func(x, y, z int) bool) (*Grid, error) {
	if err := checkShape(dims, spacing, origin); err != nil {
		return nil, err
	}
	occ := make([]bool, dims[0]*dims[1]*dims[2])
	i := 0
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				occ[i] = fn(x, y, z)
				i++
			}
		}
	}
	return newGrid(dims, occ, spacing, origin), nil
}

func newGrid(dims [3]int, occ []bool, spacing, origin v3.Vec) *Grid {
	g := &Grid{nx: dims[0], ny: dims[1], nz: dims[2], spacing: spacing, origin: origin, occ: occ}
	for _, o := range occ {
		if o {
			g.count++
		}
	}
	return g
}

func checkShape(dims [3]int, spacing, origin v3.Vec) error {
	for axis, d := range dims {
		if d <= 0 {
			return diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid,
				"dimension %d is %d, must be positive", axis, d)
		}
	}
	if dims[0] > math.MaxInt32/dims[1]/dims[2] {
		return diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid,
			"grid %dx%dx%d is too large", dims[0], dims[1], dims[2])
	}
	for axis, s := range [3]float64{spacing.X, spacing.Y, spacing.Z} {
		if !(s > 0) || math.IsInf(s, 0) {
			return diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid,
				"spacing along axis %d is %g, must be positive and finite", axis, s)
		}
	}
	for axis, o := range [3]float64{origin.X, origin.Y, origin.Z} {
		if math.IsNaN(o) || math.IsInf(o, 0) {
			return diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid,
				"origin along axis %d is %g, must be finite", axis, o)
		}
	}
	return nil
}

// Dims returns the number of voxels along each axis.
func (g *Grid) Dims() [3]int { return [3]int{g.nx, g.ny, g.nz} }

// Spacing returns the physical voxel size per axis.
func (g *Grid) Spacing() v3.Vec { return g.spacing }

// Origin returns the position of voxel (0, 0, 0)'s centre.
func (g *Grid) Origin() v3.Vec { return g.origin }

// Len returns the total number of voxels.
func (g *Grid) Len() int { return len(g.occ) }

// At reports whether voxel (x, y, z) is occupied. Indices outside the grid
// read as empty.
func (g *Grid) At(x, y, z int) bool {
	if x < 0 || y < 0 || z < 0 || x >= g.nx || y >= g.ny || z >= g.nz {
		return false
	}
	return g.occ[x+g.nx*(y+g.ny*z)]
}

// Occupied returns the number of occupied voxels.
func (g *Grid) Occupied() int { return g.count }

// IsEmpty reports whether no voxel is occupied.
func (g *Grid) IsEmpty() bool { return g.count == 0 }

// MinDim returns the smallest dimension.
func (g *Grid) MinDim() int { return min(g.nx, g.ny, g.nz) }

// MinSpacing returns the smallest voxel spacing.
func (g *Grid) MinSpacing() float64 {
	return math.Min(g.spacing.X, math.Min(g.spacing.Y, g.spacing.Z))
}

// VoxelVolume returns the physical volume of one voxel.
func (g *Grid) VoxelVolume() float64 {
	return g.spacing.X * g.spacing.Y * g.spacing.Z
}

// Volume returns the voxel-counted occupied volume.
func (g *Grid) Volume() float64 {
	return float64(g.count) * g.VoxelVolume()
}

// Center returns the physical position of a voxel centre. Indices may lie
// outside the grid.
func (g *Grid) Center(x, y, z int) v3.Vec {
	return v3.Vec{
		X: g.origin.X + g.spacing.X*float64(x),
		Y: g.origin.Y + g.spacing.Y*float64(y),
		Z: g.origin.Z + g.spacing.Z*float64(z),
	}
}

// Bounds returns the physical extent covered by all voxels.
func (g *Grid) Bounds() sdf.Box3 {
	half := g.spacing.MulScalar(0.5)
	return sdf.Box3{
		Min: g.Center(0, 0, 0).Sub(half),
		Max: g.Center(g.nx-1, g.ny-1, g.nz-1).Add(half),
	}
}

// Occupancy returns a copy of the flat occupancy buffer, x-fastest.
func (g *Grid) Occupancy() []bool {
	out := make([]bool, len(g.occ))
	copy(out, g.occ)
	return out
}

func (g *Grid) String() string {
	return fmt.Sprintf("grid %dx%dx%d (%d occupied, spacing %g,%g,%g)",
		g.nx, g.ny, g.nz, g.count, g.spacing.X, g.spacing.Y, g.spacing.Z)
}
