// Package solid splits a closed mesh into shells, works out which shells
// enclose which, and produces the ReconstructedSolid handed to a CAD kernel.
package solid

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/chazu/voxbrep/pkg/diag"
	"github.com/chazu/voxbrep/pkg/geom"
	"github.com/chazu/voxbrep/pkg/mesh"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/samber/lo"
)

// Role tags a shell as material boundary or cavity boundary.
type Role int

const (
	Outer Role = iota
	Void
)

func (r Role) String() string {
	switch r {
	case Outer:
		return "outer"
	case Void:
		return "void"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Shell is one closed, oriented boundary component. Outer shells have
// positive signed volume, voids negative.
type Shell struct {
	Mesh *mesh.Mesh
	Role Role
	// Parent is the index of the immediately enclosing shell, or -1.
	Parent int
	// Depth counts the shells enclosing this one.
	Depth  int
	Volume float64
}

// Solid is the reconstructed boundary representation: outer shells sorted
// by volume, each followed by the shells it encloses.
type Solid struct {
	Shells []Shell
}

// IsEmpty reports whether the solid has no shells.
func (s *Solid) IsEmpty() bool { return len(s.Shells) == 0 }

// Outers returns the indices of the outer shells.
func (s *Solid) Outers() []int { return s.indices(Outer) }

// Voids returns the indices of the void shells.
func (s *Solid) Voids() []int { return s.indices(Void) }

func (s *Solid) indices(r Role) []int {
	var out []int
	for i, sh := range s.Shells {
		if sh.Role == r {
			out = append(out, i)
		}
	}
	return out
}

// Volume is the net enclosed volume: outer shells minus voids.
func (s *Solid) Volume() float64 {
	return lo.SumBy(s.Shells, func(sh Shell) float64 { return sh.Volume })
}

// Mesh merges every shell back into one mesh.
func (s *Solid) Mesh() *mesh.Mesh {
	out := &mesh.Mesh{}
	for _, sh := range s.Shells {
		base := len(out.Vertices)
		out.Vertices = append(out.Vertices, sh.Mesh.Vertices...)
		for _, t := range sh.Mesh.Triangles {
			out.Triangles = append(out.Triangles, mesh.Triangle{t[0] + base, t[1] + base, t[2] + base})
		}
	}
	return out
}

func (s *Solid) String() string {
	return fmt.Sprintf("solid(%d outer, %d void, volume %g)", len(s.Outers()), len(s.Voids()), s.Volume())
}

// Options configures reconstruction.
type Options struct {
	// MinShellVolume is the absolute volume below which a shell is
	// degenerate.
	MinShellVolume float64
}

// Reconstructor turns closed meshes into solids.
type Reconstructor struct {
	opts Options
}

// New returns a Reconstructor.
func New(opts Options) (*Reconstructor, error) {
	if opts.MinShellVolume < 0 || math.IsNaN(opts.MinShellVolume) {
		return nil, diag.Errorf(diag.CodeConfiguration, diag.StageReconstruction, "min shell volume must be non-negative, got %g", opts.MinShellVolume)
	}
	return &Reconstructor{opts: opts}, nil
}

// candidate is a shell before its role is known.
type candidate struct {
	mesh   *mesh.Mesh
	signed float64
	bounds sdf.Box3
}

// Reconstruct partitions m into shells and classifies them. Degenerate
// shells are dropped with a warning; if nothing else remains the call fails
// with a DEGENERATE_SHELL error. An empty mesh yields an empty solid.
func (r *Reconstructor) Reconstruct(ctx context.Context, m *mesh.Mesh) (*Solid, []diag.Warning, error) {
	var warnings []diag.Warning
	if m.IsEmpty() {
		return &Solid{}, nil, nil
	}
	if n := m.InvalidIndices(); n > 0 {
		return nil, nil, &diag.Error{
			Code:    diag.CodeValidationFailure,
			Stage:   diag.StageReconstruction,
			Metric:  diag.MetricInvalidIndices,
			Count:   n,
			Message: "input has invalid triangles",
		}
	}

	comps := m.Components()
	var shells []candidate
	dropped := 0
	for _, comp := range comps {
		sub := m.Subset(comp)
		topo := sub.Analyze()
		if !topo.Closed() || topo.InconsistentEdges > 0 {
			return nil, nil, &diag.Error{
				Code:    diag.CodeValidationFailure,
				Stage:   diag.StageReconstruction,
				Metric:  diag.MetricBoundaryEdges,
				Count:   topo.BoundaryEdges + topo.NonManifoldEdges + topo.InconsistentEdges,
				Message: "shell is not closed and oriented",
			}
		}
		vol := sub.SignedVolume()
		if math.Abs(vol) <= r.opts.MinShellVolume {
			dropped++
			warnings = append(warnings, diag.Warning{
				Code:    diag.CodeDegenerateShell,
				Stage:   diag.StageReconstruction,
				Message: fmt.Sprintf("dropped shell of %d triangles with volume %.3g", sub.TriangleCount(), vol),
				Count:   1,
			})
			continue
		}
		shells = append(shells, candidate{mesh: sub, signed: vol, bounds: sub.Bounds()})
	}
	if len(shells) == 0 {
		return nil, warnings, &diag.Error{
			Code:    diag.CodeDegenerateShell,
			Stage:   diag.StageReconstruction,
			Count:   dropped,
			Message: "every shell is degenerate",
		}
	}

	// Largest first, so a shell's enclosers always precede it.
	sort.SliceStable(shells, func(i, j int) bool {
		return math.Abs(shells[i].signed) > math.Abs(shells[j].signed)
	})
	parent := make([]int, len(shells))
	depth := make([]int, len(shells))
	for i := range shells {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		parent[i] = -1
		sample := shells[i].mesh.Vertices[shells[i].mesh.Triangles[0][0]]
		for j := 0; j < i; j++ {
			if !inside(shells[i].bounds, shells[j].bounds) || !Contains(shells[j].mesh, sample) {
				continue
			}
			depth[i]++
			// Enclosers are visited largest first; the last one found is the
			// innermost.
			parent[i] = j
		}
	}

	solid, flipped := assemble(shells, parent, depth)
	if flipped > 0 {
		warnings = append(warnings, diag.Warning{
			Code:    diag.CodeOrientationCorrected,
			Stage:   diag.StageReconstruction,
			Message: fmt.Sprintf("re-oriented %d shells to match their nesting", flipped),
			Count:   flipped,
		})
	}
	return solid, warnings, nil
}

// assemble orders the shells depth-first from the largest roots and fixes
// each shell's winding to match its role.
func assemble(shells []candidate, parent, depth []int) (*Solid, int) {
	children := make([][]int, len(shells))
	var roots []int
	for i, p := range parent {
		if p < 0 {
			roots = append(roots, i)
		} else {
			children[p] = append(children[p], i)
		}
	}
	solid := &Solid{}
	flipped := 0
	index := make([]int, len(shells))
	var visit func(i int)
	visit = func(i int) {
		c := shells[i]
		role := Outer
		if depth[i]%2 == 1 {
			role = Void
		}
		m := c.mesh
		vol := c.signed
		if (role == Outer) != (vol > 0) {
			m = m.Clone()
			m.Flip()
			vol = -vol
			flipped++
		}
		p := -1
		if parent[i] >= 0 {
			p = index[parent[i]]
		}
		index[i] = len(solid.Shells)
		solid.Shells = append(solid.Shells, Shell{Mesh: m, Role: role, Parent: p, Depth: depth[i], Volume: vol})
		for _, ch := range children[i] {
			visit(ch)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	return solid, flipped
}

func inside(inner, outer sdf.Box3) bool {
	return inner.Min.X >= outer.Min.X && inner.Min.Y >= outer.Min.Y && inner.Min.Z >= outer.Min.Z &&
		inner.Max.X <= outer.Max.X && inner.Max.Y <= outer.Max.Y && inner.Max.Z <= outer.Max.Z
}

// rayDirs are ray directions chosen to avoid the grid axes and diagonals of
// voxel meshes.
var rayDirs = [3]v3.Vec{
	{X: 0.5773, Y: 0.5774, Z: 0.5775},
	{X: -0.2672, Y: 0.8018, Z: -0.5345},
	{X: 0.8165, Y: -0.4083, Z: 0.4082},
}

// Contains reports whether p lies inside the closed mesh m by ray-crossing
// parity, taking the majority over three directions.
func Contains(m *mesh.Mesh, p v3.Vec) bool {
	votes := 0
	for _, d := range rayDirs {
		hits := 0
		for _, t := range m.Triangles {
			c := m.Corners(t)
			if _, ok := geom.RayTriangle(p, d, c[0], c[1], c[2]); ok {
				hits++
			}
		}
		if hits%2 == 1 {
			votes++
		}
	}
	return votes >= 2
}
