// Package extract turns a voxel grid into a closed triangle mesh with a
// marching-cubes style sweep over 2x2x2 voxel cells.
//
// Vertices sit at the midpoint between adjacent voxel centres. The grid is
// treated as surrounded by empty voxels, so every occupied region yields a
// closed surface. A grid that is a single voxel thick along any axis has no
// full cell and yields an empty mesh. Checkerboard faces are resolved by a single global rule
// (see TieBreak), which keeps neighbouring cells crack-free and the output
// watertight, consistently oriented and manifold.
package extract

import (
	"context"
	"fmt"
	"runtime"

	"github.com/chazu/voxbrep/pkg/mesh"
	"github.com/chazu/voxbrep/pkg/voxel"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// TieBreak selects how a cell face whose corners alternate occupied and
// empty is split.
type TieBreak int

const (
	// Separate cuts off each occupied corner, keeping diagonal voxels apart.
	Separate TieBreak = iota
	// Join cuts off each empty corner, connecting diagonal voxels.
	Join
)

func (t TieBreak) String() string {
	switch t {
	case Separate:
		return "separate"
	case Join:
		return "join"
	}
	return fmt.Sprintf("TieBreak(%d)", int(t))
}

// Options configures an Extractor.
type Options struct {
	TieBreak TieBreak
	// Workers bounds the number of slab batches processed in parallel.
	// Zero means GOMAXPROCS.
	Workers int
}

// Extractor converts grids into meshes.
type Extractor struct {
	opts Options
}

// New returns an Extractor.
func New(opts Options) (*Extractor, error) {
	if opts.TieBreak != Separate && opts.TieBreak != Join {
		return nil, fmt.Errorf("extract: unknown tie-break mode %d", opts.TieBreak)
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("extract: workers must be non-negative, got %d", opts.Workers)
	}
	return &Extractor{opts: opts}, nil
}

// slab holds the output of one batch of z layers. Vertices are listed in
// first-use order so merging slabs in z order is deterministic.
type slab struct {
	vertices []v3.Vec
	tris     []mesh.Triangle
}

// Extract sweeps every cell of g, including the ring of cells that straddle
// the grid boundary. An empty grid, or one with a dimension below 2, yields
// an empty mesh.
func (e *Extractor) Extract(ctx context.Context, g *voxel.Grid) (*mesh.Mesh, error) {
	if g.IsEmpty() || g.MinDim() < 2 {
		return &mesh.Mesh{}, nil
	}
	dims := g.Dims()

	// Cell k spans voxel layers k and k+1; k runs from -1 to nz-1.
	layers := lo.RangeFrom(-1, dims[2]+1)
	workers := e.opts.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	size := max(1, (len(layers)+workers-1)/workers)
	batches := lo.Chunk(layers, size)
	slabs := make([]slab, len(batches))

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(workers)
	for i, batch := range batches {
		grp.Go(func() error {
			s, err := e.sweep(ctx, g, batch)
			if err != nil {
				return err
			}
			slabs[i] = s
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return merge(slabs), nil
}

func (e *Extractor) sweep(ctx context.Context, g *voxel.Grid, zs []int) (slab, error) {
	dims := g.Dims()
	table := &triTable[e.opts.TieBreak]
	var s slab
	local := make(map[v3.Vec]int)

	for _, z := range zs {
		if err := ctx.Err(); err != nil {
			return slab{}, err
		}
		for y := -1; y < dims[1]; y++ {
			for x := -1; x < dims[0]; x++ {
				var config uint8
				for c := 0; c < 8; c++ {
					if g.At(x+c&1, y+c>>1&1, z+c>>2&1) {
						config |= 1 << c
					}
				}
				for _, tri := range table[config] {
					var t mesh.Triangle
					for k, edge := range tri {
						p := edgePoint(g, x, y, z, int(edge))
						idx, ok := local[p]
						if !ok {
							idx = len(s.vertices)
							local[p] = idx
							s.vertices = append(s.vertices, p)
						}
						t[k] = idx
					}
					s.tris = append(s.tris, t)
				}
			}
		}
	}
	return s, nil
}

// edgePoint returns the physical midpoint of a cell edge. Coordinates are
// computed in half-voxel steps from integer indices, so the same edge seen
// from different cells yields bit-identical positions.
func edgePoint(g *voxel.Grid, x, y, z, edge int) v3.Vec {
	ce := edges[edge]
	h := [3]int{
		2 * (x + ce.a&1),
		2 * (y + ce.a>>1&1),
		2 * (z + ce.a>>2&1),
	}
	h[ce.axis]++
	sp, o := g.Spacing(), g.Origin()
	return v3.Vec{
		X: o.X + sp.X*float64(h[0])/2,
		Y: o.Y + sp.Y*float64(h[1])/2,
		Z: o.Z + sp.Z*float64(h[2])/2,
	}
}

// merge concatenates slabs, deduplicating vertices shared across slab
// boundaries by exact position.
func merge(slabs []slab) *mesh.Mesh {
	m := &mesh.Mesh{}
	index := make(map[v3.Vec]int)
	for _, s := range slabs {
		remap := make([]int, len(s.vertices))
		for i, p := range s.vertices {
			idx, ok := index[p]
			if !ok {
				idx = len(m.Vertices)
				index[p] = idx
				m.Vertices = append(m.Vertices, p)
			}
			remap[i] = idx
		}
		for _, t := range s.tris {
			m.Triangles = append(m.Triangles, mesh.Triangle{remap[t[0]], remap[t[1]], remap[t[2]]})
		}
	}
	return m
}
