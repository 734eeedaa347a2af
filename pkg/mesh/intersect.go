package mesh

import (
	"context"
	"runtime"
	"sort"

	"github.com/chazu/voxbrep/pkg/geom"
	"github.com/deadsy/sdfx/sdf"
	"github.com/dhconnelly/rtreego"
	"golang.org/x/sync/errgroup"
)

// TriBox is a triangle's padded bounding box, stored in an R-tree.
type TriBox struct {
	Tri  int
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (b *TriBox) Bounds() rtreego.Rect { return b.rect }

// RectOf converts a box into an R-tree rectangle grown by pad on every side.
// pad must be positive so flat boxes keep a non-zero extent.
func RectOf(b sdf.Box3, pad float64) rtreego.Rect {
	p := rtreego.Point{b.Min.X - pad, b.Min.Y - pad, b.Min.Z - pad}
	r, err := rtreego.NewRect(p, []float64{
		b.Max.X - b.Min.X + 2*pad,
		b.Max.Y - b.Min.Y + 2*pad,
		b.Max.Z - b.Min.Z + 2*pad,
	})
	if err != nil {
		// Only reachable with a non-positive pad on a flat box.
		panic(err)
	}
	return r
}

// Pad returns the box padding used for spatial queries on this mesh.
func (m *Mesh) Pad() float64 {
	d := geom.Diagonal(m.Bounds())
	if d == 0 {
		return 1e-9
	}
	return 1e-7 * d
}

// TriangleIndex builds an R-tree over every triangle's bounding box.
func (m *Mesh) TriangleIndex() (*rtreego.Rtree, []*TriBox) {
	pad := m.Pad()
	boxes := make([]*TriBox, len(m.Triangles))
	objs := make([]rtreego.Spatial, len(m.Triangles))
	for i, t := range m.Triangles {
		c := m.Corners(t)
		boxes[i] = &TriBox{Tri: i, rect: RectOf(geom.Bounds(c[0], c[1], c[2]), pad)}
		objs[i] = boxes[i]
	}
	return rtreego.NewTree(3, 25, 50, objs...), boxes
}

// Pair is an unordered pair of triangle indices with A < B.
type Pair struct{ A, B int }

// SelfIntersections returns every pair of triangles that intersect other than
// through shared vertices or edges. Candidate pairs come from an R-tree and
// are tested in parallel.
func (m *Mesh) SelfIntersections(ctx context.Context) ([]Pair, error) {
	if len(m.Triangles) < 2 {
		return nil, nil
	}
	tree, boxes := m.TriangleIndex()

	workers := runtime.GOMAXPROCS(0)
	chunk := (len(m.Triangles) + workers - 1) / workers
	results := make([][]Pair, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, min((w+1)*chunk, len(m.Triangles))
		if lo >= hi {
			break
		}
		g.Go(func() error {
			var found []Pair
			for i := lo; i < hi; i++ {
				if i%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				for _, s := range tree.SearchIntersect(boxes[i].rect) {
					j := s.(*TriBox).Tri
					if j <= i {
						continue
					}
					if m.TrianglesIntersect(i, j) {
						found = append(found, Pair{i, j})
					}
				}
			}
			results[w] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var pairs []Pair
	for _, r := range results {
		pairs = append(pairs, r...)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs, nil
}

// TrianglesIntersect tests triangles i and j, treating shared vertex indices
// as topological contact.
func (m *Mesh) TrianglesIntersect(i, j int) bool {
	ti, tj := m.Triangles[i], m.Triangles[j]
	return geom.TrianglesIntersect(m.Corners(ti), m.Corners(tj), ti, tj)
}
