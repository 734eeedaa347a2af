// Package repair turns a raw extracted mesh into a closed, manifold,
// intersection-free one.
//
// Each pass merges near-coincident vertices, drops degenerate and duplicate
// triangles, splits non-manifold edges and pinched vertices into one copy
// per fan, unifies winding, closes small holes and cuts out intersecting
// patches (whose holes the next pass closes). Passes repeat until nothing
// changes or the pass limit is hit. Every step walks vertices, edges and
// triangles in index order, so output is a pure function of input.
package repair

import (
	"context"
	"fmt"

	"github.com/chazu/voxbrep/pkg/diag"
	"github.com/chazu/voxbrep/pkg/mesh"
)

// Options bounds the repair.
type Options struct {
	// Epsilon is the absolute vertex merge distance.
	Epsilon float64
	// HoleMaxEdges is the longest boundary loop that is closed; longer
	// loops fail the repair.
	HoleMaxEdges int
	// MaxPasses caps the number of passes.
	MaxPasses int
}

// Report counts what the repair changed.
type Report struct {
	Passes               int
	MergedVertices       int
	DegenerateRemoved    int
	DuplicatesRemoved    int
	SplitVertices        int
	FlippedTriangles     int
	HolesFilled          int
	IntersectionsRemoved int
}

func (r Report) changes() int {
	return r.MergedVertices + r.DegenerateRemoved + r.DuplicatesRemoved + r.SplitVertices +
		r.FlippedTriangles + r.HolesFilled + r.IntersectionsRemoved
}

func (r *Report) add(o Report) {
	r.MergedVertices += o.MergedVertices
	r.DegenerateRemoved += o.DegenerateRemoved
	r.DuplicatesRemoved += o.DuplicatesRemoved
	r.SplitVertices += o.SplitVertices
	r.FlippedTriangles += o.FlippedTriangles
	r.HolesFilled += o.HolesFilled
	r.IntersectionsRemoved += o.IntersectionsRemoved
}

// Repairer repairs meshes.
type Repairer struct {
	opts Options
}

// New validates opts and returns a Repairer.
func New(opts Options) (*Repairer, error) {
	if !(opts.Epsilon > 0) {
		return nil, diag.Errorf(diag.CodeConfiguration, diag.StageRepair, "epsilon must be positive, got %g", opts.Epsilon)
	}
	if opts.HoleMaxEdges < 3 {
		return nil, diag.Errorf(diag.CodeConfiguration, diag.StageRepair, "hole limit must be at least 3, got %d", opts.HoleMaxEdges)
	}
	if opts.MaxPasses < 1 {
		return nil, diag.Errorf(diag.CodeConfiguration, diag.StageRepair, "pass limit must be at least 1, got %d", opts.MaxPasses)
	}
	return &Repairer{opts: opts}, nil
}

// Repair returns a repaired copy of in. The input is not modified. When the
// mesh is not closed, manifold, consistently oriented and free of
// self-intersections once the passes stop, or a hole exceeds HoleMaxEdges,
// the error is diag.ErrUnrepairableTopology.
func (r *Repairer) Repair(ctx context.Context, in *mesh.Mesh) (*mesh.Mesh, Report, error) {
	if bad := outOfRange(in); bad > 0 {
		return nil, Report{}, &diag.Error{
			Code: diag.CodeUnrepairableTopology, Stage: diag.StageRepair,
			Metric: diag.MetricInvalidIndices, Count: bad,
			Message: "triangles reference missing vertices",
		}
	}

	m := in.Clone()
	var total Report
	for pass := 1; pass <= r.opts.MaxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, total, err
		}
		rep, err := r.pass(ctx, m)
		if err != nil {
			return nil, total, err
		}
		total.Passes = pass
		total.add(rep)
		if rep.changes() == 0 {
			break
		}
	}

	// A stable mesh can still carry defects no step knows how to change.
	if err := r.verify(ctx, m, total.Passes); err != nil {
		return nil, total, err
	}
	return m, total, nil
}

func (r *Repairer) pass(ctx context.Context, m *mesh.Mesh) (Report, error) {
	var rep Report
	rep.MergedVertices = mergeVertices(m, r.opts.Epsilon)
	rep.DegenerateRemoved, rep.DuplicatesRemoved = cleanTriangles(m, r.opts.Epsilon)
	rep.SplitVertices = splitNonManifold(m, r.opts.Epsilon)
	rep.FlippedTriangles = unifyOrientation(m)

	filled, err := fillHoles(m, r.opts.HoleMaxEdges)
	if err != nil {
		return rep, err
	}
	rep.HolesFilled = filled

	removed, err := removeIntersections(ctx, m)
	if err != nil {
		return rep, err
	}
	rep.IntersectionsRemoved = removed
	m.Compact()
	return rep, nil
}

// verify checks the mesh left after the last pass.
func (r *Repairer) verify(ctx context.Context, m *mesh.Mesh, passes int) error {
	topo := m.Analyze()
	fail := func(metric diag.Metric, count int) error {
		return &diag.Error{
			Code: diag.CodeUnrepairableTopology, Stage: diag.StageRepair,
			Metric: metric, Count: count,
			Message: fmt.Sprintf("mesh still defective after %d passes", passes),
		}
	}
	switch {
	case topo.NonManifoldEdges > 0:
		return fail(diag.MetricNonManifoldEdges, topo.NonManifoldEdges)
	case topo.NonManifoldVertices > 0:
		return fail(diag.MetricNonManifoldVerts, topo.NonManifoldVertices)
	case topo.BoundaryEdges > 0:
		return fail(diag.MetricBoundaryEdges, topo.BoundaryEdges)
	case topo.InconsistentEdges > 0:
		return fail(diag.MetricOrientation, topo.InconsistentEdges)
	}
	pairs, err := m.SelfIntersections(ctx)
	if err != nil {
		return err
	}
	if len(pairs) > 0 {
		return fail(diag.MetricSelfIntersections, len(pairs))
	}
	return nil
}

func outOfRange(m *mesh.Mesh) int {
	n := 0
	for _, t := range m.Triangles {
		for _, i := range t {
			if i < 0 || i >= len(m.Vertices) {
				n++
				break
			}
		}
	}
	return n
}
