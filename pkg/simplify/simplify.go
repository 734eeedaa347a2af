// Package simplify reduces a watertight mesh by greedy quadric-error edge
// collapse. Every accepted collapse keeps the mesh closed, manifold,
// consistently oriented and free of self-intersections, and stays within the
// configured deviation from the input surface.
package simplify

import (
	"container/heap"
	"context"
	"fmt"
	"math"

	"github.com/chazu/voxbrep/pkg/diag"
	"github.com/chazu/voxbrep/pkg/mesh"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Options configures the simplifier.
type Options struct {
	// TargetRatio is the fraction of triangles to keep, in (0, 1].
	TargetRatio float64
	// TargetTriangles is an absolute target; it wins over TargetRatio when
	// non-zero.
	TargetTriangles int
	// MaxDeviation bounds the distance between the simplified and the input
	// surface, in mesh units.
	MaxDeviation float64
	// MaxCollapses bounds the number of candidates examined.
	MaxCollapses int
}

// Report summarises a simplification run.
type Report struct {
	Before       int
	After        int
	Target       int
	Collapses    int
	Rejected     int
	MaxDeviation float64
	TargetMet    bool
}

// Warnings returns the non-fatal signals of the run.
func (r Report) Warnings() []diag.Warning {
	if r.TargetMet {
		return nil
	}
	return []diag.Warning{{
		Code:    diag.CodeSimplificationTargetUnmet,
		Stage:   diag.StageSimplification,
		Message: fmt.Sprintf("reached %d triangles, target %d", r.After, r.Target),
		Count:   r.After - r.Target,
	}}
}

// Simplifier runs quadric edge collapse.
type Simplifier struct {
	opts Options
}

// New validates opts and returns a Simplifier.
func New(opts Options) (*Simplifier, error) {
	bad := func(format string, args ...any) error {
		return diag.Errorf(diag.CodeConfiguration, diag.StageSimplification, format, args...)
	}
	switch {
	case opts.TargetTriangles < 0:
		return nil, bad("target triangles must be non-negative, got %d", opts.TargetTriangles)
	case opts.TargetTriangles == 0 && (opts.TargetRatio <= 0 || opts.TargetRatio > 1):
		return nil, bad("target ratio must be in (0, 1], got %g", opts.TargetRatio)
	case opts.MaxDeviation < 0 || math.IsNaN(opts.MaxDeviation) || math.IsInf(opts.MaxDeviation, 0):
		return nil, bad("max deviation must be finite and non-negative, got %g", opts.MaxDeviation)
	case opts.MaxCollapses <= 0:
		return nil, bad("max collapses must be positive, got %d", opts.MaxCollapses)
	}
	return &Simplifier{opts: opts}, nil
}

func (s *Simplifier) target(n int) int {
	if s.opts.TargetTriangles > 0 {
		return s.opts.TargetTriangles
	}
	return int(math.Ceil(s.opts.TargetRatio * float64(n)))
}

// Simplify returns a reduced copy of m. The input must be closed and
// consistently oriented. Missing the target is not an error; Report.TargetMet
// says whether it was reached.
func (s *Simplifier) Simplify(ctx context.Context, m *mesh.Mesh) (*mesh.Mesh, Report, error) {
	rep := Report{Before: m.TriangleCount(), Target: s.target(m.TriangleCount())}
	if n := m.InvalidIndices(); n > 0 {
		return nil, rep, &diag.Error{
			Code:    diag.CodeValidationFailure,
			Stage:   diag.StageSimplification,
			Metric:  diag.MetricInvalidIndices,
			Count:   n,
			Message: "input has invalid triangles",
		}
	}
	topo := m.Analyze()
	if !topo.Closed() || topo.InconsistentEdges > 0 {
		return nil, rep, &diag.Error{
			Code:    diag.CodeValidationFailure,
			Stage:   diag.StageSimplification,
			Metric:  diag.MetricBoundaryEdges,
			Count:   topo.BoundaryEdges + topo.NonManifoldEdges + topo.InconsistentEdges,
			Message: "input is not a closed oriented surface",
		}
	}

	st := newState(m, s.opts.MaxDeviation)
	q := &queue{}
	for _, e := range mesh.SortedEdges(m.EdgeMap()) {
		st.push(q, e.A, e.B)
	}

	live := rep.Before
	examined := 0
	for live > rep.Target && q.Len() > 0 && examined < s.opts.MaxCollapses {
		if examined%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, rep, err
			}
		}
		c := heap.Pop(q).(*candidate)
		if !st.current(c) {
			continue
		}
		examined++
		removed, dev, ok := st.collapse(c)
		if !ok {
			rep.Rejected++
			continue
		}
		rep.Collapses++
		rep.MaxDeviation = math.Max(rep.MaxDeviation, dev)
		live -= removed
		for _, n := range st.neighbours(c.a) {
			st.push(q, c.a, n)
		}
	}

	out := st.result()
	rep.After = out.TriangleCount()
	rep.TargetMet = rep.After <= rep.Target
	return out, rep, nil
}

// candidate is a queued collapse of edge ab to pos. Stamps detect staleness.
type candidate struct {
	a, b           int
	stampA, stampB int
	cost           float64
	length2        float64
	pos            v3.Vec
}

type queue []*candidate

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	if a.length2 != b.length2 {
		return a.length2 < b.length2
	}
	if a.a != b.a {
		return a.a < b.a
	}
	return a.b < b.b
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(*candidate)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return c
}
