// Package validate implements the gate run between pipeline stages. A gate
// measures a mesh and either passes it on or fails with a typed
// diag.Error naming the stage, the violated metric and its count.
package validate

import (
	"context"
	"fmt"

	"github.com/chazu/voxbrep/pkg/diag"
	"github.com/chazu/voxbrep/pkg/mesh"
)

// Options tunes the gate.
type Options struct {
	// MaxGenus is the largest genus tolerated per shell.
	MaxGenus int
}

// Report is what a gate measured.
type Report struct {
	Stage             diag.Stage
	Vertices          int
	Triangles         int
	InvalidIndices    int
	Topology          mesh.Topology
	SelfIntersections int
	// MaxShellGenus is the largest per-shell genus; -1 when a shell is
	// not closed and the genus is undefined.
	MaxShellGenus int
	Quality       mesh.Quality
}

// Violation is one failed check.
type Violation struct {
	Metric  diag.Metric
	Count   int
	Message string
}

// Violations lists every failed check in a fixed order.
func (r Report) Violations(maxGenus int) []Violation {
	var out []Violation
	add := func(metric diag.Metric, n int, msg string) {
		if n > 0 {
			out = append(out, Violation{Metric: metric, Count: n, Message: msg})
		}
	}
	add(diag.MetricInvalidIndices, r.InvalidIndices, "triangles reference invalid or repeated vertices")
	if r.InvalidIndices > 0 {
		return out
	}
	add(diag.MetricNonManifoldEdges, r.Topology.NonManifoldEdges, "edges shared by more than two triangles")
	add(diag.MetricNonManifoldVerts, r.Topology.NonManifoldVertices, "pinched vertices")
	add(diag.MetricBoundaryEdges, r.Topology.BoundaryEdges, "mesh is not closed")
	add(diag.MetricOrientation, r.Topology.InconsistentEdges, "neighbouring triangles disagree on winding")
	add(diag.MetricSelfIntersections, r.SelfIntersections, "triangles intersect")
	if r.MaxShellGenus > maxGenus {
		add(diag.MetricEuler, r.MaxShellGenus, fmt.Sprintf("shell genus exceeds %d", maxGenus))
	}
	return out
}

// Gate checks meshes at stage boundaries.
type Gate struct {
	opts Options
}

// New returns a Gate.
func New(opts Options) (*Gate, error) {
	if opts.MaxGenus < 0 {
		return nil, diag.Errorf(diag.CodeConfiguration, diag.StageNone, "max genus must be non-negative, got %d", opts.MaxGenus)
	}
	return &Gate{opts: opts}, nil
}

// Measure computes the report without judging it.
func (g *Gate) Measure(ctx context.Context, stage diag.Stage, m *mesh.Mesh) (Report, error) {
	rep := Report{
		Stage:          stage,
		Vertices:       m.VertexCount(),
		Triangles:      m.TriangleCount(),
		InvalidIndices: m.InvalidIndices(),
	}
	if rep.InvalidIndices > 0 {
		return rep, nil
	}
	rep.Topology = m.Analyze()
	pairs, err := m.SelfIntersections(ctx)
	if err != nil {
		return rep, err
	}
	rep.SelfIntersections = len(pairs)
	rep.MaxShellGenus = shellGenus(m, rep.Topology)
	rep.Quality = m.Measure()
	return rep, nil
}

// Check measures m and fails on the first violation.
func (g *Gate) Check(ctx context.Context, stage diag.Stage, m *mesh.Mesh) (Report, error) {
	rep, err := g.Measure(ctx, stage, m)
	if err != nil {
		return rep, err
	}
	if vs := rep.Violations(g.opts.MaxGenus); len(vs) > 0 {
		return rep, failure(stage, vs[0])
	}
	return rep, nil
}

// CheckLenient fails only on invalid indices and downgrades every other
// violation to a warning. It guards the raw extraction output, which the
// repair stage is expected to fix.
func (g *Gate) CheckLenient(ctx context.Context, stage diag.Stage, m *mesh.Mesh) (Report, []diag.Warning, error) {
	rep, err := g.Measure(ctx, stage, m)
	if err != nil {
		return rep, nil, err
	}
	var warnings []diag.Warning
	for _, v := range rep.Violations(g.opts.MaxGenus) {
		if v.Metric == diag.MetricInvalidIndices {
			return rep, warnings, failure(stage, v)
		}
		warnings = append(warnings, diag.Warning{
			Code:    diag.CodeExtractionDefect,
			Stage:   stage,
			Message: fmt.Sprintf("%s (%s=%d)", v.Message, v.Metric, v.Count),
			Count:   v.Count,
		})
	}
	return rep, warnings, nil
}

func failure(stage diag.Stage, v Violation) *diag.Error {
	return &diag.Error{
		Code:    diag.CodeValidationFailure,
		Stage:   stage,
		Metric:  v.Metric,
		Count:   v.Count,
		Message: v.Message,
	}
}

// shellGenus returns the largest genus over the mesh's shells, or -1 when
// some shell is open and its genus is undefined.
func shellGenus(m *mesh.Mesh, topo mesh.Topology) int {
	if !topo.Closed() {
		return -1
	}
	if topo.Components <= 1 {
		return topo.Genus()
	}
	worst := 0
	for _, comp := range m.Components() {
		g := m.Subset(comp).Analyze().Genus()
		if g > worst {
			worst = g
		}
	}
	return worst
}
