// Package pipeline chains the reconstruction stages: extraction, repair,
// optional smoothing, simplification and solid reconstruction, with a
// validation gate at every stage boundary. Data only flows forward; every
// stage returns a new value and nothing is mutated in place.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/chazu/voxbrep/pkg/config"
	"github.com/chazu/voxbrep/pkg/diag"
	"github.com/chazu/voxbrep/pkg/extract"
	"github.com/chazu/voxbrep/pkg/mesh"
	"github.com/chazu/voxbrep/pkg/repair"
	"github.com/chazu/voxbrep/pkg/simplify"
	"github.com/chazu/voxbrep/pkg/smooth"
	"github.com/chazu/voxbrep/pkg/solid"
	"github.com/chazu/voxbrep/pkg/validate"
	"github.com/chazu/voxbrep/pkg/voxel"
	"github.com/google/uuid"
)

// Options carries the run's non-numeric collaborators.
type Options struct {
	// Logger receives one line per stage. Nil means log.Default().
	Logger *log.Logger
}

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}

// Result is everything a run produced. Solid is set only when every stage
// passed; LastValid always holds the newest mesh that passed a gate, so a
// caller can still inspect a failed run.
type Result struct {
	RunID      string
	Solid      *solid.Solid
	Mesh       *mesh.Mesh
	LastValid  *mesh.Mesh
	GridVolume float64
	Reports    []validate.Report
	Repair     repair.Report
	Simplify   simplify.Report
	Warnings   []diag.Warning
}

// Report returns the gate report for stage, if the stage ran.
func (r *Result) Report(stage diag.Stage) (validate.Report, bool) {
	for _, rep := range r.Reports {
		if rep.Stage == stage {
			return rep, true
		}
	}
	return validate.Report{}, false
}

// stages holds the configured stage objects for one grid.
type stages struct {
	extractor  *extract.Extractor
	repairer   *repair.Repairer
	gate       *validate.Gate
	smoothing  smooth.Options
	simplifier *simplify.Simplifier
	builder    *solid.Reconstructor
	strict     bool
	volumeTol  float64
}

// build turns the configuration into stage objects. Distances in the
// configuration are fractions of the grid's voxel size.
func build(g *voxel.Grid, cfg *config.Config) (*stages, error) {
	st := &stages{strict: cfg.GetStrictExtractionGate(), volumeTol: cfg.GetVolumeTolerance()}
	var err error
	if st.extractor, err = extract.New(extract.Options{
		TieBreak: extract.TieBreak(cfg.GetTieBreak()),
		Workers:  cfg.GetWorkers(),
	}); err != nil {
		return nil, err
	}
	if st.repairer, err = repair.New(repair.Options{
		Epsilon:      cfg.GetDedupEpsilon() * g.MinSpacing(),
		HoleMaxEdges: cfg.GetHoleMaxEdges(),
		MaxPasses:    cfg.GetRepairMaxPasses(),
	}); err != nil {
		return nil, err
	}
	if st.gate, err = validate.New(validate.Options{MaxGenus: cfg.GetMaxGenus()}); err != nil {
		return nil, err
	}
	st.smoothing = smooth.Options{
		Iterations: cfg.GetSmoothingIterations(),
		Lambda:     cfg.GetSmoothingLambda(),
		Mu:         cfg.GetSmoothingMu(),
	}
	if err = st.smoothing.Validate(); err != nil {
		return nil, err
	}
	if st.simplifier, err = simplify.New(simplify.Options{
		TargetRatio:     cfg.GetSimplifyTargetRatio(),
		TargetTriangles: cfg.GetSimplifyTargetTriangles(),
		MaxDeviation:    cfg.GetSimplifyMaxDeviation() * g.MinSpacing(),
		MaxCollapses:    cfg.GetSimplifyMaxCollapses(),
	}); err != nil {
		return nil, err
	}
	if st.builder, err = solid.New(solid.Options{
		MinShellVolume: cfg.GetMinShellVolume() * g.VoxelVolume(),
	}); err != nil {
		return nil, err
	}
	return st, nil
}

// Run reconstructs a solid from g. Configuration errors are reported before
// any stage runs. On failure the returned Result is still non-nil and
// carries the reports and warnings gathered so far.
func Run(ctx context.Context, g *voxel.Grid, cfg *config.Config, opts Options) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	if g == nil {
		return res, diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid, "no grid")
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	if err := cfg.Validate(); err != nil {
		return res, err
	}
	st, err := build(g, cfg)
	if err != nil {
		return res, err
	}
	logger := opts.logger()
	logf := func(format string, args ...any) {
		logger.Printf("[%s] %s", res.RunID[:8], fmt.Sprintf(format, args...))
	}

	res.GridVolume = g.Volume()
	logf("grid %s, %d occupied voxels", g, g.Occupied())

	m, err := st.extractor.Extract(ctx, g)
	if err != nil {
		return res, fmt.Errorf("pipeline: extraction: %w", err)
	}
	logf("extraction: %s", m)
	if m.IsEmpty() {
		logf("no surface cells, nothing to reconstruct")
		res.Mesh, res.LastValid, res.Solid = m, m, &solid.Solid{}
		return res, nil
	}
	if err := res.gate(ctx, st, diag.StageExtraction, m, !st.strict); err != nil {
		return res, err
	}

	m, res.Repair, err = st.repairer.Repair(ctx, m)
	if err != nil {
		return res, err
	}
	logf("repair: %s in %d passes (merged %d, split %d, holes %d, intersections %d)",
		m, res.Repair.Passes, res.Repair.MergedVertices, res.Repair.SplitVertices,
		res.Repair.HolesFilled, res.Repair.IntersectionsRemoved)
	if err := res.gate(ctx, st, diag.StageRepair, m, false); err != nil {
		return res, err
	}
	res.checkVolume(m, st.volumeTol)

	if st.smoothing.Iterations > 0 {
		if m, err = smooth.Taubin(ctx, m, st.smoothing); err != nil {
			return res, err
		}
		logf("smoothing: %d iterations", st.smoothing.Iterations)
		if err := res.gate(ctx, st, diag.StageSmoothing, m, false); err != nil {
			return res, err
		}
	}

	m, res.Simplify, err = st.simplifier.Simplify(ctx, m)
	if err != nil {
		return res, err
	}
	res.Warnings = append(res.Warnings, res.Simplify.Warnings()...)
	logf("simplification: %d -> %d triangles (target %d, max deviation %.3g)",
		res.Simplify.Before, res.Simplify.After, res.Simplify.Target, res.Simplify.MaxDeviation)
	if err := res.gate(ctx, st, diag.StageSimplification, m, false); err != nil {
		return res, err
	}
	res.Mesh = m

	s, warnings, err := st.builder.Reconstruct(ctx, m)
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		return res, err
	}
	res.Solid = s
	logf("reconstruction: %s", s)
	for _, w := range res.Warnings {
		logf("warning: %s", w)
	}
	return res, nil
}

// gate runs the validation gate and records its report. A lenient gate
// turns every violation except invalid indices into a warning.
func (r *Result) gate(ctx context.Context, st *stages, stage diag.Stage, m *mesh.Mesh, lenient bool) error {
	var (
		rep validate.Report
		err error
	)
	if lenient {
		var warnings []diag.Warning
		rep, warnings, err = st.gate.CheckLenient(ctx, stage, m)
		r.Warnings = append(r.Warnings, warnings...)
	} else {
		rep, err = st.gate.Check(ctx, stage, m)
	}
	r.Reports = append(r.Reports, rep)
	if err != nil {
		return err
	}
	if !lenient {
		r.LastValid = m
	}
	return nil
}

// checkVolume compares the repaired surface with the voxel count.
func (r *Result) checkVolume(m *mesh.Mesh, tol float64) {
	if r.GridVolume == 0 {
		return
	}
	drift := math.Abs(m.SignedVolume()-r.GridVolume) / r.GridVolume
	if drift <= tol {
		return
	}
	r.Warnings = append(r.Warnings, diag.Warning{
		Code:    diag.CodeVolumeDrift,
		Stage:   diag.StageRepair,
		Message: fmt.Sprintf("mesh volume %.6g differs from voxel volume %.6g by %.1f%%", m.SignedVolume(), r.GridVolume, 100*drift),
	})
}
