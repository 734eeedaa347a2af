package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"github.com/chazu/voxbrep/pkg/config"
	"github.com/chazu/voxbrep/pkg/diag"
	"github.com/chazu/voxbrep/pkg/pipeline"
	"github.com/chazu/voxbrep/pkg/solid"
	"github.com/chazu/voxbrep/pkg/voxel"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = pipeline.Options{Logger: log.New(&bytes.Buffer{}, "", 0)}

func grid(t *testing.T, dims [3]int, fn func(x, y, z int) bool) *voxel.Grid {
	t.Helper()
	g, err := voxel.FromFunc(dims, v3.Vec{X: 1, Y: 1, Z: 1}, v3.Vec{}, fn)
	require.NoError(t, err)
	return g
}

func run(t *testing.T, g *voxel.Grid, cfg *config.Config) *pipeline.Result {
	t.Helper()
	res, err := pipeline.Run(context.Background(), g, cfg, quiet)
	require.NoError(t, err)
	require.NotNil(t, res.Solid)
	return res
}

func requireClosedShells(t *testing.T, s *solid.Solid) {
	t.Helper()
	for i, sh := range s.Shells {
		topo := sh.Mesh.Analyze()
		require.True(t, topo.Closed(), "shell %d", i)
		require.True(t, topo.Manifold(), "shell %d", i)
		require.Zero(t, topo.InconsistentEdges, "shell %d", i)
		require.Equal(t, 1, topo.Components, "shell %d", i)
	}
}

func filled(x, y, z int) bool { return true }

func TestFilledCube(t *testing.T) {
	res := run(t, grid(t, [3]int{10, 10, 10}, filled), nil)
	s := res.Solid
	require.Len(t, s.Shells, 1)
	requireClosedShells(t, s)
	assert.Equal(t, solid.Outer, s.Shells[0].Role)
	assert.Empty(t, s.Voids())
	assert.InEpsilon(t, 1000, s.Shells[0].Volume, 0.05)
	assert.Equal(t, 1000.0, res.GridVolume)

	for _, stage := range []diag.Stage{diag.StageExtraction, diag.StageRepair, diag.StageSimplification} {
		_, ok := res.Report(stage)
		assert.True(t, ok, "missing %s report", stage)
	}
	_, ok := res.Report(diag.StageSmoothing)
	assert.False(t, ok, "smoothing is off by default")

	// Before simplification the surface volume tracks the voxel count.
	rep, _ := res.Report(diag.StageRepair)
	assert.InEpsilon(t, res.GridVolume, rep.Quality.Volume, 0.05)
	for _, w := range res.Warnings {
		assert.NotEqual(t, diag.CodeVolumeDrift, w.Code)
	}
	assert.Less(t, res.Simplify.After, res.Simplify.Before)
	assert.Same(t, res.Mesh, res.LastValid)
}

func TestEnclosedVoid(t *testing.T) {
	g := grid(t, [3]int{5, 5, 5}, func(x, y, z int) bool { return x != 2 || y != 2 || z != 2 })
	s := run(t, g, nil).Solid
	require.Len(t, s.Shells, 2)
	requireClosedShells(t, s)
	assert.Equal(t, solid.Outer, s.Shells[0].Role)
	assert.Equal(t, solid.Void, s.Shells[1].Role)
	assert.Equal(t, 0, s.Shells[1].Parent)
	assert.Negative(t, s.Shells[1].Volume)
	assert.Less(t, s.Volume(), s.Shells[0].Volume)
}

func TestDisjointRegions(t *testing.T) {
	g := grid(t, [3]int{8, 3, 3}, func(x, y, z int) bool { return x < 3 || x > 4 })
	s := run(t, g, nil).Solid
	require.Len(t, s.Shells, 2)
	requireClosedShells(t, s)
	assert.Equal(t, []int{0, 1}, s.Outers())
	for _, sh := range s.Shells {
		assert.Equal(t, -1, sh.Parent)
		assert.Positive(t, sh.Volume)
	}
}

func TestIsolatedVoxel(t *testing.T) {
	g := grid(t, [3]int{3, 3, 3}, func(x, y, z int) bool { return x == 1 && y == 1 && z == 1 })
	keep := 1.0
	res := run(t, g, &config.Config{SimplifyTargetRatio: &keep})
	s := res.Solid
	require.Len(t, s.Shells, 1)
	requireClosedShells(t, s)
	assert.Equal(t, solid.Outer, s.Shells[0].Role)
	assert.Greater(t, s.Shells[0].Volume, 0.05, "not a flat surface")
	b := s.Shells[0].Mesh.Bounds()
	assert.Equal(t, v3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, b.Min)
	assert.Equal(t, v3.Vec{X: 1.5, Y: 1.5, Z: 1.5}, b.Max)
}

func TestEmptyGrid(t *testing.T) {
	res := run(t, grid(t, [3]int{4, 4, 4}, func(x, y, z int) bool { return false }), nil)
	assert.True(t, res.Solid.IsEmpty())
	assert.True(t, res.Mesh.IsEmpty())
	assert.Empty(t, res.Reports)
}

func TestSingleLayerGrid(t *testing.T) {
	res := run(t, grid(t, [3]int{6, 6, 1}, filled), nil)
	assert.True(t, res.Solid.IsEmpty())
	assert.True(t, res.Mesh.IsEmpty())
	assert.Equal(t, 36.0, res.GridVolume)
	assert.Empty(t, res.Reports)
}

func TestConfigurationFailsFirst(t *testing.T) {
	one := 1
	cfg := &config.Config{HoleMaxEdges: &one}
	res, err := pipeline.Run(context.Background(), grid(t, [3]int{2, 2, 2}, filled), cfg, quiet)
	require.ErrorIs(t, err, diag.ErrConfiguration)
	assert.Empty(t, res.Reports)
	assert.Nil(t, res.Solid)
}

func TestGenusLimitAbortsAfterRepair(t *testing.T) {
	ring := grid(t, [3]int{5, 5, 2}, func(x, y, z int) bool {
		return z == 0 && (x == 0 || y == 0 || x == 4 || y == 4)
	})
	zero, lenient := 0, false
	res, err := pipeline.Run(context.Background(), ring, &config.Config{MaxGenus: &zero, StrictExtractionGate: &lenient}, quiet)
	require.ErrorIs(t, err, diag.ErrValidation)
	var de *diag.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, diag.StageRepair, de.Stage)
	assert.Equal(t, diag.MetricEuler, de.Metric)
	assert.Equal(t, 1, de.Count)
	assert.Nil(t, res.Solid)
	assert.Nil(t, res.LastValid)

	// The lenient extraction gate reported the same defect as a warning.
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, diag.CodeExtractionDefect, res.Warnings[0].Code)

	one := 1
	res = run(t, ring, &config.Config{MaxGenus: &one})
	require.Len(t, res.Solid.Shells, 1)
	rep, _ := res.Report(diag.StageSimplification)
	assert.Equal(t, 1, rep.MaxShellGenus)
}

func TestExtractionGateIsStrictByDefault(t *testing.T) {
	ring := grid(t, [3]int{5, 5, 2}, func(x, y, z int) bool {
		return z == 0 && (x == 0 || y == 0 || x == 4 || y == 4)
	})
	zero := 0
	res, err := pipeline.Run(context.Background(), ring, &config.Config{MaxGenus: &zero}, quiet)
	require.ErrorIs(t, err, diag.ErrValidation)
	var de *diag.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, diag.StageExtraction, de.Stage)
	assert.Equal(t, diag.MetricEuler, de.Metric)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Reports, 1)
	assert.Nil(t, res.LastValid)

	// A closed extraction passes the gate.
	cube := run(t, grid(t, [3]int{3, 3, 3}, filled), nil)
	rep, ok := cube.Report(diag.StageExtraction)
	require.True(t, ok)
	assert.Zero(t, rep.Topology.BoundaryEdges)
}

func TestSmoothingStage(t *testing.T) {
	iters := 5
	res := run(t, grid(t, [3]int{6, 6, 6}, filled), &config.Config{SmoothingIterations: &iters})
	_, ok := res.Report(diag.StageSmoothing)
	assert.True(t, ok)
	requireClosedShells(t, res.Solid)
}

func TestDeterministic(t *testing.T) {
	g := grid(t, [3]int{6, 5, 4}, func(x, y, z int) bool {
		return (x < 3 || y < 2) && !(x == 1 && y == 1 && z == 1)
	})
	a := run(t, g, nil)
	b := run(t, g, nil)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Empty(t, cmp.Diff(a.Solid, b.Solid))
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	res, err := pipeline.Run(context.Background(), grid(t, [3]int{3, 3, 3}, filled), nil,
		pipeline.Options{Logger: log.New(&buf, "", 0)})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "["+res.RunID[:8]+"] extraction:")
	assert.Contains(t, out, "reconstruction: solid(1 outer, 0 void")
}

func TestRunHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pipeline.Run(ctx, grid(t, [3]int{4, 4, 4}, filled), nil, quiet)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunBatch(t *testing.T) {
	jobs := []pipeline.Job{
		{Name: "cube", Grid: grid(t, [3]int{4, 4, 4}, filled)},
		{Name: "empty", Grid: grid(t, [3]int{2, 2, 2}, func(x, y, z int) bool { return false })},
		{Name: "missing"},
		{Name: "voxel", Grid: grid(t, [3]int{2, 2, 2}, func(x, y, z int) bool { return x+y+z == 0 })},
	}
	two := 2
	results, err := pipeline.RunBatch(context.Background(), jobs, &config.Config{Workers: &two}, quiet)
	require.NoError(t, err)
	require.Len(t, results, len(jobs))
	for i, r := range results {
		assert.Equal(t, jobs[i].Name, r.Name)
	}
	require.NoError(t, results[0].Err)
	assert.Len(t, results[0].Result.Solid.Shells, 1)
	require.NoError(t, results[1].Err)
	assert.True(t, results[1].Result.Solid.IsEmpty())
	assert.ErrorIs(t, results[2].Err, diag.ErrInvalidGrid)
	require.NoError(t, results[3].Err)
	assert.Len(t, results[3].Result.Solid.Shells, 1)

	_, err = pipeline.RunBatch(context.Background(), jobs, &config.Config{Workers: new(int)}, quiet)
	assert.NoError(t, err)
	bad := -1
	_, err = pipeline.RunBatch(context.Background(), jobs, &config.Config{Workers: &bad}, quiet)
	assert.ErrorIs(t, err, diag.ErrConfiguration)
}
