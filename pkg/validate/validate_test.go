package validate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/voxbrep/pkg/diag"
	"github.com/chazu/voxbrep/pkg/mesh"
	"github.com/chazu/voxbrep/pkg/mesh/meshtest"
	"github.com/chazu/voxbrep/pkg/validate"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gate(t *testing.T, maxGenus int) *validate.Gate {
	t.Helper()
	g, err := validate.New(validate.Options{MaxGenus: maxGenus})
	require.NoError(t, err)
	return g
}

func TestNewRejectsNegativeGenus(t *testing.T) {
	_, err := validate.New(validate.Options{MaxGenus: -1})
	assert.ErrorIs(t, err, diag.ErrConfiguration)
}

func TestCheckPasses(t *testing.T) {
	two := meshtest.Merge(
		meshtest.UnitCube(),
		meshtest.Translate(meshtest.Sphere(v3.Vec{}, 1, 8, 12), v3.Vec{X: 5}),
	)
	for name, m := range map[string]*mesh.Mesh{
		"cube":   meshtest.UnitCube(),
		"sphere": meshtest.Sphere(v3.Vec{}, 1, 10, 16),
		"two":    two,
		"empty":  {},
	} {
		t.Run(name, func(t *testing.T) {
			rep, err := gate(t, 0).Check(context.Background(), diag.StageRepair, m)
			require.NoError(t, err)
			assert.Equal(t, diag.StageRepair, rep.Stage)
			assert.Equal(t, m.TriangleCount(), rep.Triangles)
			assert.Zero(t, rep.MaxShellGenus)
		})
	}
}

func TestCheckFailures(t *testing.T) {
	open := meshtest.UnitCube()
	open.Triangles = open.Triangles[1:]

	flipped := meshtest.UnitCube()
	f := flipped.Triangles[0]
	flipped.Triangles[0] = mesh.Triangle{f[0], f[2], f[1]}

	crossing := meshtest.Merge(
		meshtest.UnitCube(),
		meshtest.Translate(meshtest.UnitCube(), v3.Vec{X: 0.5, Y: 0.5, Z: 0.5}),
	)

	bad := meshtest.UnitCube()
	bad.Triangles[0][0] = 99

	fin := meshtest.UnitCube()
	fin.Vertices = append(fin.Vertices, v3.Vec{X: 0.5, Y: -1, Z: 0.5})
	fin.Triangles = append(fin.Triangles, mesh.Triangle{0, 1, 8}, mesh.Triangle{1, 0, 8})

	cases := []struct {
		name   string
		mesh   *mesh.Mesh
		metric diag.Metric
		count  int
	}{
		{"open", open, diag.MetricBoundaryEdges, 3},
		{"flipped", flipped, diag.MetricOrientation, 3},
		{"crossing", crossing, diag.MetricSelfIntersections, 0},
		{"indices", bad, diag.MetricInvalidIndices, 1},
		{"fin", fin, diag.MetricNonManifoldEdges, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gate(t, 0).Check(context.Background(), diag.StageSimplification, tc.mesh)
			require.ErrorIs(t, err, diag.ErrValidation)
			var de *diag.Error
			require.True(t, errors.As(err, &de))
			assert.Equal(t, diag.StageSimplification, de.Stage)
			assert.Equal(t, tc.metric, de.Metric)
			if tc.count > 0 {
				assert.Equal(t, tc.count, de.Count)
			} else {
				assert.Positive(t, de.Count)
			}
		})
	}
}

func TestGenusTolerance(t *testing.T) {
	torus := meshtest.Torus(3, 1, 24, 12)

	_, err := gate(t, 0).Check(context.Background(), diag.StageRepair, torus)
	require.ErrorIs(t, err, diag.ErrValidation)
	var de *diag.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, diag.MetricEuler, de.Metric)
	assert.Equal(t, 1, de.Count)

	rep, err := gate(t, 1).Check(context.Background(), diag.StageRepair, torus)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.MaxShellGenus)
}

func TestGenusPerShell(t *testing.T) {
	// A torus beside a sphere: the global Euler number hides nothing, but
	// the genus is still judged per shell.
	m := meshtest.Merge(
		meshtest.Torus(3, 1, 24, 12),
		meshtest.Translate(meshtest.Sphere(v3.Vec{}, 1, 8, 12), v3.Vec{X: 10}),
	)
	rep, err := gate(t, 1).Check(context.Background(), diag.StageRepair, m)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.MaxShellGenus)
	assert.Equal(t, 2, rep.Topology.Components)
}

func TestCheckLenient(t *testing.T) {
	open := meshtest.UnitCube()
	open.Triangles = open.Triangles[1:]

	rep, warnings, err := gate(t, 0).CheckLenient(context.Background(), diag.StageExtraction, open)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Topology.BoundaryEdges)
	require.Len(t, warnings, 1)
	assert.Equal(t, diag.CodeExtractionDefect, warnings[0].Code)
	assert.Equal(t, 3, warnings[0].Count)

	bad := meshtest.UnitCube()
	bad.Triangles[0] = mesh.Triangle{0, 0, 1}
	_, _, err = gate(t, 0).CheckLenient(context.Background(), diag.StageExtraction, bad)
	assert.ErrorIs(t, err, diag.ErrValidation)
}

func TestMeasureHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gate(t, 0).Measure(ctx, diag.StageRepair, meshtest.Sphere(v3.Vec{}, 1, 10, 16))
	assert.ErrorIs(t, err, context.Canceled)
}
