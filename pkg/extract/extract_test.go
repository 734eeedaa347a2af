package extract

import (
	"context"
	"testing"

	"github.com/chazu/voxbrep/pkg/mesh"
	"github.com/chazu/voxbrep/pkg/voxel"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var unit = v3.Vec{X: 1, Y: 1, Z: 1}

func grid(t *testing.T, dims [3]int, fn func(x, y, z int) bool) *voxel.Grid {
	t.Helper()
	g, err := voxel.FromFunc(dims, unit, v3.Vec{}, fn)
	require.NoError(t, err)
	return g
}

func extract(t *testing.T, g *voxel.Grid, opts Options) *mesh.Mesh {
	t.Helper()
	e, err := New(opts)
	require.NoError(t, err)
	m, err := e.Extract(context.Background(), g)
	require.NoError(t, err)
	return m
}

func requireClosed(t *testing.T, m *mesh.Mesh) mesh.Topology {
	t.Helper()
	require.Zero(t, m.InvalidIndices())
	topo := m.Analyze()
	require.True(t, topo.Closed(), "boundary=%d nonmanifold=%d", topo.BoundaryEdges, topo.NonManifoldEdges)
	require.True(t, topo.Manifold())
	require.Zero(t, topo.InconsistentEdges)
	return topo
}

func TestTablesCloseEveryLoop(t *testing.T) {
	for mode := range triTable {
		for config := 1; config < 255; config++ {
			uses := map[[2]uint8]int{}
			for _, tri := range triTable[mode][config] {
				for k := 0; k < 3; k++ {
					uses[[2]uint8{tri[k], tri[(k+1)%3]}]++
				}
			}
			for e, n := range uses {
				assert.Equal(t, 1, n, "mode %d config %d edge %v", mode, config, e)
			}
			assert.NotEmpty(t, triTable[mode][config])
		}
		assert.Empty(t, triTable[mode][0])
		assert.Empty(t, triTable[mode][255])
	}
}

func TestComplementaryCasesMirror(t *testing.T) {
	// Away from checkerboard faces the complement of a case is the same
	// surface with the opposite winding; a single corner is the simplest.
	for c := 0; c < 8; c++ {
		single := triTable[Separate][1<<c]
		inverse := triTable[Separate][255^(1<<c)]
		require.Len(t, single, 1)
		require.Len(t, inverse, 1)
		s, i := single[0], inverse[0]
		assert.ElementsMatch(t, s[:], i[:])
		assert.NotEqual(t, s, i)
	}
}

func TestEmptyGrid(t *testing.T) {
	g := grid(t, [3]int{4, 4, 4}, func(x, y, z int) bool { return false })
	m := extract(t, g, Options{})
	assert.True(t, m.IsEmpty())
	assert.Zero(t, m.VertexCount())
}

func TestFilledCube(t *testing.T) {
	g := grid(t, [3]int{10, 10, 10}, func(x, y, z int) bool { return true })
	m := extract(t, g, Options{})
	topo := requireClosed(t, m)
	assert.Equal(t, 1, topo.Components)
	assert.Equal(t, 0, topo.Genus())

	// Edges and corners are chamfered at the voxel midpoints.
	want := 1000 - 12*9.0/8 - 8*(1.0/8-1.0/48)
	assert.InDelta(t, want, m.SignedVolume(), 1e-9)
	assert.InDelta(t, 1000, m.SignedVolume(), 0.05*1000)
}

func TestSingleVoxel(t *testing.T) {
	g := grid(t, [3]int{3, 3, 3}, func(x, y, z int) bool { return x == 1 && y == 1 && z == 1 })
	m := extract(t, g, Options{})
	requireClosed(t, m)
	assert.Equal(t, 6, m.VertexCount())
	assert.Equal(t, 8, m.TriangleCount())
	assert.InDelta(t, 1.0/6, m.SignedVolume(), 1e-12)

	b := m.Bounds()
	assert.Equal(t, v3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, b.Min)
	assert.Equal(t, v3.Vec{X: 1.5, Y: 1.5, Z: 1.5}, b.Max)
}

func TestSingleLayerGridIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		dims [3]int
	}{
		{"one voxel", [3]int{1, 1, 1}},
		{"flat z", [3]int{5, 5, 1}},
		{"flat x", [3]int{1, 4, 3}},
		{"line", [3]int{6, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := grid(t, tt.dims, func(x, y, z int) bool { return true })
			require.Equal(t, tt.dims[0]*tt.dims[1]*tt.dims[2], g.Occupied())
			m := extract(t, g, Options{})
			assert.True(t, m.IsEmpty())
			assert.Zero(t, m.VertexCount())
			assert.Zero(t, m.TriangleCount())
		})
	}
}

func TestEnclosedVoid(t *testing.T) {
	g := grid(t, [3]int{5, 5, 5}, func(x, y, z int) bool { return !(x == 2 && y == 2 && z == 2) })
	m := extract(t, g, Options{})
	topo := requireClosed(t, m)
	assert.Equal(t, 2, topo.Components)

	outer := 125 - 12*4.0/8 - 8*(1.0/8-1.0/48)
	assert.InDelta(t, outer-1.0/6, m.SignedVolume(), 1e-9)
}

func TestTieBreakModes(t *testing.T) {
	// Two voxels touching along an edge form a checkerboard face.
	g := grid(t, [3]int{2, 2, 2}, func(x, y, z int) bool { return x == y && z == 0 })

	sep := extract(t, g, Options{TieBreak: Separate})
	assert.Equal(t, 2, requireClosed(t, sep).Components)

	join := extract(t, g, Options{TieBreak: Join})
	assert.Equal(t, 1, requireClosed(t, join).Components)
	assert.Greater(t, join.SignedVolume(), sep.SignedVolume())
}

func TestNoDuplicatePositions(t *testing.T) {
	g := grid(t, [3]int{7, 6, 5}, func(x, y, z int) bool { return (x*7+y*3+z*5)%4 != 0 })
	m := extract(t, g, Options{})
	seen := map[v3.Vec]bool{}
	for _, p := range m.Vertices {
		assert.False(t, seen[p], "duplicate vertex %v", p)
		seen[p] = true
	}
	requireClosed(t, m)
}

func TestPseudoRandomGridsAreClosed(t *testing.T) {
	for _, mode := range []TieBreak{Separate, Join} {
		for seed := 1; seed <= 20; seed++ {
			state := uint32(seed)
			g := grid(t, [3]int{6, 5, 4}, func(x, y, z int) bool {
				state = state*1664525 + 1013904223
				return state>>31 == 1
			})
			m := extract(t, g, Options{TieBreak: mode})
			requireClosed(t, m)
			pairs, err := m.SelfIntersections(context.Background())
			require.NoError(t, err)
			assert.Empty(t, pairs, "mode %v seed %d", mode, seed)
		}
	}
}

func TestParallelMatchesSerial(t *testing.T) {
	g := grid(t, [3]int{9, 8, 12}, func(x, y, z int) bool {
		dx, dy, dz := x-4, y-4, z-6
		return dx*dx+dy*dy+dz*dz < 16
	})
	serial := extract(t, g, Options{Workers: 1})
	parallel := extract(t, g, Options{Workers: 5})
	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Errorf("parallel extraction differs (-serial +parallel):\n%s", diff)
	}
}

func TestSpacingAndOrigin(t *testing.T) {
	g, err := voxel.FromFunc([3]int{2, 2, 2}, v3.Vec{X: 0.5, Y: 1, Z: 2}, v3.Vec{X: 10}, func(x, y, z int) bool { return true })
	require.NoError(t, err)
	m := extract(t, g, Options{})
	requireClosed(t, m)

	b := m.Bounds()
	assert.Equal(t, v3.Vec{X: 9.75, Y: -0.5, Z: -1}, b.Min)
	assert.Equal(t, v3.Vec{X: 10.75, Y: 1.5, Z: 3}, b.Max)
	// Unit-spacing volume scales by the voxel volume.
	unitVol := 8 - 12*1.0/8 - 8*(1.0/8-1.0/48)
	assert.InDelta(t, unitVol*g.VoxelVolume(), m.SignedVolume(), 1e-9)
}

func TestExtractCancelled(t *testing.T) {
	g := grid(t, [3]int{4, 4, 4}, func(x, y, z int) bool { return true })
	e, err := New(Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Extract(ctx, g)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(Options{TieBreak: 7})
	assert.Error(t, err)
	_, err = New(Options{Workers: -1})
	assert.Error(t, err)
}
