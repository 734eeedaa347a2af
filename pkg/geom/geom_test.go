package geom

import (
	"math"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
)

func vec(x, y, z float64) v3.Vec { return v3.Vec{X: x, Y: y, Z: z} }

func TestAreaAndNormal(t *testing.T) {
	a, b, c := vec(0, 0, 0), vec(2, 0, 0), vec(0, 2, 0)
	assert.InDelta(t, 2.0, Area(a, b, c), 1e-12)
	assert.Equal(t, vec(0, 0, 1), UnitNormal(a, b, c))
	assert.Equal(t, v3.Vec{}, UnitNormal(a, a, b))
}

func TestNewellMatchesPlanarNormal(t *testing.T) {
	square := []v3.Vec{vec(0, 0, 1), vec(1, 0, 1), vec(1, 1, 1), vec(0, 1, 1)}
	n := Newell(square)
	assert.InDelta(t, 0, n.X, 1e-12)
	assert.InDelta(t, 0, n.Y, 1e-12)
	assert.InDelta(t, 2, n.Z, 1e-12)
}

func TestRayTriangle(t *testing.T) {
	a, b, c := vec(0, 0, 1), vec(1, 0, 1), vec(0, 1, 1)
	tt, ok := RayTriangle(vec(0.2, 0.2, 0), vec(0, 0, 1), a, b, c)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, tt, 1e-12)

	_, ok = RayTriangle(vec(0.2, 0.2, 2), vec(0, 0, 1), a, b, c)
	assert.False(t, ok, "triangle behind the origin")

	_, ok = RayTriangle(vec(0.8, 0.8, 0), vec(0, 0, 1), a, b, c)
	assert.False(t, ok, "outside the triangle")
}

func TestTrianglesIntersect(t *testing.T) {
	flat := [3]v3.Vec{vec(0, 0, 0), vec(2, 0, 0), vec(0, 2, 0)}
	tests := []struct {
		name   string
		other  [3]v3.Vec
		sa, sb [3]int
		want   bool
	}{
		{
			name:  "piercing",
			other: [3]v3.Vec{vec(0.5, 0.5, -1), vec(0.5, 0.5, 1), vec(1.5, -1, 0.5)},
			sa:    [3]int{0, 1, 2}, sb: [3]int{3, 4, 5},
			want: true,
		},
		{
			name:  "above",
			other: [3]v3.Vec{vec(0, 0, 1), vec(2, 0, 1), vec(0, 2, 1)},
			sa:    [3]int{0, 1, 2}, sb: [3]int{3, 4, 5},
			want: false,
		},
		{
			name:  "shared edge hinge",
			other: [3]v3.Vec{vec(2, 0, 0), vec(0, 0, 0), vec(1, -1, 1)},
			sa:    [3]int{0, 1, 2}, sb: [3]int{1, 0, 5},
			want: false,
		},
		{
			name:  "shared edge folded flat",
			other: [3]v3.Vec{vec(2, 0, 0), vec(0, 0, 0), vec(1, 1, 0)},
			sa:    [3]int{0, 1, 2}, sb: [3]int{1, 0, 5},
			want: true,
		},
		{
			name:  "coplanar neighbour",
			other: [3]v3.Vec{vec(2, 0, 0), vec(2, 2, 0), vec(0, 2, 0)},
			sa:    [3]int{0, 1, 2}, sb: [3]int{1, 4, 2},
			want: false,
		},
		{
			name:  "coplanar overlap",
			other: [3]v3.Vec{vec(0.5, 0.5, 0), vec(3, 0.5, 0), vec(0.5, 3, 0)},
			sa:    [3]int{0, 1, 2}, sb: [3]int{3, 4, 5},
			want: true,
		},
		{
			name:  "touching at shared vertex",
			other: [3]v3.Vec{vec(0, 0, 0), vec(-1, 0, 1), vec(0, -1, 1)},
			sa:    [3]int{0, 1, 2}, sb: [3]int{0, 4, 5},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrianglesIntersect(flat, tt.other, tt.sa, tt.sb))
		})
	}
}

func TestClosestPoint(t *testing.T) {
	a, b, c := vec(0, 0, 0), vec(1, 0, 0), vec(0, 1, 0)
	tests := []struct {
		name string
		p    v3.Vec
		want float64
	}{
		{"above interior", vec(0.25, 0.25, 2), 2},
		{"beyond vertex", vec(-1, -1, 0), math.Sqrt2},
		{"beyond edge", vec(0.5, -3, 0), 3},
		{"beyond hypotenuse", vec(1, 1, 0), math.Sqrt2 / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PointTriangleDistance(tt.p, a, b, c), 1e-12)
		})
	}
}
