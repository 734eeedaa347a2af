package sdfx

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/voxbrep/pkg/kernel"
	"github.com/chazu/voxbrep/pkg/mesh/meshtest"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

func checkBounds(t *testing.T, s kernel.Solid, expectMin, expectMax [3]float64, tol float64) {
	t.Helper()
	min, max := s.BoundingBox()
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-expectMin[i]) > tol {
			t.Errorf("min[%d] = %f, expected ~%f", i, min[i], expectMin[i])
		}
		if math.Abs(max[i]-expectMax[i]) > tol {
			t.Errorf("max[%d] = %f, expected ~%f", i, max[i], expectMax[i])
		}
	}
}

func TestBoundingBox(t *testing.T) {
	k := New()
	checkBounds(t, k.Box(100, 50, 25), [3]float64{-50, -25, -12.5}, [3]float64{50, 25, 12.5}, 0.01)
}

func TestTranslate(t *testing.T) {
	k := New()
	translated := k.Translate(k.Box(10, 10, 10), 100, 200, 300)
	checkBounds(t, translated, [3]float64{95, 195, 295}, [3]float64{105, 205, 305}, 0.5)
}

func TestRotate(t *testing.T) {
	k := New()

	// A long box along X rotated 90 degrees around Z extends along Y instead.
	min, max := k.Rotate(k.Box(100, 10, 10), 0, 0, 90).BoundingBox()

	if dx := max[0] - min[0]; math.Abs(dx-10) > 1 {
		t.Errorf("x extent = %f, expected ~10", dx)
	}
	if dy := max[1] - min[1]; math.Abs(dy-100) > 1 {
		t.Errorf("y extent = %f, expected ~100", dy)
	}
}

func TestInside(t *testing.T) {
	k := New()
	shell := k.Difference(k.Sphere(10), k.Sphere(5))
	bar := k.Union(k.Box(20, 2, 2), k.Cylinder(20, 1, 0))

	tests := []struct {
		name  string
		solid kernel.Solid
		p     v3.Vec
		want  bool
	}{
		{"sphere centre", k.Sphere(1), v3.Vec{}, true},
		{"sphere outside", k.Sphere(1), v3.Vec{X: 1.5}, false},
		{"shell wall", shell, v3.Vec{X: 7.5}, true},
		{"shell cavity", shell, v3.Vec{}, false},
		{"union box arm", bar, v3.Vec{X: 9}, true},
		{"union cylinder arm", bar, v3.Vec{Z: 9}, true},
		{"union empty corner", bar, v3.Vec{X: 9, Z: 9}, false},
		{"intersection", k.Intersection(k.Box(10, 10, 10), k.Translate(k.Box(10, 10, 10), 5, 0, 0)), v3.Vec{X: 2.5}, true},
		{"translated sphere", k.Translate(k.Sphere(1), 10, 0, 0), v3.Vec{X: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.solid.Inside(tt.p); got != tt.want {
				t.Errorf("Inside(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestVoxelizeSphere(t *testing.T) {
	k := New()
	g, err := kernel.Voxelize(k.Sphere(4), [3]int{10, 10, 10}, v3.Vec{X: 1, Y: 1, Z: 1}, v3.Vec{X: -4.5, Y: -4.5, Z: -4.5})
	if err != nil {
		t.Fatalf("Voxelize: %v", err)
	}

	// Sphere volume 4/3*pi*64 is about 268 unit voxels.
	if n := g.Occupied(); math.Abs(float64(n)-268) > 30 {
		t.Errorf("occupied = %d, want about 268", n)
	}
	if !g.At(5, 5, 5) {
		t.Error("centre voxel should be occupied")
	}
	if g.At(0, 0, 0) {
		t.Error("corner voxel should be empty")
	}
}

func TestToMesh(t *testing.T) {
	k := New()
	m, err := k.ToMesh(k.Difference(k.Box(100, 100, 100), k.Cylinder(120, 20, 32)))
	if err != nil {
		t.Fatalf("ToMesh: %v", err)
	}
	if m.IsEmpty() {
		t.Fatal("expected non-empty mesh")
	}

	if len(m.Normals) != len(m.Vertices) {
		t.Errorf("normals length = %d, want %d", len(m.Normals), len(m.Vertices))
	}
	if len(m.Indices) != 3*m.TriangleCount() {
		t.Errorf("indices length = %d, want %d", len(m.Indices), 3*m.TriangleCount())
	}
}

func TestSTLWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cube.stl")
	cube := meshtest.UnitCube()

	if err := (STLWriter{}).WriteMesh(path, cube); err != nil {
		t.Fatalf("WriteMesh: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() <= 84 {
		t.Errorf("STL file is %d bytes, want more than the 84-byte header", info.Size())
	}

	tris := Triangles(cube)
	if len(tris) != cube.TriangleCount() {
		t.Fatalf("got %d triangles, want %d", len(tris), cube.TriangleCount())
	}
	for i, tri := range tris {
		c := cube.Corners(cube.Triangles[i])
		if tri[0] != c[0] || tri[2] != c[2] {
			t.Errorf("triangle %d = %v, want corners %v", i, *tri, c)
		}
	}
}

func TestSTLWriterEmpty(t *testing.T) {
	err := STLWriter{}.WriteMesh(filepath.Join(t.TempDir(), "x.stl"), meshtest.UnitCube().Subset(nil))
	if err == nil {
		t.Error("expected error writing an empty mesh")
	}
}
