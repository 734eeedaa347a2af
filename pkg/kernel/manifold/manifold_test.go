//go:build manifold

package manifold

import (
	"math"
	"testing"

	"github.com/chazu/voxbrep/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

func mustNew(t *testing.T) kernel.Kernel {
	t.Helper()
	k, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return k
}

func TestBox(t *testing.T) {
	k := mustNew(t)
	min, max := k.Box(10, 20, 30).BoundingBox()

	// Box is centered, so bounds are symmetric.
	wantMin := [3]float64{-5, -10, -15}
	wantMax := [3]float64{5, 10, 15}
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-wantMin[i]) > 1e-6 {
			t.Errorf("min[%d] = %f, want %f", i, min[i], wantMin[i])
		}
		if math.Abs(max[i]-wantMax[i]) > 1e-6 {
			t.Errorf("max[%d] = %f, want %f", i, max[i], wantMax[i])
		}
	}
}

func TestCylinder(t *testing.T) {
	k := mustNew(t)
	min, max := k.Cylinder(20, 5, 32).BoundingBox()
	if math.Abs(min[2]+10) > 0.01 || math.Abs(max[2]-10) > 0.01 {
		t.Errorf("z bounds = [%f, %f], want [-10, 10]", min[2], max[2])
	}
	if math.Abs(max[0]-5) > 0.01 {
		t.Errorf("max x = %f, want 5", max[0])
	}
}

func TestInside(t *testing.T) {
	k := mustNew(t)
	hollow := k.Difference(k.Sphere(8), k.Sphere(4))
	moved := k.Translate(hollow, 20, 0, 0)

	tests := []struct {
		name string
		s    kernel.Solid
		p    v3.Vec
		want bool
	}{
		{"wall", hollow, v3.Vec{X: 6}, true},
		{"cavity", hollow, v3.Vec{}, false},
		{"outside", hollow, v3.Vec{X: 9}, false},
		{"moved wall", moved, v3.Vec{X: 26}, true},
		{"moved away", moved, v3.Vec{X: 6}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Inside(tt.p); got != tt.want {
				t.Errorf("Inside(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestToMeshClosed(t *testing.T) {
	k := mustNew(t)
	m, err := k.ToMesh(k.Union(k.Box(4, 4, 4), k.Translate(k.Box(4, 4, 4), 2, 2, 2)))
	if err != nil {
		t.Fatalf("ToMesh: %v", err)
	}
	if m.IsEmpty() {
		t.Fatal("expected non-empty mesh")
	}
	if len(m.Normals) != len(m.Vertices) {
		t.Fatalf("normals length = %d, want %d", len(m.Normals), len(m.Vertices))
	}

	topo := m.Indexed().Analyze()
	if !topo.Closed() || !topo.Manifold() {
		t.Errorf("mesh should be closed and manifold: %+v", topo)
	}
	if topo.Components != 1 {
		t.Errorf("components = %d, want 1", topo.Components)
	}
}

func TestVoxelize(t *testing.T) {
	k := mustNew(t)
	g, err := kernel.Voxelize(k.Box(4, 4, 4), [3]int{6, 6, 6}, v3.Vec{X: 1, Y: 1, Z: 1}, v3.Vec{X: -2.5, Y: -2.5, Z: -2.5})
	if err != nil {
		t.Fatalf("Voxelize: %v", err)
	}
	// Centres at -1.5..1.5 on each axis fall inside.
	if n := g.Occupied(); n != 64 {
		t.Errorf("occupied = %d, want 64", n)
	}
}
