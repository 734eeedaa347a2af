// Package smooth relaxes blocky extraction surfaces with Taubin's
// lambda/mu filter. Connectivity never changes, so a watertight input stays
// watertight; only vertex positions move.
package smooth

import (
	"context"

	"github.com/chazu/voxbrep/pkg/diag"
	"github.com/chazu/voxbrep/pkg/mesh"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Options configures Taubin smoothing.
type Options struct {
	Iterations int
	Lambda     float64 // shrink step, in (0, 1)
	Mu         float64 // inflate step, in (-1, 0) with |Mu| > Lambda
}

// Validate checks the factors.
func (o Options) Validate() error {
	switch {
	case o.Iterations < 0:
		return diag.Errorf(diag.CodeConfiguration, diag.StageSmoothing, "iterations must be non-negative, got %d", o.Iterations)
	case o.Lambda <= 0 || o.Lambda >= 1:
		return diag.Errorf(diag.CodeConfiguration, diag.StageSmoothing, "lambda must be in (0, 1), got %g", o.Lambda)
	case o.Mu <= -1 || o.Mu >= 0:
		return diag.Errorf(diag.CodeConfiguration, diag.StageSmoothing, "mu must be in (-1, 0), got %g", o.Mu)
	case -o.Mu <= o.Lambda:
		return diag.Errorf(diag.CodeConfiguration, diag.StageSmoothing, "|mu| must exceed lambda (%g <= %g)", -o.Mu, o.Lambda)
	}
	return nil
}

// Taubin returns a smoothed copy of m.
func Taubin(ctx context.Context, m *mesh.Mesh, opts Options) (*mesh.Mesh, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	out := m.Clone()
	if opts.Iterations == 0 || out.IsEmpty() {
		return out, nil
	}
	rings := Neighbours(out)
	scratch := make([]v3.Vec, len(out.Vertices))
	for it := 0; it < opts.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step(out.Vertices, scratch, rings, opts.Lambda)
		step(out.Vertices, scratch, rings, opts.Mu)
	}
	return out, nil
}

// step moves every vertex by factor times its umbrella vector.
func step(pos, scratch []v3.Vec, rings [][]int, factor float64) {
	for i, ring := range rings {
		if len(ring) == 0 {
			scratch[i] = pos[i]
			continue
		}
		var sum v3.Vec
		for _, j := range ring {
			sum = sum.Add(pos[j])
		}
		avg := sum.DivScalar(float64(len(ring)))
		scratch[i] = pos[i].Add(avg.Sub(pos[i]).MulScalar(factor))
	}
	copy(pos, scratch)
}

// Neighbours returns the 1-ring of every vertex in a deterministic order.
// Unreferenced vertices get an empty ring.
func Neighbours(m *mesh.Mesh) [][]int {
	rings := make([][]int, len(m.Vertices))
	for _, e := range mesh.SortedEdges(m.EdgeMap()) {
		rings[e.A] = append(rings[e.A], e.B)
		rings[e.B] = append(rings[e.B], e.A)
	}
	return rings
}
