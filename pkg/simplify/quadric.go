package simplify

import (
	"github.com/chazu/voxbrep/pkg/geom"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/mat"
)

// quadric is the 4x4 symmetric error matrix of Garland and Heckbert.
type quadric = mat.SymDense

func newQuadric() *quadric { return mat.NewSymDense(4, nil) }

// addPlane accumulates the area-weighted plane of triangle abc.
func addPlane(q *quadric, a, b, c v3.Vec) {
	area := geom.Area(a, b, c)
	if area == 0 {
		return
	}
	n := geom.UnitNormal(a, b, c)
	plane := mat.NewVecDense(4, []float64{n.X, n.Y, n.Z, -n.Dot(a)})
	q.SymRankOne(q, area, plane)
}

func sum(a, b *quadric) *quadric {
	s := newQuadric()
	s.AddSym(a, b)
	return s
}

// cost evaluates v^T Q v at p.
func cost(q *quadric, p v3.Vec) float64 {
	x := mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, 1})
	return mat.Inner(x, q, x)
}

// optimum returns the position minimising q for the edge ab. When the
// upper-left block is singular, or the solution strays far from the edge,
// it falls back to the best of the midpoint and the two endpoints.
func optimum(q *quadric, a, b v3.Vec) (v3.Vec, float64) {
	A := mat.NewDense(3, 3, []float64{
		q.At(0, 0), q.At(0, 1), q.At(0, 2),
		q.At(1, 0), q.At(1, 1), q.At(1, 2),
		q.At(2, 0), q.At(2, 1), q.At(2, 2),
	})
	rhs := mat.NewVecDense(3, []float64{-q.At(0, 3), -q.At(1, 3), -q.At(2, 3)})
	var x mat.VecDense
	if err := x.SolveVec(A, rhs); err == nil {
		p := v3.Vec{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
		mid := a.Add(b).MulScalar(0.5)
		if p.Sub(mid).Length() <= b.Sub(a).Length() {
			return p, cost(q, p)
		}
	}
	best := a.Add(b).MulScalar(0.5)
	bestCost := cost(q, best)
	for _, p := range [2]v3.Vec{a, b} {
		if c := cost(q, p); c < bestCost {
			best, bestCost = p, c
		}
	}
	return best, bestCost
}
