package mesh

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Quality summarises triangle shape and size over a mesh.
type Quality struct {
	Triangles       int
	MinAngleDeg     float64
	MeanMinAngle    float64
	MeanAspect      float64
	MaxAspect       float64
	MeanRadiusRatio float64
	RadiusRatioStd  float64
	MeanEdgeLength  float64
	EdgeLengthStd   float64
	Area            float64
	Volume          float64
}

// Aspects returns the aspect ratio of every triangle: longest edge over the
// shortest altitude times 2/sqrt(3), so an equilateral triangle scores 1.
// Degenerate triangles score +Inf.
func (m *Mesh) Aspects() []float64 {
	out := make([]float64, len(m.Triangles))
	for i, t := range m.Triangles {
		c := m.Corners(t)
		var longest float64
		for k := 0; k < 3; k++ {
			longest = math.Max(longest, c[k].Sub(c[(k+1)%3]).Length())
		}
		area := 0.5 * c[1].Sub(c[0]).Cross(c[2].Sub(c[0])).Length()
		if area == 0 {
			out[i] = math.Inf(1)
			continue
		}
		altitude := 2 * area / longest
		out[i] = longest / altitude * math.Sqrt(3) / 2
	}
	return out
}

// MinAngles returns the smallest interior angle of every triangle, in degrees.
func (m *Mesh) MinAngles() []float64 {
	out := make([]float64, len(m.Triangles))
	for i, t := range m.Triangles {
		c := m.Corners(t)
		best := 180.0
		for k := 0; k < 3; k++ {
			u := c[(k+1)%3].Sub(c[k])
			v := c[(k+2)%3].Sub(c[k])
			lu, lv := u.Length(), v.Length()
			if lu == 0 || lv == 0 {
				best = 0
				break
			}
			cos := math.Max(-1, math.Min(1, u.Dot(v)/(lu*lv)))
			best = math.Min(best, math.Acos(cos)*180/math.Pi)
		}
		out[i] = best
	}
	return out
}

// RadiusRatios returns twice the inradius over the circumradius of every
// triangle: 1 for an equilateral triangle, 0 for a degenerate one.
func (m *Mesh) RadiusRatios() []float64 {
	out := make([]float64, len(m.Triangles))
	for i, t := range m.Triangles {
		c := m.Corners(t)
		a := c[1].Sub(c[0]).Length()
		b := c[2].Sub(c[1]).Length()
		d := c[0].Sub(c[2]).Length()
		area := 0.5 * c[1].Sub(c[0]).Cross(c[2].Sub(c[0])).Length()
		den := a * b * d * (a + b + d)
		if den == 0 {
			continue
		}
		out[i] = 16 * area * area / den
	}
	return out
}

// EdgeLengths returns the length of every triangle edge; interior edges
// appear twice.
func (m *Mesh) EdgeLengths() []float64 {
	out := make([]float64, 0, 3*len(m.Triangles))
	for _, t := range m.Triangles {
		for k := 0; k < 3; k++ {
			out = append(out, m.Vertices[t[k]].Sub(m.Vertices[t[(k+1)%3]]).Length())
		}
	}
	return out
}

// Measure computes the quality summary. An empty mesh yields a zero Quality.
func (m *Mesh) Measure() Quality {
	q := Quality{Triangles: len(m.Triangles)}
	if len(m.Triangles) == 0 {
		return q
	}
	angles := m.MinAngles()
	q.MinAngleDeg = floats.Min(angles)
	q.MeanMinAngle = stat.Mean(angles, nil)

	aspects := m.Aspects()
	finite := aspects[:0:0]
	for _, a := range aspects {
		if !math.IsInf(a, 1) {
			finite = append(finite, a)
		}
	}
	q.MaxAspect = math.Inf(1)
	if len(finite) == len(aspects) {
		q.MaxAspect = floats.Max(aspects)
	}
	if len(finite) > 0 {
		q.MeanAspect = stat.Mean(finite, nil)
	}

	ratios := m.RadiusRatios()
	if len(ratios) > 1 {
		q.MeanRadiusRatio, q.RadiusRatioStd = stat.MeanStdDev(ratios, nil)
	} else {
		q.MeanRadiusRatio = ratios[0]
	}

	edges := m.EdgeLengths()
	q.MeanEdgeLength, q.EdgeLengthStd = stat.MeanStdDev(edges, nil)
	q.Area = m.Area()
	q.Volume = m.SignedVolume()
	return q
}
