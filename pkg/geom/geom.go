// Package geom holds the small set of exact-ish geometric predicates shared
// by the mesh stages: triangle normals and areas, ray and segment hits,
// triangle/triangle intersection and point/triangle distance.
package geom

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Normal returns the unnormalised normal (b-a)x(c-a). Its length is twice the
// triangle's area.
func Normal(a, b, c v3.Vec) v3.Vec {
	return b.Sub(a).Cross(c.Sub(a))
}

// Area returns the area of triangle abc.
func Area(a, b, c v3.Vec) float64 {
	return 0.5 * Normal(a, b, c).Length()
}

// UnitNormal returns the normalised normal, or the zero vector for a
// degenerate triangle.
func UnitNormal(a, b, c v3.Vec) v3.Vec {
	n := Normal(a, b, c)
	l := n.Length()
	if l == 0 {
		return v3.Vec{}
	}
	return n.DivScalar(l)
}

// Newell returns the Newell normal of a closed polygon. It is robust for
// non-planar and concave loops.
func Newell(pts []v3.Vec) v3.Vec {
	var n v3.Vec
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		n.X += (p.Y - q.Y) * (p.Z + q.Z)
		n.Y += (p.Z - q.Z) * (p.X + q.X)
		n.Z += (p.X - q.X) * (p.Y + q.Y)
	}
	return n
}

// Bounds returns the axis-aligned box around pts.
func Bounds(pts ...v3.Vec) sdf.Box3 {
	b := sdf.Box3{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		b.Min = b.Min.Min(p)
		b.Max = b.Max.Max(p)
	}
	return b
}

// Diagonal returns the length of a box's diagonal.
func Diagonal(b sdf.Box3) float64 {
	return b.Max.Sub(b.Min).Length()
}

// BoxesOverlap reports whether two boxes intersect after growing both by pad.
func BoxesOverlap(a, b sdf.Box3, pad float64) bool {
	return a.Min.X-pad <= b.Max.X && b.Min.X-pad <= a.Max.X &&
		a.Min.Y-pad <= b.Max.Y && b.Min.Y-pad <= a.Max.Y &&
		a.Min.Z-pad <= b.Max.Z && b.Min.Z-pad <= a.Max.Z
}

// RayTriangle intersects the ray o + t*d with triangle abc using the
// Moller-Trumbore method. It reports the ray parameter and whether the hit is
// in front of the origin. Hits on the triangle's boundary count.
func RayTriangle(o, d, a, b, c v3.Vec) (float64, bool) {
	const eps = 1e-12
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := d.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < eps {
		return 0, false
	}
	inv := 1 / det
	s := o.Sub(a)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := d.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t <= eps {
		return 0, false
	}
	return t, true
}

// SegmentCrossesTriangle reports whether segment pq passes through the
// interior of triangle abc. Touching at an endpoint, an edge or a vertex
// within tol (in barycentric and segment parameter units) does not count.
func SegmentCrossesTriangle(p, q, a, b, c v3.Vec, tol float64) bool {
	d := q.Sub(p)
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	h := d.Cross(e2)
	det := e1.Dot(h)
	scale := d.Length() * e1.Length() * e2.Length()
	if scale == 0 || math.Abs(det) <= 1e-12*scale {
		return false
	}
	inv := 1 / det
	s := p.Sub(a)
	u := s.Dot(h) * inv
	if u <= tol || u >= 1-tol {
		return false
	}
	r := s.Cross(e1)
	v := d.Dot(r) * inv
	if v <= tol || u+v >= 1-tol {
		return false
	}
	t := e2.Dot(r) * inv
	return t > tol && t < 1-tol
}

// TrianglesIntersect reports whether two triangles intersect anywhere other
// than at the vertices they share. Shared vertices are identified by index:
// sa[i] == sb[j] means vertex i of t1 and vertex j of t2 are the same point.
func TrianglesIntersect(t1, t2 [3]v3.Vec, sa, sb [3]int) bool {
	const tol = 1e-9
	shared := 0
	for _, i := range sa {
		for _, j := range sb {
			if i == j {
				shared++
			}
		}
	}
	n1 := UnitNormal(t1[0], t1[1], t1[2])
	n2 := UnitNormal(t2[0], t2[1], t2[2])
	switch shared {
	case 3:
		return true
	case 2:
		// Two faces on one edge only collide when folded onto each other.
		return n1.Dot(n2) < -1+1e-9
	}
	if coplanar(t1, n1, t2) {
		return coplanarOverlap(t1, t2, n1, sa, sb)
	}
	for i := 0; i < 3; i++ {
		if SegmentCrossesTriangle(t1[i], t1[(i+1)%3], t2[0], t2[1], t2[2], tol) {
			return true
		}
		if SegmentCrossesTriangle(t2[i], t2[(i+1)%3], t1[0], t1[1], t1[2], tol) {
			return true
		}
	}
	return false
}

func coplanar(t1 [3]v3.Vec, n1 v3.Vec, t2 [3]v3.Vec) bool {
	if n1.Length2() == 0 {
		return false
	}
	scale := math.Max(Diagonal(Bounds(t1[0], t1[1], t1[2])), Diagonal(Bounds(t2[0], t2[1], t2[2])))
	for _, p := range t2 {
		if math.Abs(p.Sub(t1[0]).Dot(n1)) > 1e-9*scale {
			return false
		}
	}
	return true
}

// coplanarOverlap tests two coplanar triangles in the plane's dominant
// projection. Proper edge crossings, a centroid or a vertex strictly inside
// the other triangle count as overlap.
func coplanarOverlap(t1, t2 [3]v3.Vec, n v3.Vec, sa, sb [3]int) bool {
	i, j := DropAxis(n)
	var p, q [3][2]float64
	for k := 0; k < 3; k++ {
		p[k] = [2]float64{get(t1[k], i), get(t1[k], j)}
		q[k] = [2]float64{get(t2[k], i), get(t2[k], j)}
	}
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			if segmentsCross2(p[a], p[(a+1)%3], q[b], q[(b+1)%3]) {
				return true
			}
		}
	}
	if strictlyInside2(centroid2(p), q) || strictlyInside2(centroid2(q), p) {
		return true
	}
	for k := 0; k < 3; k++ {
		if !contains(sb, sa[k]) && strictlyInside2(p[k], q) {
			return true
		}
		if !contains(sa, sb[k]) && strictlyInside2(q[k], p) {
			return true
		}
	}
	return false
}

func centroid2(t [3][2]float64) [2]float64 {
	return [2]float64{(t[0][0] + t[1][0] + t[2][0]) / 3, (t[0][1] + t[1][1] + t[2][1]) / 3}
}

func contains(s [3]int, v int) bool {
	return s[0] == v || s[1] == v || s[2] == v
}

// DropAxis returns the two coordinate axes that remain when projecting along
// the dominant component of n.
func DropAxis(n v3.Vec) (int, int) {
	ax, ay, az := math.Abs(n.X), math.Abs(n.Y), math.Abs(n.Z)
	switch {
	case ax >= ay && ax >= az:
		return 1, 2
	case ay >= az:
		return 2, 0
	default:
		return 0, 1
	}
}

func get(v v3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}

// Orient2 returns twice the signed area of the 2D triangle abc.
func Orient2(a, b, c [2]float64) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func segmentsCross2(a, b, c, d [2]float64) bool {
	scale := math.Abs(b[0]-a[0]) + math.Abs(b[1]-a[1]) + math.Abs(d[0]-c[0]) + math.Abs(d[1]-c[1])
	eps := 1e-12 * scale * scale
	d1 := Orient2(c, d, a)
	d2 := Orient2(c, d, b)
	d3 := Orient2(a, b, c)
	d4 := Orient2(a, b, d)
	return ((d1 > eps && d2 < -eps) || (d1 < -eps && d2 > eps)) &&
		((d3 > eps && d4 < -eps) || (d3 < -eps && d4 > eps))
}

func strictlyInside2(p [2]float64, t [3][2]float64) bool {
	area := Orient2(t[0], t[1], t[2])
	if area == 0 {
		return false
	}
	eps := 1e-12 * math.Abs(area)
	s := math.Copysign(1, area)
	for k := 0; k < 3; k++ {
		if s*Orient2(t[k], t[(k+1)%3], p) <= eps {
			return false
		}
	}
	return true
}

// PointInTriangle2 reports whether p lies inside or on the 2D triangle t.
func PointInTriangle2(p [2]float64, t [3][2]float64) bool {
	area := Orient2(t[0], t[1], t[2])
	s := math.Copysign(1, area)
	for k := 0; k < 3; k++ {
		if s*Orient2(t[k], t[(k+1)%3], p) < 0 {
			return false
		}
	}
	return true
}

// Project maps a 3D point into the plane spanned by axes i and j.
func Project(p v3.Vec, i, j int) [2]float64 {
	return [2]float64{get(p, i), get(p, j)}
}

// PointTriangleDistance returns the distance from p to the closest point of
// triangle abc.
func PointTriangleDistance(p, a, b, c v3.Vec) float64 {
	return p.Sub(ClosestPoint(p, a, b, c)).Length()
}

// ClosestPoint returns the point of triangle abc nearest to p, following the
// Voronoi region walk from Ericson's Real-Time Collision Detection.
func ClosestPoint(p, a, b, c v3.Vec) v3.Vec {
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)
	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}
	bp := p.Sub(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return a.Add(ab.MulScalar(d1 / (d1 - d3)))
	}
	cp := p.Sub(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return a.Add(ac.MulScalar(d2 / (d2 - d6)))
	}
	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		return b.Add(c.Sub(b).MulScalar((d4 - d3) / ((d4 - d3) + (d5 - d6))))
	}
	denom := va + vb + vc
	if denom == 0 {
		// Degenerate triangle: fall back to the nearest vertex.
		best := a
		for _, q := range []v3.Vec{b, c} {
			if p.Sub(q).Length2() < p.Sub(best).Length2() {
				best = q
			}
		}
		return best
	}
	v := vb / denom
	w := vc / denom
	return a.Add(ab.MulScalar(v)).Add(ac.MulScalar(w))
}
