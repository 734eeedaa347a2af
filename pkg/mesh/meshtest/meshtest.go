// Package meshtest provides closed reference meshes for tests.
package meshtest

import (
	"math"

	"github.com/chazu/voxbrep/pkg/mesh"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Box returns an axis-aligned box from lo to hi with outward winding.
func Box(lo, hi v3.Vec) *mesh.Mesh {
	m := &mesh.Mesh{}
	for i := 0; i < 8; i++ {
		p := lo
		if i&1 != 0 {
			p.X = hi.X
		}
		if i&2 != 0 {
			p.Y = hi.Y
		}
		if i&4 != 0 {
			p.Z = hi.Z
		}
		m.Vertices = append(m.Vertices, p)
	}
	quads := [6][4]int{
		{0, 2, 3, 1}, {4, 5, 7, 6},
		{0, 1, 5, 4}, {2, 6, 7, 3},
		{0, 4, 6, 2}, {1, 3, 7, 5},
	}
	for _, q := range quads {
		m.Triangles = append(m.Triangles,
			mesh.Triangle{q[0], q[1], q[2]},
			mesh.Triangle{q[0], q[2], q[3]})
	}
	return m
}

// UnitCube returns Box((0,0,0), (1,1,1)).
func UnitCube() *mesh.Mesh {
	return Box(v3.Vec{}, v3.Vec{X: 1, Y: 1, Z: 1})
}

// Tetrahedron returns the corner tetrahedron with volume 1/6.
func Tetrahedron() *mesh.Mesh {
	return &mesh.Mesh{
		Vertices: []v3.Vec{{}, {X: 1}, {Y: 1}, {Z: 1}},
		Triangles: []mesh.Triangle{
			{0, 2, 1}, {0, 1, 3}, {0, 3, 2}, {1, 2, 3},
		},
	}
}

// Sphere returns a UV sphere of the given radius centred at c.
func Sphere(c v3.Vec, radius float64, rings, segments int) *mesh.Mesh {
	m := &mesh.Mesh{}
	m.Vertices = append(m.Vertices, c.Add(v3.Vec{Z: radius}))
	for i := 1; i < rings; i++ {
		phi := math.Pi * float64(i) / float64(rings)
		for j := 0; j < segments; j++ {
			theta := 2 * math.Pi * float64(j) / float64(segments)
			m.Vertices = append(m.Vertices, c.Add(v3.Vec{
				X: radius * math.Sin(phi) * math.Cos(theta),
				Y: radius * math.Sin(phi) * math.Sin(theta),
				Z: radius * math.Cos(phi),
			}))
		}
	}
	south := len(m.Vertices)
	m.Vertices = append(m.Vertices, c.Add(v3.Vec{Z: -radius}))

	ring := func(i, j int) int { return 1 + (i-1)*segments + (j % segments) }
	for j := 0; j < segments; j++ {
		m.Triangles = append(m.Triangles, mesh.Triangle{0, ring(1, j), ring(1, j+1)})
	}
	for i := 1; i < rings-1; i++ {
		for j := 0; j < segments; j++ {
			a, b := ring(i, j), ring(i, j+1)
			c, d := ring(i+1, j), ring(i+1, j+1)
			m.Triangles = append(m.Triangles, mesh.Triangle{a, c, d}, mesh.Triangle{a, d, b})
		}
	}
	for j := 0; j < segments; j++ {
		m.Triangles = append(m.Triangles, mesh.Triangle{south, ring(rings-1, j+1), ring(rings-1, j)})
	}
	return m
}

// Torus returns a ring torus around the z axis with major radius R and tube
// radius r.
func Torus(R, r float64, nu, nv int) *mesh.Mesh {
	m := &mesh.Mesh{}
	for i := 0; i < nu; i++ {
		u := 2 * math.Pi * float64(i) / float64(nu)
		for j := 0; j < nv; j++ {
			v := 2 * math.Pi * float64(j) / float64(nv)
			m.Vertices = append(m.Vertices, v3.Vec{
				X: (R + r*math.Cos(v)) * math.Cos(u),
				Y: (R + r*math.Cos(v)) * math.Sin(u),
				Z: r * math.Sin(v),
			})
		}
	}
	idx := func(i, j int) int { return (i%nu)*nv + j%nv }
	for i := 0; i < nu; i++ {
		for j := 0; j < nv; j++ {
			a, b := idx(i, j), idx(i+1, j)
			c, d := idx(i+1, j+1), idx(i, j+1)
			m.Triangles = append(m.Triangles, mesh.Triangle{a, b, c}, mesh.Triangle{a, c, d})
		}
	}
	if m.SignedVolume() < 0 {
		m.Flip()
	}
	return m
}

// Translate returns a copy of m shifted by d.
func Translate(m *mesh.Mesh, d v3.Vec) *mesh.Mesh {
	out := m.Clone()
	for i, p := range out.Vertices {
		out.Vertices[i] = p.Add(d)
	}
	return out
}

// Merge concatenates meshes into one, renumbering indices.
func Merge(ms ...*mesh.Mesh) *mesh.Mesh {
	out := &mesh.Mesh{}
	for _, m := range ms {
		base := len(out.Vertices)
		out.Vertices = append(out.Vertices, m.Vertices...)
		for _, t := range m.Triangles {
			out.Triangles = append(out.Triangles, mesh.Triangle{t[0] + base, t[1] + base, t[2] + base})
		}
	}
	return out
}

// Inverted returns a copy of m with every triangle's winding reversed.
func Inverted(m *mesh.Mesh) *mesh.Mesh {
	out := m.Clone()
	out.Flip()
	return out
}
