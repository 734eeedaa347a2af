package extract

import (
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Corner c of a cell sits at voxel offset (c&1, c>>1&1, c>>2&1).
// Edges join corners that differ in exactly one bit.

type cellEdge struct {
	a, b int // corners, a < b
	axis int
}

var (
	edges     [12]cellEdge
	edgeIndex [8][8]int

	// triTable[mode][config] lists triangles as cell edge triples, wound
	// outward.
	triTable [2][256][][3]uint8
)

func init() {
	for i := range edgeIndex {
		for j := range edgeIndex[i] {
			edgeIndex[i][j] = -1
		}
	}
	n := 0
	for c := 0; c < 8; c++ {
		for axis := 0; axis < 3; axis++ {
			if c&(1<<axis) != 0 {
				continue
			}
			d := c | 1<<axis
			edges[n] = cellEdge{a: c, b: d, axis: axis}
			edgeIndex[c][d] = n
			edgeIndex[d][c] = n
			n++
		}
	}
	for mode := range triTable {
		for config := 0; config < 256; config++ {
			triTable[mode][config] = buildCase(uint8(config), TieBreak(mode))
		}
	}
}

func cornerPos(c int) v3.Vec {
	return v3.Vec{X: float64(c & 1), Y: float64(c >> 1 & 1), Z: float64(c >> 2 & 1)}
}

func edgeMid(e int) v3.Vec {
	return cornerPos(edges[e].a).Add(cornerPos(edges[e].b)).MulScalar(0.5)
}

// face lists a cell face's corners in cyclic order and its outward normal.
type face struct {
	corners [4]int
	normal  v3.Vec
}

func cellFaces() []face {
	var faces []face
	for axis := 0; axis < 3; axis++ {
		b, c := (axis+1)%3, (axis+2)%3
		for side := 0; side < 2; side++ {
			var f face
			for k, uv := range [4][2]int{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
				f.corners[k] = side<<axis | uv[0]<<b | uv[1]<<c
			}
			n := [3]float64{}
			n[axis] = float64(2*side - 1)
			f.normal = v3.Vec{X: n[0], Y: n[1], Z: n[2]}
			faces = append(faces, f)
		}
	}
	return faces
}

// buildCase derives the triangles for one corner configuration. Each cell
// face contributes oriented segments between crossed edge midpoints so that
// normal x direction points at the empty side; the segments chain into closed
// loops which are fanned into triangles.
func buildCase(config uint8, mode TieBreak) [][3]uint8 {
	occupied := func(c int) bool { return config&(1<<c) != 0 }
	next := [12]int{}
	for i := range next {
		next[i] = -1
	}

	for _, f := range cellFaces() {
		var crossed []int // face slot k spans corners k and k+1
		for k := 0; k < 4; k++ {
			if occupied(f.corners[k]) != occupied(f.corners[(k+1)%4]) {
				crossed = append(crossed, k)
			}
		}
		var pairs [][2]int
		switch len(crossed) {
		case 2:
			pairs = append(pairs, [2]int{crossed[0], crossed[1]})
		case 4:
			// Checkerboard face: cut off the corners of one class.
			for k := 0; k < 4; k++ {
				if occupied(f.corners[k]) == (mode == Separate) {
					pairs = append(pairs, [2]int{(k + 3) % 4, k})
				}
			}
		}
		for _, p := range pairs {
			ea := edgeIndex[f.corners[p[0]]][f.corners[(p[0]+1)%4]]
			eb := edgeIndex[f.corners[p[1]]][f.corners[(p[1]+1)%4]]
			ref := f.corners[0]
			if (p[1]-p[0]+4)%4 == 1 {
				ref = f.corners[p[1]]
			} else if (p[0]-p[1]+4)%4 == 1 {
				ref = f.corners[p[0]]
			}
			ma, mb := edgeMid(ea), edgeMid(eb)
			mid := ma.Add(mb).MulScalar(0.5)
			side := f.normal.Cross(mb.Sub(ma)).Dot(cornerPos(ref).Sub(mid))
			if (side > 0) == occupied(ref) {
				ea, eb = eb, ea
			}
			next[ea] = eb
		}
	}

	var tris [][3]uint8
	visited := [12]bool{}
	for start := 0; start < 12; start++ {
		if next[start] < 0 || visited[start] {
			continue
		}
		var loop []int
		for e := start; !visited[e]; e = next[e] {
			visited[e] = true
			loop = append(loop, e)
		}
		tris = append(tris, fan(loop)...)
	}
	return tris
}

// fan triangulates a loop from the apex that maximises the smallest
// triangle area; ties go to the earliest apex. A triangle lying in a cell face
// scores zero because the neighbouring cell would emit its mirror image.
func fan(loop []int) [][3]uint8 {
	n := len(loop)
	best, bestArea := 0, -1.0
	for a := 0; a < n; a++ {
		worst := -1.0
		for i := 1; i < n-1; i++ {
			p := edgeMid(loop[a])
			q := edgeMid(loop[(a+i)%n])
			r := edgeMid(loop[(a+i+1)%n])
			area := q.Sub(p).Cross(r.Sub(p)).Length()
			if onCellFace(p, q, r) {
				area = 0
			}
			if worst < 0 || area < worst {
				worst = area
			}
		}
		if worst > bestArea+1e-12 {
			best, bestArea = a, worst
		}
	}
	tris := make([][3]uint8, 0, n-2)
	for i := 1; i < n-1; i++ {
		tris = append(tris, [3]uint8{
			uint8(loop[best]),
			uint8(loop[(best+i)%n]),
			uint8(loop[(best+i+1)%n]),
		})
	}
	return tris
}

func onCellFace(p, q, r v3.Vec) bool {
	same := func(a, b, c float64) bool { return a == b && b == c && (a == 0 || a == 1) }
	return same(p.X, q.X, r.X) || same(p.Y, q.Y, r.Y) || same(p.Z, q.Z, r.Z)
}
