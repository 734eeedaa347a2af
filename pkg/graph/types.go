package graph

import (
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/google/uuid"
)

// NodeID is a content-addressed identifier for graph nodes.
type NodeID string

// ZeroID is the empty node ID.
const ZeroID NodeID = ""

// nodeNamespace scopes name-based node IDs.
var nodeNamespace = uuid.MustParse("7d0c2a8e-5b8f-4f53-9c1e-2b6a1f0d3e44")

// NewNodeID derives a stable ID from a node path such as "sphere/3".
// Equal paths give equal IDs across evaluations.
func NewNodeID(path string) NodeID {
	return NodeID(uuid.NewSHA1(nodeNamespace, []byte(path)).String())
}

// Short returns the first eight characters of the ID.
func (id NodeID) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}

// IsZero reports whether id is empty.
func (id NodeID) IsZero() bool {
	return id == ZeroID
}

// Vec3 is a point or direction in scene units.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// IsZero reports whether every component is zero.
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Vec converts v to the sdfx vector type.
func (v Vec3) Vec() v3.Vec {
	return v3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%g %g %g)", v.X, v.Y, v.Z)
}
