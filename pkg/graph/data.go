package graph

import "fmt"

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

// Shape distinguishes between primitive shapes.
type Shape int

const (
	ShapeBox      Shape = iota // axis-aligned box centred on the origin
	ShapeSphere                // sphere centred on the origin
	ShapeCylinder              // Z-aligned cylinder centred on the origin
)

func (s Shape) String() string {
	switch s {
	case ShapeBox:
		return "box"
	case ShapeSphere:
		return "sphere"
	case ShapeCylinder:
		return "cylinder"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// PrimitiveData describes an analytic shape. Size is used by boxes, Radius
// by spheres and cylinders, Height by cylinders.
type PrimitiveData struct {
	Shape  Shape   `json:"shape"`
	Size   Vec3    `json:"size,omitempty"`
	Radius float64 `json:"radius,omitempty"`
	Height float64 `json:"height,omitempty"`
}

func (PrimitiveData) nodeData() {}

// ---------------------------------------------------------------------------
// Boolean
// ---------------------------------------------------------------------------

// BooleanOp is a set operation over the node's children, applied left to right.
type BooleanOp int

const (
	OpUnion        BooleanOp = iota // any child
	OpDifference                    // first child minus every later one
	OpIntersection                  // every child
)

func (op BooleanOp) String() string {
	switch op {
	case OpUnion:
		return "union"
	case OpDifference:
		return "difference"
	case OpIntersection:
		return "intersect"
	default:
		return fmt.Sprintf("BooleanOp(%d)", int(op))
	}
}

// BooleanData combines two or more children.
type BooleanData struct {
	Op BooleanOp `json:"op"`
}

func (BooleanData) nodeData() {}

// ---------------------------------------------------------------------------
// Transform
// ---------------------------------------------------------------------------

// TransformData represents a spatial transformation applied to a child node.
// Rotation is applied before translation.
type TransformData struct {
	Translation *Vec3 `json:"translation,omitempty"`
	Rotation    *Vec3 `json:"rotation,omitempty"` // Euler angles in degrees
}

func (TransformData) nodeData() {}

// ---------------------------------------------------------------------------
// Grid
// ---------------------------------------------------------------------------

// GridData samples its child on a regular voxel lattice. Origin is the
// centre of voxel (0,0,0).
type GridData struct {
	Dims    [3]int `json:"dims"`
	Spacing Vec3   `json:"spacing"`
	Origin  Vec3   `json:"origin"`
}

func (GridData) nodeData() {}
