package graph

import (
	"errors"
	"fmt"

	"github.com/chazu/voxbrep/pkg/kernel"
	"github.com/chazu/voxbrep/pkg/voxel"
)

// ErrNoGrid is returned by Voxelize when the scene has no grid root.
var ErrNoGrid = errors.New("graph: scene has no grid")

// builder walks the scene once, sharing solids between nodes that are
// referenced more than once.
type builder struct {
	g     *Scene
	k     kernel.Kernel
	built map[NodeID]kernel.Solid
}

// Build turns the subtree rooted at id into a kernel solid. The scene must
// already be valid; Build reports structural problems it meets but does not
// detect cycles.
func Build(g *Scene, k kernel.Kernel, id NodeID) (kernel.Solid, error) {
	b := &builder{g: g, k: k, built: make(map[NodeID]kernel.Solid)}
	return b.walk(id)
}

// Voxelize samples the child of the scene's last grid root.
func Voxelize(g *Scene, k kernel.Kernel) (*voxel.Grid, error) {
	n := g.Grid()
	if n == nil {
		return nil, ErrNoGrid
	}
	gd, ok := n.Data.(GridData)
	if !ok || len(n.Children) != 1 {
		return nil, fmt.Errorf("graph: grid node %s is malformed", n.ID.Short())
	}
	s, err := Build(g, k, n.Children[0])
	if err != nil {
		return nil, err
	}
	return kernel.Voxelize(s, gd.Dims, gd.Spacing.Vec(), gd.Origin.Vec())
}

func (b *builder) walk(id NodeID) (kernel.Solid, error) {
	if s, ok := b.built[id]; ok {
		return s, nil
	}
	n := b.g.Get(id)
	if n == nil {
		return nil, fmt.Errorf("graph: node %s does not exist", id.Short())
	}

	var (
		s   kernel.Solid
		err error
	)
	switch n.Kind {
	case NodePrimitive:
		s, err = b.primitive(n)
	case NodeBoolean:
		s, err = b.boolean(n)
	case NodeTransform:
		s, err = b.transform(n)
	default:
		err = fmt.Errorf("graph: %s node %s cannot be built as a shape", n.Kind, id.Short())
	}
	if err != nil {
		return nil, err
	}
	b.built[id] = s
	return s, nil
}

func (b *builder) primitive(n *Node) (kernel.Solid, error) {
	d, ok := n.Data.(PrimitiveData)
	if !ok {
		return nil, fmt.Errorf("graph: primitive node %s has unexpected data type %T", n.ID.Short(), n.Data)
	}
	switch d.Shape {
	case ShapeBox:
		return b.k.Box(d.Size.X, d.Size.Y, d.Size.Z), nil
	case ShapeSphere:
		return b.k.Sphere(d.Radius), nil
	case ShapeCylinder:
		return b.k.Cylinder(d.Height, d.Radius, 0), nil
	}
	return nil, fmt.Errorf("graph: primitive node %s has unknown shape %s", n.ID.Short(), d.Shape)
}

func (b *builder) boolean(n *Node) (kernel.Solid, error) {
	d, ok := n.Data.(BooleanData)
	if !ok {
		return nil, fmt.Errorf("graph: boolean node %s has unexpected data type %T", n.ID.Short(), n.Data)
	}
	if len(n.Children) < 2 {
		return nil, fmt.Errorf("graph: %s node %s needs at least 2 children", d.Op, n.ID.Short())
	}
	acc, err := b.walk(n.Children[0])
	if err != nil {
		return nil, err
	}
	for _, cid := range n.Children[1:] {
		c, err := b.walk(cid)
		if err != nil {
			return nil, err
		}
		switch d.Op {
		case OpUnion:
			acc = b.k.Union(acc, c)
		case OpDifference:
			acc = b.k.Difference(acc, c)
		case OpIntersection:
			acc = b.k.Intersection(acc, c)
		default:
			return nil, fmt.Errorf("graph: boolean node %s has unknown op %s", n.ID.Short(), d.Op)
		}
	}
	return acc, nil
}

// transform applies rotation first, then translation.
func (b *builder) transform(n *Node) (kernel.Solid, error) {
	d, ok := n.Data.(TransformData)
	if !ok {
		return nil, fmt.Errorf("graph: transform node %s has unexpected data type %T", n.ID.Short(), n.Data)
	}
	if len(n.Children) != 1 {
		return nil, fmt.Errorf("graph: transform node %s needs exactly 1 child", n.ID.Short())
	}
	s, err := b.walk(n.Children[0])
	if err != nil {
		return nil, err
	}
	if r := d.Rotation; r != nil && !r.IsZero() {
		s = b.k.Rotate(s, r.X, r.Y, r.Z)
	}
	if t := d.Translation; t != nil && !t.IsZero() {
		s = b.k.Translate(s, t.X, t.Y, t.Z)
	}
	return s, nil
}
