package graph

import "fmt"

// Scene is the top-level immutable data structure produced by phantom
// evaluation. It is never mutated in place; each evaluation produces a new
// scene.
type Scene struct {
	Nodes     map[NodeID]*Node  `json:"nodes"`
	Roots     []NodeID          `json:"roots"`
	NameIndex map[string]NodeID `json:"name_index"`
}

// New creates an empty Scene.
func New() *Scene {
	return &Scene{
		Nodes:     make(map[NodeID]*Node),
		NameIndex: make(map[string]NodeID),
	}
}

// AddNode adds a node to the scene. It does not check for duplicates.
func (g *Scene) AddNode(n *Node) {
	g.Nodes[n.ID] = n
	if n.Name != "" {
		g.NameIndex[n.Name] = n.ID
	}
}

// AddRoot registers a node ID as a root of the scene.
func (g *Scene) AddRoot(id NodeID) {
	g.Roots = append(g.Roots, id)
}

// Lookup returns the node with the given user-assigned name, or nil.
func (g *Scene) Lookup(name string) *Node {
	id, ok := g.NameIndex[name]
	if !ok {
		return nil
	}
	return g.Nodes[id]
}

// MustLookup returns the node with the given name, or panics.
func (g *Scene) MustLookup(name string) *Node {
	n := g.Lookup(name)
	if n == nil {
		panic(fmt.Sprintf("graph: no node named %q", name))
	}
	return n
}

// Get returns the node with the given ID, or nil.
func (g *Scene) Get(id NodeID) *Node {
	return g.Nodes[id]
}

// Grids returns the grid roots in the order they were added.
func (g *Scene) Grids() []*Node {
	var grids []*Node
	for _, id := range g.Roots {
		if n := g.Nodes[id]; n != nil && n.Kind == NodeGrid {
			grids = append(grids, n)
		}
	}
	return grids
}

// Grid returns the last grid root, which is the one a scene is sampled
// with, or nil if there is none.
func (g *Scene) Grid() *Node {
	grids := g.Grids()
	if len(grids) == 0 {
		return nil
	}
	return grids[len(grids)-1]
}

// Children returns the child nodes of the given node.
func (g *Scene) Children(n *Node) []*Node {
	children := make([]*Node, 0, len(n.Children))
	for _, cid := range n.Children {
		if c := g.Nodes[cid]; c != nil {
			children = append(children, c)
		}
	}
	return children
}

// NodeCount returns the total number of nodes.
func (g *Scene) NodeCount() int {
	return len(g.Nodes)
}
