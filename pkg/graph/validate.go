package graph

import (
	"fmt"
	"math"
)

// ValidationSeverity indicates whether a validation finding blocks evaluation
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks evaluation
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	NodeID   NodeID             // which node has the problem (zero if scene-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.NodeID.IsZero() {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] node %s: %s", e.Severity, e.NodeID.Short(), e.Message)
}

// ValidationWarning describes a non-blocking advisory finding.
type ValidationWarning struct {
	NodeID  NodeID
	Message string
}

// ValidationResult bundles errors (blocking) and warnings (advisory).
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// OK reports whether no blocking error was found.
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// Validate runs every structural and geometric check on the scene and
// returns all findings. An empty slice means the scene is valid and can be
// sampled. This function is read-only and never mutates the scene.
func Validate(g *Scene) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateDAG(g)...)
	errs = append(errs, validateReferences(g)...)
	errs = append(errs, validateNames(g)...)
	errs = append(errs, validateRoots(g)...)
	errs = append(errs, validateArity(g)...)
	errs = append(errs, validateDimensions(g)...)
	errs = append(errs, validateGrids(g)...)
	return errs
}

// ValidateAll runs Validate and separates errors from warnings.
func ValidateAll(g *Scene) ValidationResult {
	var result ValidationResult
	for _, e := range Validate(g) {
		if e.Severity == SeverityWarning {
			result.Warnings = append(result.Warnings, ValidationWarning{
				NodeID:  e.NodeID,
				Message: e.Message,
			})
		} else {
			result.Errors = append(result.Errors, e)
		}
	}
	return result
}

// validateDAG checks for cycles using DFS with 3-color marking.
// White (0) = unvisited, gray (1) = in current DFS path, black (2) = fully explored.
// If we encounter a gray node during traversal, we have found a cycle.
func validateDAG(g *Scene) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	color := make(map[NodeID]int) // default zero = white
	var errs []ValidationError

	var visit func(id NodeID) bool // returns true if cycle found
	visit = func(id NodeID) bool {
		switch color[id] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  fmt.Sprintf("cycle detected: node %s is part of a cycle", id.Short()),
				Severity: SeverityError,
			})
			return true
		}

		color[id] = gray

		node, ok := g.Nodes[id]
		if !ok {
			// Dangling reference; handled by validateReferences.
			color[id] = black
			return false
		}

		for _, childID := range node.Children {
			if visit(childID) {
				return true
			}
		}

		color[id] = black
		return false
	}

	// Start DFS from every node to catch disconnected components.
	for id := range g.Nodes {
		if color[id] == white {
			if visit(id) {
				// One cycle error is sufficient; stop early.
				break
			}
		}
	}

	return errs
}

// validateReferences checks that every child reference points to a node
// that exists in g.Nodes.
func validateReferences(g *Scene) []ValidationError {
	var errs []ValidationError
	for _, node := range g.Nodes {
		for _, childID := range node.Children {
			if _, ok := g.Nodes[childID]; !ok {
				errs = append(errs, ValidationError{
					NodeID:   node.ID,
					Message:  fmt.Sprintf("child reference %s does not exist", childID.Short()),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateNames checks that the NameIndex is injective (no two nodes share the
// same name) and that every entry in NameIndex points to an existing node.
func validateNames(g *Scene) []ValidationError {
	var errs []ValidationError

	for name, id := range g.NameIndex {
		if _, ok := g.Nodes[id]; !ok {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("name index entry %q references non-existent node %s", name, id.Short()),
				Severity: SeverityError,
			})
		}
	}

	nameToNodes := make(map[string][]NodeID)
	for id, node := range g.Nodes {
		if node.Name != "" {
			nameToNodes[node.Name] = append(nameToNodes[node.Name], id)
		}
	}
	for name, ids := range nameToNodes {
		if len(ids) > 1 {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("duplicate name %q assigned to %d nodes", name, len(ids)),
				Severity: SeverityError,
			})
		}
	}

	return errs
}

// validateRoots checks that every root ID references an existing node and
// warns about shapes that no root reaches, which never affect the grid.
func validateRoots(g *Scene) []ValidationError {
	var errs []ValidationError

	for _, rid := range g.Roots {
		if _, ok := g.Nodes[rid]; !ok {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("root reference %s does not exist", rid.Short()),
				Severity: SeverityError,
			})
		}
	}

	if len(g.Nodes) == 0 {
		return errs
	}

	reachable := make(map[NodeID]bool)
	queue := make([]NodeID, 0, len(g.Roots))
	for _, rid := range g.Roots {
		if _, ok := g.Nodes[rid]; ok && !reachable[rid] {
			reachable[rid] = true
			queue = append(queue, rid)
		}
	}
	for len(queue) > 0 {
		node := g.Nodes[queue[0]]
		queue = queue[1:]
		if node == nil {
			continue
		}
		for _, childID := range node.Children {
			if !reachable[childID] {
				reachable[childID] = true
				queue = append(queue, childID)
			}
		}
	}

	for id, node := range g.Nodes {
		if !reachable[id] {
			name := node.Name
			if name == "" {
				name = id.Short()
			}
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  fmt.Sprintf("%s %q is not used by any grid", node.Kind, name),
				Severity: SeverityWarning,
			})
		}
	}

	return errs
}

// validateArity checks child counts per node kind and that grids are only
// used as roots.
func validateArity(g *Scene) []ValidationError {
	var errs []ValidationError
	for _, node := range g.Nodes {
		want := ""
		switch node.Kind {
		case NodePrimitive:
			if len(node.Children) != 0 {
				want = "no children"
			}
		case NodeBoolean:
			if len(node.Children) < 2 {
				want = "at least 2 children"
			}
		case NodeTransform, NodeGrid:
			if len(node.Children) != 1 {
				want = "exactly 1 child"
			}
		default:
			want = "a known kind"
		}
		if want != "" {
			errs = append(errs, ValidationError{
				NodeID:   node.ID,
				Message:  fmt.Sprintf("%s node has %d children, want %s", node.Kind, len(node.Children), want),
				Severity: SeverityError,
			})
		}
		for _, c := range g.Children(node) {
			if c.Kind == NodeGrid {
				errs = append(errs, ValidationError{
					NodeID:   node.ID,
					Message:  fmt.Sprintf("grid %s used as a shape", c.ID.Short()),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateDimensions checks that shape sizes and grid parameters are
// positive and finite.
func validateDimensions(g *Scene) []ValidationError {
	var errs []ValidationError
	bad := func(n *Node, format string, args ...any) {
		errs = append(errs, ValidationError{
			NodeID:   n.ID,
			Message:  fmt.Sprintf(format, args...),
			Severity: SeverityError,
		})
	}

	for _, node := range g.Nodes {
		switch d := node.Data.(type) {
		case PrimitiveData:
			switch d.Shape {
			case ShapeBox:
				if !positive(d.Size.X) || !positive(d.Size.Y) || !positive(d.Size.Z) {
					bad(node, "box size %s must be positive", d.Size)
				}
			case ShapeSphere:
				if !positive(d.Radius) {
					bad(node, "sphere radius %g must be positive", d.Radius)
				}
			case ShapeCylinder:
				if !positive(d.Radius) || !positive(d.Height) {
					bad(node, "cylinder radius %g and height %g must be positive", d.Radius, d.Height)
				}
			default:
				bad(node, "unknown shape %s", d.Shape)
			}
		case GridData:
			for axis, n := range d.Dims {
				if n <= 0 {
					bad(node, "grid dimension %d is %d, must be positive", axis, n)
				}
			}
			if !positive(d.Spacing.X) || !positive(d.Spacing.Y) || !positive(d.Spacing.Z) {
				bad(node, "grid spacing %s must be positive", d.Spacing)
			}
		}
	}
	return errs
}

// validateGrids requires at least one grid root and warns when a later grid
// supersedes earlier ones.
func validateGrids(g *Scene) []ValidationError {
	grids := g.Grids()
	if len(grids) == 0 {
		return []ValidationError{{
			Message:  "scene has no grid",
			Severity: SeverityError,
		}}
	}
	var errs []ValidationError
	for _, n := range grids[:len(grids)-1] {
		errs = append(errs, ValidationError{
			NodeID:   n.ID,
			Message:  "grid is superseded by a later grid",
			Severity: SeverityWarning,
		})
	}
	return errs
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
