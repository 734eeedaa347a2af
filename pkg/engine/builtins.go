package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/voxbrep/pkg/graph"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms phantom Lisp source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: half-shell -> half_shell
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}


// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpNodeRef wraps a graph.NodeID so shapes can be passed between builtins.
type sexpNodeRef struct {
	id   graph.NodeID
	kind string // builtin that created the node, for printing
	name string // human-readable name for error messages
}

func (n *sexpNodeRef) SexpString(ps *zygo.PrintState) string {
	if n.name != "" {
		return fmt.Sprintf("(%s %q)", n.kind, n.name)
	}
	return fmt.Sprintf("(%s %s)", n.kind, n.id.Short())
}
func (n *sexpNodeRef) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a graph.Vec3.
type sexpVec3 struct {
	vec graph.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value: treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toNodeRef extracts a NodeID from a sexpNodeRef.
func toNodeRef(s zygo.Sexp) (graph.NodeID, error) {
	if ref, ok := s.(*sexpNodeRef); ok {
		return ref.id, nil
	}
	return graph.ZeroID, fmt.Errorf("expected shape, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a Vec3 from a sexpVec3.
func toVec3(s zygo.Sexp) (graph.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return graph.Vec3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toDims extracts whole voxel counts from a sexpVec3.
func toDims(s zygo.Sexp) ([3]int, error) {
	v, err := toVec3(s)
	if err != nil {
		return [3]int{}, err
	}
	var dims [3]int
	for i, f := range [3]float64{v.X, v.Y, v.Z} {
		if f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
			return [3]int{}, fmt.Errorf("voxel count %g must be a positive whole number", f)
		}
		dims[i] = int(f)
	}
	return dims, nil
}

// kwFloat reads an optional numeric keyword argument.
func (pa kwArgs) kwFloat(fn, key string, dst *float64) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", fn, key, err)
	}
	*dst = f
	return nil
}

// kwVec reads an optional vec3 keyword argument. It reports whether the
// keyword was present.
func (pa kwArgs) kwVec(fn, key string, dst *graph.Vec3) (bool, error) {
	v, ok := pa.kw[key]
	if !ok {
		return false, nil
	}
	vec, err := toVec3(v)
	if err != nil {
		return false, fmt.Errorf("%s: %s: %w", fn, key, err)
	}
	*dst = vec
	return true, nil
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// shapeArgs collects shape references from positional arguments. A list or
// array argument contributes each of its elements.
func shapeArgs(fn string, args []zygo.Sexp) ([]graph.NodeID, error) {
	var ids []graph.NodeID
	for i, a := range args {
		if _, ok := a.(*sexpNodeRef); !ok {
			if items, err := sexpListToSlice(a); err == nil {
				more, err := shapeArgs(fn, items)
				if err != nil {
					return nil, err
				}
				ids = append(ids, more...)
				continue
			}
		}
		id, err := toNodeRef(a)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", fn, i+1, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// sceneBuilder adds nodes to the scene of one evaluation. Node IDs come from
// a per-evaluation counter, so equal scripts produce equal scenes.
type sceneBuilder struct {
	g     *graph.Scene
	count int
}

func (b *sceneBuilder) add(fn string, kind graph.NodeKind, data graph.NodeData, children ...graph.NodeID) *sexpNodeRef {
	b.count++
	id := graph.NewNodeID(fmt.Sprintf("%s/%d", fn, b.count))
	b.g.AddNode(&graph.Node{
		ID:       id,
		Kind:     kind,
		Children: children,
		Data:     data,
	})
	return &sexpNodeRef{id: id, kind: fn}
}

// primitive adds a shape node, wrapping it in a translation when :at is
// given, and names it when :name is given.
func (b *sceneBuilder) primitive(fn string, pa kwArgs, data graph.PrimitiveData) (zygo.Sexp, error) {
	ref := b.add(fn, graph.NodePrimitive, data)

	var at graph.Vec3
	moved, err := pa.kwVec(fn, "at", &at)
	if err != nil {
		return zygo.SexpNull, err
	}
	if moved {
		ref = b.add("translate", graph.NodeTransform, graph.TransformData{Translation: &at}, ref.id)
	}

	return b.name(fn, pa, ref)
}

// name applies :name to the node behind ref. Names are unique per scene.
func (b *sceneBuilder) name(fn string, pa kwArgs, ref *sexpNodeRef) (zygo.Sexp, error) {
	v, ok := pa.kw["name"]
	if !ok {
		return ref, nil
	}
	name, err := toString(v)
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("%s: name: %w", fn, err)
	}
	if b.g.Lookup(name) != nil {
		return zygo.SexpNull, fmt.Errorf("%s: name %q is already used", fn, name)
	}
	n := b.g.Get(ref.id)
	n.Name = name
	b.g.NameIndex[name] = n.ID
	ref.name = name
	return ref, nil
}

// boolean adds a set operation over two or more shapes.
func (b *sceneBuilder) boolean(fn string, op graph.BooleanOp, args []zygo.Sexp) (zygo.Sexp, error) {
	ids, err := shapeArgs(fn, args)
	if err != nil {
		return zygo.SexpNull, err
	}
	if len(ids) < 2 {
		return zygo.SexpNull, fmt.Errorf("%s requires at least 2 shapes, got %d", fn, len(ids))
	}
	return b.add(fn, graph.NodeBoolean, graph.BooleanData{Op: op}, ids...), nil
}

// transform adds a translation or rotation of one shape by one vector.
func (b *sceneBuilder) transform(fn string, args []zygo.Sexp, rotate bool) (zygo.Sexp, error) {
	pa := parseArgs(args)
	if len(pa.positional) != 2 {
		return zygo.SexpNull, fmt.Errorf("%s requires a shape and a vec3", fn)
	}
	id, err := toNodeRef(pa.positional[0])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("%s: shape: %w", fn, err)
	}
	vec, err := toVec3(pa.positional[1])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
	}
	td := graph.TransformData{Translation: &vec}
	if rotate {
		td = graph.TransformData{Rotation: &vec}
	}
	return b.add(fn, graph.NodeTransform, td, id), nil
}

// registerBuiltins installs all phantom DSL builtins into a zygomys
// environment. The builtins operate on the provided Scene, populating it
// during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, g *graph.Scene) {
	b := &sceneBuilder{g: g}

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}

		var c [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			c[i] = f
		}

		return &sexpVec3{vec: graph.Vec3{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (box :size (vec3 10 20 5) :at (vec3 0 0 0) :name "slab")
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		d := graph.PrimitiveData{Shape: graph.ShapeBox}
		found, err := pa.kwVec("box", "size", &d.Size)
		if err != nil {
			return zygo.SexpNull, err
		}
		if !found {
			return zygo.SexpNull, fmt.Errorf("box requires :size")
		}
		return b.primitive("box", pa, d)
	})

	// -----------------------------------------------------------------------
	// (sphere :radius 5 :at (vec3 0 0 0))
	// -----------------------------------------------------------------------
	env.AddFunction("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		d := graph.PrimitiveData{Shape: graph.ShapeSphere}
		if _, ok := pa.kw["radius"]; !ok {
			return zygo.SexpNull, fmt.Errorf("sphere requires :radius")
		}
		if err := pa.kwFloat("sphere", "radius", &d.Radius); err != nil {
			return zygo.SexpNull, err
		}
		return b.primitive("sphere", pa, d)
	})

	// -----------------------------------------------------------------------
	// (cylinder :height 10 :radius 2 :at (vec3 0 0 0))
	// -----------------------------------------------------------------------
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		d := graph.PrimitiveData{Shape: graph.ShapeCylinder}
		for _, key := range []string{"height", "radius"} {
			if _, ok := pa.kw[key]; !ok {
				return zygo.SexpNull, fmt.Errorf("cylinder requires :%s", key)
			}
		}
		if err := pa.kwFloat("cylinder", "height", &d.Height); err != nil {
			return zygo.SexpNull, err
		}
		if err := pa.kwFloat("cylinder", "radius", &d.Radius); err != nil {
			return zygo.SexpNull, err
		}
		return b.primitive("cylinder", pa, d)
	})

	// -----------------------------------------------------------------------
	// (union a b ...) (difference a b ...) (intersect a b ...)
	// -----------------------------------------------------------------------
	env.AddFunction("union", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return b.boolean("union", graph.OpUnion, args)
	})
	env.AddFunction("difference", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return b.boolean("difference", graph.OpDifference, args)
	})
	env.AddFunction("intersect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return b.boolean("intersect", graph.OpIntersection, args)
	})

	// -----------------------------------------------------------------------
	// (translate s (vec3 1 0 0)) (rotate s (vec3 0 0 90))
	// -----------------------------------------------------------------------
	env.AddFunction("translate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return b.transform("translate", args, false)
	})
	env.AddFunction("rotate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return b.transform("rotate", args, true)
	})

	// -----------------------------------------------------------------------
	// (shape "slab")
	// -----------------------------------------------------------------------
	env.AddFunction("shape", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("shape requires a name argument")
		}
		shapeName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("shape: name: %w", err)
		}
		n := g.Lookup(shapeName)
		if n == nil {
			return zygo.SexpNull, fmt.Errorf("shape: no shape named %q", shapeName)
		}
		return &sexpNodeRef{id: n.ID, kind: "shape", name: shapeName}, nil
	})

	// -----------------------------------------------------------------------
	// (grid s :dims (vec3 64 64 64) :spacing (vec3 1 1 1) :origin (vec3 0 0 0) :name "scan")
	//
	// :spacing defaults to 1 on every axis; :origin (the centre of the first
	// voxel) defaults to centring the grid on (0 0 0). The last grid wins.
	// -----------------------------------------------------------------------
	env.AddFunction("grid", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("grid requires exactly one shape")
		}
		id, err := toNodeRef(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("grid: shape: %w", err)
		}

		v, ok := pa.kw["dims"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("grid requires :dims")
		}
		gd := graph.GridData{Spacing: graph.Vec3{X: 1, Y: 1, Z: 1}}
		if gd.Dims, err = toDims(v); err != nil {
			return zygo.SexpNull, fmt.Errorf("grid: dims: %w", err)
		}
		if _, err := pa.kwVec("grid", "spacing", &gd.Spacing); err != nil {
			return zygo.SexpNull, err
		}
		gd.Origin = graph.Vec3{
			X: -gd.Spacing.X * float64(gd.Dims[0]-1) / 2,
			Y: -gd.Spacing.Y * float64(gd.Dims[1]-1) / 2,
			Z: -gd.Spacing.Z * float64(gd.Dims[2]-1) / 2,
		}
		if _, err := pa.kwVec("grid", "origin", &gd.Origin); err != nil {
			return zygo.SexpNull, err
		}

		ref := b.add("grid", graph.NodeGrid, gd, id)
		g.AddRoot(ref.id)
		return b.name("grid", pa, ref)
	})
}
