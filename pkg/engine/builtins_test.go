package engine

import (
	"reflect"
	"testing"

	"github.com/chazu/voxbrep/pkg/graph"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(sphere :radius 4)`,
			expect: `(sphere "__kw_radius" 4)`,
		},
		{
			name:   "multiple keywords",
			input:  `(cylinder :height 10 :radius 2)`,
			expect: `(cylinder "__kw_height" 10 "__kw_radius" 2)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(def half-shell (sphere :radius 3))`,
			expect: `(def half_shell (sphere "__kw_radius" 3))`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:wall-thickness`,
			expect: `"__kw_wall-thickness"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := preprocessSource(tt.input); got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Scene construction tests
// ---------------------------------------------------------------------------

func scene(t *testing.T, source string) *graph.Scene {
	t.Helper()
	g, evalErrs, err := NewEngine().EvaluateScene(source)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if g == nil {
		t.Fatal("expected non-nil scene")
	}
	return g
}

func TestSphereWithPlacement(t *testing.T) {
	g := scene(t, `(sphere :radius 4 :at (vec3 1 2 3) :name "ball")`)

	// The primitive plus the translation that places it.
	if g.NodeCount() != 2 {
		t.Fatalf("expected 2 nodes, got %d", g.NodeCount())
	}

	ball := g.Lookup("ball")
	if ball == nil {
		t.Fatal("expected node named ball")
	}
	if ball.Kind != graph.NodeTransform {
		t.Fatalf("ball kind = %v, want transform", ball.Kind)
	}
	td := ball.Data.(graph.TransformData)
	if td.Translation == nil {
		t.Fatal("expected a translation")
	}
	if *td.Translation != (graph.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("translation = %v, want (1, 2, 3)", *td.Translation)
	}

	children := g.Children(ball)
	if len(children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(children))
	}
	want := graph.PrimitiveData{Shape: graph.ShapeSphere, Radius: 4}
	if children[0].Data != want {
		t.Errorf("child data = %+v, want %+v", children[0].Data, want)
	}
}

func TestVariableReference(t *testing.T) {
	g := scene(t, `
(def r 2.5)
(def h (* r 4))
(cylinder :height h :radius r :name "rod")
`)
	rod := g.Lookup("rod")
	if rod == nil {
		t.Fatal("expected node named rod")
	}
	want := graph.PrimitiveData{Shape: graph.ShapeCylinder, Radius: 2.5, Height: 10}
	if rod.Data != want {
		t.Errorf("rod data = %+v, want %+v", rod.Data, want)
	}
}

func TestBooleansAndTransforms(t *testing.T) {
	g := scene(t, `
(def hollow (difference (sphere :radius 8) (sphere :radius 4) (box :size (vec3 20 1 1))))
(def turned (rotate (translate hollow (vec3 2 0 0)) (vec3 0 0 90)))
(grid (union turned (list (box :size (vec3 1 1 1)) (sphere :radius 1))) :dims (vec3 24 24 24))
`)
	grid := g.Grid()
	if grid == nil {
		t.Fatal("expected a grid node")
	}
	gd := grid.Data.(graph.GridData)
	if gd.Dims != [3]int{24, 24, 24} {
		t.Errorf("dims = %v, want 24x24x24", gd.Dims)
	}
	if gd.Spacing != (graph.Vec3{X: 1, Y: 1, Z: 1}) {
		t.Errorf("spacing = %v, want unit", gd.Spacing)
	}
	if gd.Origin != (graph.Vec3{X: -11.5, Y: -11.5, Z: -11.5}) {
		t.Errorf("origin = %v, want centred on zero", gd.Origin)
	}

	union := g.Children(grid)[0]
	if union.Kind != graph.NodeBoolean {
		t.Fatalf("grid child kind = %v, want boolean", union.Kind)
	}
	if op := union.Data.(graph.BooleanData).Op; op != graph.OpUnion {
		t.Errorf("op = %v, want union", op)
	}
	if len(union.Children) != 3 {
		t.Errorf("union has %d children, want 3", len(union.Children))
	}

	turned := g.Children(union)[0]
	if turned.Kind != graph.NodeTransform {
		t.Fatalf("first union child kind = %v, want transform", turned.Kind)
	}
	rot := turned.Data.(graph.TransformData).Rotation
	if rot == nil || *rot != (graph.Vec3{Z: 90}) {
		t.Errorf("rotation = %v, want (0, 0, 90)", rot)
	}

	diff := g.Children(g.Children(turned)[0])[0]
	if op := diff.Data.(graph.BooleanData).Op; op != graph.OpDifference {
		t.Errorf("op = %v, want difference", op)
	}
	if len(diff.Children) != 3 {
		t.Errorf("difference has %d children, want 3", len(diff.Children))
	}
	if errs := graph.Validate(g); len(errs) > 0 {
		t.Errorf("unexpected validation errors: %v", errs)
	}
}

func TestShapeLookup(t *testing.T) {
	g := scene(t, `
(box :size (vec3 4 4 4) :name "block")
(grid (shape "block") :dims (vec3 8 8 8) :spacing (vec3 1 1 2) :origin (vec3 0 0 0) :name "scan")
`)
	grid := g.Grid()
	if grid == nil {
		t.Fatal("expected a grid node")
	}
	if g.Lookup("scan") != grid {
		t.Error("scan should name the grid node")
	}
	if grid.Children[0] != g.Lookup("block").ID {
		t.Error("grid should reference the block node")
	}
	gd := grid.Data.(graph.GridData)
	if gd.Spacing != (graph.Vec3{X: 1, Y: 1, Z: 2}) {
		t.Errorf("spacing = %v, want (1, 1, 2)", gd.Spacing)
	}
	if gd.Origin != (graph.Vec3{}) {
		t.Errorf("origin = %v, want zero", gd.Origin)
	}
}

func TestSceneDeterministic(t *testing.T) {
	src := `(grid (union (sphere :radius 2) (box :size (vec3 1 1 6))) :dims (vec3 8 8 8))`
	a := scene(t, src)
	b := scene(t, src)
	if !reflect.DeepEqual(a.Roots, b.Roots) {
		t.Errorf("roots differ: %v vs %v", a.Roots, b.Roots)
	}
	if a.NodeCount() != b.NodeCount() {
		t.Errorf("node counts differ: %d vs %d", a.NodeCount(), b.NodeCount())
	}
}

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"vec3 arity", `(vec3 1 2)`},
		{"vec3 non-number", `(vec3 1 "a" 3)`},
		{"box without size", `(box :at (vec3 0 0 0))`},
		{"sphere without radius", `(sphere)`},
		{"cylinder without height", `(cylinder :radius 1)`},
		{"union of one", `(union (sphere :radius 1))`},
		{"difference of number", `(difference (sphere :radius 1) 5)`},
		{"translate without vector", `(translate (sphere :radius 1))`},
		{"grid without dims", `(grid (sphere :radius 1))`},
		{"grid fractional dims", `(grid (sphere :radius 1) :dims (vec3 4.5 4 4))`},
		{"unknown shape name", `(shape "nope")`},
		{"duplicate name", `(sphere :radius 1 :name "a") (sphere :radius 2 :name "a")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, evalErrs, err := NewEngine().EvaluateScene(tt.source)
			if err != nil {
				t.Fatalf("unexpected fatal error: %v", err)
			}
			if g != nil {
				t.Error("expected nil scene on error")
			}
			if len(evalErrs) == 0 {
				t.Fatal("expected eval errors")
			}
			if evalErrs[0].Message == "" {
				t.Error("expected non-empty error message")
			}
		})
	}
}
