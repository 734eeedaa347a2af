package freecad

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/chazu/voxbrep/pkg/mesh"
	"github.com/chazu/voxbrep/pkg/mesh/meshtest"
	"github.com/chazu/voxbrep/pkg/solid"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hollowCube is a 4-unit cube with a 2-unit cavity.
func hollowCube() *solid.Solid {
	outer := meshtest.Box(v3.Vec{}, v3.Vec{X: 4, Y: 4, Z: 4})
	inner := meshtest.Inverted(meshtest.Box(v3.Vec{X: 1, Y: 1, Z: 1}, v3.Vec{X: 3, Y: 3, Z: 3}))
	return &solid.Solid{Shells: []solid.Shell{
		{Mesh: outer, Role: solid.Outer, Parent: -1, Depth: 0, Volume: 64},
		{Mesh: inner, Role: solid.Void, Parent: 0, Depth: 1, Volume: -8},
	}}
}

// fakeFreeCAD writes a shell script that stands in for freecadcmd.
func fakeFreeCAD(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "freecadcmd")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// recordingWriter remembers every mesh it is asked to write.
type recordingWriter struct {
	paths []string
}

func (w *recordingWriter) WriteMesh(path string, m *mesh.Mesh) error {
	w.paths = append(w.paths, path)
	return os.WriteFile(path, []byte(m.String()), 0o644)
}

func TestNewValidates(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"empty command", Options{Tolerance: 0.1}},
		{"zero tolerance", Options{Command: "freecadcmd"}},
		{"negative timeout", Options{Command: "freecadcmd", Tolerance: 0.1, Timeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			assert.Error(t, err)
		})
	}

	a, err := New(Options{Command: "freecadcmd", Tolerance: 0.1})
	require.NoError(t, err)
	assert.NotNil(t, a.opts.Writer)
}

func TestEnv(t *testing.T) {
	env := Env(hollowCube(), []string{"/a/s0.stl", "/a/s1.stl"}, "/o/x.brep", 0.05)

	assert.Equal(t, []string{
		"INPUT_STL_LIST=/a/s0.stl" + string(os.PathListSeparator) + "/a/s1.stl",
		"SHELL_ROLES=outer,void",
		"SHELL_PARENTS=-1,0",
		"OUTPUT_BREP=/o/x.brep",
		"CAD_TOLERANCE=0.05",
	}, env)
}

func TestAssemble(t *testing.T) {
	cmd := fakeFreeCAD(t, `
test -f "$1" || { echo "missing script $1"; exit 2; }
grep -q exportBrep "$1" || { echo "not the converter"; exit 2; }
printf '%s\n%s\n%s\n' "$SHELL_ROLES" "$SHELL_PARENTS" "$CAD_TOLERANCE" > "$OUTPUT_BREP"
`)
	w := &recordingWriter{}
	a, err := New(Options{Command: cmd, Tolerance: 0.25, Writer: w})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "part.brep")
	require.NoError(t, a.Assemble(context.Background(), hollowCube(), out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "outer,void\n-1,0\n0.25\n", string(data))

	require.Len(t, w.paths, 2)
	assert.True(t, strings.HasSuffix(w.paths[0], "shell-000-outer.stl"))
	assert.True(t, strings.HasSuffix(w.paths[1], "shell-001-void.stl"))

	// The scratch directory is gone once Assemble returns.
	_, err = os.Stat(filepath.Dir(w.paths[0]))
	assert.True(t, os.IsNotExist(err))
}

func TestAssembleWritesRealSTL(t *testing.T) {
	cmd := fakeFreeCAD(t, `
for f in $(echo "$INPUT_STL_LIST" | tr ':' ' '); do
  test -s "$f" || { echo "empty $f"; exit 3; }
done
touch "$OUTPUT_BREP"
`)
	if os.PathListSeparator != ':' {
		t.Skip("script splits on ':'")
	}
	a, err := New(Options{Command: cmd, Tolerance: 0.05})
	require.NoError(t, err)
	assert.NoError(t, a.Assemble(context.Background(), hollowCube(), filepath.Join(t.TempDir(), "x.brep")))
}

func TestAssembleFailureCarriesOutput(t *testing.T) {
	cmd := fakeFreeCAD(t, `echo "sewing failed on shell 1"; exit 1`)
	a, err := New(Options{Command: cmd, Tolerance: 0.05, Writer: &recordingWriter{}})
	require.NoError(t, err)

	err = a.Assemble(context.Background(), hollowCube(), filepath.Join(t.TempDir(), "x.brep"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sewing failed on shell 1")
}

func TestAssembleMissingOutput(t *testing.T) {
	cmd := fakeFreeCAD(t, `echo "done"`)
	a, err := New(Options{Command: cmd, Tolerance: 0.05, Writer: &recordingWriter{}})
	require.NoError(t, err)

	err = a.Assemble(context.Background(), hollowCube(), filepath.Join(t.TempDir(), "x.brep"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no output")
}

func TestAssembleTimeout(t *testing.T) {
	cmd := fakeFreeCAD(t, `exec sleep 10`)
	a, err := New(Options{Command: cmd, Tolerance: 0.05, Timeout: 100 * time.Millisecond, Writer: &recordingWriter{}})
	require.NoError(t, err)

	start := time.Now()
	err = a.Assemble(context.Background(), hollowCube(), filepath.Join(t.TempDir(), "x.brep"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAssembleEmptySolid(t *testing.T) {
	a, err := New(Options{Command: "freecadcmd", Tolerance: 0.05})
	require.NoError(t, err)
	assert.Error(t, a.Assemble(context.Background(), &solid.Solid{}, "x.brep"))
	assert.Error(t, a.Assemble(context.Background(), nil, "x.brep"))
}
