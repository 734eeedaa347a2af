// Package freecad turns a reconstructed solid into a BREP file by running a
// headless FreeCAD process over per-shell STL files.
package freecad

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chazu/voxbrep/pkg/kernel"
	"github.com/chazu/voxbrep/pkg/kernel/sdfx"
	"github.com/chazu/voxbrep/pkg/solid"
	"github.com/samber/lo"
)

//go:embed converter.py
var converterScript []byte

// Compile-time interface check.
var _ kernel.Assembler = (*Assembler)(nil)

// Options configures the FreeCAD process.
type Options struct {
	// Command is the FreeCAD console binary, e.g. "freecadcmd".
	Command string
	// Tolerance is the sewing tolerance in model units.
	Tolerance float64
	// Timeout bounds one conversion; zero means no limit beyond ctx.
	Timeout time.Duration
	// Writer stores shell meshes. Defaults to sdfx.STLWriter.
	Writer kernel.MeshWriter
}

// Assembler implements kernel.Assembler with FreeCAD.
type Assembler struct {
	opts Options
}

// New validates opts and returns an Assembler.
func New(opts Options) (*Assembler, error) {
	if strings.TrimSpace(opts.Command) == "" {
		return nil, errors.New("freecad: command is empty")
	}
	if !(opts.Tolerance > 0) {
		return nil, fmt.Errorf("freecad: tolerance %g must be positive", opts.Tolerance)
	}
	if opts.Timeout < 0 {
		return nil, fmt.Errorf("freecad: negative timeout %s", opts.Timeout)
	}
	if opts.Writer == nil {
		opts.Writer = sdfx.STLWriter{}
	}
	return &Assembler{opts: opts}, nil
}

// Assemble writes every shell of s to a scratch directory and runs the
// embedded converter script, which sews the shells, cuts voids from their
// enclosing outer shell and exports the result to path.
func (a *Assembler) Assemble(ctx context.Context, s *solid.Solid, path string) error {
	if s == nil || s.IsEmpty() {
		return errors.New("freecad: solid has no shells")
	}
	out, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("freecad: %w", err)
	}

	dir, err := os.MkdirTemp("", "voxbrep-freecad-")
	if err != nil {
		return fmt.Errorf("freecad: scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "converter.py")
	if err := os.WriteFile(script, converterScript, 0o644); err != nil {
		return fmt.Errorf("freecad: write script: %w", err)
	}

	paths := make([]string, len(s.Shells))
	for i, sh := range s.Shells {
		paths[i] = filepath.Join(dir, fmt.Sprintf("shell-%03d-%s.stl", i, sh.Role))
		if err := a.opts.Writer.WriteMesh(paths[i], sh.Mesh); err != nil {
			return fmt.Errorf("freecad: shell %d: %w", i, err)
		}
	}

	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, a.opts.Command, script)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), Env(s, paths, out, a.opts.Tolerance)...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return fmt.Errorf("freecad: %s failed: %w: %s", a.opts.Command, err, strings.TrimSpace(string(output)))
	}
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("freecad: converter produced no output: %s", strings.TrimSpace(string(output)))
	}
	return nil
}

// Env returns the environment variables the converter script reads.
func Env(s *solid.Solid, paths []string, out string, tol float64) []string {
	roles := lo.Map(s.Shells, func(sh solid.Shell, _ int) string {
		return sh.Role.String()
	})
	parents := lo.Map(s.Shells, func(sh solid.Shell, _ int) string {
		return strconv.Itoa(sh.Parent)
	})
	return []string{
		"INPUT_STL_LIST=" + strings.Join(paths, string(os.PathListSeparator)),
		"SHELL_ROLES=" + strings.Join(roles, ","),
		"SHELL_PARENTS=" + strings.Join(parents, ","),
		"OUTPUT_BREP=" + out,
		"CAD_TOLERANCE=" + strconv.FormatFloat(tol, 'g', -1, 64),
	}
}
