package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/voxbrep/pkg/engine"
	"github.com/chazu/voxbrep/pkg/kernel"
	"github.com/chazu/voxbrep/pkg/kernel/manifold"
	"github.com/chazu/voxbrep/pkg/kernel/sdfx"
	"github.com/chazu/voxbrep/pkg/tessellate"
	"github.com/chazu/voxbrep/pkg/voxel"
	"github.com/spf13/cobra"
)

// phantomFlags holds the flag values for the phantom command.
type phantomFlags struct {
	out     string
	preview string
	kernel  string
}

type phantomReport struct {
	Script   string     `json:"script"`
	Output   string     `json:"output,omitempty"`
	Dims     [3]int     `json:"dims"`
	Occupied int        `json:"occupied"`
	Volume   float64    `json:"volume"`
	Warnings []string   `json:"warnings"`
	Errors   []string   `json:"errors,omitempty"`
	Preview  string     `json:"preview,omitempty"`
	Spacing  [3]float64 `json:"spacing"`
}

func newPhantomCommand(g *globals) *cobra.Command {
	flags := &phantomFlags{}

	cmd := &cobra.Command{
		Use:   "phantom SCRIPT",
		Short: "Voxelize a phantom script into an NPY grid",
		Long: `Evaluate a phantom script and write the sampled occupancy grid.

A script combines primitives with booleans and transforms and ends with a
grid form that fixes the sampling lattice:

  (def hollow (difference (sphere :radius 8) (sphere :radius 4)))
  (grid hollow :dims (vec3 24 24 24))

Examples:
  voxbrep phantom hollow.lisp -o hollow.npy
  voxbrep phantom hollow.lisp -o hollow.npy --preview hollow.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPhantom(cmd, g, flags, args[0])
		},
	}

	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "Output NPY file (default: SCRIPT with .npy extension)")
	cmd.Flags().StringVar(&flags.preview, "preview", "", "Also write the analytic surface of every grid as JSON meshes")
	cmd.Flags().StringVar(&flags.kernel, "kernel", "sdfx", "Geometry kernel: sdfx or manifold")

	return cmd
}

func runPhantom(cmd *cobra.Command, g *globals, flags *phantomFlags, script string) error {
	src, err := os.ReadFile(script)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	out := flags.out
	if out == "" {
		out = strings.TrimSuffix(script, filepath.Ext(script)) + ".npy"
	}

	k, err := newKernel(flags.kernel)
	if err != nil {
		return wrapError(ExitConfiguration, "invalid --kernel", err)
	}
	res, err := engine.NewEngineWithKernel(k).Run(string(src))
	if err != nil {
		return wrapError(ExitGeneralError, "phantom evaluation failed", err)
	}

	rep := phantomReport{Script: script, Warnings: []string{}}
	for _, w := range res.Warnings {
		rep.Warnings = append(rep.Warnings, w.Message)
	}
	for _, e := range res.Errors {
		rep.Errors = append(rep.Errors, e.Error())
	}
	if len(res.Errors) > 0 {
		if g.jsonOutput {
			_ = writeJSON(cmd, rep)
		}
		return wrapError(ExitInvalidGrid, fmt.Sprintf("%s: %s", script, strings.Join(rep.Errors, "; ")), nil)
	}

	if err := voxel.SaveNPY(out, res.Grid); err != nil {
		return err
	}
	rep.Output = out
	rep.Dims = res.Grid.Dims()
	rep.Occupied = res.Grid.Occupied()
	rep.Volume = res.Grid.Volume()
	sp := res.Grid.Spacing()
	rep.Spacing = [3]float64{sp.X, sp.Y, sp.Z}

	if flags.preview != "" {
		meshes, err := tessellate.Scene(res.Scene, k)
		if err != nil {
			return err
		}
		data, err := json.Marshal(meshes)
		if err != nil {
			return fmt.Errorf("encode preview: %w", err)
		}
		if err := os.WriteFile(flags.preview, data, 0o644); err != nil {
			return fmt.Errorf("write preview: %w", err)
		}
		rep.Preview = flags.preview
	}

	if g.jsonOutput {
		return writeJSON(cmd, rep)
	}
	w := cmd.OutOrStdout()
	for _, warn := range rep.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warn)
	}
	fmt.Fprintf(w, "wrote %s: %s, %d occupied voxels, volume %.6g\n", out, res.Grid, rep.Occupied, rep.Volume)
	if rep.Preview != "" {
		fmt.Fprintf(w, "wrote %s\n", rep.Preview)
	}
	return nil
}

// newKernel returns the primitive kernel called name.
func newKernel(name string) (kernel.Kernel, error) {
	switch name {
	case "sdfx":
		return sdfx.New(), nil
	case "manifold":
		return manifold.New()
	default:
		return nil, fmt.Errorf("unknown kernel %q", name)
	}
}
