package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chazu/voxbrep/pkg/config"
	"github.com/chazu/voxbrep/pkg/kernel"
	"github.com/chazu/voxbrep/pkg/kernel/freecad"
	"github.com/chazu/voxbrep/pkg/kernel/sdfx"
	"github.com/chazu/voxbrep/pkg/pipeline"
	"github.com/chazu/voxbrep/pkg/tessellate"
	"github.com/chazu/voxbrep/pkg/voxel"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// convertFlags holds the flag values for the convert command.
type convertFlags struct {
	configPath    string
	spacing       string
	out           string
	decimate      int
	smoothingIter int
	freecadCmd    string
	noCAD         bool
	keepFailed    bool
	shells        bool
}

func newConvertCommand(g *globals) *cobra.Command {
	flags := &convertFlags{}

	cmd := &cobra.Command{
		Use:   "convert INPUT.npy...",
		Short: "Reconstruct a solid from one or more NPY occupancy grids",
		Long: `Reconstruct a closed solid from each input grid.

For every input NAME.npy the command writes NAME.stl and, unless --no-cad
is given, NAME.brep into the output directory. Several inputs run in
parallel, bounded by the workers option.

Examples:
  voxbrep convert leaf.npy --spacing 0.5,0.5,1
  voxbrep convert a.npy b.npy --decimate 20000 --out build
  voxbrep convert leaf.npy --no-cad --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, g, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "YAML configuration file")
	cmd.Flags().StringVar(&flags.spacing, "spacing", "1,1,1", "Voxel spacing sx,sy,sz, or one value for all axes")
	cmd.Flags().StringVarP(&flags.out, "out", "o", ".", "Output directory")
	cmd.Flags().IntVar(&flags.decimate, "decimate", 0, "Target triangle count after simplification")
	cmd.Flags().IntVar(&flags.smoothingIter, "smoothing-iter", 0, "Taubin smoothing iterations")
	cmd.Flags().StringVar(&flags.freecadCmd, "freecad-cmd", "", "FreeCAD console binary")
	cmd.Flags().BoolVar(&flags.noCAD, "no-cad", false, "Skip the BREP export")
	cmd.Flags().BoolVar(&flags.keepFailed, "keep-failed", false, "Write the last valid mesh when a run fails")
	cmd.Flags().BoolVar(&flags.shells, "shells", false, "Also write one STL per shell")

	return cmd
}

// loadConfig reads the configuration file, if any, and applies the flag
// overrides the user set explicitly.
func loadConfig(cmd *cobra.Command, flags *convertFlags) (*config.Config, error) {
	cfg := &config.Config{}
	if flags.configPath != "" {
		var err error
		if cfg, err = config.Load(flags.configPath); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("decimate") {
		cfg.SimplifyTargetTriangles = &flags.decimate
	}
	if cmd.Flags().Changed("smoothing-iter") {
		cfg.SmoothingIterations = &flags.smoothingIter
	}
	if cmd.Flags().Changed("freecad-cmd") {
		cfg.FreeCADCmd = &flags.freecadCmd
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseSpacing accepts "s" or "sx,sy,sz" with positive components.
func parseSpacing(s string) (v3.Vec, error) {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	if len(parts) == 1 {
		parts = []string{parts[0], parts[0], parts[0]}
	}
	if len(parts) != 3 {
		return v3.Vec{}, fmt.Errorf("spacing %q: want 1 or 3 values, got %d", s, len(parts))
	}
	var xyz [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return v3.Vec{}, fmt.Errorf("spacing %q: %w", s, err)
		}
		if !(f > 0) {
			return v3.Vec{}, fmt.Errorf("spacing %q: values must be positive", s)
		}
		xyz[i] = f
	}
	return v3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

// stem returns the file name of path without directory or extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func runConvert(cmd *cobra.Command, g *globals, flags *convertFlags, inputs []string) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return wrapError(ExitConfiguration, "invalid configuration", err)
	}
	spacing, err := parseSpacing(flags.spacing)
	if err != nil {
		return wrapError(ExitConfiguration, "invalid --spacing", err)
	}
	if err := os.MkdirAll(flags.out, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	jobs := make([]pipeline.Job, 0, len(inputs))
	for _, in := range inputs {
		grid, err := voxel.LoadNPY(in, spacing, v3.Vec{})
		if err != nil {
			return wrapError(ExitInvalidGrid, fmt.Sprintf("cannot load %s", in), err)
		}
		jobs = append(jobs, pipeline.Job{Name: stem(in), Grid: grid})
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	results, err := pipeline.RunBatch(ctx, jobs, cfg, pipeline.Options{Logger: g.logger(cmd)})
	if err != nil {
		return err
	}

	var cad kernel.Assembler
	if !flags.noCAD {
		if cad, err = freecad.New(freecad.Options{
			Command:   cfg.GetFreeCADCmd(),
			Tolerance: cfg.GetCADTolerance(),
			Timeout:   cfg.GetCADTimeout(),
		}); err != nil {
			return wrapError(ExitConfiguration, "invalid CAD options", err)
		}
	}

	reports := make([]convertReport, 0, len(results))
	var firstErr error
	for i, jr := range results {
		rep, err := finish(ctx, inputs[i], jr, flags, cad)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		reports = append(reports, rep)
	}

	if g.jsonOutput {
		if err := writeJSON(cmd, reports); err != nil {
			return err
		}
	} else {
		for _, rep := range reports {
			rep.print(cmd.OutOrStdout())
		}
	}
	return firstErr
}

// finish writes the outputs of one job and builds its report.
func finish(ctx context.Context, input string, jr pipeline.JobResult, flags *convertFlags, cad kernel.Assembler) (convertReport, error) {
	rep := newConvertReport(input, jr)
	res := jr.Result
	w := sdfx.STLWriter{}

	if jr.Err != nil {
		if flags.keepFailed && res != nil && res.LastValid != nil && !res.LastValid.IsEmpty() {
			path := filepath.Join(flags.out, jr.Name+".failed.stl")
			if err := w.WriteMesh(path, res.LastValid); err == nil {
				rep.Outputs = append(rep.Outputs, path)
			}
		}
		return rep, jr.Err
	}
	if res.Solid.IsEmpty() {
		return rep, nil
	}

	path := filepath.Join(flags.out, jr.Name+".stl")
	if err := w.WriteMesh(path, res.Solid.Mesh()); err != nil {
		rep.Error = err.Error()
		return rep, err
	}
	rep.Outputs = append(rep.Outputs, path)

	if flags.shells {
		paths, err := tessellate.Write(flags.out, jr.Name, res.Solid, w)
		rep.Outputs = append(rep.Outputs, paths...)
		if err != nil {
			rep.Error = err.Error()
			return rep, err
		}
	}

	if cad != nil {
		path := filepath.Join(flags.out, jr.Name+".brep")
		if err := cad.Assemble(ctx, res.Solid, path); err != nil {
			rep.Error = err.Error()
			return rep, wrapError(ExitCAD, fmt.Sprintf("BREP export of %s failed", jr.Name), err)
		}
		rep.Outputs = append(rep.Outputs, path)
	}
	return rep, nil
}
