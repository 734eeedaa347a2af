package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/chazu/voxbrep/pkg/pipeline"
	"github.com/chazu/voxbrep/pkg/validate"
	"github.com/samber/lo"
)

// convertReport is the per-input summary printed by convert.
type convertReport struct {
	Name       string        `json:"name"`
	Input      string        `json:"input"`
	RunID      string        `json:"runId,omitempty"`
	GridVolume float64       `json:"gridVolume"`
	Volume     float64       `json:"volume"`
	Triangles  int           `json:"triangles"`
	Shells     []shellReport `json:"shells"`
	Stages     []stageReport `json:"stages"`
	Warnings   []string      `json:"warnings"`
	Outputs    []string      `json:"outputs"`
	Error      string        `json:"error,omitempty"`
}

type shellReport struct {
	Role      string  `json:"role"`
	Parent    int     `json:"parent"`
	Depth     int     `json:"depth"`
	Volume    float64 `json:"volume"`
	Triangles int     `json:"triangles"`
}

type stageReport struct {
	Stage             string  `json:"stage"`
	Vertices          int     `json:"vertices"`
	Triangles         int     `json:"triangles"`
	BoundaryEdges     int     `json:"boundaryEdges"`
	NonManifoldEdges  int     `json:"nonManifoldEdges"`
	SelfIntersections int     `json:"selfIntersections"`
	Components        int     `json:"components"`
	MaxShellGenus     int     `json:"maxShellGenus"`
	MinAngleDeg       float64 `json:"minAngleDeg"`
	MeanRadiusRatio   float64 `json:"meanRadiusRatio"`
}

func newConvertReport(input string, jr pipeline.JobResult) convertReport {
	rep := convertReport{
		Name:     jr.Name,
		Input:    input,
		Shells:   []shellReport{},
		Stages:   []stageReport{},
		Warnings: []string{},
		Outputs:  []string{},
	}
	if jr.Err != nil {
		rep.Error = jr.Err.Error()
	}
	res := jr.Result
	if res == nil {
		return rep
	}

	rep.RunID = res.RunID
	rep.GridVolume = res.GridVolume
	rep.Stages = lo.Map(res.Reports, func(r validate.Report, _ int) stageReport {
		return stageReport{
			Stage:             string(r.Stage),
			Vertices:          r.Vertices,
			Triangles:         r.Triangles,
			BoundaryEdges:     r.Topology.BoundaryEdges,
			NonManifoldEdges:  r.Topology.NonManifoldEdges,
			SelfIntersections: r.SelfIntersections,
			Components:        r.Topology.Components,
			MaxShellGenus:     r.MaxShellGenus,
			MinAngleDeg:       r.Quality.MinAngleDeg,
			MeanRadiusRatio:   r.Quality.MeanRadiusRatio,
		}
	})
	for _, w := range res.Warnings {
		rep.Warnings = append(rep.Warnings, w.String())
	}

	if res.Solid != nil {
		rep.Volume = res.Solid.Volume()
		for _, sh := range res.Solid.Shells {
			rep.Triangles += sh.Mesh.TriangleCount()
			rep.Shells = append(rep.Shells, shellReport{
				Role:      sh.Role.String(),
				Parent:    sh.Parent,
				Depth:     sh.Depth,
				Volume:    sh.Volume,
				Triangles: sh.Mesh.TriangleCount(),
			})
		}
	}
	return rep
}

// print writes the human-readable form of the report.
func (r convertReport) print(w io.Writer) {
	fmt.Fprintf(w, "%s (%s)\n", r.Name, r.Input)
	for _, s := range r.Stages {
		fmt.Fprintf(w, "  %-15s %8d triangles, %d components, genus %d, min angle %.1f°\n",
			s.Stage, s.Triangles, s.Components, s.MaxShellGenus, s.MinAngleDeg)
	}
	if len(r.Shells) > 0 {
		roles := lo.CountValuesBy(r.Shells, func(s shellReport) string { return s.Role })
		fmt.Fprintf(w, "  solid: %d outer, %d void shells, volume %.6g (voxels %.6g), %d triangles\n",
			roles["outer"], roles["void"], r.Volume, r.GridVolume, r.Triangles)
	} else if r.Error == "" {
		fmt.Fprintln(w, "  solid: empty")
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
	if len(r.Outputs) > 0 {
		fmt.Fprintf(w, "  wrote: %s\n", strings.Join(r.Outputs, ", "))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", r.Error)
	}
}
