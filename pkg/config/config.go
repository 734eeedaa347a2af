// Package config holds the numeric tuning surface of the reconstruction
// pipeline. A Config is a YAML document whose fields are all optional; the
// Get* accessors fall back to the documented defaults, so partial files are
// safe. Every numeric option is registered in one table with its range.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chazu/voxbrep/pkg/diag"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultDedupEpsilon         = 1e-6
	DefaultHoleMaxEdges         = 64
	DefaultRepairMaxPasses      = 8
	DefaultTieBreak             = 0
	DefaultStrictExtractionGate = true
	DefaultSimplifyTargetRatio  = 0.5
	DefaultSimplifyMaxDeviation = 0.5
	DefaultSimplifyMaxCollapses = 10_000_000
	DefaultSmoothingIterations  = 0
	DefaultSmoothingLambda      = 0.5
	DefaultSmoothingMu          = -0.53
	DefaultVolumeTolerance      = 0.05
	DefaultMinShellVolume       = 1e-3
	DefaultMaxGenus             = 256
	DefaultWorkers              = 0
	DefaultCADTolerance         = 0.05
	DefaultFreeCADCmd           = "freecadcmd"
	DefaultCADTimeout           = 10 * time.Minute
)

// Config is the on-disk configuration. Nil fields take their defaults.
type Config struct {
	// Repair
	DedupEpsilon    *float64 `yaml:"dedup_epsilon,omitempty"`
	HoleMaxEdges    *int     `yaml:"hole_max_edges,omitempty"`
	RepairMaxPasses *int     `yaml:"repair_max_passes,omitempty"`

	// Extraction
	TieBreak             *int  `yaml:"tie_break,omitempty"`
	StrictExtractionGate *bool `yaml:"strict_extraction_gate,omitempty"`

	// Simplification
	SimplifyTargetRatio     *float64 `yaml:"simplify_target_ratio,omitempty"`
	SimplifyTargetTriangles *int     `yaml:"simplify_target_triangles,omitempty"`
	SimplifyMaxDeviation    *float64 `yaml:"simplify_max_deviation,omitempty"`
	SimplifyMaxCollapses    *int     `yaml:"simplify_max_collapses,omitempty"`

	// Smoothing
	SmoothingIterations *int     `yaml:"smoothing_iterations,omitempty"`
	SmoothingLambda     *float64 `yaml:"smoothing_lambda,omitempty"`
	SmoothingMu         *float64 `yaml:"smoothing_mu,omitempty"`

	// Checks
	VolumeTolerance *float64 `yaml:"volume_tolerance,omitempty"`
	MinShellVolume  *float64 `yaml:"min_shell_volume,omitempty"`
	MaxGenus        *int     `yaml:"max_genus,omitempty"`

	// Execution and CAD hand-off
	Workers      *int     `yaml:"workers,omitempty"`
	CADTolerance *float64 `yaml:"cad_tolerance,omitempty"`
	FreeCADCmd   *string  `yaml:"freecad_cmd,omitempty"`
	CADTimeout   *string  `yaml:"cad_timeout,omitempty"` // duration string like "10m"
}

// Option describes one numeric setting.
type Option struct {
	Name        string
	Default     float64
	Min, Max    float64
	MinOpen     bool // Min itself is excluded
	MaxOpen     bool // Max itself is excluded
	Integer     bool
	Description string

	get func(*Config) (float64, bool)
}

func floatOption(name string, def float64, rng, desc string, field func(*Config) *float64) Option {
	o := Option{Name: name, Default: def, Description: desc}
	o.Min, o.Max, o.MinOpen, o.MaxOpen = parseRange(rng)
	o.get = func(c *Config) (float64, bool) {
		if p := field(c); p != nil {
			return *p, true
		}
		return 0, false
	}
	return o
}

func intOption(name string, def int, rng, desc string, field func(*Config) *int) Option {
	o := Option{Name: name, Default: float64(def), Description: desc, Integer: true}
	o.Min, o.Max, o.MinOpen, o.MaxOpen = parseRange(rng)
	o.get = func(c *Config) (float64, bool) {
		if p := field(c); p != nil {
			return float64(*p), true
		}
		return 0, false
	}
	return o
}

// parseRange reads interval notation such as "(0, 1]". The table below is
// static, so a malformed range is a programming error.
func parseRange(s string) (lo, hi float64, loOpen, hiOpen bool) {
	s = strings.TrimSpace(s)
	if len(s) < 5 || !strings.ContainsAny(s[:1], "[(") || !strings.ContainsAny(s[len(s)-1:], "])") {
		panic("config: bad range " + s)
	}
	loOpen, hiOpen = s[0] == '(', s[len(s)-1] == ')'
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 2 {
		panic("config: bad range " + s)
	}
	var err error
	if lo, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		panic(err)
	}
	if hi, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		panic(err)
	}
	return lo, hi, loOpen, hiOpen
}

var options = []Option{
	floatOption("dedup_epsilon", DefaultDedupEpsilon, "[1e-12, 0.1]",
		"vertex merge distance, fraction of the smallest voxel spacing",
		func(c *Config) *float64 { return c.DedupEpsilon }),
	intOption("hole_max_edges", DefaultHoleMaxEdges, "[3, 100000]",
		"largest hole boundary loop closed by repair",
		func(c *Config) *int { return c.HoleMaxEdges }),
	intOption("repair_max_passes", DefaultRepairMaxPasses, "[1, 100]",
		"repair pass limit",
		func(c *Config) *int { return c.RepairMaxPasses }),
	intOption("tie_break", DefaultTieBreak, "[0, 1]",
		"ambiguous face rule: 0 separates occupied corners, 1 joins them",
		func(c *Config) *int { return c.TieBreak }),
	floatOption("simplify_target_ratio", DefaultSimplifyTargetRatio, "(0, 1]",
		"fraction of triangles to keep",
		func(c *Config) *float64 { return c.SimplifyTargetRatio }),
	intOption("simplify_target_triangles", 0, "[0, 1e9]",
		"absolute triangle target, wins over the ratio when non-zero",
		func(c *Config) *int { return c.SimplifyTargetTriangles }),
	floatOption("simplify_max_deviation", DefaultSimplifyMaxDeviation, "[0, 10]",
		"deviation bound, fraction of the smallest voxel spacing",
		func(c *Config) *float64 { return c.SimplifyMaxDeviation }),
	intOption("simplify_max_collapses", DefaultSimplifyMaxCollapses, "[1, 1e9]",
		"bound on collapse attempts",
		func(c *Config) *int { return c.SimplifyMaxCollapses }),
	intOption("smoothing_iterations", DefaultSmoothingIterations, "[0, 1000]",
		"Taubin smoothing passes, 0 disables smoothing",
		func(c *Config) *int { return c.SmoothingIterations }),
	floatOption("smoothing_lambda", DefaultSmoothingLambda, "(0, 1)",
		"Taubin shrink factor",
		func(c *Config) *float64 { return c.SmoothingLambda }),
	floatOption("smoothing_mu", DefaultSmoothingMu, "(-1, 0)",
		"Taubin inflate factor, |mu| > lambda",
		func(c *Config) *float64 { return c.SmoothingMu }),
	floatOption("volume_tolerance", DefaultVolumeTolerance, "(0, 1)",
		"allowed relative drift between voxel and repaired mesh volume",
		func(c *Config) *float64 { return c.VolumeTolerance }),
	floatOption("min_shell_volume", DefaultMinShellVolume, "[0, 1]",
		"degenerate shell threshold, fraction of one voxel volume",
		func(c *Config) *float64 { return c.MinShellVolume }),
	intOption("max_genus", DefaultMaxGenus, "[0, 1000000]",
		"per-shell genus tolerated by the Euler check",
		func(c *Config) *int { return c.MaxGenus }),
	intOption("workers", DefaultWorkers, "[0, 1024]",
		"goroutines for extraction batches and batch runs, 0 means GOMAXPROCS",
		func(c *Config) *int { return c.Workers }),
	floatOption("cad_tolerance", DefaultCADTolerance, "(0, 10]",
		"sewing tolerance passed to the CAD kernel",
		func(c *Config) *float64 { return c.CADTolerance }),
}

// Options returns the numeric option table.
func Options() []Option {
	return append([]Option(nil), options...)
}

// Range formats the valid interval, e.g. "(0, 1]".
func (o Option) Range() string {
	lb, rb := "[", "]"
	if o.MinOpen {
		lb = "("
	}
	if o.MaxOpen {
		rb = ")"
	}
	return fmt.Sprintf("%s%g, %g%s", lb, o.Min, o.Max, rb)
}

func (o Option) check(v float64) error {
	if math.IsNaN(v) || v < o.Min || v > o.Max || (o.MinOpen && v == o.Min) || (o.MaxOpen && v == o.Max) {
		return diag.Errorf(diag.CodeConfiguration, diag.StageConfig, "%s must be in %s, got %g", o.Name, o.Range(), v)
	}
	if o.Integer && v != math.Trunc(v) {
		return diag.Errorf(diag.CodeConfiguration, diag.StageConfig, "%s must be an integer, got %g", o.Name, v)
	}
	return nil
}

// Validate reports the first out-of-range value.
func (c *Config) Validate() error {
	for _, o := range options {
		if v, ok := o.get(c); ok {
			if err := o.check(v); err != nil {
				return err
			}
		}
	}
	if -c.GetSmoothingMu() <= c.GetSmoothingLambda() {
		return diag.Errorf(diag.CodeConfiguration, diag.StageConfig,
			"smoothing_mu magnitude must exceed smoothing_lambda, got %g and %g", c.GetSmoothingMu(), c.GetSmoothingLambda())
	}
	if c.FreeCADCmd != nil && strings.TrimSpace(*c.FreeCADCmd) == "" {
		return diag.Errorf(diag.CodeConfiguration, diag.StageConfig, "freecad_cmd must not be empty")
	}
	if c.CADTimeout != nil {
		d, err := time.ParseDuration(*c.CADTimeout)
		if err != nil {
			return &diag.Error{Code: diag.CodeConfiguration, Stage: diag.StageConfig, Message: "invalid cad_timeout", Err: err}
		}
		if d <= 0 {
			return diag.Errorf(diag.CodeConfiguration, diag.StageConfig, "cad_timeout must be positive, got %s", d)
		}
	}
	return nil
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes and validates a YAML document. Unknown keys are rejected.
// An empty document is the default configuration.
func Read(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &diag.Error{Code: diag.CodeConfiguration, Stage: diag.StageConfig, Message: "cannot parse config", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolved returns a copy with every field set to its effective value.
func (c *Config) Resolved() *Config {
	return &Config{
		DedupEpsilon:            ptr(c.GetDedupEpsilon()),
		HoleMaxEdges:            ptr(c.GetHoleMaxEdges()),
		RepairMaxPasses:         ptr(c.GetRepairMaxPasses()),
		TieBreak:                ptr(c.GetTieBreak()),
		StrictExtractionGate:    ptr(c.GetStrictExtractionGate()),
		SimplifyTargetRatio:     ptr(c.GetSimplifyTargetRatio()),
		SimplifyTargetTriangles: ptr(c.GetSimplifyTargetTriangles()),
		SimplifyMaxDeviation:    ptr(c.GetSimplifyMaxDeviation()),
		SimplifyMaxCollapses:    ptr(c.GetSimplifyMaxCollapses()),
		SmoothingIterations:     ptr(c.GetSmoothingIterations()),
		SmoothingLambda:         ptr(c.GetSmoothingLambda()),
		SmoothingMu:             ptr(c.GetSmoothingMu()),
		VolumeTolerance:         ptr(c.GetVolumeTolerance()),
		MinShellVolume:          ptr(c.GetMinShellVolume()),
		MaxGenus:                ptr(c.GetMaxGenus()),
		Workers:                 ptr(c.GetWorkers()),
		CADTolerance:            ptr(c.GetCADTolerance()),
		FreeCADCmd:              ptr(c.GetFreeCADCmd()),
		CADTimeout:              ptr(c.GetCADTimeout().String()),
	}
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c.Resolved()); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return buf.Bytes(), nil
}

func ptr[T any](v T) *T { return &v }

func getOr[T any](p *T, def T) T {
	if p != nil {
		return *p
	}
	return def
}

func (c *Config) GetDedupEpsilon() float64 {
	return getOr(c.DedupEpsilon, DefaultDedupEpsilon)
}

func (c *Config) GetHoleMaxEdges() int {
	return getOr(c.HoleMaxEdges, DefaultHoleMaxEdges)
}

func (c *Config) GetRepairMaxPasses() int {
	return getOr(c.RepairMaxPasses, DefaultRepairMaxPasses)
}

func (c *Config) GetTieBreak() int {
	return getOr(c.TieBreak, DefaultTieBreak)
}

func (c *Config) GetStrictExtractionGate() bool {
	return getOr(c.StrictExtractionGate, DefaultStrictExtractionGate)
}

func (c *Config) GetSimplifyTargetRatio() float64 {
	return getOr(c.SimplifyTargetRatio, DefaultSimplifyTargetRatio)
}

func (c *Config) GetSimplifyTargetTriangles() int {
	return getOr(c.SimplifyTargetTriangles, 0)
}

func (c *Config) GetSimplifyMaxDeviation() float64 {
	return getOr(c.SimplifyMaxDeviation, DefaultSimplifyMaxDeviation)
}

func (c *Config) GetSimplifyMaxCollapses() int {
	return getOr(c.SimplifyMaxCollapses, DefaultSimplifyMaxCollapses)
}

func (c *Config) GetSmoothingIterations() int {
	return getOr(c.SmoothingIterations, DefaultSmoothingIterations)
}

func (c *Config) GetSmoothingLambda() float64 {
	return getOr(c.SmoothingLambda, DefaultSmoothingLambda)
}

func (c *Config) GetSmoothingMu() float64 {
	return getOr(c.SmoothingMu, DefaultSmoothingMu)
}

func (c *Config) GetVolumeTolerance() float64 {
	return getOr(c.VolumeTolerance, DefaultVolumeTolerance)
}

func (c *Config) GetMinShellVolume() float64 {
	return getOr(c.MinShellVolume, DefaultMinShellVolume)
}

func (c *Config) GetMaxGenus() int {
	return getOr(c.MaxGenus, DefaultMaxGenus)
}

func (c *Config) GetWorkers() int {
	return getOr(c.Workers, DefaultWorkers)
}

func (c *Config) GetCADTolerance() float64 {
	return getOr(c.CADTolerance, DefaultCADTolerance)
}

func (c *Config) GetFreeCADCmd() string {
	return getOr(c.FreeCADCmd, DefaultFreeCADCmd)
}

// GetCADTimeout parses cad_timeout; Validate has already rejected bad values.
func (c *Config) GetCADTimeout() time.Duration {
	if c.CADTimeout == nil {
		return DefaultCADTimeout
	}
	d, err := time.ParseDuration(*c.CADTimeout)
	if err != nil {
		return DefaultCADTimeout
	}
	return d
}
