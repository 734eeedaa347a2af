// Package diag defines the error kinds and warnings shared by every stage of
// the reconstruction pipeline. Fatal conditions are *Error values; stage-local
// recoverable conditions travel as Warning values attached to the result.
package diag

import (
	"fmt"
	"strings"
)

// Code identifies the kind of a failure or warning.
type Code string

const (
	CodeInvalidGrid               Code = "INVALID_GRID"
	CodeUnrepairableTopology      Code = "UNREPAIRABLE_TOPOLOGY"
	CodeSimplificationTargetUnmet Code = "SIMPLIFICATION_TARGET_UNMET"
	CodeDegenerateShell           Code = "DEGENERATE_SHELL"
	CodeValidationFailure         Code = "VALIDATION_FAILURE"
	CodeConfiguration             Code = "CONFIGURATION_ERROR"
	CodeVolumeDrift               Code = "VOLUME_DRIFT"
	CodeOrientationCorrected      Code = "ORIENTATION_CORRECTED"
	CodeExtractionDefect          Code = "EXTRACTION_DEFECT"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageNone           Stage = ""
	StageConfig         Stage = "config"
	StageGrid           Stage = "grid"
	StageExtraction     Stage = "extraction"
	StageRepair         Stage = "repair"
	StageSmoothing      Stage = "smoothing"
	StageSimplification Stage = "simplification"
	StageReconstruction Stage = "reconstruction"
)

// Metric names the quantity a validation failure was measured on.
type Metric string

const (
	MetricNone              Metric = ""
	MetricInvalidIndices    Metric = "invalid_indices"
	MetricNonManifoldEdges  Metric = "non_manifold_edges"
	MetricNonManifoldVerts  Metric = "non_manifold_vertices"
	MetricBoundaryEdges     Metric = "boundary_edges"
	MetricOrientation       Metric = "inconsistent_orientation"
	MetricSelfIntersections Metric = "self_intersections"
	MetricEuler             Metric = "euler_characteristic"
	MetricHoleSize          Metric = "hole_size"
	MetricPasses            Metric = "repair_passes"
)

// Error is a typed pipeline failure. Two errors match under errors.Is when
// their codes are equal, so callers can test against the sentinels below.
type Error struct {
	Code    Code
	Stage   Stage
	Metric  Metric
	Count   int
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Stage != StageNone {
		fmt.Fprintf(&b, " [%s]", e.Stage)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Metric != MetricNone {
		fmt.Fprintf(&b, " (%s=%d)", e.Metric, e.Count)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidGrid          = &Error{Code: CodeInvalidGrid}
	ErrUnrepairableTopology = &Error{Code: CodeUnrepairableTopology}
	ErrDegenerateShell      = &Error{Code: CodeDegenerateShell}
	ErrValidation           = &Error{Code: CodeValidationFailure}
	ErrConfiguration        = &Error{Code: CodeConfiguration}
)

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, stage Stage, format string, args ...any) *Error {
	return &Error{Code: code, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// Warning is a non-fatal condition surfaced with the final result.
type Warning struct {
	Code    Code
	Stage   Stage
	Message string
	Count   int
}

func (w Warning) String() string {
	if w.Stage != StageNone {
		return fmt.Sprintf("%s [%s]: %s", w.Code, w.Stage, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}
