package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/voxbrep/pkg/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyConfigUsesDefaults(t *testing.T) {
	cfg, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultDedupEpsilon, cfg.GetDedupEpsilon())
	assert.Equal(t, DefaultHoleMaxEdges, cfg.GetHoleMaxEdges())
	assert.Equal(t, DefaultRepairMaxPasses, cfg.GetRepairMaxPasses())
	assert.Equal(t, 0, cfg.GetTieBreak())
	assert.True(t, cfg.GetStrictExtractionGate())
	assert.Equal(t, DefaultSimplifyTargetRatio, cfg.GetSimplifyTargetRatio())
	assert.Equal(t, 0, cfg.GetSimplifyTargetTriangles())
	assert.Equal(t, DefaultSmoothingMu, cfg.GetSmoothingMu())
	assert.Equal(t, DefaultMaxGenus, cfg.GetMaxGenus())
	assert.Equal(t, "freecadcmd", cfg.GetFreeCADCmd())
	assert.Equal(t, 10*time.Minute, cfg.GetCADTimeout())
}

func TestPartialConfig(t *testing.T) {
	doc := `
hole_max_edges: 128
tie_break: 1
smoothing_iterations: 10
strict_extraction_gate: false
cad_timeout: 90s
`
	cfg, err := Read(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.GetHoleMaxEdges())
	assert.Equal(t, 1, cfg.GetTieBreak())
	assert.Equal(t, 10, cfg.GetSmoothingIterations())
	assert.False(t, cfg.GetStrictExtractionGate())
	assert.Equal(t, 90*time.Second, cfg.GetCADTimeout())
	assert.Equal(t, DefaultRepairMaxPasses, cfg.GetRepairMaxPasses())
}

func TestValidateRanges(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		msg  string
	}{
		{"epsilon too large", "dedup_epsilon: 0.5", "dedup_epsilon must be in [1e-12, 0.1]"},
		{"hole too small", "hole_max_edges: 2", "hole_max_edges"},
		{"passes zero", "repair_max_passes: 0", "repair_max_passes"},
		{"tie break", "tie_break: 2", "tie_break"},
		{"ratio zero", "simplify_target_ratio: 0", "simplify_target_ratio must be in (0, 1]"},
		{"lambda one", "smoothing_lambda: 1", "smoothing_lambda"},
		{"mu positive", "smoothing_mu: 0.1", "smoothing_mu"},
		{"mu too weak", "smoothing_mu: -0.4", "magnitude"},
		{"tolerance", "volume_tolerance: 1", "volume_tolerance"},
		{"genus", "max_genus: -1", "max_genus"},
		{"workers", "workers: 5000", "workers"},
		{"timeout", "cad_timeout: soon", "cad_timeout"},
		{"negative timeout", "cad_timeout: -1s", "cad_timeout"},
		{"empty command", "freecad_cmd: ' '", "freecad_cmd"},
		{"unknown key", "hole_size: 3", "cannot parse"},
		{"wrong type", "hole_max_edges: many", "cannot parse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.doc))
			require.ErrorIs(t, err, diag.ErrConfiguration)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestOptionTable(t *testing.T) {
	names := map[string]bool{}
	for _, o := range Options() {
		assert.False(t, names[o.Name], "duplicate %s", o.Name)
		names[o.Name] = true
		assert.NoError(t, o.check(o.Default), "default of %s out of range", o.Name)
		assert.NotEmpty(t, o.Description)
	}
	for _, want := range []string{
		"dedup_epsilon", "hole_max_edges", "repair_max_passes", "tie_break",
		"simplify_target_ratio", "simplify_max_deviation", "volume_tolerance",
	} {
		assert.True(t, names[want], want)
	}
}

func TestRange(t *testing.T) {
	cases := map[string]Option{
		"[0, 1]":  {Min: 0, Max: 1},
		"(0, 1]":  {Min: 0, Max: 1, MinOpen: true},
		"(-1, 0)": {Min: -1, Max: 0, MinOpen: true, MaxOpen: true},
	}
	for want, o := range cases {
		assert.Equal(t, want, o.Range())
		lo, hi, loOpen, hiOpen := parseRange(want)
		assert.Equal(t, []any{o.Min, o.Max, o.MinOpen, o.MaxOpen}, []any{lo, hi, loOpen, hiOpen})
	}
	assert.Panics(t, func() { parseRange("0..1") })
}

func TestYAMLRoundTrip(t *testing.T) {
	out, err := (&Config{HoleMaxEdges: ptr(99)}).YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "hole_max_edges: 99")
	assert.Contains(t, string(out), "dedup_epsilon: 1e-06")

	path := filepath.Join(t.TempDir(), "voxbrep.yaml")
	require.NoError(t, os.WriteFile(path, out, 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.GetHoleMaxEdges())
	assert.Equal(t, (&Config{HoleMaxEdges: ptr(99)}).Resolved(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
