// Package engine provides the phantom DSL. It wraps zygomys in a sandboxed
// environment, builds a scene graph from user source code, and samples the
// scene into a voxel grid through a geometry kernel.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/voxbrep/pkg/graph"
	"github.com/chazu/voxbrep/pkg/kernel"
	"github.com/chazu/voxbrep/pkg/kernel/sdfx"
	"github.com/chazu/voxbrep/pkg/voxel"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error, a runtime error in user code, or an invalid scene.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning represents a non-fatal warning produced during evaluation.
type EvalWarning struct {
	Line    int
	Col     int
	Message string
	NodeID  graph.NodeID
}

// EvalResult bundles the full output of an evaluation. Grid is nil when
// Errors is non-empty.
type EvalResult struct {
	Scene    *graph.Scene
	Grid     *voxel.Grid
	Errors   []EvalError
	Warnings []EvalWarning
}

// Engine wraps the zygomys interpreter for phantom evaluation.
// It is safe for concurrent use; each call creates a fresh sandboxed
// environment for determinism.
type Engine struct {
	kernel  kernel.Kernel
	timeout time.Duration

	mu         sync.Mutex
	generation uint64
}

// NewEngine creates an Engine backed by the sdfx kernel.
func NewEngine() *Engine {
	return NewEngineWithKernel(sdfx.New())
}

// NewEngineWithKernel creates an Engine that builds shapes with k.
func NewEngineWithKernel(k kernel.Kernel) *Engine {
	return &Engine{kernel: k, timeout: EvalTimeout}
}

// Evaluate runs source and samples the resulting scene.
//
// Return semantics:
//   - On success: returns grid + nil errors + nil error
//   - On parse/eval/scene failure: returns nil grid + eval errors + nil error
//   - On fatal failure (timeout, panic, sampling): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*voxel.Grid, []EvalError, error) {
	res, err := e.Run(source)
	if err != nil {
		return nil, nil, err
	}
	return res.Grid, res.Errors, nil
}

// EvaluateScene runs source and returns the scene without validating or
// sampling it. Empty source yields an empty scene.
func (e *Engine) EvaluateScene(source string) (*graph.Scene, []EvalError, error) {
	g, evalErrs, err := e.script(source)
	if err != nil || len(evalErrs) > 0 {
		return nil, evalErrs, err
	}
	return g, nil, nil
}

// Run evaluates source, validates the scene and samples its grid. The
// script itself is bound by the evaluation timeout; sampling is not.
func (e *Engine) Run(source string) (*EvalResult, error) {
	g, evalErrs, err := e.script(source)
	if err != nil {
		return nil, err
	}
	res := &EvalResult{Scene: g, Errors: evalErrs}
	if len(evalErrs) > 0 {
		return res, nil
	}

	for _, v := range graph.Validate(g) {
		if v.Severity == graph.SeverityWarning {
			res.Warnings = append(res.Warnings, EvalWarning{Message: v.Message, NodeID: v.NodeID})
			continue
		}
		res.Errors = append(res.Errors, EvalError{Message: v.Error()})
	}
	if len(res.Errors) > 0 {
		return res, nil
	}

	res.Grid, err = graph.Voxelize(g, e.kernel)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return res, nil
}

// script runs source in a fresh sandbox under the evaluation timeout.
func (e *Engine) script(source string) (*graph.Scene, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		g, evalErrs := evaluate(source)
		ch <- evalResult{scene: g, errors: evalErrs}
	}()

	return waitWithTimeout(ch, gen, &e.mu, &e.generation, e.timeout)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func evaluate(source string) (*graph.Scene, []EvalError) {
	g := graph.New()

	// Empty source is a valid program that produces an empty scene.
	if strings.TrimSpace(source) == "" {
		return g, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	registerBuiltins(env, g)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err)
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err)
	}
	return g, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	// Fallback: no line info available.
	return []EvalError{{
		Message: strings.TrimSpace(msg),
	}}
}
