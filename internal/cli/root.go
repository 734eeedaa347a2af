// Package cli implements the cobra commands of voxbrep.
//
// Each subcommand (convert, phantom, config) lives in its own file. This
// file defines the root command, the global flags and the error handling
// shared by every subcommand.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/chazu/voxbrep/pkg/diag"
	"github.com/spf13/cobra"
)

// Version, Commit and Date are set from the main package.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// ExitCode is a process exit status.
type ExitCode int

const (
	ExitOK ExitCode = iota
	ExitGeneralError
	ExitConfiguration
	ExitInvalidGrid
	ExitReconstruction
	ExitCAD
)

// globals holds the flags bound on the root command.
type globals struct {
	jsonOutput bool
	quiet      bool
}

// CLIError carries the exit code a failure maps to.
type CLIError struct {
	Code    ExitCode
	Message string
	Err     error
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error { return e.Err }

func wrapError(code ExitCode, msg string, err error) *CLIError {
	return &CLIError{Code: code, Message: msg, Err: err}
}

// exitCode maps an error to its exit status. Pipeline errors are sorted by
// their diag code.
func exitCode(err error) ExitCode {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, diag.ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, diag.ErrInvalidGrid):
		return ExitInvalidGrid
	case errors.Is(err, diag.ErrUnrepairableTopology),
		errors.Is(err, diag.ErrDegenerateShell),
		errors.Is(err, diag.ErrValidation):
		return ExitReconstruction
	default:
		return ExitGeneralError
	}
}

// NewRootCommand creates the root command with every subcommand registered.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "voxbrep",
		Short: "Voxel grid to boundary representation converter",
		Long: `voxbrep turns a binary occupancy grid into a closed, manifold solid.

The grid is meshed with marching cubes, repaired, optionally smoothed and
simplified, split into outer and void shells, and handed to FreeCAD for
export as BREP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "Suppress stage logging")

	rootCmd.AddCommand(newConvertCommand(g))
	rootCmd.AddCommand(newPhantomCommand(g))
	rootCmd.AddCommand(newConfigCommand(g))

	return rootCmd
}

// Execute runs the root command and exits with the mapped status on error.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		jsonOut, _ := rootCmd.PersistentFlags().GetBool("json")
		printError(os.Stderr, err, jsonOut)
		os.Exit(int(exitCode(err)))
	}
}

// printError writes err to w as text or as a JSON error object.
func printError(w io.Writer, err error, jsonOut bool) {
	if !jsonOut {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	body := map[string]any{"message": err.Error()}
	var de *diag.Error
	if errors.As(err, &de) {
		body["code"] = de.Code
		if de.Stage != diag.StageNone {
			body["stage"] = de.Stage
		}
		if de.Metric != diag.MetricNone {
			body["metric"] = de.Metric
			body["count"] = de.Count
		}
	}
	data, _ := json.MarshalIndent(map[string]any{"error": body}, "", "  ")
	fmt.Fprintln(w, string(data))
}

// logger returns the stage logger for a command: stderr, or nothing when
// quiet.
func (g *globals) logger(cmd *cobra.Command) *log.Logger {
	if g.quiet {
		return log.New(io.Discard, "", 0)
	}
	return log.New(cmd.ErrOrStderr(), "voxbrep: ", log.LstdFlags)
}

// writeJSON prints v indented to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
