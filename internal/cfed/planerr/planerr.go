// Package planerr - Error taxonomy of instrumentation planning.
//
// Every fatal planning outcome is a *PlanError carrying one of three kinds:
//
//   - ErrConfiguration: bad input (unknown technique, unsupported ISA family,
//     malformed CFG, invalid selectivity level)
//   - ErrUnsupportedMode: the technique has no sound selective or
//     intra-block variant
//   - ErrConstraintViolation: the function is infeasible for the technique
//     (bitmask too narrow, rejection sampling exhausted, product overflow)
//
// Callers distinguish kinds with errors.Is:
//
//	if errors.Is(err, planerr.ErrConstraintViolation) {
//	    // fall back to another technique for this function
//	}
//
// Example output:
//
//	main: block 33: SCFC supports at most 32 blocks, function has 40
//
//	Suggestion: Use RACFED or YACCA for large functions
package planerr

import (
	"errors"
	"fmt"
)

// Kinds of planning failures.
var (
	ErrConfiguration       = errors.New("configuration error")
	ErrUnsupportedMode     = errors.New("unsupported mode")
	ErrConstraintViolation = errors.New("constraint violation")
)

// NoBlock marks an error that is not tied to a block.
const NoBlock = -1

// PlanError describes why planning a function failed.
//
// Thread Safety: Immutable after creation, safe for concurrent use.
type PlanError struct {
	Kind       error  // One of the Err* sentinels
	Function   string // Function being planned (may be empty)
	Technique  string // Technique name (may be empty)
	Block      int    // Block id, or NoBlock
	Message    string // Human-readable description
	Suggestion string // Optional hint for fixing (empty if none)
	Err        error  // Wrapped cause (may be nil)
}

// Error implements the error interface.
//
// Format: function: [block N: ]message
//
// If Suggestion is non-empty, it's appended on a new paragraph.
func (e *PlanError) Error() string {
	result := e.Message
	if e.Block != NoBlock {
		result = fmt.Sprintf("block %d: %s", e.Block, result)
	}
	if e.Function != "" {
		result = fmt.Sprintf("%s: %s", e.Function, result)
	}
	if e.Err != nil {
		result += ": " + e.Err.Error()
	}
	if e.Suggestion != "" {
		result += fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion)
	}
	return result
}

// Is matches the error's kind.
func (e *PlanError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the wrapped cause.
func (e *PlanError) Unwrap() error { return e.Err }

// Configuration creates a configuration error.
func Configuration(format string, args ...any) *PlanError {
	return newError(ErrConfiguration, format, args...)
}

// UnsupportedMode creates an unsupported-mode error for a technique.
func UnsupportedMode(technique, mode string) *PlanError {
	err := newError(ErrUnsupportedMode, "%s mode is not supported by %s", mode, technique)
	err.Technique = technique
	return err
}

// Constraint creates a constraint violation tied to a block.
func Constraint(block int, format string, args ...any) *PlanError {
	err := newError(ErrConstraintViolation, format, args...)
	err.Block = block
	return err
}

func newError(kind error, format string, args ...any) *PlanError {
	return &PlanError{Kind: kind, Block: NoBlock, Message: fmt.Sprintf(format, args...)}
}

// WithSuggestion sets the suggestion and returns e.
func (e *PlanError) WithSuggestion(s string) *PlanError {
	e.Suggestion = s
	return e
}

// WithCause sets the wrapped cause and returns e.
func (e *PlanError) WithCause(err error) *PlanError {
	e.Err = err
	return e
}

// Annotate fills in the function and technique of err when it is a
// *PlanError, and wraps any other error as a configuration error.
func Annotate(err error, function, technique string) error {
	if err == nil {
		return nil
	}
	var pe *PlanError
	if !errors.As(err, &pe) {
		return &PlanError{Kind: ErrConfiguration, Function: function, Technique: technique, Block: NoBlock, Message: "planning failed", Err: err}
	}
	if pe.Function == "" {
		pe.Function = function
	}
	if pe.Technique == "" {
		pe.Technique = technique
	}
	return pe
}
