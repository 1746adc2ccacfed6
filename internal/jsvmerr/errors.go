// Package jsvmerr provides error types for the jsvm package.
// This package exists to avoid import cycles between jsvm and jsvm/hostapi.
package jsvmerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for JS VM operations.
var (
	// ErrTimeout indicates script execution exceeded the run timeout.
	ErrTimeout = errors.New("jsvm: execution timeout")

	// ErrCancelled indicates the caller cancelled the run.
	ErrCancelled = errors.New("jsvm: execution cancelled")

	// ErrStalled indicates the script awaits a promise that nothing can settle.
	ErrStalled = errors.New("jsvm: execution stalled: awaited promise can never settle")

	// ErrVMPoolExhausted indicates no VM instances available in the pool.
	ErrVMPoolExhausted = errors.New("jsvm: vm pool exhausted")

	// ErrInvalidBinding indicates a binding name that is not a JavaScript identifier.
	ErrInvalidBinding = errors.New("jsvm: invalid binding name")
)

// ScriptSyntaxError indicates the reduced source failed to compile.
type ScriptSyntaxError struct {
	File    string
	Message string
}

func (e *ScriptSyntaxError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("jsvm: syntax error in %s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("jsvm: syntax error: %s", e.Message)
}

// Is implements errors.Is for ScriptSyntaxError.
func (e *ScriptSyntaxError) Is(target error) bool {
	_, ok := target.(*ScriptSyntaxError)
	return ok
}

// ErrScriptSyntax is a sentinel for errors.Is matching.
var ErrScriptSyntax = &ScriptSyntaxError{}

// ExecutionError wraps a value thrown (or a promise rejected) by the script.
// Display is the string the runner reports to the user; it is only used
// when HasDisplay is set, since a script may throw an empty message.
type ExecutionError struct {
	Script     string
	Display    string
	HasDisplay bool
	Cause      error
}

// Thrown returns an ExecutionError that reports display to the user.
func Thrown(script, display string, cause error) *ExecutionError {
	return &ExecutionError{Script: script, Display: display, HasDisplay: true, Cause: cause}
}

func (e *ExecutionError) Error() string {
	msg := e.Display
	if !e.HasDisplay && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Script != "" {
		return fmt.Sprintf("jsvm: execution error in %s: %s", e.Script, msg)
	}
	return fmt.Sprintf("jsvm: execution error: %s", msg)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for ExecutionError.
func (e *ExecutionError) Is(target error) bool {
	_, ok := target.(*ExecutionError)
	return ok
}

// ErrExecution is a sentinel for errors.Is matching.
var ErrExecution = &ExecutionError{}

// Message returns the user-facing text for err: the thrown value's display
// string for an ExecutionError, the compiler message for a syntax error and
// the plain error text otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		if execErr.HasDisplay || execErr.Cause == nil {
			return execErr.Display
		}
		return Message(execErr.Cause)
	}
	var syntaxErr *ScriptSyntaxError
	if errors.As(err, &syntaxErr) {
		return "SyntaxError: " + syntaxErr.Message
	}
	return err.Error()
}
