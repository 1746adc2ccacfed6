// Package jsvm executes reduced exercise scripts on goja runtimes.
package jsvm

import "runbox/internal/jsvmerr"

// Re-export errors from jsvmerr so callers only import jsvm.
var (
	ErrTimeout         = jsvmerr.ErrTimeout
	ErrCancelled       = jsvmerr.ErrCancelled
	ErrStalled         = jsvmerr.ErrStalled
	ErrVMPoolExhausted = jsvmerr.ErrVMPoolExhausted
	ErrInvalidBinding  = jsvmerr.ErrInvalidBinding
	ErrScriptSyntax    = jsvmerr.ErrScriptSyntax
	ErrExecution       = jsvmerr.ErrExecution
)

// Type aliases for error types.
type ScriptSyntaxError = jsvmerr.ScriptSyntaxError
type ExecutionError = jsvmerr.ExecutionError
