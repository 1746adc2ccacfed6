// Package hostapi provides the bindings injected into exercise scripts:
// the capturing console and the template engine.
package hostapi

import (
	"github.com/dop251/goja"
)

// Binder is a binding value that has to be materialised on the VM that runs
// the script. Values that are not Binders are converted with vm.ToValue.
type Binder interface {
	Bind(vm *goja.Runtime) (goja.Value, error)
}

// Level identifies the console method that produced a line.
type Level string

// Console levels.
const (
	LevelLog   Level = "log"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelDebug Level = "debug"
	LevelTable Level = "table"
	LevelDir   Level = "dir"
)

// Line is a single formatted console line.
type Line struct {
	Level Level  `json:"level"`
	Text  string `json:"line"`
}

// CoerceString converts v the way String(v) does in JavaScript. Objects whose
// toString throws (e.g. Object.create(null)) fall back to "[object Object]".
func CoerceString(v goja.Value) (s string) {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(*goja.InterruptedError); ok {
				panic(ie)
			}
			s = "[object Object]"
		}
	}()
	return v.String()
}

// isNullish reports whether v is absent, undefined or null.
func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
