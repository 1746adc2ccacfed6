package hostapi

import (
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

var levelPrefix = map[Level]string{
	LevelInfo:  "[INFO] ",
	LevelWarn:  "[WARN] ",
	LevelError: "[ERROR] ",
}

// Collector is the console handed to exercise scripts. Every call appends one
// formatted line; lines are kept in call order.
type Collector struct {
	logger zerolog.Logger
	sink   func(Line)

	mu    sync.Mutex
	lines []string
}

// NewCollector creates an empty collector. sink, when non-nil, receives each
// line synchronously right after it is recorded.
func NewCollector(logger zerolog.Logger, sink func(Line)) *Collector {
	return &Collector{
		logger: logger,
		sink:   sink,
		lines:  []string{},
	}
}

// Bind builds the console object for vm.
func (c *Collector) Bind(vm *goja.Runtime) (goja.Value, error) {
	console := vm.NewObject()

	for _, level := range []Level{LevelLog, LevelInfo, LevelWarn, LevelError, LevelDebug} {
		if err := console.Set(string(level), c.printer(vm, level)); err != nil {
			return nil, err
		}
	}
	for _, level := range []Level{LevelTable, LevelDir} {
		if err := console.Set(string(level), c.dumper(vm, level)); err != nil {
			return nil, err
		}
	}

	return console, nil
}

// Lines returns a copy of the recorded lines.
func (c *Collector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len returns the number of recorded lines.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func (c *Collector) printer(vm *goja.Runtime, level Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = FormatArg(vm, arg)
		}
		c.append(level, levelPrefix[level]+strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (c *Collector) dumper(vm *goja.Runtime, level Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		text, ok := stringify(vm, arg)
		if !ok {
			text = FormatArg(vm, arg)
		}
		c.append(level, text)
		return goja.Undefined()
	}
}

func (c *Collector) append(level Level, text string) {
	c.mu.Lock()
	c.lines = append(c.lines, text)
	c.mu.Unlock()

	c.logger.Debug().Str("level", string(level)).Msg(text)

	if c.sink != nil {
		c.sink(Line{Level: level, Text: text})
	}
}

// FormatArg renders one console argument: null and undefined by name,
// objects as two-space indented JSON, everything else by string coercion.
// Objects that cannot be serialised (circular references, toJSON returning
// undefined) fall back to string coercion.
func FormatArg(vm *goja.Runtime, v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return CoerceString(v)
	}
	if _, isFunc := goja.AssertFunction(obj); isFunc {
		return CoerceString(obj)
	}

	if text, ok := stringify(vm, obj); ok {
		return text
	}
	return CoerceString(obj)
}

// stringify calls the realm's JSON.stringify(v, null, 2).
func stringify(vm *goja.Runtime, v goja.Value) (string, bool) {
	jsonVal := vm.Get("JSON")
	if isNullish(jsonVal) {
		return "", false
	}
	jsonObj := jsonVal.ToObject(vm)

	fn, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return "", false
	}

	if v == nil {
		v = goja.Undefined()
	}
	res, err := fn(jsonObj, v, goja.Null(), vm.ToValue(2))
	if err != nil {
		if ie, ok := err.(*goja.InterruptedError); ok {
			panic(ie)
		}
		return "", false
	}
	if isNullish(res) {
		return "", false
	}
	return res.String(), true
}
