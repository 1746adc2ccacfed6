package jsvm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"runbox/internal/jsvm/hostapi"
	"runbox/internal/jsvmerr"
)

// DefaultScriptName names the compiled program in syntax errors and stack traces.
const DefaultScriptName = "exercise.ts"

var identifierRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Config holds configuration for the Executor.
type Config struct {
	Pool    PoolConfig
	Sandbox SandboxConfig
}

// DefaultConfig returns default executor configuration.
func DefaultConfig() Config {
	return Config{
		Pool:    DefaultPoolConfig(),
		Sandbox: DefaultSandboxConfig(),
	}
}

// Executor runs reduced exercise sources. It is safe for concurrent use;
// each run gets its own VM, console and event loop.
type Executor struct {
	pool   *VMPool
	config Config
	logger zerolog.Logger
	closed atomic.Bool
}

// NewExecutor creates an executor backed by a new VM pool.
func NewExecutor(cfg Config, logger zerolog.Logger) *Executor {
	return &Executor{
		pool:   NewVMPool(cfg.Pool),
		config: cfg,
		logger: logger,
	}
}

type execOptions struct {
	sink       func(hostapi.Line)
	scriptName string
	logger     *zerolog.Logger
}

// ExecOption customises a single Execute call.
type ExecOption func(*execOptions)

// WithSink streams every console line to fn as soon as it is appended.
func WithSink(fn func(hostapi.Line)) ExecOption {
	return func(o *execOptions) { o.sink = fn }
}

// WithScriptName sets the program name used in compile errors.
func WithScriptName(name string) ExecOption {
	return func(o *execOptions) { o.scriptName = name }
}

// WithLogger replaces the executor logger for one run, typically with one
// carrying run fields.
func WithLogger(logger zerolog.Logger) ExecOption {
	return func(o *execOptions) { o.logger = &logger }
}

// Pool returns the executor's VM pool.
func (e *Executor) Pool() *VMPool {
	return e.pool
}

// Execute runs source as the body of an async function whose parameters
// are the binding names. It always returns a result; whatever the script
// throws, and any failure to start it, ends up in RunResult.Error.
func (e *Executor) Execute(ctx context.Context, source string, bindings map[string]any, opts ...ExecOption) *RunResult {
	o := execOptions{scriptName: DefaultScriptName}
	for _, opt := range opts {
		opt(&o)
	}
	logger := e.logger
	if o.logger != nil {
		logger = *o.logger
	}

	collector := hostapi.NewCollector(logger, o.sink)

	if e.closed.Load() {
		return NewErrorResult(collector.Lines(), "Executor is closed", 0)
	}

	vm, err := e.pool.Acquire(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("no vm available")
		return NewErrorResult(collector.Lines(), e.display(err), 0)
	}
	defer e.pool.Release(vm)

	start := time.Now()
	err = e.run(ctx, vm, source, bindings, collector, o.scriptName, logger)
	result := &RunResult{
		Output:     collector.Lines(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		msg := e.display(err)
		result.Error = &msg
		logger.Debug().Err(err).Int64("duration_ms", result.DurationMs).Msg("script failed")
		return result
	}

	logger.Debug().Int("lines", len(result.Output)).Int64("duration_ms", result.DurationMs).Msg("script finished")
	return result
}

func (e *Executor) run(ctx context.Context, vm *goja.Runtime, source string, bindings map[string]any, collector *hostapi.Collector, scriptName string, logger zerolog.Logger) error {
	names, values, err := e.prepareBindings(vm, bindings, collector, scriptName)
	if err != nil {
		return err
	}

	sandbox := NewSandbox(e.config.Sandbox, logger)
	execCtx, err := sandbox.Setup(ctx, vm)
	if err != nil {
		return fmt.Errorf("setup sandbox: %w", err)
	}
	defer sandbox.Cleanup(vm)

	prg, err := goja.Compile(scriptName, wrapSource(names, source), false)
	if err != nil {
		return e.wrapExecutionError(err, scriptName)
	}

	fnVal, err := vm.RunProgram(prg)
	if err != nil {
		return e.wrapExecutionError(err, scriptName)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return &jsvmerr.ExecutionError{Script: scriptName, Cause: errors.New("wrapper is not a function")}
	}

	ret, err := fn(goja.Undefined(), values...)
	if err != nil {
		return e.wrapExecutionError(err, scriptName)
	}

	promise, ok := ret.Export().(*goja.Promise)
	if !ok {
		return nil
	}

	if err := sandbox.loop.await(execCtx, promise); err != nil {
		if ctxErr := execCtx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			err = interruptCause(ctxErr)
		}
		return e.wrapExecutionError(err, scriptName)
	}

	if promise.State() == goja.PromiseStateRejected {
		return jsvmerr.Thrown(scriptName, thrownMessage(promise.Result()), errors.New("promise rejected"))
	}
	return nil
}

// prepareBindings returns the sorted binding names and their VM values.
// The run's console is always injected and replaces any caller value.
func (e *Executor) prepareBindings(vm *goja.Runtime, bindings map[string]any, collector *hostapi.Collector, scriptName string) ([]string, []goja.Value, error) {
	all := make(map[string]any, len(bindings)+1)
	for name, v := range bindings {
		all[name] = v
	}
	all["console"] = collector

	names := make([]string, 0, len(all))
	for name := range all {
		if !identifierRe.MatchString(name) {
			return nil, nil, jsvmerr.Thrown(scriptName, fmt.Sprintf("Invalid binding name %q", name), ErrInvalidBinding)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([]goja.Value, len(names))
	for i, name := range names {
		v, err := toValue(vm, all[name])
		if err != nil {
			return nil, nil, fmt.Errorf("bind %s: %w", name, err)
		}
		values[i] = v
	}
	return names, values, nil
}

func toValue(vm *goja.Runtime, v any) (goja.Value, error) {
	switch b := v.(type) {
	case hostapi.Binder:
		return b.Bind(vm)
	case goja.Value:
		return b, nil
	default:
		return vm.ToValue(v), nil
	}
}

// wrapSource builds the wrapper function. The body sits on its own lines so
// compiler positions stay readable.
func wrapSource(names []string, source string) string {
	var sb strings.Builder
	sb.WriteString("(function(")
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString(") { return (async function() {\n")
	sb.WriteString(source)
	sb.WriteString("\n})(); })")
	return sb.String()
}

// display turns a run error into the string shown to the user.
func (e *Executor) display(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return fmt.Sprintf("Execution timed out after %s", e.config.Sandbox.Timeout)
	case errors.Is(err, ErrCancelled):
		return "Execution cancelled"
	case errors.Is(err, ErrStalled):
		return "Execution stalled: the script awaits a promise that can never settle"
	case errors.Is(err, ErrVMPoolExhausted):
		return "Runner is busy, try again"
	}
	return jsvmerr.Message(err)
}

// stackOverflowMessage is what a browser reports when recursion runs past
// the call stack limit.
const stackOverflowMessage = "RangeError: Maximum call stack size exceeded"

// wrapExecutionError converts goja errors to structured errors.
func (e *Executor) wrapExecutionError(err error, scriptName string) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		cause, ok := interrupted.Value().(error)
		if !ok {
			cause = fmt.Errorf("interrupted: %v", interrupted.Value())
		}
		return &jsvmerr.ExecutionError{Script: scriptName, Cause: cause}
	}

	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return jsvmerr.Thrown(scriptName, stackOverflowMessage, err)
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return jsvmerr.Thrown(scriptName, thrownMessage(exception.Value()), err)
	}

	var compileErr *goja.CompilerSyntaxError
	if errors.As(err, &compileErr) {
		return &jsvmerr.ScriptSyntaxError{
			File:    scriptName,
			Message: compileErr.Message,
		}
	}

	return &jsvmerr.ExecutionError{Script: scriptName, Cause: err}
}

// thrownMessage renders a thrown value: the message of an Error-like
// object, otherwise the value coerced to a string.
func thrownMessage(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := messageOf(obj); msg != nil {
			return hostapi.CoerceString(msg)
		}
	}
	return hostapi.CoerceString(v)
}

func messageOf(obj *goja.Object) (msg goja.Value) {
	defer func() {
		if recover() != nil {
			msg = nil
		}
	}()
	m := obj.Get("message")
	if m == nil || goja.IsUndefined(m) || goja.IsNull(m) {
		return nil
	}
	return m
}

// Close shuts down the executor and its pool.
func (e *Executor) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.pool.Close()
}
