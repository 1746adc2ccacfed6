// Package runner is the single entry point for running exercise code: it
// decides whether a module may run in the sandbox, reduces the source and
// hands it to the VM executor.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"runbox/internal/jsvm"
	"runbox/internal/jsvm/hostapi"
	"runbox/internal/reducer"
)

// Run outcomes reported to the Recorder.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnsupported = "unsupported"
)

// TemplateEngineBinding is the name exercise code uses for the template engine.
const TemplateEngineBinding = "templateEngine"

// Eligibility decides which modules can run in the sandbox.
type Eligibility interface {
	CanRunInBrowser(moduleID string) bool
}

// Modules is a fixed set of sandbox-eligible module IDs.
type Modules map[string]bool

// CanRunInBrowser implements Eligibility.
func (m Modules) CanRunInBrowser(moduleID string) bool {
	return m[moduleID]
}

// Recorder receives one observation per run.
type Recorder interface {
	ObserveRun(moduleID, outcome string, duration time.Duration)
}

// Runner executes exercise code. It is safe for concurrent use.
type Runner struct {
	config   Config
	eligible Eligibility
	reducer  *reducer.Reducer
	executor *jsvm.Executor
	recorder Recorder
	logger   zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder reports every run to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithReducer replaces the default source reducer.
func WithReducer(red *reducer.Reducer) Option {
	return func(r *Runner) { r.reducer = red }
}

// New creates a runner with its own VM pool.
func New(cfg Config, eligible Eligibility, logger zerolog.Logger, opts ...Option) *Runner {
	cfg = cfg.Normalize()
	r := &Runner{
		config:   cfg,
		eligible: eligible,
		executor: jsvm.NewExecutor(cfg.ExecutorConfig(), logger),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.reducer == nil {
		r.reducer = reducer.New(reducer.WithLogger(logger))
	}
	return r
}

type runOptions struct {
	runID  string
	events func(Event)
}

// RunOption customises a single Run call.
type RunOption func(*runOptions)

// WithRunID sets the run ID instead of generating one.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

// WithEvents streams output lines and the final result to fn. fn is called
// from the goroutine executing the run.
func WithEvents(fn func(Event)) RunOption {
	return func(o *runOptions) { o.events = fn }
}

// Run executes code for moduleID. It never panics and never returns an
// error: every failure is reported in RunResult.Error.
func (r *Runner) Run(ctx context.Context, code, moduleID string, opts ...RunOption) (result *jsvm.RunResult) {
	o := runOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}

	logger := r.logger.With().Str("run_id", o.runID).Str("module", moduleID).Logger()
	start := time.Now()
	unsupported := false

	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("run panicked")
			result = jsvm.NewErrorResult(nil, fmt.Sprintf("Internal error: %v", p), time.Since(start).Milliseconds())
		}
		r.finish(logger, moduleID, result, unsupported, time.Since(start), o)
	}()

	if r.eligible == nil || !r.eligible.CanRunInBrowser(moduleID) {
		logger.Debug().Msg("module not sandbox-eligible")
		unsupported = true
		return jsvm.NewInfoResult(r.config.Advisory)
	}

	reduced := r.reducer.Reduce(code)

	execOpts := []jsvm.ExecOption{jsvm.WithLogger(logger)}
	if o.events != nil {
		execOpts = append(execOpts, jsvm.WithSink(func(line hostapi.Line) {
			o.events(NewOutputEvent(o.runID, line))
		}))
	}

	bindings := map[string]any{
		TemplateEngineBinding: hostapi.NewTemplateEngine(logger),
	}
	return r.executor.Execute(ctx, reduced, bindings, execOpts...)
}

func (r *Runner) finish(logger zerolog.Logger, moduleID string, result *jsvm.RunResult, unsupported bool, elapsed time.Duration, o runOptions) {
	outcome := OutcomeOK
	switch {
	case result.Failed():
		outcome = OutcomeError
	case unsupported:
		outcome = OutcomeUnsupported
	}

	logger.Info().
		Str("outcome", outcome).
		Int("lines", len(result.Output)).
		Int64("duration_ms", result.DurationMs).
		Msg("run finished")

	if r.recorder != nil {
		r.recorder.ObserveRun(moduleID, outcome, elapsed)
	}
	if o.events != nil {
		o.events(NewDoneEvent(o.runID, result))
	}
}

// CanRun reports whether moduleID is sandbox-eligible.
func (r *Runner) CanRun(moduleID string) bool {
	return r.eligible != nil && r.eligible.CanRunInBrowser(moduleID)
}

// PoolStats returns the executor's VM pool statistics.
func (r *Runner) PoolStats() jsvm.PoolStats {
	return r.executor.Pool().Stats()
}

// Close releases the VM pool.
func (r *Runner) Close() error {
	return r.executor.Close()
}
