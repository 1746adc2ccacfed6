package jsvm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// SandboxConfig holds configuration for the sandbox environment.
type SandboxConfig struct {
	// Timeout is the maximum wall-clock time for one run. Zero disables it.
	Timeout time.Duration
}

// DefaultSandboxConfig returns default sandbox configuration.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Timeout: 30 * time.Second,
	}
}

// Sandbox prepares a VM for a single run: it installs the timer globals and
// interrupts the VM when the run context ends.
type Sandbox struct {
	config SandboxConfig
	logger zerolog.Logger

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{} // signals cleanup to interrupt goroutine
	loop       *eventLoop
}

// NewSandbox creates a new sandbox with the given configuration.
func NewSandbox(cfg SandboxConfig, logger zerolog.Logger) *Sandbox {
	return &Sandbox{
		config: cfg,
		logger: logger,
	}
}

// Setup binds vm to ctx and installs the event loop. The returned context
// carries the run timeout.
func (s *Sandbox) Setup(ctx context.Context, vm *goja.Runtime) (context.Context, error) {
	s.mu.Lock()

	var (
		execCtx context.Context
		cancel  context.CancelFunc
	)
	if s.config.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
	} else {
		execCtx, cancel = context.WithCancel(ctx)
	}
	s.cancelFunc = cancel
	s.done = make(chan struct{})
	done := s.done
	s.loop = newEventLoop(vm)
	loop := s.loop
	s.mu.Unlock()

	go func() {
		select {
		case <-execCtx.Done():
			cause := interruptCause(execCtx.Err())
			s.logger.Debug().Err(cause).Msg("interrupting script")
			vm.Interrupt(cause)
		case <-done:
			return
		}
	}()

	if err := loop.install(); err != nil {
		cancel()
		return nil, err
	}

	return execCtx, nil
}

// Cleanup stops the interrupt goroutine, cancels the run context and drops
// pending timers.
func (s *Sandbox) Cleanup(vm *goja.Runtime) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Signal goroutine to stop before cancelling context
	if s.done != nil {
		close(s.done)
		s.done = nil
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}

	if s.loop != nil {
		s.loop.uninstall()
		s.loop = nil
	}

	vm.ClearInterrupt()
}

// interruptCause maps a finished run context to the error reported for it.
func interruptCause(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrCancelled
}
