package runner

import (
	"time"

	"runbox/internal/jsvm"
)

// DefaultAdvisory is the output returned for modules that cannot run in the sandbox.
const DefaultAdvisory = "This exercise calls external services or reads local files, so it can't run here. " +
	"Run it locally from the course repository to see its output."

// Config holds configuration for the exercise runner.
type Config struct {
	// Timeout is the maximum wall-clock duration of one run. Zero disables it.
	// Default is 30 seconds.
	Timeout time.Duration `json:"timeout"`

	// PoolSize is the number of runs that may execute at once.
	// Default is 4.
	PoolSize int `json:"pool_size"`

	// WarmVMs is the number of VMs prepared ahead of time.
	// Default is 2.
	WarmVMs int `json:"warm_vms"`

	// AcquireTimeout bounds the wait for a free VM.
	// Default is 5 seconds.
	AcquireTimeout time.Duration `json:"acquire_timeout"`

	// MaxCallStackSize limits script recursion depth.
	// Default is 1024.
	MaxCallStackSize int `json:"max_call_stack_size"`

	// Advisory is the output line for modules that are not sandbox-eligible.
	Advisory string `json:"advisory"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:          30 * time.Second,
		PoolSize:         4,
		WarmVMs:          2,
		AcquireTimeout:   5 * time.Second,
		MaxCallStackSize: 1024,
		Advisory:         DefaultAdvisory,
	}
}

// WithTimeout returns a copy of the config with the specified timeout.
func (c Config) WithTimeout(d time.Duration) Config {
	c.Timeout = d
	return c
}

// WithPoolSize returns a copy of the config with the specified pool size.
func (c Config) WithPoolSize(n int) Config {
	c.PoolSize = n
	return c
}

// WithAdvisory returns a copy of the config with the specified advisory text.
func (c Config) WithAdvisory(msg string) Config {
	c.Advisory = msg
	return c
}

// Normalize fills unset or out-of-range fields with defaults.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	if c.PoolSize <= 0 {
		c.PoolSize = def.PoolSize
	}
	if c.WarmVMs < 0 {
		c.WarmVMs = 0
	}
	if c.WarmVMs > c.PoolSize {
		c.WarmVMs = c.PoolSize
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = def.AcquireTimeout
	}
	if c.MaxCallStackSize <= 0 {
		c.MaxCallStackSize = def.MaxCallStackSize
	}
	if c.Advisory == "" {
		c.Advisory = def.Advisory
	}
	return c
}

// ExecutorConfig maps the runner settings onto the VM executor.
func (c Config) ExecutorConfig() jsvm.Config {
	return jsvm.Config{
		Pool: jsvm.PoolConfig{
			MaxSize:          c.PoolSize,
			Warm:             c.WarmVMs,
			AcquireTimeout:   c.AcquireTimeout,
			MaxCallStackSize: c.MaxCallStackSize,
		},
		Sandbox: jsvm.SandboxConfig{
			Timeout: c.Timeout,
		},
	}
}
