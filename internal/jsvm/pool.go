package jsvm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
)

// PoolConfig holds configuration for the VM pool.
type PoolConfig struct {
	// MaxSize is the maximum number of VMs running at once.
	MaxSize int
	// Warm is the number of fresh VMs kept ready for the next runs.
	Warm int
	// AcquireTimeout is the maximum time to wait for a free slot.
	AcquireTimeout time.Duration
	// MaxCallStackSize limits JS recursion depth. Zero keeps goja's default.
	MaxCallStackSize int
}

// DefaultPoolConfig returns a PoolConfig with sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:          4,
		Warm:             2,
		AcquireTimeout:   5 * time.Second,
		MaxCallStackSize: 1024,
	}
}

// VMPool hands out fresh goja runtimes. A runtime serves exactly one run
// and is dropped on Release, so nothing a script defines on the global
// object can reach the next run. Fresh runtimes are created ahead of time
// in the background to keep VM construction off the request path.
type VMPool struct {
	slots          chan struct{}
	ready          chan *goja.Runtime
	maxSize        int
	acquireTimeout time.Duration
	maxStack       int

	createCount atomic.Int64
	activeCount atomic.Int64
	refilling   atomic.Bool

	mu       sync.Mutex
	closed   bool
	closedCh chan struct{}
	wg       sync.WaitGroup
}

// NewVMPool creates a new VM pool with the given configuration.
func NewVMPool(cfg PoolConfig) *VMPool {
	def := DefaultPoolConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.Warm < 0 {
		cfg.Warm = 0
	}
	if cfg.Warm > cfg.MaxSize {
		cfg.Warm = cfg.MaxSize
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = def.AcquireTimeout
	}

	p := &VMPool{
		slots:          make(chan struct{}, cfg.MaxSize),
		ready:          make(chan *goja.Runtime, cfg.Warm),
		maxSize:        cfg.MaxSize,
		acquireTimeout: cfg.AcquireTimeout,
		maxStack:       cfg.MaxCallStackSize,
		closedCh:       make(chan struct{}),
	}
	p.refill()

	return p
}

// Acquire reserves a run slot and returns a fresh VM. It blocks until a
// slot frees up, the context is done, the acquire timeout passes or the
// pool is closed.
func (p *VMPool) Acquire(ctx context.Context) (*goja.Runtime, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrVMPoolExhausted
	}
	p.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrVMPoolExhausted
	case <-timer.C:
		return nil, ErrVMPoolExhausted
	case <-p.closedCh:
		return nil, ErrVMPoolExhausted
	}

	var vm *goja.Runtime
	select {
	case vm = <-p.ready:
	default:
		vm = p.newVM()
	}

	p.activeCount.Add(1)
	p.refill()
	return vm, nil
}

// Release frees the slot held by vm. The VM itself is discarded.
func (p *VMPool) Release(vm *goja.Runtime) {
	if vm == nil {
		return
	}
	vm.ClearInterrupt()

	p.activeCount.Add(-1)
	select {
	case <-p.slots:
	default:
	}
}

// Close shuts down the pool. In-flight runs finish normally.
func (p *VMPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closedCh)
	p.mu.Unlock()

	p.wg.Wait()

	for {
		select {
		case <-p.ready:
		default:
			return nil
		}
	}
}

func (p *VMPool) newVM() *goja.Runtime {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if p.maxStack > 0 {
		vm.SetMaxCallStackSize(p.maxStack)
	}
	p.createCount.Add(1)
	return vm
}

// refill tops up the warm set in the background. At most one refill
// goroutine runs at a time.
func (p *VMPool) refill() {
	if cap(p.ready) == 0 || !p.refilling.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.refilling.Store(false)
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.refilling.Store(false)

		for len(p.ready) < cap(p.ready) {
			select {
			case <-p.closedCh:
				return
			default:
			}
			select {
			case p.ready <- p.newVM():
			default:
				return
			}
		}
	}()
}

// Stats returns current pool statistics.
func (p *VMPool) Stats() PoolStats {
	return PoolStats{
		MaxSize: p.maxSize,
		Created: int(p.createCount.Load()),
		Active:  int(p.activeCount.Load()),
		Warm:    len(p.ready),
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	MaxSize int
	Created int
	Active  int
	Warm    int
}
