package jsvm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewVMPool(t *testing.T) {
	pool := NewVMPool(DefaultPoolConfig())
	defer pool.Close()

	stats := pool.Stats()
	if stats.MaxSize != 4 {
		t.Errorf("expected MaxSize 4, got %d", stats.MaxSize)
	}
	if stats.Active != 0 {
		t.Errorf("expected Active 0, got %d", stats.Active)
	}
}

func TestNewVMPool_InvalidConfig(t *testing.T) {
	pool := NewVMPool(PoolConfig{MaxSize: 0, Warm: 10, AcquireTimeout: 0})
	defer pool.Close()

	stats := pool.Stats()
	if stats.MaxSize != 4 {
		t.Errorf("expected default MaxSize 4, got %d", stats.MaxSize)
	}
	if cap(pool.ready) != 4 {
		t.Errorf("expected warm set capped at MaxSize, got %d", cap(pool.ready))
	}
}

func TestVMPool_Prewarms(t *testing.T) {
	pool := NewVMPool(PoolConfig{MaxSize: 3, Warm: 2})
	defer pool.Close()

	deadline := time.Now().Add(2 * time.Second)
	for pool.Stats().Warm < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("pool did not pre-warm, stats %+v", pool.Stats())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestVMPool_AcquireRelease(t *testing.T) {
	pool := NewVMPool(PoolConfig{MaxSize: 2})
	defer pool.Close()

	vm, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("failed to acquire VM: %v", err)
	}
	if vm == nil {
		t.Fatal("acquired VM is nil")
	}
	if got := pool.Stats().Active; got != 1 {
		t.Errorf("expected Active 1, got %d", got)
	}

	pool.Release(vm)
	if got := pool.Stats().Active; got != 0 {
		t.Errorf("expected Active 0 after release, got %d", got)
	}
}

func TestVMPool_NeverReusesVM(t *testing.T) {
	pool := NewVMPool(PoolConfig{MaxSize: 1, Warm: 1})
	defer pool.Close()

	vm1, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := vm1.RunString(`var leaked = 42;`); err != nil {
		t.Fatalf("run: %v", err)
	}
	pool.Release(vm1)

	vm2, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer pool.Release(vm2)

	if vm1 == vm2 {
		t.Fatal("pool handed out the same VM twice")
	}
	v, err := vm2.RunString(`typeof leaked`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if v.String() != "undefined" {
		t.Errorf("global leaked across runs: typeof leaked = %s", v.String())
	}
}

func TestVMPool_AcquireTimeout(t *testing.T) {
	pool := NewVMPool(PoolConfig{MaxSize: 1, AcquireTimeout: 50 * time.Millisecond})
	defer pool.Close()

	vm, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer pool.Release(vm)

	start := time.Now()
	_, err = pool.Acquire(context.Background())
	if !errors.Is(err, ErrVMPoolExhausted) {
		t.Fatalf("expected ErrVMPoolExhausted, got %v", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("acquire returned before the timeout")
	}
}

func TestVMPool_AcquireContextCancelled(t *testing.T) {
	pool := NewVMPool(PoolConfig{MaxSize: 1, AcquireTimeout: time.Minute})
	defer pool.Close()

	vm, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer pool.Release(vm)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := pool.Acquire(ctx); !errors.Is(err, ErrVMPoolExhausted) {
		t.Fatalf("expected ErrVMPoolExhausted, got %v", err)
	}
}

func TestVMPool_WaiterGetsReleasedSlot(t *testing.T) {
	pool := NewVMPool(PoolConfig{MaxSize: 1, AcquireTimeout: time.Second})
	defer pool.Close()

	vm, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	got := make(chan error, 1)
	go func() {
		vm2, err := pool.Acquire(context.Background())
		if err == nil {
			pool.Release(vm2)
		}
		got <- err
	}()

	time.Sleep(20 * time.Millisecond)
	pool.Release(vm)

	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("waiter failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired a VM")
	}
}

func TestVMPool_Close(t *testing.T) {
	pool := NewVMPool(PoolConfig{MaxSize: 2, Warm: 2})

	if err := pool.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrVMPoolExhausted) {
		t.Errorf("expected ErrVMPoolExhausted after close, got %v", err)
	}
}

func TestVMPool_ConcurrentAccess(t *testing.T) {
	pool := NewVMPool(PoolConfig{MaxSize: 3, Warm: 1, AcquireTimeout: 5 * time.Second})
	defer pool.Close()

	var (
		wg      sync.WaitGroup
		running atomic.Int64
		peak    atomic.Int64
		failed  atomic.Int64
	)

	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vm, err := pool.Acquire(context.Background())
			if err != nil {
				failed.Add(1)
				return
			}
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			_, _ = vm.RunString(`1 + 1`)
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			pool.Release(vm)
		}()
	}
	wg.Wait()

	if failed.Load() != 0 {
		t.Errorf("%d acquires failed", failed.Load())
	}
	if peak.Load() > 3 {
		t.Errorf("expected at most 3 concurrent VMs, saw %d", peak.Load())
	}
	if got := pool.Stats().Active; got != 0 {
		t.Errorf("expected Active 0, got %d", got)
	}
}
