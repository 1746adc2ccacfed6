package jsvm

import (
	"context"
	"sort"
	"time"

	"github.com/dop251/goja"

	"runbox/internal/jsvmerr"
)

// minInterval keeps setInterval(fn, 0) from spinning the loop.
const minInterval = time.Millisecond

type timer struct {
	id       int64
	fn       goja.Callable
	args     []goja.Value
	due      time.Time
	interval time.Duration
	repeat   bool
}

// eventLoop provides setTimeout/setInterval for a single run. It is driven
// from the goroutine that owns the VM, so the timer table needs no locking.
type eventLoop struct {
	vm     *goja.Runtime
	timers map[int64]*timer
	nextID int64
}

func newEventLoop(vm *goja.Runtime) *eventLoop {
	return &eventLoop{
		vm:     vm,
		timers: make(map[int64]*timer),
	}
}

// install exposes the timer functions as realm globals.
func (l *eventLoop) install() error {
	globals := map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout":    func(call goja.FunctionCall) goja.Value { return l.schedule(call, false) },
		"setInterval":   func(call goja.FunctionCall) goja.Value { return l.schedule(call, true) },
		"clearTimeout":  l.clear,
		"clearInterval": l.clear,
	}
	for name, fn := range globals {
		if err := l.vm.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// uninstall removes the timer globals and drops pending timers.
func (l *eventLoop) uninstall() {
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"} {
		_ = l.vm.GlobalObject().Delete(name)
	}
	l.timers = make(map[int64]*timer)
}

// Pending returns the number of scheduled timers.
func (l *eventLoop) Pending() int {
	return len(l.timers)
}

func (l *eventLoop) schedule(call goja.FunctionCall, repeat bool) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(l.vm.NewTypeError("callback must be a function"))
	}

	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	if repeat && delay < minInterval {
		delay = minInterval
	}

	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	l.nextID++
	l.timers[l.nextID] = &timer{
		id:       l.nextID,
		fn:       fn,
		args:     args,
		due:      time.Now().Add(delay),
		interval: delay,
		repeat:   repeat,
	}
	return l.vm.ToValue(l.nextID)
}

func (l *eventLoop) clear(call goja.FunctionCall) goja.Value {
	delete(l.timers, call.Argument(0).ToInteger())
	return goja.Undefined()
}

// await runs timers until p settles. It fails with ErrStalled when p is
// pending and no timer is left that could settle it.
func (l *eventLoop) await(ctx context.Context, p *goja.Promise) error {
	for p.State() == goja.PromiseStatePending {
		next := l.earliest()
		if next == nil {
			return jsvmerr.ErrStalled
		}

		if wait := time.Until(next.due); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}

		if err := l.runDue(); err != nil {
			return err
		}
	}
	return nil
}

func (l *eventLoop) earliest() *timer {
	var next *timer
	for _, tm := range l.timers {
		if next == nil || tm.due.Before(next.due) || (tm.due.Equal(next.due) && tm.id < next.id) {
			next = tm
		}
	}
	return next
}

// runDue fires every timer that is due, ordered by due time then creation
// order. Timers created by the callbacks wait for the next round.
func (l *eventLoop) runDue() error {
	now := time.Now()

	var due []*timer
	for _, tm := range l.timers {
		if !tm.due.After(now) {
			due = append(due, tm)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})

	for _, tm := range due {
		if _, live := l.timers[tm.id]; !live {
			continue
		}
		if tm.repeat {
			tm.due = now.Add(tm.interval)
		} else {
			delete(l.timers, tm.id)
		}
		if _, err := tm.fn(goja.Undefined(), tm.args...); err != nil {
			return err
		}
	}
	return nil
}
