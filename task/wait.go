package task

import (
	"context"
	"sync"
)

// event is a one-shot mutex+cond+done-flag signal, mirroring the original
// source's sync_wait event.
type event struct {
	mu   sync.Mutex
	cond *sync.Cond
	done bool
}

func newEvent() *event {
	e := &event{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *event) signal() {
	e.mu.Lock()
	e.done = true
	e.mu.Unlock()
	e.cond.Broadcast()
}

func (e *event) wait() {
	e.mu.Lock()
	for !e.done {
		e.cond.Wait()
	}
	e.mu.Unlock()
}

// Wait constructs an internal wrapper task that awaits t, blocks the
// calling goroutine until it completes, and returns its result. It is the
// synchronous waiter used by a program's main goroutine to block on a
// server's Serve task.
func Wait[T any](ctx context.Context, t *Task[T]) (T, error) {
	e := newEvent()
	wrapper := New(func(ctx context.Context) (T, error) {
		return t.Await(ctx)
	})
	wrapper.SetContinuation(e.signal)
	wrapper.Start(ctx)
	e.wait()
	return wrapper.Result()
}
