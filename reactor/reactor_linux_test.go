//go:build linux

package reactor_test

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/brickingsoft/sheep/reactor"
)

func TestNopCompletes(t *testing.T) {
	r, err := reactor.New(reactor.WithQueueDepth(4))
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	defer r.Close()

	done := make(chan struct{})
	go func() {
		ts := syscall.NsecToTimespec(time.Second.Nanoseconds())
		for {
			if stepErr := r.OneStep(&ts); stepErr != nil {
				return
			}
			select {
			case <-done:
				return
			default:
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, nopErr := r.Nop(ctx)
	close(done)
	if nopErr != nil {
		t.Fatalf("nop failed: %v", nopErr)
	}
	if res != 0 {
		t.Fatalf("expected nop result 0, got %d", res)
	}
}

func TestSubmitUnblocksOnContextCancelBeforeCompletion(t *testing.T) {
	r, err := reactor.New(reactor.WithQueueDepth(4))
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	defer r.Close()

	done := make(chan struct{})
	go func() {
		ts := syscall.NsecToTimespec((10 * time.Millisecond).Nanoseconds())
		for {
			if stepErr := r.OneStep(&ts); stepErr != nil {
				return
			}
			select {
			case <-done:
				return
			default:
			}
		}
	}()
	defer close(done)

	// A long timeout op that would not complete on its own before the test
	// would time out; cancelling ctx must unblock the caller immediately
	// without requiring the kernel op to ever actually complete.
	longWait := syscall.NsecToTimespec((10 * time.Second).Nanoseconds())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, timeoutErr := r.Timeout(ctx, &longWait)
	if timeoutErr == nil {
		t.Fatal("expected an error from a ctx-cancelled submit")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("submit took %v to unblock after ctx cancellation", elapsed)
	}

	// The reactor must still be usable afterward: the cancellation path
	// must not have corrupted the token pool or the live-token table.
	nopCtx, nopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer nopCancel()
	if _, nopErr := r.Nop(nopCtx); nopErr != nil {
		t.Fatalf("nop after cancellation failed: %v", nopErr)
	}
}

func TestPoolPopulatesOneReactorPerWorker(t *testing.T) {
	p, err := reactor.NewPool(3, reactor.WithQueueDepth(4))
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	defer p.Close()
	if p.Len() != 3 {
		t.Fatalf("expected 3 reactors, got %d", p.Len())
	}
	if p.Get(0) == nil || p.Get(1) == nil || p.Get(2) == nil {
		t.Fatal("expected all reactor slots populated")
	}
}
