//go:build linux

package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/brickingsoft/sheep/conn"
	"github.com/brickingsoft/sheep/pool"
	"github.com/brickingsoft/sheep/reactor"
	"github.com/brickingsoft/sheep/task"
)

func TestSubmittedTaskRunsExactlyOnce(t *testing.T) {
	reactors, err := reactor.NewPool(2, reactor.WithQueueDepth(4))
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	defer reactors.Close()

	p := pool.New(reactors, 8)
	defer p.Stop()

	runs := make(chan struct{}, 1)
	tk := task.New(func(ctx context.Context) (struct{}, error) {
		runs <- struct{}{}
		return struct{}{}, nil
	})
	tk.Detach()
	c := conn.New(-1, nil, 0)
	p.Submit(tk, c)

	select {
	case <-runs:
	case <-time.After(2 * time.Second):
		t.Fatal("submitted task never ran")
	}
	select {
	case <-runs:
		t.Fatal("submitted task ran more than once")
	case <-time.After(50 * time.Millisecond):
	}
}
