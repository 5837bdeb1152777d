// Package pool implements the fixed-size worker pool: each worker owns one
// reactor and one thread-local live-task set, and services a shared MPMC
// hand-off ring of accepted connections.
package pool

import (
	"context"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/brickingsoft/sheep/conn"
	"github.com/brickingsoft/sheep/log"
	"github.com/brickingsoft/sheep/mpmc"
	"github.com/brickingsoft/sheep/reactor"
	"github.com/brickingsoft/sheep/task"
)

// DefaultRingCapacity is the default session hand-off ring capacity.
const DefaultRingCapacity = 1024

// handoff pairs a detached handler task with the connection it drives,
// the unit of work transferred from the accept loop to a worker.
type handoff struct {
	t *task.Task[struct{}]
	c *conn.Conn
}

// Pool is a fixed-size set of worker goroutines, each pinned to its own
// reactor.
type Pool struct {
	reactors *reactor.Pool
	ring     *mpmc.Ring[handoff]

	mu      sync.Mutex
	cond    *sync.Cond
	stopped bool
	wg      sync.WaitGroup
}

// New constructs a pool of size reactors.Len() workers, one per reactor.
func New(reactors *reactor.Pool, ringCapacity int) *Pool {
	if ringCapacity <= 0 {
		ringCapacity = DefaultRingCapacity
	}
	p := &Pool{
		reactors: reactors,
		ring:     mpmc.New[handoff](ringCapacity),
	}
	p.cond = sync.NewCond(&p.mu)
	for id := 0; id < reactors.Len(); id++ {
		p.wg.Add(1)
		go p.workerLoop(id)
	}
	return p
}

// Submit hands a detached task and its connection off to the pool. It
// never blocks beyond the ring's own back-pressure step.
func (p *Pool) Submit(t *task.Task[struct{}], c *conn.Conn) {
	p.ring.Push(handoff{t: t, c: c})
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Stop signals every worker to stop, then waits for each to drain its live
// task set and return. In-flight tasks are not cancelled; stop waits for
// them to finish naturally.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *Pool) workerLoop(workerID int) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r := p.reactors.Get(workerID)
	live := make(map[*task.Task[struct{}]]*conn.Conn)
	ctx := context.Background()
	waitTimeout := syscall.NsecToTimespec((50 * time.Millisecond).Nanoseconds())

	for {
		p.mu.Lock()
		for p.ring.Len() == 0 && !p.stopped {
			p.cond.Wait()
		}
		stop := p.stopped
		p.mu.Unlock()

		p.drainRing(r, live, ctx)

		for len(live) > 0 {
			if err := r.OneStep(&waitTimeout); err != nil {
				log.Errorf("pool: worker %d reactor step failed: %v", workerID, err)
				break
			}
			for t := range live {
				if t.Done() {
					if _, err := t.Result(); err != nil {
						log.Warnf("pool: worker %d handler task finished with error: %v", workerID, err)
					}
					delete(live, t)
				}
			}
			p.drainRing(r, live, ctx)
		}

		if stop && p.ring.Len() == 0 && len(live) == 0 {
			return
		}
	}
}

func (p *Pool) drainRing(r *reactor.Reactor, live map[*task.Task[struct{}]]*conn.Conn, ctx context.Context) {
	for {
		h, ok := p.ring.TryPop()
		if !ok {
			return
		}
		h.c.BindReactor(r)
		h.t.Start(ctx)
		if !h.t.Done() {
			live[h.t] = h.c
		} else if _, err := h.t.Result(); err != nil {
			log.Warnf("pool: handler task finished with error before first suspension: %v", err)
		}
	}
}
