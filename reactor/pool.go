package reactor

import (
	"github.com/brickingsoft/sheep/log"
	"github.com/brickingsoft/sheep/pkg/kernel"
)

// Pool is an ordered sequence of reactors indexed by worker id. Element 0
// is initialized standalone; elements 1..N-1 attach their kernel worker
// pool to element 0 so kernel async workers are shared across reactors.
// Once constructed, the worker id -> reactor mapping never changes.
type Pool struct {
	reactors []*Reactor
}

// NewPool constructs n reactors: reactor 0 standalone, 1..n-1 attached to
// reactor 0's kernel worker pool.
func NewPool(n int, opts ...Option) (*Pool, error) {
	if v, err := kernel.Get(); err == nil {
		log.Infof("reactor: running kernel %s", v)
	} else {
		log.Warnf("reactor: could not probe kernel version: %v", err)
	}

	if n < 1 {
		n = 1
	}
	reactors := make([]*Reactor, n)
	first, err := New(opts...)
	if err != nil {
		return nil, err
	}
	reactors[0] = first
	for i := 1; i < n; i++ {
		attachedOpts := append(append([]Option{}, opts...), WithAttachWQFd(first))
		r, err := New(attachedOpts...)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = reactors[j].Close()
			}
			return nil, err
		}
		reactors[i] = r
	}
	return &Pool{reactors: reactors}, nil
}

// Get returns the reactor owning workerID. No synchronization: the
// mapping is immutable after construction.
func (p *Pool) Get(workerID int) *Reactor {
	return p.reactors[workerID%len(p.reactors)]
}

// Len returns the number of reactors in the pool.
func (p *Pool) Len() int { return len(p.reactors) }

// Close tears down every reactor in the pool.
func (p *Pool) Close() error {
	var firstErr error
	for _, r := range p.reactors {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
