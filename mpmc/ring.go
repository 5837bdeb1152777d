// Package mpmc implements a fixed-capacity, power-of-two bounded
// multi-producer/multi-consumer ring buffer using a per-cell ticket/turn
// protocol. It supplies both the worker pool's session hand-off queue and
// the logger's ingress queue.
package mpmc

import (
	"runtime"
	"sync/atomic"
)

const cacheLinePad = 64

// cell holds one slot's turn counter and value. Its size is padded so that
// neighbouring cells do not share a cache line.
type cell[T any] struct {
	turn  atomic.Uint64
	value T
	_     [cacheLinePad]byte
}

// Ring is a bounded MPMC ring of capacity C (rounded up to a power of two).
// The zero value is not usable; construct with New.
type Ring[T any] struct {
	mask uint64
	cap  uint64

	head atomic.Uint64
	_    [cacheLinePad]byte
	tail atomic.Uint64
	_    [cacheLinePad]byte

	cells []cell[T]
}

// New constructs a ring able to hold at least capacity items. capacity is
// rounded up to the next power of two; a non-positive capacity rounds up
// to 1.
func New[T any](capacity int) *Ring[T] {
	c := roundupPow2(capacity)
	r := &Ring[T]{
		mask: uint64(c - 1),
		cap:  uint64(c),
		cells: make([]cell[T], c),
	}
	for i := range r.cells {
		r.cells[i].turn.Store(uint64(0))
	}
	return r
}

func roundupPow2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Cap returns the ring's fixed capacity.
func (r *Ring[T]) Cap() int { return int(r.cap) }

// Len returns a point-in-time estimate of the number of queued items.
func (r *Ring[T]) Len() int {
	h := r.head.Load()
	t := r.tail.Load()
	if h < t {
		return 0
	}
	return int(h - t)
}

func spin(iter *int) {
	*iter++
	if *iter < 64 {
		// busy-spin briefly; the kernel/producer turn is expected imminently
		return
	}
	*iter = 0
	runtime.Gosched()
}

// Push blocks (yield-spinning) until a slot is available, then publishes
// value.
func (r *Ring[T]) Push(value T) {
	h := r.head.Add(1) - 1
	c := &r.cells[h&r.mask]
	gen := h / r.cap
	want := 2 * gen
	iter := 0
	for c.turn.Load() != want {
		spin(&iter)
	}
	c.value = value
	c.turn.Store(want + 1)
}

// TryPush attempts a single non-blocking push. It returns false only when
// the observed head has not advanced between two observations of the
// target cell's turn (i.e. the cell is genuinely not ready, not merely
// contended).
func (r *Ring[T]) TryPush(value T) bool {
	h := r.head.Load()
	for {
		c := &r.cells[h&r.mask]
		gen := h / r.cap
		want := 2 * gen
		turn := c.turn.Load()
		if turn == want {
			if r.head.CompareAndSwap(h, h+1) {
				c.value = value
				c.turn.Store(want + 1)
				return true
			}
			h = r.head.Load()
			continue
		}
		h2 := r.head.Load()
		if h2 == h {
			return false
		}
		h = h2
	}
}

// Pop blocks (yield-spinning) until an item is available, then returns it.
func (r *Ring[T]) Pop() T {
	t := r.tail.Add(1) - 1
	c := &r.cells[t&r.mask]
	gen := t / r.cap
	want := 2*gen + 1
	iter := 0
	for c.turn.Load() != want {
		spin(&iter)
	}
	v := c.value
	var zero T
	c.value = zero
	c.turn.Store(want + 1)
	return v
}

// TryPop attempts a single non-blocking pop. Returns ok=false only when the
// tail has not advanced between two observations of the target cell.
func (r *Ring[T]) TryPop() (value T, ok bool) {
	t := r.tail.Load()
	for {
		c := &r.cells[t&r.mask]
		gen := t / r.cap
		want := 2*gen + 1
		turn := c.turn.Load()
		if turn == want {
			if r.tail.CompareAndSwap(t, t+1) {
				value = c.value
				var zero T
				c.value = zero
				c.turn.Store(want + 1)
				ok = true
				return
			}
			t = r.tail.Load()
			continue
		}
		t2 := r.tail.Load()
		if t2 == t {
			return
		}
		t = t2
	}
}

// BulkPush pushes every item in items, blocking as needed. It reserves
// len(items) consecutive tickets up front.
func (r *Ring[T]) BulkPush(items []T) {
	if len(items) == 0 {
		return
	}
	start := r.head.Add(uint64(len(items))) - uint64(len(items))
	for i, v := range items {
		h := start + uint64(i)
		c := &r.cells[h&r.mask]
		gen := h / r.cap
		want := 2 * gen
		iter := 0
		for c.turn.Load() != want {
			spin(&iter)
		}
		c.value = v
		c.turn.Store(want + 1)
	}
}

// BulkPop drains as much as is currently available into out, returning the
// number popped. It does not block past what is already visible.
func (r *Ring[T]) BulkPop(out []T) int {
	n := 0
	for n < len(out) {
		v, ok := r.TryPop()
		if !ok {
			break
		}
		out[n] = v
		n++
	}
	return n
}

// Consume calls f once per item currently available, in pop order, until
// the ring is observed empty.
func (r *Ring[T]) Consume(f func(T)) {
	for {
		v, ok := r.TryPop()
		if !ok {
			return
		}
		f(v)
	}
}
