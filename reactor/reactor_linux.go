//go:build linux

// Package reactor wraps one io_uring submission/completion queue pair per
// owning goroutine, exposing every supported kernel call as a suspendable
// operation keyed by a resumption token.
package reactor

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/sheep/log"
	"github.com/brickingsoft/sheep/mpmc"
	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"
)

var (
	// ErrClosed is returned by any operation submitted after the reactor
	// has been closed.
	ErrClosed = errors.Define("reactor: closed")
	// ErrQueueExhausted is returned when an operation cannot be queued
	// because the reactor's internal submission queue is full, and wraps
	// ring-creation failures returned by New.
	ErrQueueExhausted = errors.Define("reactor: submission queue exhausted")
)

// DefaultQueueDepth is the default submission/completion queue depth.
const DefaultQueueDepth = 64

// token is a resumption token: the record the kernel's completion carries
// back to whichever goroutine is awaiting it. Tokens are pool-allocated
// since Go has no address-stable coroutine frame to borrow storage from.
//
// done and hijacked arbitrate the race between a real kernel completion and
// a caller giving up on ctx cancellation, the same two-flag dance the
// pack's giouring-based ring uses: whichever side observes done flip from
// false to true first "wins" and decides what happens to the token next.
type token struct {
	result   chan int32
	done     atomic.Bool
	hijacked atomic.Bool
}

var tokenPool = sync.Pool{
	New: func() any {
		return &token{result: make(chan int32, 1)}
	},
}

func acquireToken() *token {
	tk := tokenPool.Get().(*token)
	tk.done.Store(false)
	tk.hijacked.Store(false)
	return tk
}

func releaseToken(tk *token) {
	// drain any stale value defensively before returning to the pool
	select {
	case <-tk.result:
	default:
	}
	tokenPool.Put(tk)
}

// sqeRequest is one pending submission, queued by submit (any goroutine)
// and drained only by the reactor's owning goroutine inside OneStep.
// isCancel marks a fire-and-forget cancellation request, which carries no
// token of its own — it reuses the target op's key as its user-data so the
// completion reaper recognizes it via the same done/hijacked dance.
type sqeRequest struct {
	key      uint64
	isCancel bool
	prepare  func(sqe *giouring.SubmissionQueueEntry)
}

// Reactor owns exactly one kernel submission/completion queue pair.
// Submitting an operation is safe from any goroutine: submit only pushes
// onto an internal MPMC queue and blocks on the token's own channel. Only
// the reactor's owning goroutine (the worker loop driving OneStep) ever
// touches the kernel ring directly, so a submitter is never serialized
// behind another caller's blocking wait.
type Reactor struct {
	ring       *giouring.Ring
	queueDepth uint32

	sq   *mpmc.Ring[sqeRequest]
	live sync.Map // uint64 token key -> *token; keeps in-flight tokens GC-reachable

	closeMu sync.Mutex // guards direct ring access (GetSQE/Submit/Wait/Peek/Advance/QueueExit)
	closed  atomic.Bool
}

// Option configures a Reactor at construction.
type Option func(*config)

type config struct {
	queueDepth uint32
	attachTo   *Reactor
}

// WithQueueDepth overrides the default submission/completion queue depth.
func WithQueueDepth(n uint32) Option {
	return func(c *config) {
		if n > 0 {
			c.queueDepth = n
		}
	}
}

// WithAttachWQFd attaches this reactor's kernel worker pool to peer's,
// sharing kernel async workers between reactors.
func WithAttachWQFd(peer *Reactor) Option {
	return func(c *config) {
		c.attachTo = peer
	}
}

// New constructs and initializes a reactor. Initialization failures are
// fatal setup errors per the error-handling design and are returned to the
// caller rather than aborting the process, so a library caller can decide.
func New(opts ...Option) (*Reactor, error) {
	c := &config{queueDepth: DefaultQueueDepth}
	for _, o := range opts {
		o(c)
	}

	var (
		ring *giouring.Ring
		err  error
	)
	if c.attachTo != nil {
		params := &giouring.IOUringParams{
			Flags: giouring.SetupAttachWQ,
			WQFd:  uint32(c.attachTo.ring.RingFd()),
		}
		ring, err = giouring.CreateRingWithParams(c.queueDepth, params)
	} else {
		ring, err = giouring.CreateRing(c.queueDepth)
	}
	if err != nil {
		return nil, errors.From(err, errors.WithWrap(ErrQueueExhausted))
	}
	return &Reactor{
		ring:       ring,
		queueDepth: c.queueDepth,
		sq:         mpmc.New[sqeRequest](int(c.queueDepth)),
	}, nil
}

// Fd returns the reactor's underlying ring file descriptor, used by peers
// attaching their kernel worker pool to this reactor via WithAttachWQFd.
func (r *Reactor) Fd() int {
	return r.ring.RingFd()
}

// Close tears down the kernel ring. Safe to call from a goroutine other
// than the reactor's owner; closeMu keeps it from racing an in-progress
// OneStep.
func (r *Reactor) Close() error {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed.Load() {
		return nil
	}
	r.closed.Store(true)
	r.ring.QueueExit()
	return nil
}

// getSQE obtains a submission queue entry, flushing via Submit and
// re-requesting if the ring is momentarily full. Caller must hold closeMu.
func (r *Reactor) getSQE() (*giouring.SubmissionQueueEntry, error) {
	sqe := r.ring.GetSQE()
	if sqe != nil {
		return sqe, nil
	}
	if _, err := r.ring.Submit(); err != nil {
		return nil, err
	}
	sqe = r.ring.GetSQE()
	if sqe == nil {
		return nil, ErrQueueExhausted
	}
	return sqe, nil
}

// completeWithResult resolves the token registered under key with res,
// whether res came from a real CQE or was synthesized locally (e.g. a
// submission-queue failure). It implements the same first-completion-wins
// handoff the pack's ring uses: if a completion is first to flip done it
// delivers the result and the awaiting submit releases the token; if the
// caller gave up first (flipping done and marking hijacked), the next
// completion seen for this key clears hijacked and releases the token.
func (r *Reactor) completeWithResult(key uint64, res int32) {
	v, ok := r.live.Load(key)
	if !ok {
		return
	}
	tk := v.(*token)
	if tk.done.CompareAndSwap(false, true) {
		tk.result <- res
		if tk.hijacked.Load() {
			r.live.Delete(key)
			releaseToken(tk)
		}
		return
	}
	if tk.hijacked.CompareAndSwap(true, false) {
		r.live.Delete(key)
		releaseToken(tk)
	}
}

// flushSubmissions drains every request currently queued on sq, preparing
// and submitting each to the kernel ring. Only ever called by the owning
// goroutine from inside OneStep.
func (r *Reactor) flushSubmissions() {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed.Load() {
		return
	}
	flushed := false
	for {
		item, ok := r.sq.TryPop()
		if !ok {
			break
		}
		sqe, err := r.getSQE()
		if err != nil {
			if !item.isCancel {
				r.completeWithResult(item.key, -int32(syscall.ENOMEM))
			}
			continue
		}
		item.prepare(sqe)
		sqe.SetData(unsafe.Pointer(uintptr(item.key)))
		flushed = true
	}
	if flushed {
		if _, err := r.ring.Submit(); err != nil && !isRetryable(err) {
			log.Warnf("reactor: submit failed: %v", err)
		}
	}
}

// submit queues one operation via prepareFn on the internal submission
// ring and blocks the calling goroutine until the kernel completes it or
// ctx is done. Safe to call concurrently from any goroutine.
func (r *Reactor) submit(ctx context.Context, prepareFn func(sqe *giouring.SubmissionQueueEntry)) (int32, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}

	tk := acquireToken()
	key := uint64(uintptr(unsafe.Pointer(tk)))
	r.live.Store(key, tk)

	if !r.sq.TryPush(sqeRequest{key: key, prepare: prepareFn}) {
		r.live.Delete(key)
		releaseToken(tk)
		return 0, ErrQueueExhausted
	}

	select {
	case res := <-tk.result:
		r.live.Delete(key)
		releaseToken(tk)
		return res, resultToError(res)
	case <-ctx.Done():
		if tk.done.CompareAndSwap(false, true) {
			tk.hijacked.Store(true)
			// best-effort, fire-and-forget cancellation of the in-flight
			// op; the token stays registered in live until whichever of
			// the real completion or this cancel's own echo releases it.
			r.sq.TryPush(sqeRequest{key: key, isCancel: true, prepare: func(sqe *giouring.SubmissionQueueEntry) {
				sqe.PrepareCancel64(key, 0)
			}})
			return 0, ctx.Err()
		}
		// the real completion won the race and already sent a result
		res := <-tk.result
		r.live.Delete(key)
		releaseToken(tk)
		return res, resultToError(res)
	}
}

func resultToError(res int32) error {
	if res < 0 {
		return syscall.Errno(-res)
	}
	return nil
}

// OneStep flushes any queued submissions, then submits and waits for at
// least one completion, draining every ready completion and resuming its
// resumption token. Must only be called by the reactor's owning goroutine
// (typically a pool worker's loop).
func (r *Reactor) OneStep(waitTimeout *syscall.Timespec) error {
	if r.closed.Load() {
		return ErrClosed
	}
	r.flushSubmissions()

	r.closeMu.Lock()
	if r.closed.Load() {
		r.closeMu.Unlock()
		return ErrClosed
	}
	_, waitErr := r.ring.WaitCQEs(1, waitTimeout, nil)
	if waitErr != nil && !isRetryable(waitErr) {
		r.closeMu.Unlock()
		if errors.Is(waitErr, syscall.ETIME) {
			return nil
		}
		return waitErr
	}

	const batch = 64
	cqes := make([]*giouring.CompletionQueueEvent, batch)
	n := r.ring.PeekBatchCQE(cqes)
	for i := uint32(0); i < n; i++ {
		cqe := cqes[i]
		if cqe.UserData == 0 {
			continue
		}
		r.completeWithResult(cqe.UserData, cqe.Res)
	}
	if n > 0 {
		r.ring.CQAdvance(n)
	}
	r.closeMu.Unlock()
	runtime.KeepAlive(cqes)
	return nil
}

func isRetryable(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.ETIME)
}

// Nop submits a no-op, useful for wakeups and tests.
func (r *Reactor) Nop(ctx context.Context) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareNop()
	})
}

// Read submits a read of len(buf) bytes from fd at offset.
func (r *Reactor) Read(ctx context.Context, fd int, buf []byte, offset uint64) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareRead(fd, uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), offset)
	})
}

// Write submits a write of buf to fd at offset.
func (r *Reactor) Write(ctx context.Context, fd int, buf []byte, offset uint64) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareWrite(fd, uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), offset)
	})
}

// Fsync submits an fsync of fd.
func (r *Reactor) Fsync(ctx context.Context, fd int, flags uint32) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareFsync(fd, flags)
	})
}

// CloseFd submits a close of fd.
func (r *Reactor) CloseFd(ctx context.Context, fd int) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareClose(fd)
	})
}

// Openat submits an openat relative to dfd.
func (r *Reactor) Openat(ctx context.Context, dfd int, path []byte, flags int, mode uint32) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareOpenat(dfd, path, flags, mode)
	})
}

// Statx submits a statx relative to dfd, populating stat on success.
func (r *Reactor) Statx(ctx context.Context, dfd int, path []byte, flags int, mask uint32, stat *unix.Statx_t) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareStatx(dfd, path, flags, mask, stat)
	})
}

// Splice submits a splice between two fds.
func (r *Reactor) Splice(ctx context.Context, fdIn int, offIn int64, fdOut int, offOut int64, nbytes, flags uint32) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareSplice(fdIn, offIn, fdOut, offOut, nbytes, flags)
	})
}

// Accept submits an accept on the listening fd.
func (r *Reactor) Accept(ctx context.Context, fd int, addr *syscall.RawSockaddrAny, addrLen uint64, flags int) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareAccept(fd, uintptr(unsafe.Pointer(addr)), addrLen, uint32(flags))
	})
}

// Connect submits a connect on fd.
func (r *Reactor) Connect(ctx context.Context, fd int, addr *syscall.RawSockaddrAny, addrLen uint64) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareConnect(fd, (*syscall.Sockaddr)(unsafe.Pointer(addr)), addrLen)
	})
}

// Recv submits a recv of len(buf) bytes from fd.
func (r *Reactor) Recv(ctx context.Context, fd int, buf []byte, flags int) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareRecv(fd, uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), flags)
	})
}

// Send submits a send of buf to fd.
func (r *Reactor) Send(ctx context.Context, fd int, buf []byte, flags int) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareSend(fd, uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), flags)
	})
}

// RecvMsg submits a recvmsg on fd.
func (r *Reactor) RecvMsg(ctx context.Context, fd int, msg *syscall.Msghdr, flags uint32) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareRecvMsg(fd, msg, flags)
	})
}

// SendMsg submits a sendmsg on fd.
func (r *Reactor) SendMsg(ctx context.Context, fd int, msg *syscall.Msghdr, flags uint32) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareSendMsg(fd, msg, flags)
	})
}

// Timeout submits a kernel timeout that completes after spec elapses,
// returning -ETIME on expiry per the reactor primitive result semantics.
func (r *Reactor) Timeout(ctx context.Context, spec *syscall.Timespec) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareTimeout(spec, 0, 0)
	})
}

// Readv submits a vectored read.
func (r *Reactor) Readv(ctx context.Context, fd int, iovecs []syscall.Iovec, offset uint64) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareReadv(fd, uintptr(unsafe.Pointer(&iovecs[0])), uint32(len(iovecs)), offset)
	})
}

// Writev submits a vectored write.
func (r *Reactor) Writev(ctx context.Context, fd int, iovecs []syscall.Iovec, offset uint64) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareWritev(fd, uintptr(unsafe.Pointer(&iovecs[0])), uint32(len(iovecs)), offset)
	})
}

// ReadFixed submits a read into a pre-registered fixed buffer.
func (r *Reactor) ReadFixed(ctx context.Context, fd int, buf []byte, offset uint64, bufIndex int) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareReadFixed(fd, uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), offset, bufIndex)
	})
}

// WriteFixed submits a write from a pre-registered fixed buffer.
func (r *Reactor) WriteFixed(ctx context.Context, fd int, buf []byte, offset uint64, bufIndex int) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareWriteFixed(fd, uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), offset, bufIndex)
	})
}

// Cancel submits a cancellation request for a previously submitted
// operation, identified by its resumption token's address (the same value
// passed to SetData when the original operation was prepared).
func (r *Reactor) Cancel(ctx context.Context, userData uint64) (int32, error) {
	return r.submit(ctx, func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareCancel64(userData, 0)
	})
}
