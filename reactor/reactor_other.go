//go:build !linux

package reactor

import (
	"context"
	"syscall"

	"github.com/brickingsoft/errors"
)

// ErrUnsupported is returned by every Reactor entry point on non-Linux
// platforms: no Windows or non-Linux portability layer is in scope for
// this framework (it exists purely so the module can be edited and
// vetted off Linux).
var ErrUnsupported = errors.Define("reactor: io_uring is linux-only")

// DefaultQueueDepth mirrors the Linux default for API parity.
const DefaultQueueDepth = 64

type Option func(*struct{})

func WithQueueDepth(uint32) Option   { return func(*struct{}) {} }
func WithAttachWQFd(*Reactor) Option { return func(*struct{}) {} }

type Reactor struct{}

func New(...Option) (*Reactor, error) {
	return nil, ErrUnsupported
}

func (r *Reactor) Fd() int    { return -1 }
func (r *Reactor) Close() error { return ErrUnsupported }

func (r *Reactor) OneStep(*syscall.Timespec) error { return ErrUnsupported }

func (r *Reactor) Nop(context.Context) (int32, error)    { return 0, ErrUnsupported }
func (r *Reactor) Accept(context.Context, int, *syscall.RawSockaddrAny, uint64, int) (int32, error) {
	return 0, ErrUnsupported
}
func (r *Reactor) Recv(context.Context, int, []byte, int) (int32, error) { return 0, ErrUnsupported }
func (r *Reactor) Send(context.Context, int, []byte, int) (int32, error) { return 0, ErrUnsupported }
func (r *Reactor) Timeout(context.Context, *syscall.Timespec) (int32, error) {
	return 0, ErrUnsupported
}
