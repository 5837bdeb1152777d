// Package conn implements the connection facade: a socket, a read buffer,
// a write buffer, and a non-owning reactor pointer, with suspendable
// Recv/Send.
package conn

import (
	"context"
	"net"
	"syscall"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/sheep/buffer"
	"github.com/brickingsoft/sheep/internal/socket"
	"github.com/brickingsoft/sheep/reactor"
)

// ErrNoReactor is returned by Recv/Send if called before the worker pool
// has bound a reactor to the connection.
var ErrNoReactor = errors.Define("conn: no reactor bound")

const defaultBufferSize = 4096

// Conn owns a socket, a read buffer, a write buffer, and a non-owning
// reactor pointer. Before any Recv/Send suspension, the reactor pointer
// must be non-nil; the worker pool sets it immediately after dequeuing the
// connection's session handoff, before the handler task is ever resumed.
type Conn struct {
	fd         int
	remoteAddr net.Addr
	readBuf    *buffer.Buffer
	writeBuf   *buffer.Buffer
	reactor    *reactor.Reactor
}

// New wraps an accepted socket fd in a connection facade with the given
// read/write buffer sizes (0 selects a default).
func New(fd int, remoteAddr net.Addr, bufSize int) *Conn {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return &Conn{
		fd:         fd,
		remoteAddr: remoteAddr,
		readBuf:    buffer.New(bufSize),
		writeBuf:   buffer.New(bufSize),
	}
}

// BindReactor installs the owning worker's reactor. Called exactly once,
// by the worker pool, before the connection's handler task is resumed.
func (c *Conn) BindReactor(r *reactor.Reactor) {
	c.reactor = r
}

// Reactor returns the bound reactor, or nil if unbound.
func (c *Conn) Reactor() *reactor.Reactor { return c.reactor }

// Fd returns the raw socket file descriptor.
func (c *Conn) Fd() int { return c.fd }

// RemoteAddr returns the peer's address.
func (c *Conn) RemoteAddr() net.Addr { return c.remoteAddr }

// ReadBuffer returns the connection's read buffer.
func (c *Conn) ReadBuffer() *buffer.Buffer { return c.readBuf }

// WriteBuffer returns the connection's write buffer.
func (c *Conn) WriteBuffer() *buffer.Buffer { return c.writeBuf }

// Recv clears the read buffer, submits a recv for at most the buffer's
// capacity, awaits completion, stores the bytes read in the buffer's
// size, and returns the count.
func (c *Conn) Recv(ctx context.Context) (int, error) {
	if c.reactor == nil {
		return 0, ErrNoReactor
	}
	c.readBuf.Reset()
	n, err := c.reactor.Recv(ctx, c.fd, c.readBuf.Bytes(), 0)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, syscall.Errno(-n)
	}
	c.readBuf.SetSize(int(n))
	return int(n), nil
}

// Send submits a send of the write buffer's current size and returns the
// count transferred.
func (c *Conn) Send(ctx context.Context) (int, error) {
	if c.reactor == nil {
		return 0, ErrNoReactor
	}
	n, err := c.reactor.Send(ctx, c.fd, c.writeBuf.Filled(), 0)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, syscall.Errno(-n)
	}
	return int(n), nil
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return socket.Close(c.fd)
}
