// Package sheep is a Linux-native asynchronous TCP server framework built
// around per-worker io_uring reactors and goroutine-backed stackless
// tasks. A fixed pool of workers, each driving its own completion-based
// I/O queue, multiplexes a user-supplied per-connection handler over every
// accepted connection.
package sheep

import (
	"context"
	"net"
	"time"

	"github.com/brickingsoft/sheep/conn"
	"github.com/brickingsoft/sheep/internal/socket"
	"github.com/brickingsoft/sheep/log"
	"github.com/brickingsoft/sheep/pool"
	"github.com/brickingsoft/sheep/reactor"
	"github.com/brickingsoft/sheep/task"
)

// Handler is the per-connection task factory. Exactly one instance is
// invoked per accepted connection; it is handed ownership of the
// connection facade and returns a task producing no value.
type Handler func(c *conn.Conn) *task.Task[struct{}]

// Server binds the configured address, accepts connections in a loop on
// the goroutine of the task returned by Serve, and hands each one to a
// fixed worker pool of io_uring reactors.
type Server struct {
	addr     *net.TCPAddr
	opts     Options
	listenFd int

	reactors *reactor.Pool
	workers  *pool.Pool
	handler  Handler

	serveTask *task.Task[struct{}]
}

// NewServer binds addr and listens immediately (SO_REUSEADDR and
// SO_REUSEPORT, backlog 128 by default).
func NewServer(addr string, options ...Option) (*Server, error) {
	opts := defaultOptions()
	for _, o := range options {
		if err := o(&opts); err != nil {
			return nil, newOpErr(opListen, "tcp", nil, err)
		}
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, newOpErr(opListen, "tcp", nil, err)
	}

	fd, err := socket.ListenTCP(tcpAddr, opts.Backlog)
	if err != nil {
		return nil, newOpErr(opListen, "tcp", tcpAddr, err)
	}

	reactors, err := reactor.NewPool(opts.Concurrency, reactor.WithQueueDepth(opts.QueueDepth))
	if err != nil {
		_ = socket.Close(fd)
		return nil, newOpErr(opListen, "tcp", tcpAddr, err)
	}

	workers := pool.New(reactors, opts.HandoffRingCapacity)

	return &Server{
		addr:     tcpAddr,
		opts:     opts,
		listenFd: fd,
		reactors: reactors,
		workers:  workers,
	}, nil
}

// SetHandler installs the per-connection task factory. Must be called
// before Serve.
func (s *Server) SetHandler(h Handler) {
	s.handler = h
}

// Addr returns the server's bound local address.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Serve returns a task that runs the accept loop until ctx is cancelled.
// The accept loop itself runs on a plain blocking accept(2) and never
// touches a reactor directly; ctx is checked between accepts, so a
// blocked accept(2) is not interrupted by cancellation.
func (s *Server) Serve(ctx context.Context) *task.Task[struct{}] {
	s.serveTask = task.New(func(context.Context) (struct{}, error) {
		return struct{}{}, s.acceptLoop(ctx)
	})
	return s.serveTask
}

func (s *Server) acceptLoop(ctx context.Context) error {
	if s.handler == nil {
		return ErrHandlerUnset
	}
	log.Infof("sheep: server listening on %s", s.addr)

	backoff := s.opts.AcceptBackoffFloor
	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		default:
		}

		fd, remote, err := socket.Accept(s.listenFd)
		if err != nil {
			if socket.IsTemporary(err) {
				continue
			}
			log.Errorf("sheep: accept failed: %v", err)
			select {
			case <-ctx.Done():
				return s.shutdown()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.opts.AcceptBackoffCeil {
				backoff = s.opts.AcceptBackoffCeil
			}
			continue
		}
		backoff = s.opts.AcceptBackoffFloor

		c := conn.New(fd, remote, 0)
		handlerTask := s.handler(c)
		handlerTask.Detach()
		s.workers.Submit(handlerTask, c)
	}
}

func (s *Server) shutdown() error {
	s.workers.Stop()
	if err := s.reactors.Close(); err != nil {
		return err
	}
	return socket.Close(s.listenFd)
}

// Close stops the worker pool, which waits for in-flight handler tasks to
// finish (they are not cancelled), then closes the reactors and the
// listening socket.
func (s *Server) Close() error {
	return s.shutdown()
}
