package sheep

import (
	"net"

	"github.com/brickingsoft/errors"
)

var (
	ErrClosed        = errors.Define("sheep: closed")
	ErrHandlerUnset  = errors.Define("sheep: no handler installed")
	ErrAlreadyServed = errors.Define("sheep: serve already called")
)

// IsClosed reports whether err indicates the server (or a connection) was
// already closed, unwrapping a *net.OpError first if present.
func IsClosed(err error) bool {
	if opErr, ok := err.(*net.OpError); ok {
		err = opErr.Err
	}
	return errors.Is(err, ErrClosed)
}

const (
	opListen = "listen"
	opAccept = "accept"
	opServe  = "serve"
	opClose  = "close"
)

func newOpErr(op, network string, addr net.Addr, err error) *net.OpError {
	return &net.OpError{Op: op, Net: network, Addr: addr, Err: err}
}
