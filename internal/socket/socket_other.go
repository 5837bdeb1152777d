//go:build !linux

package socket

import (
	"errors"
	"net"
)

// ErrUnsupported is returned by every function in this package on
// non-Linux platforms.
var ErrUnsupported = errors.New("socket: linux-only")

const DefaultBacklog = 128

func ListenTCP(*net.TCPAddr, int) (int, error)  { return -1, ErrUnsupported }
func Accept(int) (int, net.Addr, error)         { return -1, nil, ErrUnsupported }
func IsTemporary(error) bool                    { return false }
func Close(int) error                           { return ErrUnsupported }
