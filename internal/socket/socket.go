//go:build linux

// Package socket is a minimal bind/listen/accept wrapper over
// golang.org/x/sys/unix, purpose-built for the TCP-only listening server:
// SO_REUSEADDR and SO_REUSEPORT before bind, a configurable backlog.
package socket

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// DefaultBacklog is the listen backlog used unless overridden.
const DefaultBacklog = 128

// ListenTCP creates, binds, and listens on a TCP4 address, returning the
// raw, blocking-mode listening file descriptor. SO_REUSEADDR and
// SO_REUSEPORT are set before bind.
func ListenTCP(addr *net.TCPAddr, backlog int) (fd int, err error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
		}
	}()

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return -1, err
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return -1, err
	}

	sa := &unix.SockaddrInet4{Port: addr.Port}
	if ip := addr.IP.To4(); ip != nil {
		copy(sa.Addr[:], ip)
	}
	if err = unix.Bind(fd, sa); err != nil {
		return -1, err
	}
	if err = unix.Listen(fd, backlog); err != nil {
		return -1, err
	}
	return fd, nil
}

// Accept performs a blocking accept(2) on fd, returning the accepted
// connection's fd and remote address.
func Accept(fd int) (connFd int, remote net.Addr, err error) {
	nfd, sa, err := unix.Accept(fd)
	if err != nil {
		return -1, nil, err
	}
	return nfd, sockaddrToAddr(sa), nil
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), v.Addr[:]...), Port: v.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), v.Addr[:]...), Port: v.Port}
	default:
		return nil
	}
}

// IsTemporary reports whether err is a transient accept-loop error that
// should be retried immediately rather than counted against the backoff
// policy.
func IsTemporary(err error) bool {
	switch err {
	case syscall.EINTR, syscall.EAGAIN, syscall.ECONNABORTED:
		return true
	default:
		return false
	}
}

// Close closes fd.
func Close(fd int) error {
	return unix.Close(fd)
}
