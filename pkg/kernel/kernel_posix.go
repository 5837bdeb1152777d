//go:build !linux

package kernel

import "syscall"

// Get always fails off Linux: kernel version probing exists only to log a
// diagnostic ahead of io_uring reactor construction.
func Get() (Version, error) {
	return Version{}, syscall.EINVAL
}
