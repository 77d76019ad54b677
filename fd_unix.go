//go:build linux || darwin

package coreio

import (
	"golang.org/x/sys/unix"
)

// closeFD closes a file descriptor.
func closeFD(fd int) error {
	return unix.Close(fd)
}

// readFD reads from a file descriptor, used by the readiness driver's
// try-read loop.
func readFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// writeFD writes to a file descriptor, used by the readiness driver's
// try-write loop.
func writeFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}
