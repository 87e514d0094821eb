//go:build linux

package netreactor

import (
	"golang.org/x/sys/unix"
)

const (
	EFD_CLOEXEC  = unix.EFD_CLOEXEC
	EFD_NONBLOCK = unix.EFD_NONBLOCK
)

// createWakeFd creates an eventfd for wake-up notifications. The same fd
// serves as both read and write end.
func createWakeFd(initval uint, flags int) (readFd, writeFd int, err error) {
	fd, err := unix.Eventfd(initval, flags)
	return fd, fd, err
}

// closeWakeFd closes the wake eventfd.
func closeWakeFd(wakeFd, _ int) error {
	if wakeFd >= 0 {
		return unix.Close(wakeFd)
	}
	return nil
}

// isWakeFdSupported reports eventfd availability (always true on Linux).
func isWakeFdSupported() bool {
	return true
}

// drainWakeUpPipe drains all pending wake-up counter increments from fd so
// a subsequent blocking select doesn't return immediately on a stale wake.
func drainWakeUpPipe(fd int) error {
	if fd < 0 {
		return nil
	}
	var buf [8]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != nil {
			return nil
		}
	}
}

// submitGenericWakeup writes a single wake-up increment to the eventfd.
func submitGenericWakeup(fd uintptr) error {
	var one [8]byte
	one[0] = 1
	_, err := unix.Write(int(fd), one[:])
	return err
}
