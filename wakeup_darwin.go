//go:build darwin

package netreactor

import (
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	EFD_CLOEXEC  = unix.O_CLOEXEC
	EFD_NONBLOCK = unix.O_NONBLOCK
)

// createWakeFd creates a non-blocking self-pipe for wake-up notifications.
// initval and flags are accepted for signature parity with the Linux
// eventfd variant but are otherwise unused.
func createWakeFd(_ uint, _ int) (readFd, writeFd int, err error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}

	cleanup := func() {
		_ = syscall.Close(fds[0])
		_ = syscall.Close(fds[1])
	}

	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])

	if err := syscall.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return 0, 0, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return 0, 0, err
	}

	return fds[0], fds[1], nil
}

// closeWakeFd closes both pipe ends.
func closeWakeFd(wakeFd, wakeWriteFd int) error {
	if wakeFd >= 0 {
		_ = syscall.Close(wakeFd)
	}
	if wakeWriteFd >= 0 && wakeWriteFd != wakeFd {
		_ = syscall.Close(wakeWriteFd)
	}
	return nil
}

// isWakeFdSupported reports self-pipe availability (always true on Darwin).
func isWakeFdSupported() bool {
	return true
}

// drainWakeUpPipe drains all pending bytes from fd.
func drainWakeUpPipe(fd int) error {
	if fd < 0 {
		return nil
	}
	var buf [64]byte
	for {
		if _, err := syscall.Read(fd, buf[:]); err != nil {
			return nil
		}
	}
}

// submitGenericWakeup writes a single byte to the wake pipe's write end.
func submitGenericWakeup(fd uintptr) error {
	_, err := syscall.Write(int(fd), []byte{1})
	return err
}
