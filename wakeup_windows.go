//go:build windows

package netreactor

import "golang.org/x/sys/windows"

// EFD_CLOEXEC and EFD_NONBLOCK are Unix eventfd flags, unused here but
// declared so createWakeFd's call sites compile on every platform.
const (
	EFD_CLOEXEC  = 0
	EFD_NONBLOCK = 0
)

// createWakeFd returns -1, -1: Windows wakes a blocked Selector via
// PostQueuedCompletionStatus rather than a readable fd, so no pipe or
// eventfd is allocated. Reactor setup checks for a negative readFd and
// skips wake-fd registration in that case.
func createWakeFd(_ uint, _ int) (readFd, writeFd int, err error) {
	return -1, -1, nil
}

// closeWakeFd is a no-op: there are no fds to close.
func closeWakeFd(_, _ int) error {
	return nil
}

// isWakeFdSupported reports false: Windows has no Unix wake-fd mechanism.
func isWakeFdSupported() bool {
	return false
}

// drainWakeUpPipe is a no-op: PostQueuedCompletionStatus leaves nothing to drain.
func drainWakeUpPipe(_ int) error {
	return nil
}

// submitGenericWakeup posts a NULL completion to the IOCP handle, causing
// a blocked GetQueuedCompletionStatus to return immediately.
func submitGenericWakeup(iocpHandle uintptr) error {
	return windows.PostQueuedCompletionStatus(
		windows.Handle(iocpHandle),
		0,
		0,
		nil,
	)
}
