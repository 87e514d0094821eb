// Package netreactor implements an event-driven asynchronous networking
// reactor: a single-threaded event loop multiplexing file descriptor
// readiness, deferred tasks, and timers, paired with a reference-counted
// buffer, an outbound write queue with water marks, and a cumulating
// frame decoder.
//
// # I/O Registration
//
// The reactor's Selector registers file descriptors for readiness
// notification using platform-native mechanisms:
//   - Linux: epoll
//   - Darwin/BSD: kqueue
//   - Windows: IOCP
//
// See poller_linux.go, poller_darwin.go, and poller_windows.go.
//
// # Safety
//
// Always call UnregisterFD before closing a file descriptor to prevent
// stale event delivery due to FD recycling.
package netreactor

// Note: Selector.RegisterFD, UnregisterFD, ModifyFD, and PollIO are
// implemented in platform-specific files:
//   - poller_linux.go (epoll)
//   - poller_darwin.go (kqueue)
//   - poller_windows.go (IOCP)
