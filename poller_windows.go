//go:build windows

package netreactor

import (
	"errors"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/windows"
)

// maxFDs is the initial size of the dynamically-grown fd table.
const maxFDs = 65536

// MaxFDLimit bounds dynamic growth of the fd table.
const MaxFDLimit = 100000000

// IOEvents is a bitmask of I/O readiness conditions.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

var (
	ErrFDOutOfRange        = errors.New("netreactor: fd out of range")
	ErrFDAlreadyRegistered = errors.New("netreactor: fd already registered")
	ErrFDNotRegistered     = errors.New("netreactor: fd not registered")
	ErrSelectorClosed      = errors.New("netreactor: selector closed")
)

// IOCallback is invoked with the readiness bitmask for a registered fd.
type IOCallback func(IOEvents)

type fdInfo struct {
	callback IOCallback
	events   IOEvents
	active   bool
}

// Selector backs the portable readiness API with an I/O completion port on
// Windows. Readiness-style dispatch of individual fds rides on handle
// association plus the wake mechanism in wakeup_windows.go; per-operation
// overlapped results are the caller's responsibility once posted.
type Selector struct {
	_        [64]byte
	iocp     windows.Handle
	_        [56]byte
	wakeSock windows.Socket
	fds      []fdInfo
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

// Init opens the I/O completion port.
func (p *Selector) Init() error {
	if p.closed.Load() {
		return ErrSelectorClosed
	}

	iocp, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return err
	}
	p.iocp = iocp

	wakeSock, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, windows.IPPROTO_TCP)
	if err != nil {
		_ = windows.CloseHandle(iocp)
		return err
	}
	p.wakeSock = wakeSock

	if _, err := windows.CreateIoCompletionPort(wakeSock, iocp, 0, 0); err != nil {
		_ = windows.CloseHandle(wakeSock)
		_ = windows.CloseHandle(iocp)
		return err
	}

	p.fds = make([]fdInfo, maxFDs)
	return nil
}

// Close closes the completion port and associated resources.
func (p *Selector) Close() error {
	p.closed.Store(true)
	if p.iocp != 0 {
		_ = windows.CloseHandle(p.iocp)
	}
	if p.wakeSock != windows.InvalidHandle {
		_ = windows.Closesocket(p.wakeSock)
	}
	return nil
}

// RegisterFD associates a handle with the completion port.
func (p *Selector) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if p.closed.Load() {
		return ErrSelectorClosed
	}
	if fd < 0 || fd >= MaxFDLimit {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if fd >= len(p.fds) {
		newSize := fd*2 + 1
		if newSize > MaxFDLimit {
			newSize = MaxFDLimit + 1
		}
		newFds := make([]fdInfo, newSize)
		copy(newFds, p.fds)
		p.fds = newFds
	}

	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}

	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.fdMu.Unlock()

	handle := windows.Handle(fd)
	if _, err := windows.CreateIoCompletionPort(handle, p.iocp, 0, 0); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

// UnregisterFD stops tracking fd. Closing the underlying handle removes
// its IOCP association; this only drops our bookkeeping.
func (p *Selector) UnregisterFD(fd int) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.fdMu.Unlock()
	return nil
}

// ModifyFD updates fd's interest-ops bookkeeping. IOCP has no concept of
// interest sets; actual I/O is driven by operations the caller posts.
func (p *Selector) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd].events = events
	p.fdMu.Unlock()
	return nil
}

// PollIO blocks up to timeoutMs on the completion port.
func (p *Selector) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrSelectorClosed
	}

	var timeout *uint32
	if timeoutMs >= 0 {
		t := uint32(timeoutMs)
		timeout = &t
	}

	var bytes uint32
	var key uintptr
	var overlapped *windows.Overlapped

	err := windows.GetQueuedCompletionStatus(p.iocp, &bytes, &key, &overlapped, timeout)
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			if errno == windows.WAIT_TIMEOUT {
				return 0, nil
			}
			if errno == windows.ERROR_ABANDONED_WAIT_0 || errno == windows.ERROR_INVALID_HANDLE {
				return 0, ErrSelectorClosed
			}
		}
		return 0, err
	}

	if overlapped == nil {
		return 0, nil
	}

	return 1, nil
}

// Wakeup interrupts a blocked PollIO from another thread.
func (p *Selector) Wakeup() error {
	if p.closed.Load() {
		return ErrSelectorClosed
	}
	return windows.PostQueuedCompletionStatus(p.iocp, 0, 0, nil)
}
