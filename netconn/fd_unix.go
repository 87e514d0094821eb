//go:build linux || darwin

package netconn

import (
	"errors"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// errAgain signals a non-blocking read/write that produced no bytes because
// none were available, distinct from a genuine I/O failure.
var errAgain = errors.New("netconn: resource temporarily unavailable")

func readRawFD(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, errAgain
		}
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func writeRawFD(fd int, buf []byte) (int, error) {
	n, err := unix.Write(fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return n, errAgain
		}
		if errors.Is(err, unix.EINTR) {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

// writevRawFD performs a vectored write of views, following the
// tryToWritev pattern: one writev syscall, returning however many bytes the
// kernel accepted across the leading views (possibly fewer than their
// total, i.e. a partial write).
func writevRawFD(fd int, views [][]byte) (int64, error) {
	n, err := unix.Writev(fd, views)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return int64(n), errAgain
		}
		if errors.Is(err, unix.EINTR) {
			return int64(n), nil
		}
		return int64(n), err
	}
	return int64(n), nil
}

func closeRawFD(fd int) error {
	return unix.Close(fd)
}

func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

var listenerMu sync.Mutex

// listenRawFD creates a non-blocking, listening TCP socket bound to addr.
func listenRawFD(network, addr string) (fd int, err error) {
	tcpAddr, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return -1, err
	}

	domain := unix.AF_INET
	sockaddr, err := tcpSockaddr(tcpAddr, &domain)
	if err != nil {
		return -1, err
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}

	listenerMu.Lock()
	defer listenerMu.Unlock()

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sockaddr); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 1024); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// acceptRawFD accepts one connection from a non-blocking listening fd,
// returning errAgain if none is currently pending.
func acceptRawFD(listenFd int) (connFd int, err error) {
	nfd, _, aerr := unix.Accept(listenFd)
	if aerr != nil {
		if errors.Is(aerr, unix.EAGAIN) {
			return -1, errAgain
		}
		if errors.Is(aerr, unix.EINTR) {
			return -1, errAgain
		}
		return -1, aerr
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		return -1, err
	}
	return nfd, nil
}

// dialRawFD initiates a non-blocking connect to addr, returning the new fd
// immediately; the caller must watch it for OpConnect readiness.
func dialRawFD(network, addr string) (fd int, err error) {
	tcpAddr, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return -1, err
	}

	domain := unix.AF_INET
	sockaddr, err := tcpSockaddr(tcpAddr, &domain)
	if err != nil {
		return -1, err
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	if err := unix.Connect(fd, sockaddr); err != nil {
		if errors.Is(err, unix.EINPROGRESS) {
			return fd, nil
		}
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// connectError reports a non-blocking connect's outcome once the fd
// signals OpConnect readiness, via SO_ERROR.
func connectError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

func tcpSockaddr(addr *net.TCPAddr, domain *int) (unix.Sockaddr, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		*domain = unix.AF_INET
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	*domain = unix.AF_INET6
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return sa, nil
}
