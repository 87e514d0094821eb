//go:build windows

package netconn

import (
	"errors"
	"net"

	"golang.org/x/sys/windows"
)

var errAgain = errors.New("netconn: resource temporarily unavailable")

func readRawFD(fd int, buf []byte) (int, error) {
	n, err := windows.Read(windows.Handle(fd), buf)
	if err != nil {
		if errors.Is(err, windows.WSAEWOULDBLOCK) {
			return 0, errAgain
		}
		return 0, err
	}
	return n, nil
}

func writeRawFD(fd int, buf []byte) (int, error) {
	n, err := windows.Write(windows.Handle(fd), buf)
	if err != nil {
		if errors.Is(err, windows.WSAEWOULDBLOCK) {
			return n, errAgain
		}
		return n, err
	}
	return n, nil
}

// writevRawFD falls back to sequential writes: Windows vectored send needs
// WSASend, which (like the rest of this file's IOCP-era plumbing) is not
// wired up yet.
func writevRawFD(fd int, views [][]byte) (int64, error) {
	var total int64
	for _, v := range views {
		n, err := writeRawFD(fd, v)
		total += int64(n)
		if err != nil {
			return total, err
		}
		if n < len(v) {
			return total, errAgain
		}
	}
	return total, nil
}

func closeRawFD(fd int) error {
	return windows.CloseHandle(windows.Handle(fd))
}

func listenRawFD(network, addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return -1, err
	}

	sock, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, windows.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}

	sa := &windows.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	if err := windows.Bind(sock, sa); err != nil {
		_ = windows.Closesocket(sock)
		return -1, err
	}
	if err := windows.Listen(sock, 1024); err != nil {
		_ = windows.Closesocket(sock)
		return -1, err
	}

	var mode uint32 = 1
	if err := windows.IoctlSocket(sock, windows.FIONBIO, &mode); err != nil {
		_ = windows.Closesocket(sock)
		return -1, err
	}
	return int(sock), nil
}

func acceptRawFD(listenFd int) (int, error) {
	nfd, _, err := windows.Accept(windows.Handle(listenFd))
	if err != nil {
		if errors.Is(err, windows.WSAEWOULDBLOCK) {
			return -1, errAgain
		}
		return -1, err
	}
	var mode uint32 = 1
	if err := windows.IoctlSocket(windows.Handle(nfd), windows.FIONBIO, &mode); err != nil {
		_ = windows.Closesocket(windows.Handle(nfd))
		return -1, err
	}
	return int(nfd), nil
}

func dialRawFD(network, addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return -1, err
	}

	sock, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, windows.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	var mode uint32 = 1
	if err := windows.IoctlSocket(sock, windows.FIONBIO, &mode); err != nil {
		_ = windows.Closesocket(sock)
		return -1, err
	}

	sa := &windows.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	err = windows.Connect(sock, sa)
	if err != nil && !errors.Is(err, windows.WSAEWOULDBLOCK) {
		_ = windows.Closesocket(sock)
		return -1, err
	}
	return int(sock), nil
}

func connectError(fd int) error {
	errno, err := windows.GetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return windows.Errno(errno)
	}
	return nil
}
