package netconn

import (
	"sync/atomic"

	netreactor "github.com/joeycumines/go-netreactor"
	"github.com/joeycumines/go-netreactor/decoder"
)

// Listener accepts inbound TCP connections on a Reactor, handing each one
// off as a Channel. decodeFactory and handlerFactory are invoked once per
// accepted connection, so each Channel gets its own decoder.Handler and
// MessageHandler state.
type Listener struct {
	fd      int
	reactor *netreactor.Reactor
	cfg     Config

	decodeFactory  func() decoder.Handler
	handlerFactory func() MessageHandler

	closed atomic.Bool
}

// Listen creates a non-blocking listening socket bound to addr and
// registers it with r for OpAccept readiness.
func Listen(r *netreactor.Reactor, network, addr string, decodeFactory func() decoder.Handler, handlerFactory func() MessageHandler, cfg Config) (*Listener, error) {
	fd, err := listenRawFD(network, addr)
	if err != nil {
		return nil, err
	}

	l := &Listener{fd: fd, reactor: r, cfg: cfg, decodeFactory: decodeFactory, handlerFactory: handlerFactory}
	if err := r.RegisterChannel(fd, netreactor.OpAccept, l.onAccept); err != nil {
		_ = closeRawFD(fd)
		return nil, err
	}
	return l, nil
}

// FD returns the listening socket's raw file descriptor.
func (l *Listener) FD() int { return l.fd }

func (l *Listener) onAccept(netreactor.InterestOps) {
	for {
		connFd, err := acceptRawFD(l.fd)
		if err != nil {
			return
		}

		ch, cerr := newChannel(l.reactor, connFd, l.decodeFactory(), l.handlerFactory(), l.cfg, false)
		if cerr != nil {
			_ = closeRawFD(connFd)
			continue
		}
		_ = ch
	}
}

// Close stops accepting and closes the listening socket.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return ErrListenerClosed
	}
	_ = l.reactor.CancelChannel(l.fd)
	return closeRawFD(l.fd)
}

// Dial opens a non-blocking outbound TCP connection to addr, returning a
// Channel once the connection completes asynchronously via OpConnect.
func Dial(r *netreactor.Reactor, network, addr string, decodeHandler decoder.Handler, handler MessageHandler, cfg Config) (*Channel, error) {
	fd, err := dialRawFD(network, addr)
	if err != nil {
		return nil, err
	}

	ch, err := newChannel(r, fd, decodeHandler, handler, cfg, true)
	if err != nil {
		_ = closeRawFD(fd)
		return nil, err
	}
	return ch, nil
}
