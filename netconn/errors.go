package netconn

import "errors"

var (
	// ErrChannelClosed is returned by Channel operations attempted after Close.
	ErrChannelClosed = errors.New("netconn: channel closed")

	// ErrListenerClosed is returned by Listener operations attempted after Close.
	ErrListenerClosed = errors.New("netconn: listener closed")
)
