//go:build linux || darwin

package netconn

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	netreactor "github.com/joeycumines/go-netreactor"
	"github.com/joeycumines/go-netreactor/decoder"
	"github.com/stretchr/testify/require"
)

func TestListenerCloseIsIdempotent(t *testing.T) {
	r, err := netreactor.New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		_ = r.Shutdown(shutdownCtx)
	}()

	l, err := Listen(r, "tcp", "127.0.0.1:0",
		func() decoder.Handler { return echoWholeDecoder{} },
		func() MessageHandler { return newRecordingHandler() },
		DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.ErrorIs(t, l.Close(), ErrListenerClosed)
}

func TestListenerAcceptsMultipleConnections(t *testing.T) {
	r, err := netreactor.New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		_ = r.Shutdown(shutdownCtx)
	}()

	cfg := DefaultConfig()
	var accepted atomic.Int32
	l, err := Listen(r, "tcp", "127.0.0.1:0",
		func() decoder.Handler { return echoWholeDecoder{} },
		func() MessageHandler {
			accepted.Add(1)
			return newRecordingHandler()
		},
		cfg)
	require.NoError(t, err)
	defer l.Close()

	addr, err := localAddr(l.FD())
	require.NoError(t, err)

	const clients = 3
	chans := make([]*Channel, clients)
	for i := 0; i < clients; i++ {
		ch, derr := Dial(r, "tcp", addr, echoWholeDecoder{}, newRecordingHandler(), cfg)
		require.NoError(t, derr)
		chans[i] = ch
	}

	require.Eventually(t, func() bool {
		return accepted.Load() >= clients
	}, 2*time.Second, 10*time.Millisecond)

	for _, ch := range chans {
		require.NoError(t, ch.Close())
	}
}
