//go:build linux || darwin

package netreactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestReactorRegisterChannelDeliversReadReadiness(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	readFd, writeFd := fds[0], fds[1]
	require.NoError(t, unix.SetNonblock(readFd, true))
	defer unix.Close(readFd)
	defer unix.Close(writeFd)

	r, err := New()
	require.NoError(t, err)

	got := make(chan []byte, 1)
	require.NoError(t, r.RegisterChannel(readFd, OpRead, func(ready InterestOps) {
		require.Equal(t, OpRead, ready)
		buf := make([]byte, 64)
		n, _ := unix.Read(readFd, buf)
		if n > 0 {
			got <- buf[:n]
		}
	}))

	go func() { _ = r.Run(context.Background()) }()

	_, err = unix.Write(writeFd, []byte("hello"))
	require.NoError(t, err)

	select {
	case b := <-got:
		require.Equal(t, "hello", string(b))
	case <-time.After(2 * time.Second):
		t.Fatal("read readiness never delivered")
	}

	// Graceful shutdown waits for the registered-channel set to drain, so
	// deregister it first, as a well-behaved channel owner would on its
	// own close path.
	require.NoError(t, r.CancelChannel(readFd))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
}

func TestReactorCancelChannelUnregisters(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	readFd, writeFd := fds[0], fds[1]
	require.NoError(t, unix.SetNonblock(readFd, true))
	defer unix.Close(readFd)
	defer unix.Close(writeFd)

	r, err := New()
	require.NoError(t, err)

	require.NoError(t, r.RegisterChannel(readFd, OpRead, func(InterestOps) {}))
	require.NoError(t, r.CancelChannel(readFd))
	require.ErrorIs(t, r.CancelChannel(readFd), ErrFDNotRegistered)

	require.NoError(t, r.Close())
}
