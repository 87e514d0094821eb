//go:build linux

package netreactor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestWakeFdDrainAndSubmit(t *testing.T) {
	readFd, writeFd, err := createWakeFd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	require.NoError(t, err)
	defer closeWakeFd(readFd, writeFd)

	require.True(t, isWakeFdSupported())

	require.NoError(t, submitGenericWakeup(uintptr(writeFd)))
	require.NoError(t, submitGenericWakeup(uintptr(writeFd)))

	require.NoError(t, drainWakeUpPipe(readFd))

	var buf [8]byte
	_, err = unix.Read(readFd, buf[:])
	require.ErrorIs(t, err, unix.EAGAIN)
}

func TestDrainWakeUpPipeOnEmptyFdIsNoop(t *testing.T) {
	readFd, writeFd, err := createWakeFd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	require.NoError(t, err)
	defer closeWakeFd(readFd, writeFd)

	require.NoError(t, drainWakeUpPipe(readFd))
	require.NoError(t, drainWakeUpPipe(-1))
}
