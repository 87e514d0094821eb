//go:build linux || darwin

package netconn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	netreactor "github.com/joeycumines/go-netreactor"
	"github.com/joeycumines/go-netreactor/buffer"
	"github.com/joeycumines/go-netreactor/decoder"
	"github.com/joeycumines/go-netreactor/outbound"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// localAddr resolves the ephemeral "host:port" a listening socket bound to
// 127.0.0.1:0 actually got, so a test can Dial back to it.
func localAddr(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", err
	}
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "", fmt.Errorf("netconn: unexpected sockaddr type %T", sa)
	}
	return fmt.Sprintf("127.0.0.1:%d", sa4.Port), nil
}

// echoWholeDecoder treats everything accumulated since the last Decode call
// as one message, mirroring cmd/reactor-echo's decoder.
type echoWholeDecoder struct{}

func (echoWholeDecoder) Decode(in decoder.Cumulation, out *decoder.OutputQueue) error {
	n := in.ReadableBytes()
	if n == 0 {
		return nil
	}
	p, err := in.Read(n)
	if err != nil {
		return err
	}
	msg := make([]byte, n)
	copy(msg, p)
	out.Add(msg)
	return nil
}

// recordingHandler collects every decoded message and the inactive cause.
type recordingHandler struct {
	mu       sync.Mutex
	messages [][]byte
	inactive chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{inactive: make(chan error, 1)}
}

func (h *recordingHandler) ChannelRead(c *Channel, msg any) {
	data, ok := msg.([]byte)
	if !ok {
		return
	}
	h.mu.Lock()
	cp := append([]byte(nil), data...)
	h.messages = append(h.messages, cp)
	h.mu.Unlock()
}

func (h *recordingHandler) ChannelInactive(c *Channel, cause error) {
	select {
	case h.inactive <- cause:
	default:
	}
}

func (h *recordingHandler) ChannelWritabilityChanged(c *Channel, writable bool) {}

// echoBackHandler writes every decoded message straight back on its channel.
type echoBackHandler struct{}

func (echoBackHandler) ChannelRead(c *Channel, msg any) {
	data, ok := msg.([]byte)
	if !ok {
		return
	}
	buf := buffer.New(len(data), len(data))
	_ = buf.Write(data)
	_ = c.Write(buf, nil)
}

func (echoBackHandler) ChannelInactive(c *Channel, cause error) {}

func (echoBackHandler) ChannelWritabilityChanged(c *Channel, writable bool) {}

func TestListenDialEchoRoundTrip(t *testing.T) {
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

	l, err := Listen(r, "tcp", "127.0.0.1:0",
		func() decoder.Handler { return echoWholeDecoder{} },
		func() MessageHandler { return echoBackHandler{} },
		cfg)
	require.NoError(t, err)
	defer l.Close()

	addr, err := localAddr(l.FD())
	require.NoError(t, err)

	client := newRecordingHandler()
	ch, err := Dial(r, "tcp", addr, echoWholeDecoder{}, client, cfg)
	require.NoError(t, err)

	msg := buffer.New(5, 5)
	require.NoError(t, msg.Write([]byte("hello")))
	require.NoError(t, ch.Write(msg, nil))

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.messages) > 0
	}, 2*time.Second, 10*time.Millisecond)

	client.mu.Lock()
	require.Equal(t, "hello", string(client.messages[0]))
	client.mu.Unlock()

	require.NoError(t, ch.Close())
	select {
	case <-client.inactive:
	case <-time.After(2 * time.Second):
		t.Fatal("ChannelInactive was never delivered")
	}
}

func TestChannelWriteAfterCloseFails(t *testing.T) {
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
	l, err := Listen(r, "tcp", "127.0.0.1:0",
		func() decoder.Handler { return echoWholeDecoder{} },
		func() MessageHandler { return newRecordingHandler() },
		cfg)
	require.NoError(t, err)
	defer l.Close()

	addr, err := localAddr(l.FD())
	require.NoError(t, err)

	client := newRecordingHandler()
	ch, err := Dial(r, "tcp", addr, echoWholeDecoder{}, client, cfg)
	require.NoError(t, err)

	require.NoError(t, ch.Close())

	buf := buffer.New(1, 1)
	err = ch.Write(buf, nil)
	require.Error(t, err)
	_ = buf.Release()
}

// erroringDecoder always fails, to exercise a Channel's decode-error log
// path and ChannelInactive(cause) delivery.
type erroringDecoder struct{}

var errDecodeBoom = errors.New("decode boom")

func (erroringDecoder) Decode(in decoder.Cumulation, out *decoder.OutputQueue) error {
	return errDecodeBoom
}

func TestChannelLogsWritabilityChanged(t *testing.T) {
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

	var logBuf bytes.Buffer
	cfg := DefaultConfig()
	cfg.WaterMarks = outbound.WaterMarks{High: 1, Low: 0}
	cfg.Logger = netreactor.NewWriterLogger(netreactor.LevelDebug, &logBuf)

	l, err := Listen(r, "tcp", "127.0.0.1:0",
		func() decoder.Handler { return echoWholeDecoder{} },
		func() MessageHandler { return newRecordingHandler() },
		cfg)
	require.NoError(t, err)
	defer l.Close()

	addr, err := localAddr(l.FD())
	require.NoError(t, err)

	client := newRecordingHandler()
	ch, err := Dial(r, "tcp", addr, echoWholeDecoder{}, client, cfg)
	require.NoError(t, err)
	defer ch.Close()

	msg := buffer.New(5, 5)
	require.NoError(t, msg.Write([]byte("hello")))
	require.NoError(t, ch.Write(msg, nil))

	require.Eventually(t, func() bool {
		return bytes.Contains(logBuf.Bytes(), []byte("writability changed"))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChannelLogsDecodeError(t *testing.T) {
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

	var logBuf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logger = netreactor.NewWriterLogger(netreactor.LevelError, &logBuf)

	l, err := Listen(r, "tcp", "127.0.0.1:0",
		func() decoder.Handler { return erroringDecoder{} },
		func() MessageHandler { return newRecordingHandler() },
		cfg)
	require.NoError(t, err)
	defer l.Close()

	addr, err := localAddr(l.FD())
	require.NoError(t, err)

	client := newRecordingHandler()
	ch, err := Dial(r, "tcp", addr, erroringDecoder{}, client, cfg)
	require.NoError(t, err)

	msg := buffer.New(5, 5)
	require.NoError(t, msg.Write([]byte("hello")))
	require.NoError(t, ch.Write(msg, nil))

	require.Eventually(t, func() bool {
		return bytes.Contains(logBuf.Bytes(), []byte("decode failed"))
	}, 2*time.Second, 10*time.Millisecond)
}
