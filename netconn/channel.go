package netconn

import (
	"sync/atomic"

	netreactor "github.com/joeycumines/go-netreactor"
	"github.com/joeycumines/go-netreactor/buffer"
	"github.com/joeycumines/go-netreactor/decoder"
	"github.com/joeycumines/go-netreactor/outbound"
)

// MessageHandler consumes decoded application messages and lifecycle
// events for one Channel. Calls all arrive on the owning Reactor's
// goroutine.
type MessageHandler interface {
	// ChannelRead is invoked once per message a decoder.Handler produced
	// from the channel's inbound bytes.
	ChannelRead(c *Channel, msg any)
	// ChannelInactive is invoked exactly once, when the channel has gone
	// away (peer close, read/write error, or explicit Close). cause is nil
	// for a clean peer-initiated close.
	ChannelInactive(c *Channel, cause error)
	// ChannelWritabilityChanged mirrors the outbound queue's water-mark
	// transitions.
	ChannelWritabilityChanged(c *Channel, writable bool)
}

// Config bundles the tunables a Channel needs beyond its fd and handlers.
type Config struct {
	ReadBufferSize   int
	ReadPool         *buffer.Pool
	EntryOverhead    int64
	WaterMarks       outbound.WaterMarks
	CumulatorOptions []decoder.Option
	GatherMaxCount   int
	GatherMaxBytes   int64
	// Logger receives writability-change and decode-error log entries. If
	// nil, the owning Reactor's own Logger is used.
	Logger netreactor.Logger
}

// DefaultConfig returns a Config using reasonable defaults.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize: 64 * 1024,
		ReadPool:       buffer.NewPool(64 * 1024),
		EntryOverhead:  outbound.DefaultEntryOverhead,
		WaterMarks:     outbound.DefaultWaterMarks,
		GatherMaxCount: 1024,
		GatherMaxBytes: 1 << 20,
	}
}

// Channel is a non-blocking TCP connection driven by a Reactor: inbound
// bytes flow through a decoder.Cumulator, outbound messages through an
// outbound.Queue, and readiness dispatch never blocks the reactor
// goroutine.
type Channel struct {
	fd      int
	reactor *netreactor.Reactor
	cfg     Config

	cumulator *decoder.Cumulator
	out       *outbound.Queue
	handler   MessageHandler

	writeRegistered atomic.Bool
	closed          atomic.Bool
	connecting      atomic.Bool
}

func (c *Channel) logger() netreactor.Logger {
	if c.cfg.Logger != nil {
		return c.cfg.Logger
	}
	return c.reactor.Logger()
}

func newChannel(r *netreactor.Reactor, fd int, decodeHandler decoder.Handler, handler MessageHandler, cfg Config, connecting bool) (*Channel, error) {
	c := &Channel{fd: fd, reactor: r, cfg: cfg, handler: handler}
	c.cumulator = decoder.New(decodeHandler, cfg.CumulatorOptions...)
	c.out = outbound.NewQueue(cfg.EntryOverhead, cfg.WaterMarks)
	c.out.OnWritabilityChanged(func(writable bool) {
		netreactor.LogWritabilityChanged(c.logger(), r.ID(), fd, writable)
		if c.handler != nil {
			c.handler.ChannelWritabilityChanged(c, writable)
		}
	})

	ops := netreactor.OpRead
	if connecting {
		c.connecting.Store(true)
		ops = netreactor.OpConnect
	}
	if err := r.RegisterChannel(fd, ops, c.onReady); err != nil {
		return nil, err
	}
	return c, nil
}

// FD returns the channel's underlying raw file descriptor.
func (c *Channel) FD() int { return c.fd }

// IsWritable reports the outbound queue's current writability, driven by
// its water marks.
func (c *Channel) IsWritable() bool { return c.out.IsWritable() }

// Write enqueues msg for transmission and requests a flush. msg's
// reference is owned by the outbound queue once Write returns successfully.
func (c *Channel) Write(msg *buffer.Buffer, completion *outbound.Completion) error {
	if c.closed.Load() {
		return &netreactor.ClosedChannelError{Cause: ErrChannelClosed}
	}
	if err := c.out.AddMessage(msg, int64(msg.ReadableBytes()), completion); err != nil {
		return err
	}
	return c.Flush()
}

// Flush promotes queued writes into the flushed region and ensures OpWrite
// interest is registered so the reactor drives the actual send.
func (c *Channel) Flush() error {
	if c.closed.Load() {
		return &netreactor.ClosedChannelError{Cause: ErrChannelClosed}
	}
	if err := c.out.MarkFlush(); err != nil {
		return err
	}
	return c.ensureWriteInterest()
}

func (c *Channel) ensureWriteInterest() error {
	if c.out.FlushedCount() == 0 {
		return nil
	}
	if !c.writeRegistered.CompareAndSwap(false, true) {
		return nil
	}
	return c.reactor.ModifyInterestOps(c.fd, netreactor.OpRead|netreactor.OpWrite)
}

func (c *Channel) onReady(ready netreactor.InterestOps) {
	if ready&netreactor.OpConnect != 0 {
		c.handleConnected()
		return
	}
	if ready&netreactor.OpWrite != 0 {
		c.handleWritable()
	}
	if ready&(netreactor.OpRead|netreactor.OpAccept) != 0 {
		c.handleReadable()
	}
}

func (c *Channel) handleConnected() {
	c.connecting.Store(false)
	if err := connectError(c.fd); err != nil {
		c.closeWithCause(&netreactor.IOError{Op: "connect", Cause: err})
		return
	}
	if err := c.reactor.ModifyInterestOps(c.fd, netreactor.OpRead); err != nil {
		c.closeWithCause(err)
	}
}

// handleReadable drains the socket into pooled buffers until it would
// block or a read returns fewer than ReadBufferSize bytes, draining every
// decoded message to handler.ChannelRead in order.
func (c *Channel) handleReadable() {
	for {
		buf := c.cfg.ReadPool.Get(c.cfg.ReadBufferSize, c.cfg.ReadBufferSize)
		slice, err := buf.WritableSlice(c.cfg.ReadBufferSize)
		if err != nil {
			_ = buf.Release()
			c.closeWithCause(err)
			return
		}

		n, rerr := readRawFD(c.fd, slice)
		if n > 0 {
			if aerr := buf.Advance(n); aerr != nil {
				_ = buf.Release()
				c.closeWithCause(aerr)
				return
			}
			c.deliverDecoded(buf)
		} else {
			_ = buf.Release()
		}

		if rerr == errAgain {
			c.cumulator.ChannelReadComplete()
			return
		}
		if rerr != nil {
			c.closeWithCause(&netreactor.IOError{Op: "read", Cause: rerr})
			return
		}
		if n == 0 {
			c.closeWithCause(nil)
			return
		}
		if n < c.cfg.ReadBufferSize {
			c.cumulator.ChannelReadComplete()
			return
		}
	}
}

func (c *Channel) deliverDecoded(buf *buffer.Buffer) {
	msgs, derr := c.cumulator.ChannelRead(buf)
	for _, m := range msgs {
		if c.handler != nil {
			c.handler.ChannelRead(c, m)
		}
	}
	if derr != nil {
		netreactor.LogDecodeError(c.logger(), c.reactor.ID(), c.fd, derr)
		c.closeWithCause(derr)
	}
}

// handleWritable gathers the outbound queue's flushed views into a single
// vectored write, advancing the queue by however much the kernel accepted.
func (c *Channel) handleWritable() {
	for {
		views, count, total, err := c.out.GatherViews(c.cfg.GatherMaxCount, c.cfg.GatherMaxBytes)
		if err != nil {
			c.closeWithCause(err)
			return
		}
		if count == 0 {
			c.disableWriteInterest()
			return
		}

		written, werr := writevRawFD(c.fd, views)
		if written > 0 {
			if rerr := c.out.RemoveBytes(written); rerr != nil {
				c.closeWithCause(rerr)
				return
			}
		}

		if werr == errAgain {
			return
		}
		if werr != nil {
			c.out.FailFlushed(&netreactor.IOError{Op: "write", Cause: werr})
			c.closeWithCause(werr)
			return
		}
		if written < total {
			return
		}
	}
}

func (c *Channel) disableWriteInterest() {
	if !c.writeRegistered.CompareAndSwap(true, false) {
		return
	}
	_ = c.reactor.ModifyInterestOps(c.fd, netreactor.OpRead)
}

// Close tears down the channel: unregisters it from the reactor, fails any
// flushed writes, closes the outbound queue, and closes the fd.
func (c *Channel) Close() error {
	return c.closeWithCause(nil)
}

func (c *Channel) closeWithCause(cause error) error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrChannelClosed
	}

	_ = c.reactor.CancelChannel(c.fd)
	failCause := cause
	if failCause == nil {
		failCause = &netreactor.ClosedChannelError{Cause: ErrChannelClosed}
	}
	c.out.FailFlushed(failCause)
	_ = c.out.Close(failCause)
	_ = closeRawFD(c.fd)

	msgs, derr := c.cumulator.ChannelInactive()
	if derr != nil && cause == nil {
		cause = derr
	}
	if c.handler != nil {
		for _, m := range msgs {
			c.handler.ChannelRead(c, m)
		}
		c.handler.ChannelInactive(c, cause)
	}
	return nil
}
