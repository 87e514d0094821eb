package main

import (
	"log"

	"github.com/joeycumines/go-netreactor/buffer"
	"github.com/joeycumines/go-netreactor/decoder"
	"github.com/joeycumines/go-netreactor/netconn"
)

// echoDecoder treats the entire cumulation as one message on every Decode
// call: no framing, just whatever bytes have arrived since the last pass.
type echoDecoder struct{}

func (echoDecoder) Decode(in decoder.Cumulation, out *decoder.OutputQueue) error {
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

// echoHandler writes every decoded message straight back to its channel.
type echoHandler struct{}

func (echoHandler) ChannelRead(c *netconn.Channel, msg any) {
	data, ok := msg.([]byte)
	if !ok {
		return
	}
	buf := buffer.New(len(data), len(data))
	if err := buf.Write(data); err != nil {
		log.Printf("reactor-echo: buffer write: %v", err)
		_ = buf.Release()
		return
	}
	if err := c.Write(buf, nil); err != nil {
		log.Printf("reactor-echo: write: %v", err)
	}
}

func (echoHandler) ChannelInactive(c *netconn.Channel, cause error) {
	if cause != nil {
		log.Printf("reactor-echo: fd %d closed: %v", c.FD(), cause)
	}
}

func (echoHandler) ChannelWritabilityChanged(c *netconn.Channel, writable bool) {
	log.Printf("reactor-echo: fd %d writable=%v", c.FD(), writable)
}
