// Package netconn wires buffer, outbound, decoder, and the root netreactor
// package together into a non-blocking TCP channel: a Listener accepts raw
// connection file descriptors and registers them with a Reactor, and a
// Channel drives reads through a decoder.Cumulator and writes through an
// outbound.Queue, all dispatched from the reactor's own goroutine.
//
// Sockets are created and operated on directly via golang.org/x/sys/unix
// (or golang.org/x/sys/windows), bypassing net.Conn and the Go runtime's
// own netpoller entirely, so that readiness is multiplexed exclusively by
// the owning Reactor's Selector.
package netconn
