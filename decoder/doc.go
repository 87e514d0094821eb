// Package decoder implements a cumulating decoder: an inbound byte-stream
// accumulator that feeds a user decode function repeatedly as bytes
// arrive, survives partial frames, handler removal mid-decode, and channel
// shutdown, and recycles its accumulation buffer according to a
// configurable strategy.
//
// # Model
//
// A [Cumulator] holds zero or one accumulation ([buffer.Buffer] or
// [buffer.Composite]). Each call to [Cumulator.ChannelRead] appends a
// freshly read fragment using the configured [Strategy], then repeatedly
// invokes the [Handler]'s Decode method until it stops making progress,
// surfacing every produced message. [Cumulator.ChannelInactive] runs one
// final decode pass against any residual accumulation before releasing it.
package decoder
