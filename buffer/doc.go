// Package buffer provides a reference-counted byte container with
// independent reader/writer indices, slicing, and a vectored-I/O
// projection suitable for scatter/gather writes.
//
// # Model
//
// A [Buffer] is a handle onto a shared, pooled byte region. It carries two
// monotonic indices, readerIndex <= writerIndex <= capacity <= maxCapacity,
// and a reference count on the underlying region, starting at 1. Slicing a
// Buffer ([Buffer.Slice], [Buffer.ReadRetainedSlice], [Buffer.Duplicate])
// produces a new handle over the same region; [Buffer.ReadRetainedSlice]
// additionally increments the region's reference count so the slice can
// outlive the buffer it was read from. When every holder has released its
// reference the region is returned to its pool exactly once.
//
// # Byte order
//
// Multi-byte integer accessors default to big-endian, matching network byte
// order; a per-Buffer [binary.ByteOrder] can be set with
// [Buffer.SetByteOrder].
package buffer
