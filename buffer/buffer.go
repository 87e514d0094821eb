package buffer

import (
	"encoding/binary"
	"sync/atomic"
)

// defaultByteOrder matches network byte order, the wire convention assumed
// when no per-Buffer override is set via SetByteOrder.
var defaultByteOrder binary.ByteOrder = binary.BigEndian

// region is the shared, reference-counted backing store for one or more
// Buffer handles. Only one region is ever mutated at a time (by whichever
// Buffer currently holds the sole non-shared reference); slicing never
// copies region.data, it only creates additional handles onto it.
//
// Modeled on the pooled dataChunk{data, poolEntry, refcnt} split used by
// throughput-oriented ring buffers in this space: a plain backing array,
// with reference counting only incurring cost once a chunk is actually
// shared (Jille/throughputbuffer's dataChunk is the direct model here).
type region struct {
	data     []byte
	refCount atomic.Int32
	pool     *Pool // nil if this region is not returned anywhere on release
}

func (r *region) retain() {
	r.refCount.Add(1)
}

// release decrements the reference count and returns the region to its pool
// (or drops it for GC) when it reaches zero. Returns ErrOverRelease if the
// count was already zero.
func (r *region) release() error {
	for {
		n := r.refCount.Load()
		if n <= 0 {
			return ErrOverRelease
		}
		if r.refCount.CompareAndSwap(n, n-1) {
			if n == 1 {
				if r.pool != nil {
					r.pool.put(r.data)
				}
				r.data = nil
			}
			return nil
		}
	}
}

func (r *region) refs() int32 {
	return r.refCount.Load()
}

// Buffer is a handle onto a shared byte region plus two independent
// indices, readerIndex <= writerIndex <= capacity. See the package doc for
// the ownership model.
type Buffer struct {
	r             *region
	order         binary.ByteOrder
	readerIndex   int
	writerIndex   int
	capacity      int // logical length of r.data currently usable by this handle
	maxCapacity   int
	firstFragment bool // set by decoder.Cumulator when this Buffer was adopted as-is; disables DiscardSomeReadBytes
}

// New allocates a fresh, unpooled Buffer with the given initial and maximum
// capacities and a reference count of 1.
func New(initialCapacity, maxCapacity int) *Buffer {
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	if maxCapacity < initialCapacity {
		maxCapacity = initialCapacity
	}
	r := &region{data: make([]byte, initialCapacity)}
	r.refCount.Store(1)
	return &Buffer{r: r, order: defaultByteOrder, capacity: initialCapacity, maxCapacity: maxCapacity}
}

// WrapBytes wraps an existing slice as a Buffer with writerIndex set to
// len(b) (the slice is treated as fully written/readable), reference count
// 1, and maxCapacity equal to cap(b) unless maxCapacity is given explicitly
// and larger.
func WrapBytes(b []byte, maxCapacity int) *Buffer {
	r := &region{data: b}
	r.refCount.Store(1)
	if maxCapacity < cap(b) {
		maxCapacity = cap(b)
	}
	return &Buffer{r: r, order: defaultByteOrder, writerIndex: len(b), capacity: cap(b), maxCapacity: maxCapacity}
}

// SetByteOrder overrides the default big-endian accessors.
func (b *Buffer) SetByteOrder(order binary.ByteOrder) {
	b.order = order
}

// ReaderIndex returns the current read cursor.
func (b *Buffer) ReaderIndex() int { return b.readerIndex }

// WriterIndex returns the current write cursor.
func (b *Buffer) WriterIndex() int { return b.writerIndex }

// Capacity returns the logical length of the backing region visible to this
// handle.
func (b *Buffer) Capacity() int { return b.capacity }

// MaxCapacity returns the ceiling Grow will refuse to exceed.
func (b *Buffer) MaxCapacity() int { return b.maxCapacity }

// RefCount returns the current reference count of the underlying region.
func (b *Buffer) RefCount() int { return int(b.r.refs()) }

// ReadableBytes returns writerIndex - readerIndex.
func (b *Buffer) ReadableBytes() int { return b.writerIndex - b.readerIndex }

// WritableBytes returns capacity - writerIndex.
func (b *Buffer) WritableBytes() int { return b.capacity - b.writerIndex }

// Retain increments the region's reference count and returns the same
// Buffer, matching the idiom of returning self for chaining.
func (b *Buffer) Retain() *Buffer {
	b.r.retain()
	return b
}

// Release decrements the region's reference count, releasing the backing
// store exactly once the count reaches zero. Returns ErrOverRelease if
// called more times than the region was retained.
func (b *Buffer) Release() error {
	return b.r.release()
}

// Bytes returns the readable region [readerIndex, writerIndex) without
// copying. The returned slice is only valid until the next mutating call on
// any handle sharing this region.
func (b *Buffer) Bytes() []byte {
	return b.r.data[b.readerIndex:b.writerIndex:b.writerIndex]
}

// PeekAt returns n bytes starting at readerIndex without advancing it.
func (b *Buffer) PeekAt(n int) ([]byte, error) {
	if n < 0 || n > b.ReadableBytes() {
		return nil, ErrInsufficientData
	}
	return b.r.data[b.readerIndex : b.readerIndex+n], nil
}

// Skip advances readerIndex by n without returning the bytes.
func (b *Buffer) Skip(n int) error {
	if n < 0 || n > b.ReadableBytes() {
		return ErrInsufficientData
	}
	b.readerIndex += n
	return nil
}

// Read returns n bytes starting at readerIndex and advances it by n.
func (b *Buffer) Read(n int) ([]byte, error) {
	p, err := b.PeekAt(n)
	if err != nil {
		return nil, err
	}
	b.readerIndex += n
	return p, nil
}

// ReadByte reads and consumes a single byte.
func (b *Buffer) ReadByte() (byte, error) {
	p, err := b.Read(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// ReadUint16 reads and consumes a 2-byte unsigned integer in the buffer's
// byte order.
func (b *Buffer) ReadUint16() (uint16, error) {
	p, err := b.Read(2)
	if err != nil {
		return 0, err
	}
	return b.order.Uint16(p), nil
}

// ReadUint32 reads and consumes a 4-byte unsigned integer.
func (b *Buffer) ReadUint32() (uint32, error) {
	p, err := b.Read(4)
	if err != nil {
		return 0, err
	}
	return b.order.Uint32(p), nil
}

// ReadUint64 reads and consumes an 8-byte unsigned integer.
func (b *Buffer) ReadUint64() (uint64, error) {
	p, err := b.Read(8)
	if err != nil {
		return 0, err
	}
	return b.order.Uint64(p), nil
}

// ensureWritable grows the region, in place if possible, so that n more
// bytes can be appended at writerIndex.
func (b *Buffer) ensureWritable(n int) error {
	need := b.writerIndex + n
	if need <= b.capacity {
		return nil
	}
	if need > b.maxCapacity {
		return ErrMaxCapacityExceeded
	}
	newCap := b.capacity
	if newCap == 0 {
		newCap = 64
	}
	for newCap < need {
		newCap *= 2
	}
	if newCap > b.maxCapacity {
		newCap = b.maxCapacity
	}
	return b.Grow(newCap)
}

// Write appends p at writerIndex, growing the region if required.
func (b *Buffer) Write(p []byte) error {
	if err := b.ensureWritable(len(p)); err != nil {
		return err
	}
	copy(b.r.data[b.writerIndex:], p)
	b.writerIndex += len(p)
	return nil
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(c byte) error { return b.Write([]byte{c}) }

// WriteUint16 appends a 2-byte unsigned integer in the buffer's byte order.
func (b *Buffer) WriteUint16(v uint16) error {
	if err := b.ensureWritable(2); err != nil {
		return err
	}
	b.order.PutUint16(b.r.data[b.writerIndex:], v)
	b.writerIndex += 2
	return nil
}

// WriteUint32 appends a 4-byte unsigned integer.
func (b *Buffer) WriteUint32(v uint32) error {
	if err := b.ensureWritable(4); err != nil {
		return err
	}
	b.order.PutUint32(b.r.data[b.writerIndex:], v)
	b.writerIndex += 4
	return nil
}

// WriteUint64 appends an 8-byte unsigned integer.
func (b *Buffer) WriteUint64(v uint64) error {
	if err := b.ensureWritable(8); err != nil {
		return err
	}
	b.order.PutUint64(b.r.data[b.writerIndex:], v)
	b.writerIndex += 8
	return nil
}

// Slice returns a new Buffer sharing this region without incrementing the
// reference count: independent indices, snapshot over [offset, offset+length)
// relative to this buffer's own index space. The caller must not outlive the
// buffer it sliced from.
func (b *Buffer) Slice(offset, length int) (*Buffer, error) {
	if offset < 0 || length < 0 || offset+length > b.capacity {
		return nil, ErrIndexOutOfBounds
	}
	return &Buffer{
		r:           b.r,
		order:       b.order,
		capacity:    offset + length,
		maxCapacity: offset + length,
		readerIndex: offset,
		writerIndex: offset + length,
	}, nil
}

// ReadRetainedSlice returns a Buffer over [readerIndex, readerIndex+n) of
// this buffer, sharing the region and incrementing its reference count, and
// advances this buffer's readerIndex by n. Fails with ErrInsufficientData
// if n exceeds ReadableBytes.
func (b *Buffer) ReadRetainedSlice(n int) (*Buffer, error) {
	if n < 0 || n > b.ReadableBytes() {
		return nil, ErrInsufficientData
	}
	start := b.readerIndex
	b.r.retain()
	out := &Buffer{
		r:           b.r,
		order:       b.order,
		capacity:    start + n,
		maxCapacity: start + n,
		readerIndex: start,
		writerIndex: start + n,
	}
	b.readerIndex += n
	return out, nil
}

// Duplicate returns a new Buffer sharing this region and this buffer's
// current reader/writer indices as a snapshot, without incrementing the
// reference count. Subsequent reads/writes on either handle are
// independent. Capacity is per handle: Grow on one handle changes only that
// handle's capacity, although a Grow that reallocates swaps the new backing
// array into the shared region r, so every handle on r sees it.
func (b *Buffer) Duplicate() *Buffer {
	return &Buffer{
		r:           b.r,
		order:       b.order,
		capacity:    b.capacity,
		maxCapacity: b.maxCapacity,
		readerIndex: b.readerIndex,
		writerIndex: b.writerIndex,
	}
}

// DiscardSomeReadBytes compacts the region by shifting [readerIndex,
// writerIndex) to offset zero, adjusting both indices. Permitted only when
// the region's reference count is 1 (a retained slice might still be
// reading the discarded range) and the buffer was not adopted as the first
// fragment of a cumulation (see decoder.Cumulator).
func (b *Buffer) DiscardSomeReadBytes() error {
	if b.firstFragment {
		return nil
	}
	if b.r.refs() != 1 {
		return ErrNotDiscardable
	}
	if b.readerIndex == 0 {
		return nil
	}
	n := copy(b.r.data, b.r.data[b.readerIndex:b.writerIndex])
	b.writerIndex = n
	b.readerIndex = 0
	return nil
}

// MarkFirstFragment is called by decoder.Cumulator when this Buffer was
// adopted directly as the first fragment of a cumulation, disabling
// DiscardSomeReadBytes until the cumulation is replaced by an allocation
// (spec C3 "first_read").
func (b *Buffer) MarkFirstFragment(v bool) { b.firstFragment = v }

// IsFirstFragment reports whether MarkFirstFragment(true) was called and
// not yet cleared.
func (b *Buffer) IsFirstFragment() bool { return b.firstFragment }

// WritableSlice grows the region if required to guarantee n writable bytes,
// then exposes [writerIndex, writerIndex+n) directly for a reader (a raw
// socket read, say) to fill in place, avoiding the extra copy Write would
// otherwise require. The caller must follow up with Advance.
func (b *Buffer) WritableSlice(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrIndexOutOfBounds
	}
	if err := b.ensureWritable(n); err != nil {
		return nil, err
	}
	return b.r.data[b.writerIndex : b.writerIndex+n : b.writerIndex+n], nil
}

// Advance moves writerIndex forward by n, marking bytes a caller wrote
// in-place via WritableSlice as readable.
func (b *Buffer) Advance(n int) error {
	if n < 0 || b.writerIndex+n > b.capacity {
		return ErrIndexOutOfBounds
	}
	b.writerIndex += n
	return nil
}

// InternalNIOView exposes a zero-copy scatter/gather descriptor over
// [offset, offset+length) of the readable region, suitable for batching
// into a net.Buffers-style vectored write. The returned slice aliases the
// region's backing array and must not be retained past the next mutation.
func (b *Buffer) InternalNIOView(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || b.readerIndex+offset+length > b.writerIndex {
		return nil, ErrIndexOutOfBounds
	}
	start := b.readerIndex + offset
	return b.r.data[start : start+length : start+length], nil
}

// Grow changes the buffer's logical capacity. If newCapacity is less than
// or equal to the current backing array length, only the logical length is
// updated (no copy). Otherwise the region is reallocated, the live
// [0, writerIndex) prefix copied across, and the old region's storage
// released; indices are preserved, clamped to the new capacity.
func (b *Buffer) Grow(newCapacity int) error {
	if newCapacity > b.maxCapacity {
		return ErrMaxCapacityExceeded
	}
	if newCapacity < 0 {
		newCapacity = 0
	}
	if newCapacity <= len(b.r.data) {
		b.capacity = newCapacity
		if b.writerIndex > newCapacity {
			b.writerIndex = newCapacity
		}
		if b.readerIndex > b.writerIndex {
			b.readerIndex = b.writerIndex
		}
		return nil
	}

	var fresh []byte
	if b.r.pool != nil {
		fresh = b.r.pool.get(newCapacity)
	} else {
		fresh = make([]byte, newCapacity)
	}
	copy(fresh, b.r.data[:b.writerIndex])

	oldPool := b.r.pool
	oldData := b.r.data
	b.r.data = fresh
	b.capacity = newCapacity
	if oldPool != nil {
		oldPool.put(oldData)
	}
	return nil
}
