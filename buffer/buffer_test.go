package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferReadWriteRoundTrip(t *testing.T) {
	b := New(16, 64)
	require.NoError(t, b.WriteUint32(0xdeadbeef))
	require.NoError(t, b.Write([]byte("hello")))
	require.Equal(t, 9, b.ReadableBytes())

	v, err := b.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v)

	p, err := b.Read(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(p))
	assert.Equal(t, 0, b.ReadableBytes())
}

func TestBufferReadInsufficientData(t *testing.T) {
	b := New(4, 4)
	require.NoError(t, b.WriteByte(1))
	_, err := b.Read(2)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestBufferGrowRespectsMaxCapacity(t *testing.T) {
	b := New(2, 4)
	require.NoError(t, b.Write([]byte{1, 2}))
	err := b.Write([]byte{3, 4, 5})
	assert.ErrorIs(t, err, ErrMaxCapacityExceeded)
}

// TestReadRetainedSliceNetRefCount verifies the headline buffer property:
// read_retained_slice(n) followed by releasing both halves decrements the
// underlying region's reference count by exactly one, net.
func TestReadRetainedSliceNetRefCount(t *testing.T) {
	b := New(16, 16)
	require.NoError(t, b.Write([]byte("0123456789abcdef")))
	require.Equal(t, int32(1), int32(b.RefCount()))

	slice, err := b.ReadRetainedSlice(4)
	require.NoError(t, err)
	assert.Equal(t, 2, b.RefCount())
	assert.Equal(t, "0123", string(slice.Bytes()))
	assert.Equal(t, 4, b.ReaderIndex())

	require.NoError(t, slice.Release())
	assert.Equal(t, 1, b.RefCount())

	require.NoError(t, b.Release())
	assert.Equal(t, 0, b.RefCount())
}

func TestBufferOverRelease(t *testing.T) {
	b := New(1, 1)
	require.NoError(t, b.Release())
	assert.ErrorIs(t, b.Release(), ErrOverRelease)
}

func TestBufferSliceSharesRegionWithoutRetain(t *testing.T) {
	b := New(8, 8)
	require.NoError(t, b.Write([]byte("abcdefgh")))
	s, err := b.Slice(2, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, b.RefCount())
	assert.Equal(t, "cde", string(s.Bytes()))
}

func TestDiscardSomeReadBytesRefusedWhenShared(t *testing.T) {
	b := New(8, 8)
	require.NoError(t, b.Write([]byte("abcdefgh")))
	_, err := b.Read(4)
	require.NoError(t, err)

	slice, err := b.ReadRetainedSlice(0)
	require.NoError(t, err)
	defer slice.Release()

	assert.ErrorIs(t, b.DiscardSomeReadBytes(), ErrNotDiscardable)
}

func TestDiscardSomeReadBytesCompactsWhenSole(t *testing.T) {
	b := New(8, 8)
	require.NoError(t, b.Write([]byte("abcdefgh")))
	_, err := b.Read(4)
	require.NoError(t, err)

	require.NoError(t, b.DiscardSomeReadBytes())
	assert.Equal(t, 0, b.ReaderIndex())
	assert.Equal(t, 4, b.WriterIndex())
	assert.Equal(t, "efgh", string(b.Bytes()))
}

func TestDiscardSomeReadBytesNoOpForFirstFragment(t *testing.T) {
	b := New(8, 8)
	require.NoError(t, b.Write([]byte("abcdefgh")))
	_, err := b.Read(4)
	require.NoError(t, err)

	b.MarkFirstFragment(true)
	require.NoError(t, b.DiscardSomeReadBytes())
	assert.Equal(t, 4, b.ReaderIndex(), "first-fragment buffers must not be compacted")
}

func TestInternalNIOView(t *testing.T) {
	b := New(8, 8)
	require.NoError(t, b.Write([]byte("abcdefgh")))
	_, err := b.Read(2)
	require.NoError(t, err)

	v, err := b.InternalNIOView(0, 3)
	require.NoError(t, err)
	assert.Equal(t, "cde", string(v))

	_, err = b.InternalNIOView(0, 100)
	assert.ErrorIs(t, err, ErrIndexOutOfBounds)
}

func TestPoolRecyclesBackingArray(t *testing.T) {
	p := NewPool(32)
	b := p.Get(16, 16)
	require.NoError(t, b.Write([]byte("0123456789abcdef")))
	require.NoError(t, b.Release())

	b2 := p.Get(16, 16)
	defer b2.Release()
	assert.Equal(t, 0, b2.ReadableBytes())
}
