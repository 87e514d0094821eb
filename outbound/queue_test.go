package outbound

import (
	"errors"
	"testing"

	"github.com/joeycumines/go-netreactor/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(t *testing.T, s string) *buffer.Buffer {
	t.Helper()
	b := buffer.New(len(s), len(s))
	require.NoError(t, b.Write([]byte(s)))
	return b
}

func TestAddMessageRaisesHighWaterMark(t *testing.T) {
	q := NewQueue(0, WaterMarks{High: 10, Low: 5})
	var writable []bool
	q.OnWritabilityChanged(func(w bool) { writable = append(writable, w) })

	require.NoError(t, q.AddMessage(msg(t, "hello world"), 11, nil))
	assert.False(t, q.IsWritable())
	assert.Equal(t, []bool{false}, writable)
}

func TestWaterMarkLowersOnDrain(t *testing.T) {
	q := NewQueue(0, WaterMarks{High: 10, Low: 5})
	require.NoError(t, q.AddMessage(msg(t, "hello world"), 11, nil))
	require.NoError(t, q.MarkFlush())

	views, count, total, err := q.GatherViews(16, 1<<20)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, int64(11), total)
	assert.Len(t, views, 1)

	require.NoError(t, q.RemoveBytes(11))
	assert.True(t, q.IsWritable())
}

func TestAddMessageRemoveBytesAllCompletions(t *testing.T) {
	q := NewQueue(0, DefaultWaterMarks)
	var done []error
	for _, s := range []string{"aa", "bb", "cc"} {
		c := NewCompletion(false).OnDone(func(err error, cancelled bool) { done = append(done, err) })
		require.NoError(t, q.AddMessage(msg(t, s), int64(len(s)), c))
	}
	require.NoError(t, q.MarkFlush())

	for i := 0; i < 3; i++ {
		_, count, total, err := q.GatherViews(1, 1<<20)
		require.NoError(t, err)
		require.Equal(t, 1, count)
		require.NoError(t, q.RemoveBytes(total))
	}

	assert.Equal(t, int64(0), q.TotalPendingBytes())
	assert.Len(t, done, 3)
	for _, err := range done {
		assert.NoError(t, err)
	}
}

// TestCancellationBeforeFlush verifies the headline cancellation property:
// add three messages, cancel the middle one before MarkFlush; after
// MarkFlush, GatherViews returns views for the other two only, and
// total_pending_bytes reflects only their bytes.
func TestCancellationBeforeFlush(t *testing.T) {
	q := NewQueue(0, DefaultWaterMarks)

	ca := NewCompletion(false)
	require.NoError(t, q.AddMessage(msg(t, "AAAA"), 4, ca))

	cb := NewCompletion(false)
	require.NoError(t, q.AddMessage(msg(t, "BBBB"), 4, cb))

	cc := NewCompletion(false)
	require.NoError(t, q.AddMessage(msg(t, "CCCC"), 4, cc))

	assert.True(t, cb.TryCancel())

	require.NoError(t, q.MarkFlush())

	views, count, total, err := q.GatherViews(16, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, int64(8), total)
	assert.Equal(t, "AAAA", string(views[0]))
	assert.Equal(t, "CCCC", string(views[1]))
	assert.Equal(t, int64(8), q.TotalPendingBytes())
}

func TestCancelAfterFlushIsIgnored(t *testing.T) {
	q := NewQueue(0, DefaultWaterMarks)
	c := NewCompletion(false)
	require.NoError(t, q.AddMessage(msg(t, "AAAA"), 4, c))
	require.NoError(t, q.MarkFlush())

	assert.False(t, c.TryCancel(), "cancellation must be refused once promoted")
}

func TestFailFlushedNotifiesFailure(t *testing.T) {
	q := NewQueue(0, DefaultWaterMarks)
	var gotErr error
	c := NewCompletion(false).OnDone(func(err error, cancelled bool) { gotErr = err })
	require.NoError(t, q.AddMessage(msg(t, "AAAA"), 4, c))
	require.NoError(t, q.MarkFlush())

	cause := errors.New("boom")
	q.FailFlushed(cause)

	assert.ErrorIs(t, gotErr, cause)
	assert.Equal(t, int64(0), q.TotalPendingBytes())
}

func TestCloseRefusesWithFlushedEntries(t *testing.T) {
	q := NewQueue(0, DefaultWaterMarks)
	require.NoError(t, q.AddMessage(msg(t, "AAAA"), 4, nil))
	require.NoError(t, q.MarkFlush())

	assert.ErrorIs(t, q.Close(nil), ErrFlushedEntriesRemain)
}

func TestCloseDrainsUnflushed(t *testing.T) {
	q := NewQueue(0, DefaultWaterMarks)
	var gotErr error
	c := NewCompletion(false).OnDone(func(err error, cancelled bool) { gotErr = err })
	require.NoError(t, q.AddMessage(msg(t, "AAAA"), 4, c))

	require.NoError(t, q.Close(nil))
	assert.ErrorIs(t, gotErr, ErrClosed)
	assert.Equal(t, int64(0), q.TotalPendingBytes())

	assert.ErrorIs(t, q.AddMessage(msg(t, "BBBB"), 4, nil), ErrClosed)
}

func TestGatherViewsAlwaysIncludesFirstEntryEvenIfOversized(t *testing.T) {
	q := NewQueue(0, DefaultWaterMarks)
	require.NoError(t, q.AddMessage(msg(t, "0123456789"), 10, nil))
	require.NoError(t, q.MarkFlush())

	views, count, total, err := q.GatherViews(16, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(10), total)
	assert.Len(t, views, 1)
}

func TestRemoveBytesPartialProgress(t *testing.T) {
	q := NewQueue(0, DefaultWaterMarks)
	var progressed []int64
	c := NewCompletion(true).OnProgress(func(progress, total int64) { progressed = append(progressed, progress) })
	require.NoError(t, q.AddMessage(msg(t, "0123456789"), 10, c))
	require.NoError(t, q.MarkFlush())

	require.NoError(t, q.RemoveBytes(4))
	assert.Equal(t, int64(4), q.CurrentProgress())
	assert.Equal(t, []int64{4}, progressed)

	require.NoError(t, q.RemoveBytes(6))
	assert.Nil(t, q.Current())
}
