package outbound

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-netreactor/buffer"
)

const (
	// waterMarkBit is bit 0 of unwritable_bits: the aggregate water-mark
	// signal. Bits 1..31 are reserved for user-defined unwritable reasons
	// and are OR'd together with the water-mark bit to form writability.
	waterMarkBit uint32 = 1
)

// WaterMarks configures the high/low thresholds on total pending bytes
// that drive the writability signal.
type WaterMarks struct {
	High int64
	Low  int64
}

// DefaultWaterMarks matches common Netty-style defaults: 64KiB high, 32KiB
// low.
var DefaultWaterMarks = WaterMarks{High: 64 * 1024, Low: 32 * 1024}

// Queue is a per-connection pending-write queue: a singly linked list of
// Entry split into a flushed region (ready for the OS) and an unflushed
// region (still accumulating), with water-mark tracking and gather-view
// projection for vectored writes. The zero value is not usable; use
// [NewQueue].
type Queue struct {
	mu sync.Mutex // guards the linked-list pointers and flushedCount

	flushedHead *Entry
	unflushedHead *Entry
	tail        *Entry
	flushedCount int

	totalPendingBytes atomic.Int64
	unwritableBits    atomic.Uint32
	inFail            atomic.Bool
	closed            atomic.Bool

	entryOverhead int64
	marks         WaterMarks

	onWritabilityChanged func(writable bool)

	entryPool sync.Pool
	viewScratch [][]byte // thread-confined scratch reused by GatherViews (the reactor drives one Queue from one goroutine at a time)
}

// NewQueue returns an empty, writable Queue using entryOverhead bytes as
// the fixed per-entry accounting cost and marks as the high/low water
// marks. Pass [DefaultEntryOverhead] for entryOverhead to use the default
// cost; NewQueue itself applies no implicit default so that an explicit
// zero is honored.
func NewQueue(entryOverhead int64, marks WaterMarks) *Queue {
	q := &Queue{entryOverhead: entryOverhead, marks: marks}
	q.entryPool.New = func() any { return new(Entry) }
	return q
}

// OnWritabilityChanged registers the callback fired whenever the
// aggregate writability bit (water mark OR'd with user bits) transitions.
// Not safe to call concurrently with queue mutation.
func (q *Queue) OnWritabilityChanged(fn func(writable bool)) {
	q.onWritabilityChanged = fn
}

// IsWritable reports whether unwritable_bits is currently zero.
func (q *Queue) IsWritable() bool {
	return q.unwritableBits.Load() == 0
}

// TotalPendingBytes returns the current sum of pending_size across live
// entries.
func (q *Queue) TotalPendingBytes() int64 {
	return q.totalPendingBytes.Load()
}

func (q *Queue) getEntry() *Entry {
	e, _ := q.entryPool.Get().(*Entry)
	if e == nil {
		e = new(Entry)
	}
	return e
}

func (q *Queue) putEntry(e *Entry) {
	e.reset()
	q.entryPool.Put(e)
}

// setUserBit sets or clears one of bits 1..31 via CAS, firing a
// writability-change notification if the aggregate bit transitions.
func (q *Queue) setUserBit(bit uint32, set bool) {
	for {
		old := q.unwritableBits.Load()
		var next uint32
		if set {
			next = old | bit
		} else {
			next = old &^ bit
		}
		if next == old {
			return
		}
		if q.unwritableBits.CompareAndSwap(old, next) {
			if (old == 0) != (next == 0) {
				q.fireWritabilityChanged(next == 0)
			}
			return
		}
	}
}

// SetUserUnwritable sets or clears a user-defined unwritable reason (bits
// 1..31 of unwritable_bits).
func (q *Queue) SetUserUnwritable(bit uint32, set bool) {
	q.setUserBit(bit&^waterMarkBit, set)
}

func (q *Queue) fireWritabilityChanged(writable bool) {
	if q.onWritabilityChanged != nil {
		q.onWritabilityChanged(writable)
	}
}

func (q *Queue) raiseWaterMark() {
	for {
		old := q.unwritableBits.Load()
		next := old | waterMarkBit
		if next == old {
			return
		}
		if q.unwritableBits.CompareAndSwap(old, next) {
			if old == 0 {
				q.fireWritabilityChanged(false)
			}
			return
		}
	}
}

func (q *Queue) lowerWaterMark() {
	for {
		old := q.unwritableBits.Load()
		next := old &^ waterMarkBit
		if next == old {
			return
		}
		if q.unwritableBits.CompareAndSwap(old, next) {
			if next == 0 {
				q.fireWritabilityChanged(true)
			}
			return
		}
	}
}

func (q *Queue) addPendingBytes(delta int64) {
	total := q.totalPendingBytes.Add(delta)
	if delta > 0 && total > q.marks.High {
		q.raiseWaterMark()
	} else if delta < 0 && total <= q.marks.Low {
		q.lowerWaterMark()
	}
}

// AddMessage appends a new entry for msg at the tail of the unflushed
// region. size is the payload's accounted byte length (typically
// msg.ReadableBytes()); completion may be nil if the caller does not need
// notifications. msg's reference is owned by the entry: it is released on
// cancellation or once RemoveBytes fully consumes it.
func (q *Queue) AddMessage(msg *buffer.Buffer, size int64, completion *Completion) error {
	if q.closed.Load() {
		return ErrClosed
	}
	if completion == nil {
		completion = NewCompletion(false)
	}

	e := q.getEntry()
	e.message = msg
	e.totalBytes = size
	e.pendingSize = size + q.entryOverhead
	e.completion = completion

	q.mu.Lock()
	if q.tail == nil {
		q.tail = e
	} else {
		q.tail.next = e
		q.tail = e
	}
	if q.unflushedHead == nil {
		q.unflushedHead = e
	}
	q.mu.Unlock()

	q.addPendingBytes(e.pendingSize)
	return nil
}

// MarkFlush promotes every entry currently in the unflushed region into the
// flushed region. Entries whose completion was concurrently cancelled
// before promotion could take effect are accounted for by decrementing
// total_pending_bytes and releasing their message, rather than being
// flushed.
func (q *Queue) MarkFlush() error {
	if q.closed.Load() {
		return ErrClosed
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unflushedHead == nil {
		return nil
	}
	if q.flushedHead == nil {
		q.flushedHead = q.unflushedHead
	}
	for e := q.unflushedHead; e != nil; e = e.next {
		q.flushedCount++
		if e.completion.disableCancel() {
			pending := e.pendingSize
			e.cancel()
			e.pendingSize = 0
			q.addPendingBytes(-pending)
		}
	}
	q.unflushedHead = nil
	return nil
}

// GatherViews walks the flushed region from flushedHead, collecting up to
// maxCount non-cancelled entries' readable byte ranges as zero-copy views,
// stopping once either maxCount is reached or the next entry would push the
// running total over maxBytes — except the first entry is always included,
// guaranteeing progress even when a single message exceeds maxBytes. Views
// are cached on their entry until RemoveBytes invalidates them.
func (q *Queue) GatherViews(maxCount int, maxBytes int64) (views [][]byte, count int, totalBytes int64, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.viewScratch[:0]
	var total int64
	for e := q.flushedHead; e != nil && e != q.unflushedHead && count < maxCount; e = e.next {
		if e.cancelled {
			continue
		}
		remaining := e.remaining()
		if remaining == 0 {
			continue
		}
		if count > 0 && total+remaining > maxBytes {
			break
		}
		view := e.cachedView
		if view == nil {
			view, err = e.message.InternalNIOView(int(e.progress), int(remaining))
			if err != nil {
				return nil, 0, 0, ErrGatherAllocation
			}
			e.cachedView = view
		}
		out = append(out, view)
		total += remaining
		count++
	}
	q.viewScratch = out
	return out, count, total, nil
}

// RemoveBytes consumes n bytes starting at flushedHead, completing and
// recycling entries as they are fully consumed, and advancing a partially
// consumed entry's progress and firing intermediate notifications for
// progress-aware completions.
func (q *Queue) RemoveBytes(n int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for n > 0 {
		e := q.flushedHead
		if e == nil {
			break
		}
		remaining := e.remaining()
		if e.cancelled {
			remaining = 0
		}
		if remaining <= n {
			n -= remaining

			q.flushedHead = e.next
			if q.flushedHead == q.unflushedHead {
				q.flushedHead = nil
			}
			q.flushedCount--
			if q.tail == e {
				q.tail = nil
			}

			pending := e.pendingSize
			cancelled := e.cancelled
			comp := e.completion
			msg := e.message
			e.next = nil
			if msg != nil {
				_ = msg.Release()
			}
			if comp != nil {
				if cancelled {
					comp.notifyCancelled()
				} else {
					comp.notifySuccess(false)
				}
			}
			q.putEntry(e)
			q.addPendingBytes(-pending)
			continue
		}

		e.progress += n
		e.cachedView = nil
		if e.completion != nil && e.completion.progressNotificationsEnabled() {
			e.completion.notifyProgress(e.progress, e.totalBytes)
		}
		n = 0
	}
	return nil
}

// FailFlushed removes every flushed entry, firing failure on each
// completion token with cause (cancelled entries are reported as
// cancelled, not failed). Reentrant calls while a FailFlushed is already in
// progress are ignored.
func (q *Queue) FailFlushed(cause error) {
	if !q.inFail.CompareAndSwap(false, true) {
		return
	}
	defer q.inFail.Store(false)

	q.mu.Lock()
	e := q.flushedHead
	stop := q.unflushedHead
	q.flushedHead = nil
	if q.unflushedHead == nil {
		q.tail = nil
	}
	q.flushedCount = 0
	q.mu.Unlock()

	for e != nil && e != stop {
		next := e.next
		e.next = nil
		pending := e.pendingSize
		cancelled := e.cancelled
		comp := e.completion
		msg := e.message
		if msg != nil {
			_ = msg.Release()
		}
		if comp != nil {
			if cancelled {
				comp.notifyCancelled()
			} else {
				comp.notifyFailure(cause)
			}
		}
		q.addPendingBytes(-pending)
		q.putEntry(e)
		e = next
	}
}

// Close marks the queue closed and releases every unflushed entry with
// failure notifications, decrementing total_pending_bytes directly without
// re-triggering water-mark notifications. It is an error to call Close
// while flushed entries remain; callers must drain them first, typically
// via FailFlushed.
func (q *Queue) Close(cause error) error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}

	q.mu.Lock()
	if q.flushedHead != nil {
		q.mu.Unlock()
		q.closed.Store(false)
		return ErrFlushedEntriesRemain
	}
	e := q.unflushedHead
	q.unflushedHead = nil
	q.tail = nil
	q.mu.Unlock()

	if cause == nil {
		cause = ErrClosed
	}
	for e != nil {
		next := e.next
		e.next = nil
		pending := e.pendingSize
		cancelled := e.cancelled
		comp := e.completion
		msg := e.message
		if msg != nil {
			_ = msg.Release()
		}
		if comp != nil {
			if cancelled {
				comp.notifyCancelled()
			} else {
				comp.notifyFailure(cause)
			}
		}
		q.totalPendingBytes.Add(-pending)
		q.putEntry(e)
		e = next
	}
	return nil
}

// Current returns the first flushed entry's message, or nil if nothing is
// flushed.
func (q *Queue) Current() *buffer.Buffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.flushedHead == nil {
		return nil
	}
	return q.flushedHead.message
}

// CurrentProgress returns the first flushed entry's already-written byte
// count, or 0 if nothing is flushed.
func (q *Queue) CurrentProgress() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.flushedHead == nil {
		return 0
	}
	return q.flushedHead.progress
}

// FlushedCount returns the number of entries currently in the flushed
// region.
func (q *Queue) FlushedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.flushedCount
}
