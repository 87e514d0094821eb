package outbound

import "github.com/joeycumines/go-netreactor/buffer"

// DefaultEntryOverhead is the fixed per-entry byte cost added to a
// message's payload size when accounting against the water marks.
const DefaultEntryOverhead = 96

// Entry is one pending outbound write. Entries are created on AddMessage,
// linked into the queue's flushed/unflushed regions, and released back to
// the queue's pool on completion or cancellation.
type Entry struct {
	message     *buffer.Buffer
	pendingSize int64 // payload size + entry overhead, as charged against the water marks
	totalBytes  int64 // original payload length, for progress reporting
	progress    int64 // bytes already consumed by RemoveBytes
	completion  *Completion
	cancelled   bool
	next        *Entry
	cachedView  []byte // InternalNIOView result cached across GatherViews retries
}

func (e *Entry) remaining() int64 {
	return e.totalBytes - e.progress
}

// cancel releases the entry's message reference and substitutes an empty
// payload: a cancelled write is skipped rather than sent, but its slot
// stays linked until RemoveBytes walks past it.
func (e *Entry) cancel() {
	if e.cancelled {
		return
	}
	e.cancelled = true
	if e.message != nil {
		_ = e.message.Release()
		e.message = nil
	}
	e.totalBytes = 0
	e.progress = 0
	e.cachedView = nil
}

func (e *Entry) reset() {
	e.message = nil
	e.pendingSize = 0
	e.totalBytes = 0
	e.progress = 0
	e.completion = nil
	e.cancelled = false
	e.next = nil
	e.cachedView = nil
}
