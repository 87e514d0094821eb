package outbound

import "sync/atomic"

const (
	completionOpen int32 = iota
	completionDisabled
	completionCancelled
	completionDone
)

// Completion is the per-write-entry notification token (spec "completion
// token"). It may be cancelled any time before the queue's MarkFlush
// promotes the owning entry into the flushed region; after promotion,
// cancellation is refused and the entry's bytes are already slated for
// transmission. Modeled loosely on the future/promise shape used elsewhere
// in this codebase, but purpose-built for a single write's lifecycle
// (progress, success, failure, cancel) rather than general chaining.
type Completion struct {
	state         atomic.Int32
	progressAware bool
	onProgress    func(progress, total int64)
	onDone        func(err error, cancelled bool)
}

// NewCompletion returns an open Completion. progressAware controls whether
// RemoveBytes emits intermediate (progress, total) notifications as a
// large entry is written across multiple partial writes, or only a single
// terminal notification.
func NewCompletion(progressAware bool) *Completion {
	return &Completion{progressAware: progressAware}
}

// OnProgress registers a callback for intermediate progress notifications.
// Not safe to call concurrently with a write in flight.
func (c *Completion) OnProgress(fn func(progress, total int64)) *Completion {
	c.onProgress = fn
	return c
}

// OnDone registers the terminal callback, invoked exactly once with either
// a nil error (success), a non-nil error (failure), or cancelled=true.
// Not safe to call concurrently with a write in flight.
func (c *Completion) OnDone(fn func(err error, cancelled bool)) *Completion {
	c.onDone = fn
	return c
}

// TryCancel cancels the write if it has not yet been promoted by
// MarkFlush, reporting success. Returns false if the entry was already
// flushed, cancelled, or completed.
func (c *Completion) TryCancel() bool {
	return c.state.CompareAndSwap(completionOpen, completionCancelled)
}

// IsCancelled reports whether TryCancel previously succeeded.
func (c *Completion) IsCancelled() bool {
	return c.state.Load() == completionCancelled
}

// disableCancel is invoked by MarkFlush while promoting the owning entry.
// It reports true if the entry was concurrently cancelled instead (a
// cancellation that raced the promotion), in which case the caller must
// treat the entry as cancelled rather than flushed.
func (c *Completion) disableCancel() (cancelledConcurrently bool) {
	if c.state.CompareAndSwap(completionOpen, completionDisabled) {
		return false
	}
	return c.state.Load() == completionCancelled
}

func (c *Completion) progressNotificationsEnabled() bool {
	return c.progressAware && c.onProgress != nil
}

func (c *Completion) notifyProgress(progress, total int64) {
	if c.onProgress != nil {
		c.onProgress(progress, total)
	}
}

// notifySuccess fires the terminal callback with a nil error, unless the
// entry's cancelled flag suppresses listener-visible success (spec
// "cancellation... suppresses only listener-visible success").
func (c *Completion) notifySuccess(suppressedByCancel bool) {
	c.state.Store(completionDone)
	if c.onDone == nil {
		return
	}
	if suppressedByCancel {
		c.onDone(nil, true)
		return
	}
	c.onDone(nil, false)
}

func (c *Completion) notifyFailure(err error) {
	c.state.Store(completionDone)
	if c.onDone != nil {
		c.onDone(err, false)
	}
}

func (c *Completion) notifyCancelled() {
	c.state.Store(completionDone)
	if c.onDone != nil {
		c.onDone(nil, true)
	}
}
