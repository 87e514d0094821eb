package buffer

import "errors"

// Standard errors returned by Buffer operations.
var (
	// ErrInsufficientData is returned when a read requests more bytes than
	// are currently readable. Per the cumulator contract this is not a
	// failure signal on its own; callers that feed partial frames treat it
	// as "wait for more bytes".
	ErrInsufficientData = errors.New("buffer: insufficient data")

	// ErrIndexOutOfBounds is returned when an index or length argument
	// falls outside [0, capacity] or would overflow maxCapacity.
	ErrIndexOutOfBounds = errors.New("buffer: index out of bounds")

	// ErrNotDiscardable is returned by DiscardSomeReadBytes when the
	// region's reference count is greater than one: a retained slice may
	// still be reading the discarded range, so compaction is refused.
	ErrNotDiscardable = errors.New("buffer: buffer is shared, cannot discard read bytes")

	// ErrMaxCapacityExceeded is returned by Grow and by appends that would
	// need to grow past maxCapacity.
	ErrMaxCapacityExceeded = errors.New("buffer: grow would exceed max capacity")

	// ErrReleased reports use of a Buffer whose region has already reached
	// a reference count of zero. No Buffer method checks for that condition
	// or returns this error; Release on a zero count reports ErrOverRelease.
	ErrReleased = errors.New("buffer: use of released buffer")

	// ErrOverRelease is returned by Release when called more times than the
	// region was retained.
	ErrOverRelease = errors.New("buffer: released more times than retained")
)
