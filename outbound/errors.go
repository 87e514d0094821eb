package outbound

import "errors"

var (
	// ErrClosed is returned by AddMessage and MarkFlush once the queue has
	// been closed.
	ErrClosed = errors.New("outbound: queue is closed")

	// ErrGatherAllocation is returned by GatherViews when it could not
	// obtain a view for a flushed entry; allocation failures during gather
	// are fatal for the connection.
	ErrGatherAllocation = errors.New("outbound: gather view allocation failed")

	// ErrFlushedEntriesRemain is returned by Close when flushed entries are
	// still pending: Close may only be called once the flushed region has
	// been drained (e.g. via FailFlushed).
	ErrFlushedEntriesRemain = errors.New("outbound: cannot close queue with flushed entries remaining")
)
