// Package outbound implements a per-connection pending-write queue: a
// singly linked list of write entries split into a flushed region (ready
// for the OS) and an unflushed region (still accumulating), high/low water
// marks on total pending bytes, and a gather-view projection for vectored
// writes.
//
// # Model
//
// Entries are appended at the tail via [Queue.AddMessage]. [Queue.MarkFlush]
// promotes every unflushed entry into the flushed region. [Queue.GatherViews]
// produces a batch of byte slices suitable for a vectored write; the reactor
// issues the write and reports how many bytes actually went out via
// [Queue.RemoveBytes], which advances the flushed region and completes
// entries as their bytes are fully consumed.
package outbound
