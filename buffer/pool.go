package buffer

import "sync"

// Pool recycles fixed-size byte slices behind a sync.Pool, the pattern
// Jille/throughputbuffer's BufferPool follows for dataChunk backing
// arrays: one size class per Pool, get/put around a sync.Pool rather than
// a hand-rolled freelist.
type Pool struct {
	blockSize int
	sp        sync.Pool
}

// NewPool returns a Pool that hands out backing arrays of at least
// blockSize bytes.
func NewPool(blockSize int) *Pool {
	p := &Pool{blockSize: blockSize}
	p.sp.New = func() any {
		return make([]byte, p.blockSize)
	}
	return p
}

// get returns a backing array of at least n bytes, reusing a pooled one
// when it is large enough.
func (p *Pool) get(n int) []byte {
	b, _ := p.sp.Get().([]byte)
	if cap(b) >= n {
		return b[:n]
	}
	if b != nil {
		p.sp.Put(b)
	}
	if n < p.blockSize {
		n = p.blockSize
	}
	return make([]byte, n)
}

// put returns a backing array to the pool for reuse, provided it matches
// this pool's size class; otherwise it is dropped for GC.
func (p *Pool) put(b []byte) {
	if cap(b) < p.blockSize {
		return
	}
	p.sp.Put(b[:cap(b)]) //nolint:staticcheck // intentional full-capacity reslice for reuse
}

// Get returns a new Buffer of initialCapacity bytes backed by this pool,
// with maxCapacity as given and a reference count of 1. Its region is
// returned to the pool automatically once released to zero.
func (p *Pool) Get(initialCapacity, maxCapacity int) *Buffer {
	if maxCapacity < initialCapacity {
		maxCapacity = initialCapacity
	}
	data := p.get(initialCapacity)
	r := &region{data: data, pool: p}
	r.refCount.Store(1)
	return &Buffer{r: r, order: defaultByteOrder, capacity: initialCapacity, maxCapacity: maxCapacity}
}
