package buffer

// Composite aggregates several retained Buffer fragments into a single
// readable sequence without copying their payloads, the shape a COMPOSITE
// cumulator strategy needs to build or extend a composite buffer that
// references its input without copying. It only supports the
// read-oriented subset of the Buffer API a decoder needs; reads spanning a
// fragment boundary are materialized into a fresh slice, matching
// CompositeByteBuf's own behavior for cross-component access.
type Composite struct {
	fragments []*Buffer
}

// NewComposite returns an empty Composite.
func NewComposite() *Composite {
	return &Composite{}
}

// Append adds frag as the new final fragment. Composite takes ownership of
// frag's reference: it is released automatically once fully consumed or
// when Release is called.
func (c *Composite) Append(frag *Buffer) {
	c.fragments = append(c.fragments, frag)
}

// ReadableBytes returns the sum of every fragment's readable bytes.
func (c *Composite) ReadableBytes() int {
	n := 0
	for _, f := range c.fragments {
		n += f.ReadableBytes()
	}
	return n
}

// RefCount reports 1 while any fragment remains, 0 once empty. Composite
// ownership is single-handle even though it aggregates multiple regions.
func (c *Composite) RefCount() int {
	if len(c.fragments) == 0 {
		return 0
	}
	return 1
}

func (c *Composite) dropExhausted() {
	for len(c.fragments) > 0 && c.fragments[0].ReadableBytes() == 0 {
		_ = c.fragments[0].Release()
		c.fragments = c.fragments[1:]
	}
}

// PeekAt returns n bytes from the front of the sequence without consuming
// them. A request confined to the first fragment is returned without
// copying; a request spanning multiple fragments is materialized.
func (c *Composite) PeekAt(n int) ([]byte, error) {
	if n < 0 || n > c.ReadableBytes() {
		return nil, ErrInsufficientData
	}
	if n == 0 {
		return nil, nil
	}
	if n <= c.fragments[0].ReadableBytes() {
		return c.fragments[0].PeekAt(n)
	}
	out := make([]byte, 0, n)
	remaining := n
	for _, f := range c.fragments {
		if remaining == 0 {
			break
		}
		take := remaining
		if take > f.ReadableBytes() {
			take = f.ReadableBytes()
		}
		p, err := f.PeekAt(take)
		if err != nil {
			return nil, err
		}
		out = append(out, p...)
		remaining -= take
	}
	return out, nil
}

// Read returns and consumes n bytes from the front of the sequence,
// releasing and dropping fragments as they are fully drained.
func (c *Composite) Read(n int) ([]byte, error) {
	p, err := c.PeekAt(n)
	if err != nil {
		return nil, err
	}
	remaining := n
	for remaining > 0 && len(c.fragments) > 0 {
		f := c.fragments[0]
		take := remaining
		if take > f.ReadableBytes() {
			take = f.ReadableBytes()
		}
		if _, err := f.Read(take); err != nil {
			return nil, err
		}
		remaining -= take
		c.dropExhausted()
	}
	return p, nil
}

// ReadByte reads and consumes a single byte.
func (c *Composite) ReadByte() (byte, error) {
	p, err := c.Read(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// DiscardSomeReadBytes is a no-op: exhausted leading fragments are already
// dropped as part of Read. It exists so Composite satisfies the same
// compaction contract as Buffer.
func (c *Composite) DiscardSomeReadBytes() error {
	c.dropExhausted()
	return nil
}

// Release releases every remaining fragment.
func (c *Composite) Release() error {
	var firstErr error
	for _, f := range c.fragments {
		if err := f.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.fragments = nil
	return firstErr
}
