package decoder

import (
	"math"

	"github.com/joeycumines/go-netreactor/buffer"
)

type decodeState int32

const (
	stateIdle decodeState = iota
	stateInDecode
	stateRemovalPending
)

// Cumulator accumulates inbound byte fragments and drives a Handler's
// Decode method across reads, re-invoking it for as long as each call
// keeps making progress.
type Cumulator struct {
	handler Handler

	strategy          Strategy
	discardAfterReads int
	singleDecode      bool
	allocate          func(initialCapacity, maxCapacity int) *buffer.Buffer
	onHandlerRemoved  func()

	cumulation    Cumulation
	numReads      int
	decodeWasNull bool
	state         decodeState

	out OutputQueue
}

// New returns a Cumulator driving handler, configured by opts. The default
// strategy is StrategyMerge with the default discard_after_reads (16).
func New(handler Handler, opts ...Option) *Cumulator {
	c := &Cumulator{
		handler:           handler,
		discardAfterReads: DefaultDiscardAfterReads,
		allocate:          buffer.New,
	}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}

// HasCumulation reports whether a (possibly partial) accumulation is
// currently held.
func (c *Cumulator) HasCumulation() bool { return c.cumulation != nil }

// ChannelRead accumulates in (releasing it as accumulation ownership
// dictates) and drives the decode loop, returning every message produced
// and any decode error.
func (c *Cumulator) ChannelRead(in *buffer.Buffer) ([]any, error) {
	if err := c.accumulate(in); err != nil {
		return nil, err
	}

	c.out.reset()
	decodeErr := c.callDecode(c.handler.Decode)

	if c.cumulation != nil && c.cumulation.ReadableBytes() == 0 {
		_ = c.cumulation.Release()
		c.cumulation = nil
		c.decodeWasNull = true
		c.numReads = 0
	} else if c.cumulation != nil {
		c.decodeWasNull = false
		c.numReads++
		if c.discardAfterReads > 0 && c.numReads >= c.discardAfterReads {
			_ = c.cumulation.DiscardSomeReadBytes()
			c.numReads = 0
		}
	}

	out := append([]any(nil), c.out.Items()...)
	if decodeErr != nil {
		return out, &DecodeError{Cause: decodeErr}
	}
	return out, nil
}

// ChannelReadComplete resets the read-count heuristic once the reactor
// finishes a readiness-driven burst of reads.
func (c *Cumulator) ChannelReadComplete() {
	if c.decodeWasNull {
		c.numReads = 0
	}
}

// ChannelInactive runs one final decode pass (decode_last) against any
// residual accumulation, then releases it. If the Handler implements
// LastDecoder, DecodeLast is used instead of Decode for this final pass.
func (c *Cumulator) ChannelInactive() ([]any, error) {
	if c.cumulation == nil {
		return nil, nil
	}

	c.out.reset()
	decodeFn := c.handler.Decode
	if last, ok := c.handler.(LastDecoder); ok {
		decodeFn = last.DecodeLast
	}
	decodeErr := c.callDecode(decodeFn)

	_ = c.cumulation.Release()
	c.cumulation = nil
	c.numReads = 0

	out := append([]any(nil), c.out.Items()...)
	if decodeErr != nil {
		return out, &DecodeError{Cause: decodeErr}
	}
	return out, nil
}

// RequestHandlerRemoved asks the Cumulator to remove its handler. If
// called re-entrantly from within a Decode call, the removal is deferred
// until that call_decode loop returns (decode_state REMOVAL_PENDING),
// guaranteeing Decode never observes a half-removed handler.
func (c *Cumulator) RequestHandlerRemoved() {
	if c.state == stateInDecode {
		c.state = stateRemovalPending
		return
	}
	c.doRemove()
}

func (c *Cumulator) doRemove() {
	if c.onHandlerRemoved != nil {
		c.onHandlerRemoved()
	}
}

// callDecode runs the call_decode loop: repeatedly invoking decodeFn while
// the cumulation remains readable and the previous call made progress
// (consumed bytes, produced output, or both).
func (c *Cumulator) callDecode(decodeFn func(in Cumulation, out *OutputQueue) error) error {
	if c.cumulation == nil {
		return nil
	}
	c.state = stateInDecode

	var retErr error
	for c.cumulation.ReadableBytes() > 0 {
		before := c.cumulation.ReadableBytes()
		outBefore := c.out.Len()

		if err := decodeFn(c.cumulation, &c.out); err != nil {
			retErr = err
			break
		}
		if c.state == stateRemovalPending {
			break
		}

		after := c.cumulation.ReadableBytes()
		consumed := after != before
		produced := c.out.Len() != outBefore

		if !produced && !consumed {
			break
		}
		if produced && !consumed {
			retErr = &DecodeNoProgressError{}
			break
		}
		if c.singleDecode {
			break
		}
	}

	if c.state == stateRemovalPending {
		c.doRemove()
	}
	c.state = stateIdle
	return retErr
}

// accumulate appends in to the current accumulation using the configured
// Strategy.
func (c *Cumulator) accumulate(in *buffer.Buffer) error {
	switch c.strategy {
	case StrategyComposite:
		return c.accumulateComposite(in)
	default:
		return c.accumulateMerge(in)
	}
}

func (c *Cumulator) accumulateMerge(in *buffer.Buffer) error {
	if c.cumulation == nil {
		in.MarkFirstFragment(true)
		c.cumulation = in
		return nil
	}

	cur, ok := c.cumulation.(*buffer.Buffer)
	if !ok {
		// A prior COMPOSITE accumulation exists even though the strategy
		// is now MERGE (only possible if the strategy option changed
		// between reads, which callers should not do); fold it down by
		// copying its readable bytes into a fresh buffer first.
		existing := c.cumulation
		n := existing.ReadableBytes()
		p, err := existing.PeekAt(n)
		if err != nil {
			return err
		}
		flat := c.allocate(n, math.MaxInt32)
		if err := flat.Write(p); err != nil {
			return err
		}
		_ = existing.Release()
		c.cumulation = flat
		return c.accumulateMerge(in)
	}

	if cur.WritableBytes() < in.ReadableBytes() || cur.RefCount() > 1 {
		return c.mergeCopy(cur, in)
	}

	p, err := in.PeekAt(in.ReadableBytes())
	if err != nil {
		_ = in.Release()
		return err
	}
	werr := cur.Write(p)
	_ = in.Release()
	if werr != nil {
		return werr
	}
	return nil
}

// mergeCopy allocates a fresh buffer sized to hold both cur's and in's
// readable bytes, copies cur's region across, releases cur, appends in,
// and releases in — always, even on error, to prevent a leak.
func (c *Cumulator) mergeCopy(cur *buffer.Buffer, in *buffer.Buffer) error {
	need := cur.ReadableBytes() + in.ReadableBytes()
	merged := c.allocate(need, need)

	curBytes, err := cur.PeekAt(cur.ReadableBytes())
	if err != nil {
		_ = cur.Release()
		_ = in.Release()
		return err
	}
	if werr := merged.Write(curBytes); werr != nil {
		_ = cur.Release()
		_ = in.Release()
		return werr
	}
	_ = cur.Release()

	inBytes, err := in.PeekAt(in.ReadableBytes())
	if err != nil {
		_ = in.Release()
		return err
	}
	werr := merged.Write(inBytes)
	_ = in.Release()
	if werr != nil {
		return werr
	}

	c.cumulation = merged
	return nil
}

func (c *Cumulator) accumulateComposite(in *buffer.Buffer) error {
	if c.cumulation == nil {
		in.MarkFirstFragment(true)
		c.cumulation = in
		return nil
	}

	switch cur := c.cumulation.(type) {
	case *buffer.Buffer:
		if cur.RefCount() > 1 {
			return c.mergeCopy(cur, in)
		}
		composite := buffer.NewComposite()
		composite.Append(cur)
		composite.Append(in)
		c.cumulation = composite
		return nil
	case *buffer.Composite:
		cur.Append(in)
		return nil
	default:
		return nil
	}
}
