package decoder

import "github.com/joeycumines/go-netreactor/buffer"

// Strategy selects how a Cumulator accumulates successive read fragments.
type Strategy int

const (
	// StrategyMerge copies into (or allocates and copies into) a single
	// growing buffer. The default; predictable memory behavior at the cost
	// of copying on growth.
	StrategyMerge Strategy = iota
	// StrategyComposite references incoming fragments directly via
	// buffer.Composite instead of copying, falling back to merge behavior
	// whenever the existing accumulation is shared (ref count > 1).
	StrategyComposite
)

// DefaultDiscardAfterReads is the number of reads a Cumulator will
// accumulate before compacting already-read bytes out of the buffer.
const DefaultDiscardAfterReads = 16

// Option configures a Cumulator at construction time, following this
// module's functional-options convention.
type Option interface {
	apply(*Cumulator)
}

type optionFunc func(*Cumulator)

func (f optionFunc) apply(c *Cumulator) { f(c) }

// WithStrategy selects MERGE or COMPOSITE accumulation.
func WithStrategy(s Strategy) Option {
	return optionFunc(func(c *Cumulator) { c.strategy = s })
}

// WithDiscardAfterReads overrides the read-count threshold that triggers a
// compaction pass via DiscardSomeReadBytes.
func WithDiscardAfterReads(n int) Option {
	return optionFunc(func(c *Cumulator) { c.discardAfterReads = n })
}

// WithSingleDecode restricts each ChannelRead to at most one Decode
// invocation, regardless of whether further progress could be made.
func WithSingleDecode(single bool) Option {
	return optionFunc(func(c *Cumulator) { c.singleDecode = single })
}

// WithAllocator overrides the factory used to allocate a fresh merged
// buffer. Defaults to buffer.New.
func WithAllocator(alloc func(initialCapacity, maxCapacity int) *buffer.Buffer) Option {
	return optionFunc(func(c *Cumulator) { c.allocate = alloc })
}

// WithHandlerRemoved registers the callback invoked once a pending handler
// removal (requested mid-decode) is actually carried out.
func WithHandlerRemoved(fn func()) Option {
	return optionFunc(func(c *Cumulator) { c.onHandlerRemoved = fn })
}
