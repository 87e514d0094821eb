// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package netreactor

import "github.com/joeycumines/go-netreactor/outbound"

// reactorOptions holds configuration options for Reactor creation.
type reactorOptions struct {
	ioRatio                  int
	selectorRebuildThreshold int
	disableKeySetOptimization bool
	outboundBufferEntryOverhead int64
	discardAfterReads        int
	waterMarks               outbound.WaterMarks
	singleDecode             bool
	cumulatorStrategy        int
	logger                   Logger
	metricsEnabled           bool
}

// Option configures a Reactor instance.
type Option interface {
	apply(*reactorOptions) error
}

type optionFunc func(*reactorOptions) error

func (f optionFunc) apply(o *reactorOptions) error { return f(o) }

// WithIORatio sets the fraction of each loop iteration's time budget spent
// servicing ready keys versus draining the task queue, in [1,100]. 100
// means I/O keys are always serviced to completion before tasks run with
// no budget cap.
func WithIORatio(ratio int) Option {
	return optionFunc(func(o *reactorOptions) error {
		if ratio < 1 {
			ratio = 1
		}
		if ratio > 100 {
			ratio = 100
		}
		o.ioRatio = ratio
		return nil
	})
}

// WithSelectorRebuildThreshold sets the number of consecutive
// zero-readiness blocking selects that trigger a selector rebuild
// (busy-spin recovery). 0 disables rebuild.
func WithSelectorRebuildThreshold(threshold int) Option {
	return optionFunc(func(o *reactorOptions) error {
		if threshold < 0 {
			threshold = 0
		}
		o.selectorRebuildThreshold = threshold
		return nil
	})
}

// WithKeySetOptimization records whether the optimized ready-key container
// is enabled; it is enabled by default (disableKeySetOptimization starts
// false). The Reactor records this setting but does not read it: ready keys
// are dispatched the same way whichever value is set.
func WithKeySetOptimization(enabled bool) Option {
	return optionFunc(func(o *reactorOptions) error {
		o.disableKeySetOptimization = !enabled
		return nil
	})
}

// WithOutboundBufferEntryOverhead sets the fixed per-entry byte overhead
// added to each outbound queue entry's payload size for water-mark
// accounting. The Reactor records this value but does not apply it;
// netconn channels take their overhead from netconn.Config.EntryOverhead.
func WithOutboundBufferEntryOverhead(bytes int64) Option {
	return optionFunc(func(o *reactorOptions) error {
		o.outboundBufferEntryOverhead = bytes
		return nil
	})
}

// WithDiscardAfterReads sets how many ChannelRead calls a Cumulator
// performs before attempting to compact its retained cumulation. The
// Reactor records this value but does not apply it; Cumulators take theirs
// from decoder options (netconn.Config.CumulatorOptions).
func WithDiscardAfterReads(n int) Option {
	return optionFunc(func(o *reactorOptions) error {
		o.discardAfterReads = n
		return nil
	})
}

// WithWriteBufferWaterMarks sets the high/low water marks that drive
// outbound queue writability notifications. The Reactor records these
// marks but does not apply them; netconn channels take theirs from
// netconn.Config.WaterMarks.
func WithWriteBufferWaterMarks(marks outbound.WaterMarks) Option {
	return optionFunc(func(o *reactorOptions) error {
		o.waterMarks = marks
		return nil
	})
}

// WithSingleDecode restricts each Cumulator.ChannelRead call to at most one
// Handler.Decode invocation, instead of looping until no progress is made.
// The Reactor records this setting but does not apply it; Cumulators take
// theirs from decoder options (netconn.Config.CumulatorOptions).
func WithSingleDecode(enabled bool) Option {
	return optionFunc(func(o *reactorOptions) error {
		o.singleDecode = enabled
		return nil
	})
}

// CumulatorStrategy selects how a Cumulator retains partial frames between
// reads.
type CumulatorStrategy int

const (
	// CumulatorMerge copies new bytes into the retained cumulation buffer.
	CumulatorMerge CumulatorStrategy = iota
	// CumulatorComposite references fragments without copying, where possible.
	CumulatorComposite
)

// WithCumulatorStrategy records a cumulation strategy on the Reactor's
// options. The Reactor does not apply it to any channel; Cumulators take
// their strategy from decoder options (netconn.Config.CumulatorOptions).
func WithCumulatorStrategy(strategy CumulatorStrategy) Option {
	return optionFunc(func(o *reactorOptions) error {
		o.cumulatorStrategy = int(strategy)
		return nil
	})
}

// WithStructuredLogger attaches a Logger the reactor logs selector,
// rebuild and task events through.
func WithStructuredLogger(logger Logger) Option {
	return optionFunc(func(o *reactorOptions) error {
		o.logger = logger
		return nil
	})
}

// WithMetrics enables runtime metrics collection on the Reactor.
func WithMetrics(enabled bool) Option {
	return optionFunc(func(o *reactorOptions) error {
		o.metricsEnabled = enabled
		return nil
	})
}

// resolveOptions applies Option instances to reactorOptions, filling in
// spec-mandated defaults for anything left unset.
func resolveOptions(opts []Option) (*reactorOptions, error) {
	cfg := &reactorOptions{
		ioRatio:                     50,
		selectorRebuildThreshold:    512,
		outboundBufferEntryOverhead: outbound.DefaultEntryOverhead,
		discardAfterReads:           16,
		waterMarks:                  outbound.DefaultWaterMarks,
		logger:                      getGlobalLogger(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
