package coreio

import "sync/atomic"

// options holds the four build-time knobs a Runtime is constructed with.
type options struct {
	entries      uint32
	uringCapable bool
	timerEnabled bool
	threadID     uint64
}

// Option configures a Runtime at construction time.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithEntries sets the I/O driver's submission/completion ring capacity.
// Default 256.
func WithEntries(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.entries = uint32(n)
		}
	})
}

// WithUringCapability allows (the default) or forbids selecting the
// completion driver, falling back unconditionally to the readiness driver
// when false or when io_uring is unavailable (older kernels, seccomp
// filtering, or non-Linux platforms).
func WithUringCapability(enabled bool) Option {
	return optionFunc(func(o *options) { o.uringCapable = enabled })
}

// WithTimerEnabled installs the built-in heap-based timer layer, letting
// Sleep and other deadline-driven futures run against this Runtime.
// Default false.
func WithTimerEnabled(enabled bool) Option {
	return optionFunc(func(o *options) { o.timerEnabled = enabled })
}

// WithThreadID sets the logical thread id used for cross-thread wake
// routing. Default: auto-generated from an atomic counter.
func WithThreadID(id uint64) Option {
	return optionFunc(func(o *options) { o.threadID = id })
}

var threadIDCounter atomic.Uint64

// resolveOptions applies Option values over the defaults.
func resolveOptions(opts []Option) options {
	cfg := options{
		entries:      256,
		uringCapable: true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(&cfg)
	}
	if cfg.threadID == 0 {
		cfg.threadID = threadIDCounter.Add(1)
	}
	return cfg
}
