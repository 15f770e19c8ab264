package ptr

import (
	"github.com/wippyai/refcount"
	"github.com/wippyai/refcount/control"
)

// Option configures control block construction.
type Option func(*control.Options)

// WithAllocator accounts the control block against a.
func WithAllocator(a refcount.Allocator) Option {
	return func(o *control.Options) {
		o.Allocator = a
	}
}

// WithObserver reports the block's lifecycle events to obs.
func WithObserver(obs control.Observer) Option {
	return func(o *control.Options) {
		o.Observer = obs
	}
}

func buildOptions(opts []Option) control.Options {
	var o control.Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func dropDefault(p any) {
	if d, ok := p.(refcount.Dropper); ok {
		d.Drop()
	}
}
