package control

import (
	"reflect"
	"unsafe"

	"github.com/wippyai/refcount"
	"github.com/wippyai/refcount/errors"
)

// InPlace co-locates a control block and its payload in one allocation.
type InPlace[T any] struct {
	blk   Block
	value T
}

// NewInPlace builds an in-place block holding a copy of v.
func NewInPlace[T any](opts Options, v T) (*InPlace[T], error) {
	a := opts.allocator()
	size := unsafe.Sizeof(InPlace[T]{})
	if err := reserve(a, size); err != nil {
		return nil, err
	}

	ip := &InPlace[T]{value: v}
	ip.begin(a, size, opts.Observer)
	return ip, nil
}

// NewInPlaceFunc builds an in-place block whose payload is constructed by
// init directly in the block's storage. If init returns an error or panics
// the reservation is returned and no block exists: no events are emitted and
// no destruction action runs for the half-built value. A nil init leaves the
// zero value.
func NewInPlaceFunc[T any](opts Options, init func(*T) error) (*InPlace[T], error) {
	a := opts.allocator()
	size := unsafe.Sizeof(InPlace[T]{})
	if err := reserve(a, size); err != nil {
		return nil, err
	}

	ip := &InPlace[T]{}
	if init != nil {
		constructed := false
		defer func() {
			if !constructed {
				a.Unreserve(size)
			}
		}()
		if err := init(&ip.value); err != nil {
			return nil, errors.ConstructionFailed(reflect.TypeFor[T]().String(), err)
		}
		constructed = true
	}

	ip.begin(a, size, opts.Observer)
	return ip, nil
}

func (ip *InPlace[T]) begin(a refcount.Allocator, size uintptr, o Observer) {
	ip.blk.kind = KindInPlace
	ip.blk.inplace = ip
	ip.blk.start(a, size, o)
}

// Get returns the embedded payload.
func (ip *InPlace[T]) Get() *T {
	return &ip.value
}

// Block returns the embedded control block.
func (ip *InPlace[T]) Block() *Block {
	return &ip.blk
}

func (ip *InPlace[T]) destroy() {
	if d, ok := any(&ip.value).(refcount.Dropper); ok {
		d.Drop()
	}
	var zero T
	ip.value = zero
}
