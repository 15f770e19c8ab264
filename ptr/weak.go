package ptr

import (
	"fmt"

	"github.com/wippyai/refcount/control"
)

// Weak is a non-owning handle. It can report whether the payload is still
// alive and promote itself with Lock, but never keeps the payload alive.
// The zero value is the empty handle.
type Weak[T any] struct {
	blk *control.Block
	ptr *T
}

// WeakFrom returns a weak handle observing s's block.
func WeakFrom[T any](s Shared[T]) Weak[T] {
	if s.blk != nil {
		s.blk.AddWeak()
	}
	return Weak[T]{blk: s.blk, ptr: s.ptr}
}

// UseCount returns the number of shared handles on the block, 0 if empty.
func (w Weak[T]) UseCount() int64 {
	if w.blk == nil {
		return 0
	}
	return w.blk.SharedCount()
}

// Expired reports whether the payload is gone or w is empty.
func (w Weak[T]) Expired() bool {
	return w.UseCount() == 0
}

// Lock returns a shared handle on the payload if it is still alive, the
// empty handle otherwise. An expired handle never becomes alive again.
func (w Weak[T]) Lock() Shared[T] {
	if w.blk != nil && w.blk.TryAddShared() {
		return Shared[T]{blk: w.blk, ptr: w.ptr}
	}
	return Shared[T]{}
}

// Clone returns another weak handle on the same block.
func (w Weak[T]) Clone() Weak[T] {
	if w.blk != nil {
		w.blk.AddWeak()
	}
	return w
}

// Move returns the handle's state and leaves w empty.
func (w *Weak[T]) Move() Weak[T] {
	out := *w
	*w = Weak[T]{}
	return out
}

// Assign makes w a copy of src, releasing what w observed before.
func (w *Weak[T]) Assign(src Weak[T]) {
	tmp := src.Clone()
	tmp.Swap(w)
	tmp.Release()
}

// AssignShared makes w observe s's block.
func (w *Weak[T]) AssignShared(s Shared[T]) {
	tmp := WeakFrom(s)
	tmp.Swap(w)
	tmp.Release()
}

// MoveFrom transfers src's state to w and leaves src empty. When both
// reference the same block nothing changes.
func (w *Weak[T]) MoveFrom(src *Weak[T]) {
	if w.blk == src.blk {
		return
	}
	tmp := src.Move()
	tmp.Swap(w)
	tmp.Release()
}

// Swap exchanges the state of two handles.
func (w *Weak[T]) Swap(other *Weak[T]) {
	*w, *other = *other, *w
}

// Release stops observing and leaves w empty. If this was the last handle
// of any kind on an expired block, the block is retired.
func (w *Weak[T]) Release() {
	blk := w.blk
	*w = Weak[T]{}
	if blk != nil && blk.ReleaseWeak() {
		blk.Free()
	}
}

// Reset is Release.
func (w *Weak[T]) Reset() {
	w.Release()
}

// String implements fmt.Stringer.
func (w Weak[T]) String() string {
	return fmt.Sprintf("Weak[%s](%p, use=%d, expired=%t)", typeName[T](), w.ptr, w.UseCount(), w.Expired())
}
