package ptr

import (
	"fmt"
	"reflect"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/refcount/control"
	"github.com/wippyai/refcount/errors"
)

// Deleter is a destruction action for an externally allocated payload.
// A nil Deleter selects the default action: Drop() if the payload implements
// refcount.Dropper, otherwise nothing.
type Deleter[T any] func(*T)

// Shared is an owning handle. The zero value is the empty handle.
//
// Plain assignment copies the struct without changing the counts; use Clone,
// Move, Assign and MoveFrom to transfer ownership, and Release to give it up.
type Shared[T any] struct {
	blk *control.Block
	ptr *T
}

// Null returns the empty handle.
func Null[T any]() Shared[T] {
	return Shared[T]{}
}

// New takes ownership of p with an external control block. The deleter runs
// when the last shared handle is released. If the block cannot be allocated
// the deleter runs on p before the error is returned, so p never leaks.
// A nil p yields the empty handle.
func New[T any](p *T, deleter Deleter[T], opts ...Option) (Shared[T], error) {
	if p == nil {
		return Shared[T]{}, nil
	}

	var del func()
	if deleter != nil {
		del = func() { deleter(p) }
	}

	blk, err := control.NewExternal(p, del, buildOptions(opts))
	if err != nil {
		if del != nil {
			del()
		} else {
			dropDefault(p)
		}
		Logger().Warn("control block allocation failed, payload destroyed",
			zap.String("type", typeName[T]()),
			zap.Error(err))
		return Shared[T]{}, err
	}
	return Shared[T]{blk: blk, ptr: p}, nil
}

// Make stores v in an in-place block: one allocation backs the counts and
// the payload. Make uses the heap allocator and cannot fail.
func Make[T any](v T) Shared[T] {
	ip, err := control.NewInPlace(control.Options{}, v)
	if err != nil {
		panic(err)
	}
	return Shared[T]{blk: ip.Block(), ptr: ip.Get()}
}

// MakeWith builds an in-place block and constructs the payload with init
// directly in the block's storage. A failing init leaves nothing behind.
func MakeWith[T any](init func(*T) error, opts ...Option) (Shared[T], error) {
	ip, err := control.NewInPlaceFunc(buildOptions(opts), init)
	if err != nil {
		return Shared[T]{}, err
	}
	return Shared[T]{blk: ip.Block(), ptr: ip.Get()}, nil
}

// Alias returns a handle that shares owner's block but exposes p. The
// owner's payload stays alive as long as the alias does. Aliasing the empty
// handle yields the empty handle.
func Alias[T, U any](owner Shared[U], p *T) Shared[T] {
	if owner.blk == nil {
		return Shared[T]{}
	}
	owner.blk.AddShared()
	return Shared[T]{blk: owner.blk, ptr: p}
}

// FromWeak promotes w, failing with an expired error when the payload is
// already gone or w is empty.
func FromWeak[T any](w Weak[T]) (Shared[T], error) {
	s := w.Lock()
	if s.blk == nil {
		return s, errors.Expired(typeName[T]())
	}
	return s, nil
}

// Get returns the exposed pointer, nil for the empty handle.
func (s Shared[T]) Get() *T {
	return s.ptr
}

// Value dereferences the handle. Dereferencing the empty handle panics with
// a nil-handle error.
func (s Shared[T]) Value() T {
	if s.ptr == nil {
		panic(errors.NilHandle(handleName[T]("Shared"), "Value"))
	}
	return *s.ptr
}

// TryValue dereferences the handle, reporting the empty handle as an error.
func (s Shared[T]) TryValue() (T, error) {
	if s.ptr == nil {
		var zero T
		return zero, errors.NilHandle(handleName[T]("Shared"), "TryValue")
	}
	return *s.ptr, nil
}

// UseCount returns the number of shared handles on the block, 0 if empty.
func (s Shared[T]) UseCount() int64 {
	if s.blk == nil {
		return 0
	}
	return s.blk.SharedCount()
}

// Valid reports whether the exposed pointer is non-nil.
func (s Shared[T]) Valid() bool {
	return s.ptr != nil
}

// IsNull reports whether the handle compares equal to the null handle.
func (s Shared[T]) IsNull() bool {
	return s.ptr == nil
}

// Equal compares exposed pointers, not blocks.
func (s Shared[T]) Equal(other Shared[T]) bool {
	return s.ptr == other.ptr
}

// SameOwner reports whether both handles share one control block.
func (s Shared[T]) SameOwner(other Shared[T]) bool {
	return s.blk == other.blk
}

// SameAddress compares the exposed pointers of handles with different element
// types. Two null handles are equal.
func SameAddress[T, U any](a Shared[T], b Shared[U]) bool {
	return unsafe.Pointer(a.ptr) == unsafe.Pointer(b.ptr)
}

// Clone returns a new owning handle on the same block.
func (s Shared[T]) Clone() Shared[T] {
	if s.blk != nil {
		s.blk.AddShared()
	}
	return s
}

// Move returns the handle's state and leaves s empty.
func (s *Shared[T]) Move() Shared[T] {
	out := *s
	*s = Shared[T]{}
	return out
}

// Assign makes s a copy of src, releasing what s held before.
func (s *Shared[T]) Assign(src Shared[T]) {
	tmp := src.Clone()
	tmp.Swap(s)
	tmp.Release()
}

// MoveFrom transfers src's state to s and leaves src empty. When both
// reference the same block nothing changes.
func (s *Shared[T]) MoveFrom(src *Shared[T]) {
	if s.blk == src.blk {
		return
	}
	tmp := src.Move()
	tmp.Swap(s)
	tmp.Release()
}

// Swap exchanges the state of two handles.
func (s *Shared[T]) Swap(other *Shared[T]) {
	*s, *other = *other, *s
}

// Release gives up ownership and leaves s empty. The last release destroys
// the payload; if no weak handles remain it also retires the block.
func (s *Shared[T]) Release() {
	blk := s.blk
	*s = Shared[T]{}
	if blk != nil && blk.ReleaseShared() {
		blk.Free()
	}
}

// Reset is Release.
func (s *Shared[T]) Reset() {
	s.Release()
}

// ResetTo releases the current state and takes ownership of p. On
// allocation failure the deleter runs on p and s keeps its previous state.
func (s *Shared[T]) ResetTo(p *T, deleter Deleter[T], opts ...Option) error {
	next, err := New(p, deleter, opts...)
	if err != nil {
		return err
	}
	next.Swap(s)
	next.Release()
	return nil
}

// String implements fmt.Stringer.
func (s Shared[T]) String() string {
	return fmt.Sprintf("Shared[%s](%p, use=%d)", typeName[T](), s.ptr, s.UseCount())
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

func handleName[T any](kind string) string {
	return "ptr." + kind + "[" + typeName[T]() + "]"
}
