package control

import (
	"unsafe"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/wippyai/refcount"
	"github.com/wippyai/refcount/alloc"
	"github.com/wippyai/refcount/errors"
)

// Kind identifies the payload variant of a block.
type Kind uint8

const (
	KindExternal Kind = iota + 1
	KindInPlace
)

func (k Kind) String() string {
	switch k {
	case KindExternal:
		return "external"
	case KindInPlace:
		return "in-place"
	default:
		return "unknown"
	}
}

// block states, advanced only forward
const (
	stateLive uint32 = iota
	stateDestroyed
	stateFreed
)

// Options configures block construction.
type Options struct {
	// Allocator accounts for block storage. Nil means alloc.Heap.
	Allocator refcount.Allocator
	// Observer receives lifecycle events. Nil disables notification.
	Observer Observer
}

func (o Options) allocator() refcount.Allocator {
	if o.Allocator == nil {
		return alloc.Heap{}
	}
	return o.Allocator
}

// Block is the reference-counting record behind a family of handles.
type Block struct {
	shared atomic.Int64
	// weak handles, plus one unit held collectively by shared owners
	weak atomic.Int64
	// set while the shared owners' unit is still counted in weak
	unitHeld atomic.Bool
	state    atomic.Uint32

	kind     Kind
	size     uintptr
	alloc    refcount.Allocator
	observer Observer

	ext     external
	inplace storage
}

type external struct {
	payload any
	deleter func()
}

// storage is implemented by the typed in-place container embedding a Block.
type storage interface {
	destroy()
}

// NewExternal builds a block for a caller-allocated payload.
// A nil deleter selects the default action. If the allocator refuses the
// reservation no block is built and the payload is left untouched; running
// the destruction action on that path is the caller's responsibility.
func NewExternal(payload any, deleter func(), opts Options) (*Block, error) {
	a := opts.allocator()
	size := unsafe.Sizeof(Block{})
	if err := reserve(a, size); err != nil {
		return nil, err
	}

	b := &Block{
		kind: KindExternal,
		ext:  external{payload: payload, deleter: deleter},
	}
	b.start(a, size, opts.Observer)
	return b, nil
}

func reserve(a refcount.Allocator, size uintptr) error {
	err := a.Reserve(size)
	if err == nil {
		return nil
	}
	if _, ok := err.(*errors.Error); ok {
		return err
	}
	return errors.Wrap(errors.PhaseAllocate, errors.KindAllocation, err, "reserve control block")
}

func (b *Block) start(a refcount.Allocator, size uintptr, o Observer) {
	b.alloc = a
	b.size = size
	b.observer = o
	b.shared.Store(1)
	b.weak.Store(1)
	b.unitHeld.Store(true)
	b.notify(EventCreated)
}

// Kind returns the payload variant.
func (b *Block) Kind() Kind {
	return b.kind
}

// Size returns the number of bytes reserved for the block.
func (b *Block) Size() uintptr {
	return b.size
}

// AddShared adds one shared owner. The caller must already hold a shared unit;
// use TryAddShared to promote from a weak handle.
func (b *Block) AddShared() {
	for {
		n := b.shared.Load()
		if n <= 0 {
			panic(errors.New(errors.PhaseLock, errors.KindExpired).
				Detail("AddShared on a block whose payload was destroyed").
				Build())
		}
		if b.shared.CompareAndSwap(n, n+1) {
			return
		}
	}
}

// TryAddShared adds one shared owner unless the payload is already destroyed.
func (b *Block) TryAddShared() bool {
	for {
		n := b.shared.Load()
		if n <= 0 {
			return false
		}
		if b.shared.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// AddWeak adds one weak observer.
func (b *Block) AddWeak() {
	if b.state.Load() == stateFreed {
		panic(errors.New(errors.PhaseRelease, errors.KindOverRelease).
			Detail("AddWeak on a retired block").
			Build())
	}
	b.weak.Inc()
}

// ReleaseShared drops one shared owner. The transition to zero destroys the
// payload before returning. The result reports whether the caller must Free
// the block.
func (b *Block) ReleaseShared() bool {
	n := b.shared.Dec()
	switch {
	case n > 0:
		return false
	case n < 0:
		panic(errors.OverRelease("shared count"))
	}
	b.destroyPayload()
	b.unitHeld.Store(false)
	return b.releaseWeakUnit()
}

// ReleaseWeak drops one weak observer. It never destroys the payload. The
// result reports whether the caller must Free the block.
func (b *Block) ReleaseWeak() bool {
	return b.releaseWeakUnit()
}

func (b *Block) releaseWeakUnit() bool {
	n := b.weak.Dec()
	if n < 0 {
		panic(errors.OverRelease("weak count"))
	}
	return n == 0
}

// SharedCount returns a snapshot of the shared count.
func (b *Block) SharedCount() int64 {
	return b.shared.Load()
}

// WeakCount returns a snapshot of the number of weak handles.
func (b *Block) WeakCount() int64 {
	w := b.weak.Load()
	if b.unitHeld.Load() {
		w--
	}
	if w < 0 {
		return 0
	}
	return w
}

// Expired reports whether the payload has been destroyed.
func (b *Block) Expired() bool {
	return b.shared.Load() == 0
}

// Freed reports whether the block has been retired.
func (b *Block) Freed() bool {
	return b.state.Load() == stateFreed
}

func (b *Block) destroyPayload() {
	switch b.kind {
	case KindExternal:
		ext := b.ext
		b.ext = external{}
		if ext.deleter != nil {
			ext.deleter()
		} else if d, ok := ext.payload.(refcount.Dropper); ok {
			d.Drop()
		}
	case KindInPlace:
		b.inplace.destroy()
	}

	b.state.Store(stateDestroyed)
	b.notify(EventPayloadDestroyed)

	if ce := Logger().Check(zap.DebugLevel, "payload destroyed"); ce != nil {
		ce.Write(
			zap.Stringer("kind", b.kind),
			zap.Uintptr("block", uintptr(unsafe.Pointer(b))),
			zap.Int64("weak", b.WeakCount()),
		)
	}
}

// Free retires the block: the reservation goes back to the allocator and
// EventFreed is emitted. Only the caller that received true from
// ReleaseShared or ReleaseWeak may call it, exactly once.
func (b *Block) Free() {
	if b.state.Load() == stateDestroyed && (b.shared.Load() != 0 || b.weak.Load() != 0) {
		panic(errors.New(errors.PhaseRelease, errors.KindOverRelease).
			Detail("Free with %d shared and %d weak units outstanding", b.shared.Load(), b.weak.Load()).
			Build())
	}
	if !b.state.CompareAndSwap(stateDestroyed, stateFreed) {
		panic(errors.OverRelease("control block"))
	}

	b.alloc.Unreserve(b.size)
	b.notify(EventFreed)

	if ce := Logger().Check(zap.DebugLevel, "control block freed"); ce != nil {
		ce.Write(
			zap.Stringer("kind", b.kind),
			zap.Uintptr("block", uintptr(unsafe.Pointer(b))),
			zap.Uintptr("size", b.size),
		)
	}

	b.alloc = nil
	b.observer = nil
	b.inplace = nil
}

func (b *Block) notify(t EventType) {
	if b.observer == nil {
		return
	}
	b.observer.OnBlockEvent(Event{
		Block: b,
		Size:  b.size,
		Kind:  b.kind,
		Type:  t,
	})
}
