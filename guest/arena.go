package guest

import (
	"context"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/multierr"

	"github.com/wippyai/refcount"
	"github.com/wippyai/refcount/control"
	"github.com/wippyai/refcount/errors"
	"github.com/wippyai/refcount/ptr"
)

// PageSize is the size of a wasm linear memory page.
const PageSize = 65536

// base is the first offset handed out; offset 0 stays a null guest pointer.
const base = 8

// Arena is a first-fit allocator over a wasm linear memory. Regions handed
// out as shared handles return to the arena when their last owner releases
// them. Arena is safe for concurrent use.
type Arena struct {
	mem     api.Memory
	rt      wazero.Runtime
	mod     api.Module
	opts    []ptr.Option
	layouts *Calculator

	mu     sync.Mutex
	free   []span            // sorted by offset, never adjacent
	live   map[uint32]uint32 // offset to size of each allocation
	top    uint32            // end of the highest allocation
	used   uint32
	closed bool
}

type span struct {
	off, size uint32
}

// Option configures an Arena.
type Option func(*config)

type config struct {
	minPages  uint32
	maxPages  uint32
	hasMax    bool
	allocator refcount.Allocator
	observer  control.Observer
}

// WithPages sets the initial and maximum memory size in pages. A max of 0
// leaves the memory unbounded up to the runtime limit.
func WithPages(minPages, maxPages uint32) Option {
	return func(c *config) {
		c.minPages = minPages
		c.maxPages = maxPages
		c.hasMax = maxPages > 0
	}
}

// WithAllocator sets the allocator that accounts for region control blocks.
func WithAllocator(a refcount.Allocator) Option {
	return func(c *config) {
		c.allocator = a
	}
}

// WithObserver sets the observer notified of region block events.
func WithObserver(o control.Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

func buildConfig(opts []Option) config {
	c := config{minPages: 1, maxPages: 16, hasMax: true}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c config) handleOptions() []ptr.Option {
	var out []ptr.Option
	if c.allocator != nil {
		out = append(out, ptr.WithAllocator(c.allocator))
	}
	if c.observer != nil {
		out = append(out, ptr.WithObserver(c.observer))
	}
	return out
}

// New creates a wazero runtime holding a single exported memory and returns
// an arena over it. Close releases the runtime.
func New(ctx context.Context, opts ...Option) (*Arena, error) {
	c := buildConfig(opts)
	if c.hasMax && c.maxPages < c.minPages {
		return nil, errors.InvalidInput(errors.PhaseGuest, "max pages below min pages")
	}

	rt := wazero.NewRuntime(ctx)

	compiled, err := rt.CompileModule(ctx, memoryModule(c.minPages, c.maxPages, c.hasMax))
	if err != nil {
		return nil, multierr.Append(
			errors.Wrap(errors.PhaseGuest, errors.KindInvalidInput, err, "compile memory module"),
			rt.Close(ctx))
	}

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		return nil, multierr.Append(
			errors.Wrap(errors.PhaseGuest, errors.KindAllocation, err, "instantiate memory module"),
			rt.Close(ctx))
	}

	a := newArena(mod.ExportedMemory("memory"), c)
	a.rt = rt
	a.mod = mod
	return a, nil
}

// Wrap returns an arena over an existing memory. The arena assumes it is the
// only allocator of mem above offset 8; Close does not close mem's module.
func Wrap(mem api.Memory, opts ...Option) *Arena {
	if mem == nil {
		return nil
	}
	return newArena(mem, buildConfig(opts))
}

func newArena(mem api.Memory, c config) *Arena {
	return &Arena{
		mem:     mem,
		opts:    c.handleOptions(),
		layouts: NewCalculator(),
		live:    make(map[uint32]uint32),
		top:     base,
	}
}

// Layouts returns the arena's layout calculator.
func (a *Arena) Layouts() *Calculator {
	return a.layouts
}

// Memory returns the underlying linear memory.
func (a *Arena) Memory() api.Memory {
	return a.mem
}

// Used returns the number of bytes currently allocated.
func (a *Arena) Used() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Alloc reserves size bytes aligned to align, growing the memory if needed.
// align must be a power of two; 0 means 1.
func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return 0, errors.InvalidInput(errors.PhaseGuest, "zero-size allocation")
	}
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		return 0, errors.InvalidInput(errors.PhaseGuest, "alignment must be a power of two")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0, errors.Closed(errors.PhaseGuest, "arena")
	}

	for i, s := range a.free {
		start := alignTo(s.off, align)
		if uint64(start)+uint64(size) > uint64(s.off)+uint64(s.size) {
			continue
		}
		a.split(i, start, size)
		a.live[start] = size
		a.used += size
		return start, nil
	}

	start := uint64(alignTo(a.top, align))
	end := start + uint64(size)
	if end > uint64(a.mem.Size()) {
		if err := a.grow(end); err != nil {
			return 0, err
		}
	}

	gap := a.top
	a.top = uint32(end)
	if uint32(start) > gap {
		a.insert(gap, uint32(start)-gap)
	}
	a.live[uint32(start)] = size
	a.used += size
	return uint32(start), nil
}

// split carves [start, start+size) out of free span i.
func (a *Arena) split(i int, start, size uint32) {
	s := a.free[i]
	var rest []span
	if start > s.off {
		rest = append(rest, span{off: s.off, size: start - s.off})
	}
	if end := start + size; end < s.off+s.size {
		rest = append(rest, span{off: end, size: s.off + s.size - end})
	}
	a.free = append(a.free[:i], append(rest, a.free[i+1:]...)...)
}

func (a *Arena) grow(end uint64) error {
	have := uint64(a.mem.Size())
	delta := (end - have + PageSize - 1) / PageSize
	if delta > uint64(^uint32(0)) {
		return errors.AllocationFailed(errors.PhaseGuest, uintptr(end), uintptr(a.limit()))
	}
	if _, ok := a.mem.Grow(uint32(delta)); !ok {
		return errors.AllocationFailed(errors.PhaseGuest, uintptr(end), uintptr(a.limit()))
	}
	return nil
}

// limit returns the memory's maximum size in bytes, 0 when undeclared.
func (a *Arena) limit() uint64 {
	if pages, ok := a.mem.Definition().Max(); ok {
		return uint64(pages) * PageSize
	}
	return 0
}

// Free returns [offset, offset+size) to the arena. The range must be
// exactly one live allocation as returned by Alloc.
func (a *Arena) Free(offset, size uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.Closed(errors.PhaseGuest, "arena")
	}
	if size == 0 || offset < base || uint64(offset)+uint64(size) > uint64(a.top) {
		return errors.OutOfBounds(errors.PhaseGuest, offset, size, a.top)
	}

	if n, ok := a.live[offset]; !ok || n != size {
		return errors.InvalidInput(errors.PhaseGuest, "free of unallocated range")
	}
	delete(a.live, offset)

	a.insert(offset, size)
	a.used -= size
	return nil
}

// insert adds a free span, coalescing with its neighbours and lowering top
// when the span reaches it.
func (a *Arena) insert(offset, size uint32) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].off >= offset })
	s := span{off: offset, size: size}

	if i < len(a.free) && s.off+s.size == a.free[i].off {
		s.size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
	if i > 0 && a.free[i-1].off+a.free[i-1].size == s.off {
		i--
		s.off = a.free[i].off
		s.size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}

	if s.off+s.size == a.top {
		a.top = s.off
		return
	}

	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = s
}

// Region allocates a region and returns the only owner of it. The region is
// freed when the last shared handle is released. If the handle cannot be
// built the region is freed before the error is returned.
func (a *Arena) Region(size, align uint32) (ptr.Shared[Region], error) {
	off, err := a.Alloc(size, align)
	if err != nil {
		return ptr.Shared[Region]{}, err
	}

	r := &Region{arena: a, Offset: off, Size: size, Align: align}
	return ptr.New(r, freeRegion, a.opts...)
}

// RegionFor allocates a region sized and aligned for a value of WIT type t.
// Layouts of type definitions are cached for the life of the arena.
func (a *Arena) RegionFor(t wit.Type) (ptr.Shared[Region], error) {
	l := a.layouts.Layout(t)
	if l.Size == 0 {
		return ptr.Shared[Region]{}, errors.InvalidInput(errors.PhaseGuest, "type has no in-memory representation")
	}
	return a.Region(l.Size, l.Align)
}

func freeRegion(r *Region) {
	if err := r.arena.Free(r.Offset, r.Size); err != nil {
		// arena closed underneath the region
		return
	}
	r.arena = nil
}

// Close releases the runtime created by New. Regions still owned become
// inert: releasing them no longer touches memory.
func (a *Arena) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.free = nil
	a.live = nil
	a.mu.Unlock()

	var err error
	if a.mod != nil {
		err = multierr.Append(err, a.mod.Close(ctx))
	}
	if a.rt != nil {
		err = multierr.Append(err, a.rt.Close(ctx))
	}
	return err
}
