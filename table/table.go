package table

import (
	"sync"

	"github.com/wippyai/refcount/errors"
	"github.com/wippyai/refcount/ptr"
)

// Table maps integer handles to shared or weak handles of one payload type.
// Every slot holds exactly one unit on its block; removing the slot releases
// that unit.
type Table[T any] struct {
	entries   []entry[T]
	freeList  []Handle
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry[T any] struct {
	slot  Slot[T]
	valid bool
}

// New creates an empty table.
func New[T any]() *Table[T] {
	return &Table[T]{
		entries:  make([]entry[T], 0, 16),
		freeList: make([]Handle, 0, 4),
	}
}

// InsertShared moves s into a new slot and returns its handle. s is left
// empty. Inserting into a closed table releases s and fails.
func (t *Table[T]) InsertShared(s *ptr.Shared[T]) (Handle, error) {
	return t.insert(Slot[T]{Shared: s.Move()})
}

// InsertWeak moves w into a new slot and returns its handle. w is left empty.
func (t *Table[T]) InsertWeak(w *ptr.Weak[T]) (Handle, error) {
	return t.insert(Slot[T]{Weak: w.Move(), IsWeak: true})
}

func (t *Table[T]) insert(slot Slot[T]) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		slot.Release()
		return 0, errors.Closed(errors.PhaseTable, "handle table")
	}

	e := entry[T]{slot: slot, valid: true}

	var handle Handle
	if n := len(t.freeList); n > 0 {
		handle = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[handle-1] = e
	} else {
		t.entries = append(t.entries, e)
		handle = Handle(len(t.entries))
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventInserted, Handle: handle, Weak: slot.IsWeak})
	return handle, nil
}

// Get returns a borrowed view of the slot. The counts are not changed; the
// view stays valid only while the slot does.
func (t *Table[T]) Get(handle Handle) (Slot[T], bool) {
	if handle == 0 {
		return Slot[T]{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := handle - 1
	if int(idx) >= len(t.entries) {
		return Slot[T]{}, false
	}
	e := t.entries[idx]
	if !e.valid {
		return Slot[T]{}, false
	}
	return e.slot, true
}

// Shared returns a borrowed view of a shared slot.
func (t *Table[T]) Shared(handle Handle) (ptr.Shared[T], bool) {
	slot, ok := t.Get(handle)
	if !ok || slot.IsWeak {
		return ptr.Shared[T]{}, false
	}
	return slot.Shared, true
}

// Weak returns a borrowed view of a weak slot.
func (t *Table[T]) Weak(handle Handle) (ptr.Weak[T], bool) {
	slot, ok := t.Get(handle)
	if !ok || !slot.IsWeak {
		return ptr.Weak[T]{}, false
	}
	return slot.Weak, true
}

// Take removes the slot and hands its unit to the caller, who becomes
// responsible for releasing it.
func (t *Table[T]) Take(handle Handle) (Slot[T], bool) {
	slot, ok := t.detach(handle)
	if !ok {
		return Slot[T]{}, false
	}
	t.notify(Event{Type: EventRemoved, Handle: handle, Weak: slot.IsWeak})
	return slot, true
}

// Remove releases the slot's unit and frees the handle.
func (t *Table[T]) Remove(handle Handle) bool {
	slot, ok := t.detach(handle)
	if !ok {
		return false
	}

	weak := slot.IsWeak
	// destruction actions may call back into the table
	slot.Release()

	t.notify(Event{Type: EventRemoved, Handle: handle, Weak: weak})
	return true
}

func (t *Table[T]) detach(handle Handle) (Slot[T], bool) {
	if handle == 0 {
		return Slot[T]{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := handle - 1
	if int(idx) >= len(t.entries) {
		return Slot[T]{}, false
	}
	e := &t.entries[idx]
	if !e.valid {
		return Slot[T]{}, false
	}

	slot := e.slot
	*e = entry[T]{}
	t.freeList = append(t.freeList, handle)
	return slot, true
}

// Len returns the number of occupied slots.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each calls fn for every occupied slot in handle order until fn returns
// false. fn receives borrowed views and must not modify the table.
func (t *Table[T]) Each(fn func(Handle, Slot[T]) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(Handle(i+1), e.slot) {
				break
			}
		}
	}
}

// Subscribe adds an observer for table events.
func (t *Table[T]) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table[T]) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Clear removes every slot.
func (t *Table[T]) Clear() {
	// collect first, Remove takes the lock
	var handles []Handle
	t.Each(func(h Handle, _ Slot[T]) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close releases every slot and rejects further inserts.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.Clear()

	t.mu.Lock()
	t.entries = nil
	t.freeList = nil
	t.mu.Unlock()
	return nil
}

func (t *Table[T]) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnTableEvent(e)
	}
}
