package control

import (
	"errors"
	"testing"

	"github.com/wippyai/refcount/alloc"
	rcerrors "github.com/wippyai/refcount/errors"
)

type recorder struct {
	events []Event
}

func (r *recorder) OnBlockEvent(e Event) {
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type dropCounter struct {
	count int
}

func (d *dropCounter) Drop() {
	d.count++
}

func expectPanic(t *testing.T, kind rcerrors.Kind, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected panic")
		}
		err, ok := r.(*rcerrors.Error)
		if !ok {
			t.Fatalf("Expected *errors.Error panic, got %T: %v", r, r)
		}
		if err.Kind != kind {
			t.Fatalf("Expected kind %s, got %s", kind, err.Kind)
		}
	}()
	fn()
}

func TestBlock_InitialCounts(t *testing.T) {
	b, err := NewExternal(&dropCounter{}, nil, Options{})
	if err != nil {
		t.Fatalf("NewExternal failed: %v", err)
	}
	if b.SharedCount() != 1 {
		t.Fatalf("Expected shared 1, got %d", b.SharedCount())
	}
	if b.WeakCount() != 0 {
		t.Fatalf("Expected weak 0, got %d", b.WeakCount())
	}
	if b.Kind() != KindExternal {
		t.Fatalf("Expected external kind, got %s", b.Kind())
	}
	if b.Expired() || b.Freed() {
		t.Fatal("new block must be alive")
	}
}

func TestBlock_ReleaseSharedDestroysOnce(t *testing.T) {
	d := &dropCounter{}
	b, _ := NewExternal(d, nil, Options{})

	b.AddShared()
	b.AddShared()
	if b.SharedCount() != 3 {
		t.Fatalf("Expected shared 3, got %d", b.SharedCount())
	}

	if b.ReleaseShared() || b.ReleaseShared() {
		t.Fatal("non-final release must not request Free")
	}
	if d.count != 0 {
		t.Fatal("payload destroyed while owners remain")
	}

	if !b.ReleaseShared() {
		t.Fatal("final release with no weak handles must request Free")
	}
	if d.count != 1 {
		t.Fatalf("Expected Drop once, got %d", d.count)
	}
	b.Free()
	if !b.Freed() {
		t.Fatal("Expected block to be freed")
	}
}

func TestBlock_WeakOutlivesPayload(t *testing.T) {
	d := &dropCounter{}
	b, _ := NewExternal(d, nil, Options{})

	b.AddWeak()
	b.AddWeak()
	if b.WeakCount() != 2 {
		t.Fatalf("Expected weak 2, got %d", b.WeakCount())
	}

	if b.ReleaseShared() {
		t.Fatal("release with outstanding weak handles must not request Free")
	}
	if d.count != 1 {
		t.Fatal("payload must be destroyed when the shared count reaches zero")
	}
	if !b.Expired() {
		t.Fatal("Expected block to be expired")
	}
	if b.WeakCount() != 2 {
		t.Fatalf("Expected weak 2 after expiry, got %d", b.WeakCount())
	}

	if b.ReleaseWeak() {
		t.Fatal("first weak release must not request Free")
	}
	if !b.ReleaseWeak() {
		t.Fatal("last weak release must request Free")
	}
	if d.count != 1 {
		t.Fatalf("weak release must never destroy the payload, Drop called %d times", d.count)
	}
	b.Free()
}

func TestBlock_ReleaseWeakWhileAlive(t *testing.T) {
	d := &dropCounter{}
	b, _ := NewExternal(d, nil, Options{})

	b.AddWeak()
	if b.ReleaseWeak() {
		t.Fatal("weak release while shared owners remain must not request Free")
	}
	if d.count != 0 {
		t.Fatal("weak release destroyed the payload")
	}
	if !b.ReleaseShared() {
		t.Fatal("final shared release must request Free")
	}
	b.Free()
}

func TestBlock_TryAddShared(t *testing.T) {
	b, _ := NewExternal(&dropCounter{}, nil, Options{})
	b.AddWeak()

	if !b.TryAddShared() {
		t.Fatal("TryAddShared on a live block must succeed")
	}
	if b.SharedCount() != 2 {
		t.Fatalf("Expected shared 2, got %d", b.SharedCount())
	}

	b.ReleaseShared()
	b.ReleaseShared()

	if b.TryAddShared() {
		t.Fatal("TryAddShared on an expired block must fail")
	}
	if b.SharedCount() != 0 {
		t.Fatalf("failed promotion changed the count to %d", b.SharedCount())
	}
	if b.ReleaseWeak() {
		b.Free()
	}
}

func TestBlock_CustomDeleter(t *testing.T) {
	payload := &dropCounter{}
	calls := 0
	b, _ := NewExternal(payload, func() { calls++ }, Options{})

	if !b.ReleaseShared() {
		t.Fatal("Expected Free request")
	}
	if calls != 1 {
		t.Fatalf("Expected deleter once, got %d", calls)
	}
	if payload.count != 0 {
		t.Fatal("custom deleter must replace the default Drop action")
	}
	b.Free()
}

func TestBlock_DefaultActionWithoutDropper(t *testing.T) {
	v := 42
	b, _ := NewExternal(&v, nil, Options{})
	if !b.ReleaseShared() {
		t.Fatal("Expected Free request")
	}
	b.Free()
	if v != 42 {
		t.Fatal("default action must not touch a payload without Drop")
	}
}

func TestBlock_Events(t *testing.T) {
	rec := &recorder{}
	b, _ := NewExternal(&dropCounter{}, nil, Options{Observer: rec})
	b.AddWeak()
	b.ReleaseShared()
	if b.ReleaseWeak() {
		b.Free()
	}

	got := rec.types()
	want := []EventType{EventCreated, EventPayloadDestroyed, EventFreed}
	if len(got) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if rec.events[0].Block != b || rec.events[0].Kind != KindExternal {
		t.Fatal("event does not describe the block")
	}
}

// weakSnapshot records WeakCount as seen by observers at destruction.
type weakSnapshot struct {
	seen []int64
}

func (w *weakSnapshot) OnBlockEvent(e Event) {
	if e.Type == EventPayloadDestroyed {
		w.seen = append(w.seen, e.Block.WeakCount())
	}
}

func TestBlock_WeakCountDuringDestroy(t *testing.T) {
	tests := []struct {
		name string
		weak int
	}{
		{"no weak handles", 0},
		{"one weak handle", 1},
		{"three weak handles", 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := &weakSnapshot{}
			b, _ := NewExternal(&dropCounter{}, nil, Options{Observer: snap})
			for i := 0; i < tc.weak; i++ {
				b.AddWeak()
			}

			free := b.ReleaseShared()
			if len(snap.seen) != 1 || snap.seen[0] != int64(tc.weak) {
				t.Fatalf("Expected WeakCount %d inside destruction, got %v", tc.weak, snap.seen)
			}
			if b.WeakCount() != int64(tc.weak) {
				t.Fatalf("Expected WeakCount %d after destruction, got %d", tc.weak, b.WeakCount())
			}

			for i := 0; i < tc.weak; i++ {
				free = b.ReleaseWeak()
			}
			if !free {
				t.Fatal("Expected Free request after the last release")
			}
			b.Free()
		})
	}
}

func TestBlock_AllocatorAccounting(t *testing.T) {
	tr := alloc.NewTracker()
	b, _ := NewExternal(&dropCounter{}, nil, Options{Allocator: tr})

	if tr.Live() != 1 || tr.Bytes() != int64(b.Size()) {
		t.Fatalf("Expected 1 live / %d bytes, got %d / %d", b.Size(), tr.Live(), tr.Bytes())
	}
	if b.ReleaseShared() {
		b.Free()
	}
	if tr.Live() != 0 || tr.Bytes() != 0 {
		t.Fatalf("Free must return the reservation, got %d / %d", tr.Live(), tr.Bytes())
	}
}

func TestNewExternal_AllocationFailure(t *testing.T) {
	d := &dropCounter{}
	rec := &recorder{}
	b, err := NewExternal(d, nil, Options{Allocator: alloc.FailAfter(0), Observer: rec})
	if err == nil {
		t.Fatal("Expected allocation error")
	}
	if b != nil {
		t.Fatal("no block may exist after a refused reservation")
	}
	if !errors.Is(err, &rcerrors.Error{Phase: rcerrors.PhaseAllocate, Kind: rcerrors.KindAllocation}) {
		t.Fatalf("Expected allocation error, got %v", err)
	}
	if d.count != 0 {
		t.Fatal("NewExternal must leave the payload to the caller")
	}
	if len(rec.events) != 0 {
		t.Fatal("no events may be emitted for a block that was never built")
	}
}

type plainAllocator struct{}

func (plainAllocator) Reserve(uintptr) error { return errors.New("out of slabs") }
func (plainAllocator) Unreserve(uintptr)     {}

func TestNewExternal_WrapsForeignAllocatorError(t *testing.T) {
	_, err := NewExternal(&dropCounter{}, nil, Options{Allocator: plainAllocator{}})
	var rcErr *rcerrors.Error
	if !errors.As(err, &rcErr) || rcErr.Kind != rcerrors.KindAllocation {
		t.Fatalf("Expected wrapped allocation error, got %v", err)
	}
	if rcErr.Cause == nil || rcErr.Cause.Error() != "out of slabs" {
		t.Fatalf("Expected cause to be preserved, got %v", rcErr.Cause)
	}
}

func TestBlock_Misuse(t *testing.T) {
	t.Run("over release", func(t *testing.T) {
		b, _ := NewExternal(&dropCounter{}, nil, Options{})
		b.AddWeak()
		b.ReleaseShared()
		expectPanic(t, rcerrors.KindOverRelease, func() { b.ReleaseShared() })
	})

	t.Run("resurrect", func(t *testing.T) {
		b, _ := NewExternal(&dropCounter{}, nil, Options{})
		b.AddWeak()
		b.ReleaseShared()
		expectPanic(t, rcerrors.KindExpired, func() { b.AddShared() })
		if b.SharedCount() != 0 {
			t.Fatalf("Expected shared 0 after refused AddShared, got %d", b.SharedCount())
		}
		if b.TryAddShared() {
			t.Fatal("destroyed block must stay expired after refused AddShared")
		}
	})

	t.Run("double free", func(t *testing.T) {
		b, _ := NewExternal(&dropCounter{}, nil, Options{})
		if b.ReleaseShared() {
			b.Free()
		}
		expectPanic(t, rcerrors.KindOverRelease, func() { b.Free() })
	})

	t.Run("free while alive", func(t *testing.T) {
		b, _ := NewExternal(&dropCounter{}, nil, Options{})
		expectPanic(t, rcerrors.KindOverRelease, func() { b.Free() })
	})

	t.Run("free with weak outstanding", func(t *testing.T) {
		b, _ := NewExternal(&dropCounter{}, nil, Options{})
		b.AddWeak()
		b.ReleaseShared()
		expectPanic(t, rcerrors.KindOverRelease, func() { b.Free() })
	})

	t.Run("weak on freed block", func(t *testing.T) {
		b, _ := NewExternal(&dropCounter{}, nil, Options{})
		if b.ReleaseShared() {
			b.Free()
		}
		expectPanic(t, rcerrors.KindOverRelease, func() { b.AddWeak() })
	})
}

func TestKindAndEventStrings(t *testing.T) {
	if KindExternal.String() != "external" || KindInPlace.String() != "in-place" || Kind(0).String() != "unknown" {
		t.Fatal("unexpected Kind strings")
	}
	if EventFreed.String() != "freed" || EventType(99).String() != "unknown" {
		t.Fatal("unexpected EventType strings")
	}
}
