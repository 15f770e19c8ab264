// Package refcount provides shared and weak ownership handles with
// deterministic, reference-counted destruction.
//
// The Go garbage collector still reclaims memory. What this library controls
// is when a payload's destruction action runs (closing a file, returning guest
// memory, releasing a pooled buffer) and when the bookkeeping record behind a
// family of handles is retired.
//
// # Architecture Overview
//
//	refcount/        Root package with the Allocator and Dropper interfaces
//	├── control/     Control block: shared/weak counts, payload variants
//	├── ptr/         Shared[T] and Weak[T] handles
//	├── alloc/       Heap, Tracker and Limit allocators
//	├── table/       Integer handle table owning shared and weak handles
//	├── guest/       wazero linear memory regions owned by shared handles
//	├── errors/      Structured error types
//	└── cmd/refplay  Script and TUI playground for handle operations
//
// # Quick Start
//
// In-place allocation, one allocation for block and payload:
//
//	s := ptr.Make(Point{X: 1, Y: 2})
//	defer s.Release()
//
//	w := ptr.WeakFrom(s)
//	defer w.Release()
//
//	if p := w.Lock(); p.Valid() {
//	    fmt.Println(p.Get().X)
//	    p.Release()
//	}
//
// External pointer with a destruction action:
//
//	f, _ := os.Open(path)
//	s, err := ptr.New(f, func(f *os.File) { f.Close() })
//	if err != nil {
//	    return err // f is already closed
//	}
//
// # Handles Are Values
//
// Shared[T] and Weak[T] are small structs. Plain assignment copies the struct
// without touching the counts, so ownership is transferred explicitly:
//
//	b := a.Clone()   // copy: count + 1
//	c := a.Move()    // move: a is empty afterwards
//	c.Assign(b)      // copy assignment
//	c.MoveFrom(&b)   // move assignment
//	c.Release()      // destruction
//
// # Thread Safety
//
// Counts are atomic. Distinct handles referencing one block can be cloned and
// released from different goroutines. A single handle variable is not safe
// for concurrent mutation.
package refcount
