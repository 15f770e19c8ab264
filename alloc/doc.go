// Package alloc provides control block allocators.
//
// Control blocks live on the Go heap. An allocator decides whether a block
// may be built and keeps the books for it:
//
//	alloc.Heap{}         never refuses, keeps no books (the default)
//	alloc.NewTracker()   counts live blocks and reserved bytes
//	alloc.NewLimit(n)    refuses reservations past n bytes
//	alloc.FailAfter(n)   refuses every reservation after the first n
//
// Tracker and Limit are safe for concurrent use.
package alloc
