// Package ptr provides shared and weak ownership handles.
//
// A Shared[T] owns one unit of a control block's shared count and keeps the
// payload alive. A Weak[T] owns one unit of the weak count; it can tell
// whether the payload is alive and promote itself, but never extends the
// payload's lifetime.
//
// # Construction
//
//	ptr.Make(v)                   in-place: one allocation for block and value
//	ptr.MakeWith(init, opts...)   in-place, constructed by init
//	ptr.New(p, deleter, opts...)  external pointer plus destruction action
//	ptr.Alias(owner, p)           owner's lifetime, a different pointer
//	ptr.WeakFrom(s)               weak observer
//
// New never leaks p: if the control block cannot be allocated the deleter
// runs before the error is returned.
//
// # Ownership Transfer
//
// Handles are values. Go assignment copies them without touching the counts,
// which is a bug unless the source is discarded without being released. The
// explicit operations are:
//
//	Clone     copy construction
//	Assign    copy assignment
//	Move      move construction, source left empty
//	MoveFrom  move assignment, no-op when both share a block
//	Swap      exchange
//	Release   destruction
//
// # Lock
//
//	Alive   --(last shared Release)-->  Expired
//	Alive   --Lock()-->  new Shared, count + 1
//	Expired --Lock()-->  empty Shared
//
// # Dereferencing
//
// Get returns nil for the empty handle. Value panics with a nil_handle error
// instead of reading through nil; TryValue returns that error.
package ptr
