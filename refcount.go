package refcount

// Allocator accounts for control block storage.
// Reserve is called before a block is built and may refuse it; Unreserve is
// called exactly once for every successful Reserve when the block is retired
// or its construction is abandoned.
type Allocator interface {
	Reserve(size uintptr) error
	Unreserve(size uintptr)
}

// Dropper is optionally implemented by payloads that need cleanup.
// It is the default destruction action when no deleter is supplied.
type Dropper interface {
	Drop()
}
