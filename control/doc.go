// Package control implements the control block shared by every handle that
// references one payload.
//
// A Block holds two counts. The shared count is the number of owning handles;
// when it falls from one to zero the payload's destruction action runs,
// exactly once, regardless of outstanding weak handles. The weak count is the
// number of observing handles. The block is retired only after both counts
// drain, and it never retires itself: ReleaseShared and ReleaseWeak return
// true to the one caller that must call Free.
//
// # Payload Variants
//
// The payload is a closed tagged variant dispatched by a single switch:
//
//	KindExternal  caller-allocated value plus an optional deleter
//	KindInPlace   value embedded in the same allocation as the block
//
// External blocks without a deleter use the default action: Drop() if the
// payload implements refcount.Dropper, otherwise nothing. No closure is
// captured for the default action.
//
// # Counting
//
// Counts are atomic. While the shared count is non-zero the weak counter
// carries one extra unit on behalf of all shared owners; the release that
// drops the weak counter to zero is the only one that returns true, so two
// racing releases can never both retire a block.
//
// # Allocation Accounting
//
// Every block reserves its size from a refcount.Allocator before it is built
// and returns it from Free. A refused reservation fails the constructor
// before any block exists.
package control
