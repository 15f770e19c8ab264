// Package errors provides structured error types for the refcount module.
//
// Errors are categorized by Phase (where in a handle's lifecycle the error
// occurred) and Kind (error category). The Error type carries the Go type of
// the payload, a detail message, the offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseAllocate, errors.KindAllocation).
//		GoType("*os.File").
//		Detail("budget of %d bytes exhausted", limit).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.AllocationFailed(errors.PhaseAllocate, size, limit)
//	err := errors.NilHandle("ptr.Shared[int]", "Value")
//
// All errors implement the standard error interface and support errors.Is/As.
// errors.Is matches on Phase and Kind only.
package errors
