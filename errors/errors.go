package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in a handle's lifecycle the error occurred
type Phase string

const (
	PhaseAllocate  Phase = "allocate"  // control block reservation
	PhaseConstruct Phase = "construct" // in-place payload construction
	PhaseAccess    Phase = "access"    // dereference of a handle
	PhaseRelease   Phase = "release"   // count decrement, block retirement
	PhaseLock      Phase = "lock"      // weak to shared promotion
	PhaseGuest     Phase = "guest"     // guest linear memory
	PhaseTable     Phase = "table"     // handle table operations
	PhaseScript    Phase = "script"    // playground command parsing
)

// Kind categorizes the error
type Kind string

const (
	KindAllocation   Kind = "allocation"
	KindConstruction Kind = "construction"
	KindNilHandle    Kind = "nil_handle"
	KindExpired      Kind = "expired"
	KindOverRelease  Kind = "over_release"
	KindOutOfBounds  Kind = "out_of_bounds"
	KindInvalidInput Kind = "invalid_input"
	KindNotFound     Kind = "not_found"
	KindClosed       Kind = "closed"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.GoType != "" {
		b.WriteString(": Go type ")
		b.WriteString(e.GoType)
	}

	if e.Detail != "" {
		if e.GoType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, limit uintptr) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Value:  size,
		Detail: fmt.Sprintf("failed to reserve %d bytes (limit %d)", size, limit),
	}
}

// ConstructionFailed wraps an error returned or raised by an in-place initializer
func ConstructionFailed(goType string, cause error) *Error {
	return &Error{
		Phase:  PhaseConstruct,
		Kind:   KindConstruction,
		GoType: goType,
		Detail: "in-place initializer failed",
		Cause:  cause,
	}
}

// NilHandle creates an error for dereferencing an empty handle
func NilHandle(goType, op string) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindNilHandle,
		GoType: goType,
		Detail: fmt.Sprintf("%s on empty handle", op),
	}
}

// Expired creates an error for promoting a weak handle whose payload is gone
func Expired(goType string) *Error {
	return &Error{
		Phase:  PhaseLock,
		Kind:   KindExpired,
		GoType: goType,
		Detail: "payload already destroyed",
	}
}

// OverRelease creates an error for a count decremented past zero
func OverRelease(counter string) *Error {
	return &Error{
		Phase:  PhaseRelease,
		Kind:   KindOverRelease,
		Detail: fmt.Sprintf("%s released too often", counter),
	}
}

// OutOfBounds creates an out-of-bounds error
func OutOfBounds(phase Phase, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Value:  offset,
		Detail: fmt.Sprintf("range [%d, %d) exceeds %d bytes", offset, uint64(offset)+uint64(length), size),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Closed creates an error for operations on a closed table or arena
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", what),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
