package types

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Typed Errors (stable categories for programmatic handling)
// -----------------------------------------------------------------------------

// ErrKind classifies errors so callers can branch on intent rather than text.
type ErrKind int

const (
	ErrKindInvalidParameter ErrKind = iota // zero/misaligned size, bad placement constraint
	ErrKindOutOfResources                  // no free range or pages satisfy the request
	ErrKindNotFound                        // target not tracked or not owned by the caller
	ErrKindAccessDenied                    // mutation after lock-out, or state conflict
	ErrKindUnsupported                     // capability not present on the addressed region
	ErrKindAlreadyStarted                  // one-shot operation invoked twice
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindInvalidParameter:
		return "invalid parameter"
	case ErrKindOutOfResources:
		return "out of resources"
	case ErrKindNotFound:
		return "not found"
	case ErrKindAccessDenied:
		return "access denied"
	case ErrKindUnsupported:
		return "unsupported"
	case ErrKindAlreadyStarted:
		return "already started"
	default:
		return fmt.Sprintf("ErrKind(%d)", int(k))
	}
}

// Error is a typed error with an optional underlying cause.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error // optional underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, types.ErrNotFound) matches any not-found error regardless of
// its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an underlying cause.
func Wrap(kind ErrKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Sentinels commonly returned by implementations.
var (
	// ErrInvalidParameter indicates a malformed request (zero length, bad alignment).
	ErrInvalidParameter = &Error{Kind: ErrKindInvalidParameter, Msg: "invalid parameter"}
	// ErrOutOfResources indicates no range could satisfy the request.
	ErrOutOfResources = &Error{Kind: ErrKindOutOfResources, Msg: "out of resources"}
	// ErrNotFound indicates the target range is not tracked or not owned by the caller.
	ErrNotFound = &Error{Kind: ErrKindNotFound, Msg: "not found"}
	// ErrAccessDenied indicates a mutation was refused (locked map, conflicting state).
	ErrAccessDenied = &Error{Kind: ErrKindAccessDenied, Msg: "access denied"}
	// ErrUnsupported indicates the region lacks a capability required by the request.
	ErrUnsupported = &Error{Kind: ErrKindUnsupported, Msg: "unsupported"}
	// ErrAlreadyStarted indicates a one-shot operation was invoked a second time.
	ErrAlreadyStarted = &Error{Kind: ErrKindAlreadyStarted, Msg: "already started"}
)

// -----------------------------------------------------------------------------
// Core Identifiers
// -----------------------------------------------------------------------------

// Handle identifies an agent (image, allocator) or a device that owns a range.
// The zero Handle means "no owner".
type Handle uint64

// Owner records who claimed a range: the agent that requested it and,
// optionally, the device it was claimed on behalf of.
type Owner struct {
	Agent  Handle
	Device Handle
}

// IsZero reports whether o names no owner.
func (o Owner) IsZero() bool { return o.Agent == 0 && o.Device == 0 }

func (o Owner) String() string {
	if o.IsZero() {
		return "-"
	}
	if o.Device == 0 {
		return fmt.Sprintf("%#x", uint64(o.Agent))
	}
	return fmt.Sprintf("%#x/%#x", uint64(o.Agent), uint64(o.Device))
}
