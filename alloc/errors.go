package alloc

import "github.com/joshuapare/dxemem/pkg/types"

// Errors returned by allocators are *types.Error values; match them with
// errors.Is against the types sentinels:
//
//	types.ErrInvalidParameter  zero size, bad alignment, size mismatch on free
//	types.ErrOutOfResources    expansion failed
//	types.ErrNotFound          address was not handed out by this allocator
//	types.ErrAlreadyStarted    bucket seeded twice or after first use

func invalidf(format string, args ...any) error {
	return types.Errorf(types.ErrKindInvalidParameter, "alloc: "+format, args...)
}

func notFoundf(format string, args ...any) error {
	return types.Errorf(types.ErrKindNotFound, "alloc: "+format, args...)
}

func exhausted(cause error, format string, args ...any) error {
	return types.Wrap(types.ErrKindOutOfResources, cause, "alloc: "+format, args...)
}
