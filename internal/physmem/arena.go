// Package physmem backs an emulated physical address window with host
// memory and enforces GCD access attributes on it.
package physmem

import (
	"github.com/joshuapare/dxemem/internal/format"
	"github.com/joshuapare/dxemem/pkg/types"
)

// Access is the protection applied to one arena page.
type Access uint8

const (
	ReadWrite Access = iota
	ReadOnly
	NoAccess
)

func (a Access) String() string {
	switch a {
	case ReadWrite:
		return "rw"
	case ReadOnly:
		return "r"
	case NoAccess:
		return "none"
	}
	return "?"
}

// AccessFor maps GCD access attributes to a page protection. The arena is
// never executable, so XP needs no action.
func AccessFor(attrs types.Attributes) Access {
	switch {
	case attrs.Has(types.MemoryRP):
		return NoAccess
	case attrs.Has(types.MemoryRO), attrs.Has(types.MemoryWP):
		return ReadOnly
	}
	return ReadWrite
}

// Arena is host memory standing in for the physical range
// [Base, Base+Len).
type Arena struct {
	base   uint64
	data   []byte
	access []Access // per page
	unmap  func([]byte) error
}

// Map reserves size bytes of host memory for the physical window starting
// at base. Both must be page aligned.
func Map(base, size uint64) (*Arena, error) {
	if size == 0 || !format.IsPageAligned(base) || !format.IsPageAligned(size) {
		return nil, types.Errorf(types.ErrKindInvalidParameter, "physmem: window %#x+%#x not page aligned", base, size)
	}
	if _, ok := format.End(base, size); !ok {
		return nil, types.Errorf(types.ErrKindInvalidParameter, "physmem: window %#x+%#x wraps", base, size)
	}
	if size > uint64(^uint(0)>>1) {
		return nil, types.Errorf(types.ErrKindOutOfResources, "physmem: window of %#x bytes too large to map", size)
	}
	data, unmap, err := mapAnon(int(size))
	if err != nil {
		return nil, types.Wrap(types.ErrKindOutOfResources, err, "physmem: map %#x bytes", size)
	}
	return &Arena{
		base:   base,
		data:   data,
		access: make([]Access, size>>format.PageShift),
		unmap:  unmap,
	}, nil
}

// Base returns the physical address of the first arena byte.
func (a *Arena) Base() uint64 { return a.base }

// Len returns the window size in bytes.
func (a *Arena) Len() uint64 { return uint64(len(a.data)) }

// Bytes returns the host memory behind [addr, addr+length). Touching a
// page protected NoAccess, or writing a ReadOnly page, faults.
func (a *Arena) Bytes(addr, length uint64) ([]byte, error) {
	off, ok := a.offset(addr, length)
	if !ok {
		return nil, types.Errorf(types.ErrKindNotFound, "physmem: %#x+%#x outside window", addr, length)
	}
	return a.data[off : off+length : off+length], nil
}

// Protection returns the access applied to the page containing addr.
func (a *Arena) Protection(addr uint64) (Access, bool) {
	off, ok := a.offset(addr, 1)
	if !ok {
		return 0, false
	}
	return a.access[off>>format.PageShift], true
}

// Protect applies access to the pages of [addr, addr+length) that fall
// inside the window. Parts outside are ignored.
func (a *Arena) Protect(addr, length uint64, access Access) error {
	if a.data == nil {
		return types.Errorf(types.ErrKindUnsupported, "physmem: arena closed")
	}
	start := max(addr, a.base)
	end, ok := format.End(addr, length)
	if !ok {
		end = ^uint64(0)
	}
	end = min(end, a.base+a.Len())
	if start >= end {
		return nil
	}
	start = format.AlignDown(start, format.PageSize)
	end = format.AlignUp(end, format.PageSize)

	lo, hi := start-a.base, end-a.base
	if err := protect(a.data[lo:hi], access); err != nil {
		return types.Wrap(types.ErrKindUnsupported, err, "physmem: protect %#x-%#x %s", start, end, access)
	}
	for p := lo >> format.PageShift; p < hi>>format.PageShift; p++ {
		a.access[p] = access
	}
	return nil
}

// Close releases the host memory. Closing twice is a no-op.
func (a *Arena) Close() error {
	if a.data == nil {
		return nil
	}
	data := a.data
	a.data = nil
	return a.unmap(data)
}

func (a *Arena) offset(addr, length uint64) (uint64, bool) {
	if a.data == nil || addr < a.base {
		return 0, false
	}
	off := addr - a.base
	if off > a.Len() || length > a.Len()-off {
		return 0, false
	}
	return off, true
}
