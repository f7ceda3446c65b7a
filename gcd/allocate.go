package gcd

import (
	"github.com/joshuapare/dxemem/internal/format"
	"github.com/joshuapare/dxemem/pkg/types"
)

type placementMode uint8

const (
	placeAny placementMode = iota
	placeAt
	placeMax
)

// Placement selects where Allocate puts a range. The zero value is
// AnyAddress.
type Placement struct {
	mode placementMode
	addr uint64
}

// AnyAddress places the range at the lowest fitting address.
func AnyAddress() Placement { return Placement{mode: placeAny} }

// AtAddress places the range exactly at base.
func AtAddress(base uint64) Placement { return Placement{mode: placeAt, addr: base} }

// MaxAddress places the range as high as possible with its last byte at or
// below bound.
func MaxAddress(bound uint64) Placement { return Placement{mode: placeMax, addr: bound} }

// IsAny reports whether p is AnyAddress.
func (p Placement) IsAny() bool { return p.mode == placeAny }

func (p Placement) String() string {
	switch p.mode {
	case placeAt:
		return "at " + hex(p.addr)
	case placeMax:
		return "max " + hex(p.addr)
	default:
		return "any"
	}
}

// Request describes an allocation.
type Request struct {
	Length     uint64
	Alignment  uint64 // power of two; zero selects the space granularity
	MemoryType types.MemoryType
	Placement  Placement
	Owner      types.Owner
	Kind       Kind // region kind to allocate from; zero selects SystemMemory
}

// Allocate claims a range described by req and returns it. The chosen
// region is split so exactly the returned range is tagged with the request's
// memory type and owner.
func (d *Domain) Allocate(req Request) (Range, error) {
	var out Range
	err := d.mutate("allocate", ChangeAllocate, func() (Range, error) {
		r, err := d.allocate(req)
		out = r
		return r, err
	})
	return out, err
}

func (d *Domain) allocate(req Request) (Range, error) {
	kind := req.Kind
	if kind == NonExistent {
		kind = SystemMemory
	}
	s := d.spaceFor(kind)

	if req.Length == 0 || req.Length%s.gran != 0 {
		return Range{}, types.Errorf(types.ErrKindInvalidParameter, "gcd: length %#x not a non-zero multiple of %#x", req.Length, s.gran)
	}
	align := req.Alignment
	if align == 0 {
		align = s.gran
	}
	if !format.IsPowerOfTwo(align) || align < s.gran {
		return Range{}, types.Errorf(types.ErrKindInvalidParameter, "gcd: alignment %#x invalid", align)
	}
	if req.Owner.Agent == 0 {
		return Range{}, types.Errorf(types.ErrKindInvalidParameter, "gcd: allocation requires an owner")
	}
	mt := req.MemoryType
	if kind.IsIO() {
		mt = types.NoMemoryType
	} else if mt == types.NoMemoryType {
		return Range{}, types.Errorf(types.ErrKindInvalidParameter, "gcd: memory allocation requires a memory type")
	}

	// Page zero stays unmapped unless asked for explicitly.
	guard := !kind.IsIO()

	var (
		base uint64
		err  error
	)
	switch req.Placement.mode {
	case placeAt:
		base, err = findAt(s, kind, req.Placement.addr, req.Length, align)
	case placeMax:
		base, err = findMax(s, kind, req.Owner, req.Placement.addr, req.Length, align, guard)
	default:
		base, err = findAny(s, kind, req.Owner, req.Length, align, guard)
	}
	if err != nil {
		return Range{}, err
	}

	end := base + req.Length
	for _, r := range s.isolate(base, end) {
		r.State = Allocated
		r.MemoryType = mt
		r.Owner = req.Owner
		s.put(r)
	}
	s.coalesce(base, end)

	d.stats.Allocations++
	d.log.Debug("gcd allocate",
		"base", base, "length", req.Length, "kind", kind, "type", mt,
		"placement", req.Placement, "owner", req.Owner)
	return Range{Base: base, Length: req.Length}, nil
}

func findAt(s *space, kind Kind, base, length, align uint64) (uint64, error) {
	if base%s.gran != 0 {
		return 0, types.Errorf(types.ErrKindInvalidParameter, "gcd: address %#x not %#x-aligned", base, s.gran)
	}
	if base%align != 0 {
		return 0, types.Errorf(types.ErrKindNotFound, "gcd: address %#x does not satisfy alignment %#x", base, align)
	}
	end, ok := format.End(base, length)
	if !ok || end > s.limit {
		return 0, types.Errorf(types.ErrKindNotFound, "gcd: %s beyond space limit", Range{base, length})
	}
	for _, r := range s.overlapping(base, end) {
		if r.Kind != kind || r.State != Free {
			return 0, types.Errorf(types.ErrKindNotFound, "gcd: %s is not free %s", r.Range(), kind)
		}
	}
	return base, nil
}

// candidate reports whether r may be searched on the given pass: owned
// regions first, then unowned ones.
func candidate(r Region, kind Kind, owner types.Owner, ownedPass bool) bool {
	if r.Kind != kind || r.State != Free {
		return false
	}
	if ownedPass {
		return r.OwnedBy(owner)
	}
	return r.Owner.IsZero()
}

func findAny(s *space, kind Kind, owner types.Owner, length, align uint64, guard bool) (uint64, error) {
	for _, ownedPass := range []bool{true, false} {
		var (
			base  uint64
			found bool
		)
		s.ascend(func(r Region) bool {
			if !candidate(r, kind, owner, ownedPass) {
				return true
			}
			base, found = fitLow(r, length, align, guard)
			return !found
		})
		if found {
			return base, nil
		}
	}
	return 0, types.Errorf(types.ErrKindOutOfResources, "gcd: no free %s range of %#x bytes", kind, length)
}

func findMax(s *space, kind Kind, owner types.Owner, bound, length, align uint64, guard bool) (uint64, error) {
	limit := s.limit
	if bound < limit-1 {
		limit = bound + 1
	}
	if limit < length {
		return 0, types.Errorf(types.ErrKindNotFound, "gcd: no %#x-byte range fits below %#x", length, bound)
	}

	for _, ownedPass := range []bool{true, false} {
		var (
			base  uint64
			found bool
		)
		s.descend(func(r Region) bool {
			if r.Start >= limit || !candidate(r, kind, owner, ownedPass) {
				return true
			}
			base, found = fitHigh(r, length, align, limit, guard)
			return !found
		})
		if found {
			return base, nil
		}
	}
	if limit < s.limit {
		return 0, types.Errorf(types.ErrKindNotFound, "gcd: no free %s range of %#x bytes below %#x", kind, length, bound)
	}
	return 0, types.Errorf(types.ErrKindOutOfResources, "gcd: no free %s range of %#x bytes", kind, length)
}

// fitLow returns the lowest aligned base in r that fits length bytes.
func fitLow(r Region, length, align uint64, guard bool) (uint64, bool) {
	start, ok := format.AlignUpChecked(r.Start, align)
	if !ok {
		return 0, false
	}
	if guard && start == 0 {
		start = format.AlignUp(format.PageSize, align)
	}
	end, ok := format.End(start, length)
	return start, ok && end <= r.End()
}

// fitHigh returns the highest aligned base in r that fits length bytes and
// ends at or below limit.
func fitHigh(r Region, length, align, limit uint64, guard bool) (uint64, bool) {
	top := min(r.End(), limit)
	if top <= r.Start || top-r.Start < length {
		return 0, false
	}
	start := format.AlignDown(top-length, align)
	if start < r.Start || (guard && start == 0) {
		return 0, false
	}
	return start, true
}
