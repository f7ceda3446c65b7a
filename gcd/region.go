package gcd

import (
	"fmt"

	"github.com/joshuapare/dxemem/pkg/types"
)

// Range is a half-open span [Base, Base+Length).
type Range struct {
	Base   uint64
	Length uint64
}

// End returns the first address past the range.
func (r Range) End() uint64 { return r.Base + r.Length }

// Contains reports whether addr lies within the range.
func (r Range) Contains(addr uint64) bool { return addr >= r.Base && addr-r.Base < r.Length }

func (r Range) String() string { return fmt.Sprintf("[%#x-%#x)", r.Base, r.End()) }

// Region is one node of a region map. Callers only ever see copies.
type Region struct {
	Start        uint64
	Length       uint64
	Kind         Kind
	MemoryType   types.MemoryType
	Capabilities types.Attributes
	Attributes   types.Attributes
	State        State
	Owner        types.Owner
}

// End returns the first address past the region.
func (r Region) End() uint64 { return r.Start + r.Length }

// Range returns the span covered by the region.
func (r Region) Range() Range { return Range{Base: r.Start, Length: r.Length} }

// Contains reports whether addr lies within the region.
func (r Region) Contains(addr uint64) bool { return addr >= r.Start && addr-r.Start < r.Length }

// OwnedBy reports whether the region's owning agent is o's agent. Device
// handles are informational and do not take part in ownership checks.
func (r Region) OwnedBy(o types.Owner) bool { return r.Owner.Agent == o.Agent }

func (r Region) String() string {
	return fmt.Sprintf("%s %-12s %-9s type=%s attrs=%s caps=%s owner=%s",
		r.Range(), r.Kind, r.State, r.MemoryType, r.Attributes, r.Capabilities, r.Owner)
}

// sameTraits reports whether r and n differ only in their boundaries.
func (r Region) sameTraits(n Region) bool {
	return r.Kind == n.Kind &&
		r.MemoryType == n.MemoryType &&
		r.Capabilities == n.Capabilities &&
		r.Attributes == n.Attributes &&
		r.State == n.State &&
		r.Owner == n.Owner
}

// mergeable reports whether n directly follows r and can be folded into it.
func (r Region) mergeable(n Region) bool {
	return r.End() == n.Start && r.sameTraits(n)
}

// split cuts r at addr, which must lie strictly inside it.
func (r Region) split(addr uint64) (lo, hi Region) {
	lo, hi = r, r
	lo.Length = addr - r.Start
	hi.Start = addr
	hi.Length = r.End() - addr
	return lo, hi
}
