package gcd

import (
	"github.com/google/btree"

	"github.com/joshuapare/dxemem/pkg/types"
)

const btreeDegree = 16

func lessRegion(a, b Region) bool { return a.Start < b.Start }

type regionTree = btree.BTreeG[Region]

// space is one region map. The tree is keyed by region start; regions are
// replaced wholesale, never mutated in place.
type space struct {
	tree  *regionTree
	limit uint64 // exclusive end of the space
	gran  uint64 // base/length granularity
}

func newSpace(limit, gran uint64) *space {
	s := &space{
		tree:  btree.NewG[Region](btreeDegree, lessRegion),
		limit: limit,
		gran:  gran,
	}
	s.tree.ReplaceOrInsert(Region{Start: 0, Length: limit, Kind: NonExistent, MemoryType: types.NoMemoryType})
	return s
}

// clone returns a copy-on-write snapshot used to roll back a failed mutation.
func (s *space) clone() *regionTree { return s.tree.Clone() }

func (s *space) restore(t *regionTree) { s.tree = t }

func (s *space) len() int { return s.tree.Len() }

// at returns the region containing addr.
func (s *space) at(addr uint64) (Region, bool) {
	var out Region
	found := false
	s.tree.DescendLessOrEqual(Region{Start: addr}, func(r Region) bool {
		out, found = r, true
		return false
	})
	if !found || !out.Contains(addr) {
		return Region{}, false
	}
	return out, true
}

// overlapping returns the regions intersecting [base, end) in address order.
func (s *space) overlapping(base, end uint64) []Region {
	first, ok := s.at(base)
	if !ok {
		return nil
	}
	var out []Region
	s.tree.AscendGreaterOrEqual(Region{Start: first.Start}, func(r Region) bool {
		if r.Start >= end {
			return false
		}
		out = append(out, r)
		return true
	})
	return out
}

// splitAt makes addr a region boundary.
func (s *space) splitAt(addr uint64) {
	if addr == 0 || addr >= s.limit {
		return
	}
	r, ok := s.at(addr)
	if !ok || r.Start == addr {
		return
	}
	lo, hi := r.split(addr)
	s.tree.ReplaceOrInsert(lo)
	s.tree.ReplaceOrInsert(hi)
}

// isolate splits the regions at base and end and returns the regions that
// now lie exactly within [base, end).
func (s *space) isolate(base, end uint64) []Region {
	s.splitAt(base)
	s.splitAt(end)
	return s.overlapping(base, end)
}

func (s *space) put(r Region) { s.tree.ReplaceOrInsert(r) }

// coalesce merges identical neighbours from the region before base through
// the region at end.
func (s *space) coalesce(base, end uint64) {
	lo := base
	if base > 0 {
		if prev, ok := s.at(base - 1); ok {
			lo = prev.Start
		}
	}
	hi := end
	if end < s.limit {
		if next, ok := s.at(end); ok {
			hi = next.End()
		}
	}

	regions := s.overlapping(lo, hi)
	if len(regions) < 2 {
		return
	}
	cur := regions[0]
	for _, next := range regions[1:] {
		if cur.mergeable(next) {
			s.tree.Delete(next)
			cur.Length += next.Length
			s.put(cur)
			continue
		}
		cur = next
	}
}

// regions returns a copy of every region in address order.
func (s *space) regions() []Region {
	out := make([]Region, 0, s.tree.Len())
	s.tree.Ascend(func(r Region) bool {
		out = append(out, r)
		return true
	})
	return out
}

// ascend visits regions in address order until fn returns false.
func (s *space) ascend(fn func(Region) bool) { s.tree.Ascend(btree.ItemIteratorG[Region](fn)) }

// descend visits regions in reverse address order until fn returns false.
func (s *space) descend(fn func(Region) bool) { s.tree.Descend(btree.ItemIteratorG[Region](fn)) }
