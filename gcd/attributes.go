package gcd

import (
	"fmt"

	"github.com/joshuapare/dxemem/pkg/types"
)

// Pager applies attributes to the translation tables covering a range.
// Apply is called with the Domain lock held and must not call back into it.
type Pager interface {
	Apply(base, length uint64, attrs types.Attributes) error
}

// PagerFunc adapts a function to Pager.
type PagerFunc func(base, length uint64, attrs types.Attributes) error

// Apply calls f.
func (f PagerFunc) Apply(base, length uint64, attrs types.Attributes) error {
	return f(base, length, attrs)
}

// enforced is the set of bits a region's capabilities must cover.
const enforced = types.CacheMask | types.AccessMask

// SetAttributes replaces the access bits of every region in the range with
// access and, unless caching is types.CacheUnchanged, the cache bits with
// caching. Partially covered regions are split first. Once recorded, the
// new attributes are handed to the Pager region by region; if it fails, the
// map is restored and the error returned.
func (d *Domain) SetAttributes(base, length uint64, access, caching types.Attributes) error {
	return d.mutate("set attributes", ChangeAttributes, func() (Range, error) {
		s := d.memory
		end, err := checkRange(s, base, length)
		if err != nil {
			return Range{}, err
		}
		if access&^types.AccessMask != 0 || caching&^types.CacheMask != 0 {
			return Range{}, types.Errorf(types.ErrKindInvalidParameter,
				"gcd: access %s / caching %s out of mask", access, caching)
		}

		for _, r := range s.overlapping(base, end) {
			if r.Kind == NonExistent {
				return Range{}, types.Errorf(types.ErrKindNotFound, "gcd: %s is not tracked", r.Range())
			}
			want := r.Attributes.WithAccess(access).WithCache(caching)
			if missing := want & enforced &^ r.Capabilities; missing != 0 {
				return Range{}, types.Errorf(types.ErrKindUnsupported,
					"gcd: %s lacks capability %s", r.Range(), missing)
			}
		}

		saved := s.clone()
		for _, r := range s.isolate(base, end) {
			r.Attributes = r.Attributes.WithAccess(access).WithCache(caching)
			s.put(r)
		}
		s.coalesce(base, end)

		if err := d.applyPager(s, saved, base, end); err != nil {
			return Range{}, err
		}

		d.stats.AttributeSets++
		d.log.Debug("gcd set attributes", "base", base, "length", length, "access", access, "caching", caching)
		return Range{base, length}, nil
	})
}

// applyPager pushes the recorded attributes of [base, end) to the pager. On
// failure it restores saved and re-applies the old attributes to whatever
// was already changed.
func (d *Domain) applyPager(s *space, saved *regionTree, base, end uint64) error {
	if d.pager == nil {
		return nil
	}
	done := make([]Range, 0, 4)
	for _, r := range s.overlapping(base, end) {
		piece := clip(r.Range(), base, end)
		if err := d.pager.Apply(piece.Base, piece.Length, r.Attributes); err != nil {
			d.rollback(s, saved, done)
			return types.Wrap(types.ErrKindUnsupported, err, "gcd: pager rejected %s", piece)
		}
		done = append(done, piece)
	}
	return nil
}

func (d *Domain) rollback(s *space, saved *regionTree, done []Range) {
	s.restore(saved)
	for _, piece := range done {
		for _, r := range s.overlapping(piece.Base, piece.End()) {
			p := clip(r.Range(), piece.Base, piece.End())
			if err := d.pager.Apply(p.Base, p.Length, r.Attributes); err != nil {
				d.log.Error("gcd pager rollback failed", "range", p.String(), "err", err)
			}
		}
	}
}

func clip(r Range, base, end uint64) Range {
	lo := max(r.Base, base)
	hi := min(r.End(), end)
	return Range{Base: lo, Length: hi - lo}
}

// GetAttributes returns the attributes of the range. Every region in the
// range must carry the same attributes.
func (d *Domain) GetAttributes(base, length uint64) (types.Attributes, error) {
	g := d.mu.Acquire()
	defer g.Release()

	s := d.memory
	end, err := checkRange(s, base, length)
	if err != nil {
		return 0, err
	}
	regions := s.overlapping(base, end)
	for _, r := range regions {
		if r.Kind == NonExistent {
			return 0, types.Errorf(types.ErrKindNotFound, "gcd: %s is not tracked", r.Range())
		}
		if r.Attributes != regions[0].Attributes {
			return 0, types.Errorf(types.ErrKindInvalidParameter,
				"gcd: attributes differ across %s (%s vs %s)", Range{base, length}, regions[0].Attributes, r.Attributes)
		}
	}
	return regions[0].Attributes, nil
}

// SetCapabilities replaces the capabilities of every region in the range.
// The attributes currently set must remain supported.
func (d *Domain) SetCapabilities(base, length uint64, capabilities types.Attributes) error {
	return d.mutate("set capabilities", ChangeCapabilities, func() (Range, error) {
		s := d.memory
		end, err := checkRange(s, base, length)
		if err != nil {
			return Range{}, err
		}
		for _, r := range s.overlapping(base, end) {
			if r.Kind == NonExistent {
				return Range{}, types.Errorf(types.ErrKindNotFound, "gcd: %s is not tracked", r.Range())
			}
			if missing := r.Attributes &^ capabilities; missing != 0 {
				return Range{}, types.Errorf(types.ErrKindUnsupported,
					"gcd: %s has attribute %s outside new capabilities", r.Range(), missing)
			}
		}

		for _, r := range s.isolate(base, end) {
			r.Capabilities = capabilities
			s.put(r)
		}
		s.coalesce(base, end)

		d.log.Debug("gcd set capabilities", "base", base, "length", length, "caps", capabilities)
		return Range{base, length}, nil
	})
}

func hex(v uint64) string { return fmt.Sprintf("%#x", v) }
