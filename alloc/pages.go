package alloc

import (
	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/internal/format"
)

// PageOption adjusts an AllocatePages request.
type PageOption func(*gcd.Request)

// WithPlacement selects where the pages go. Only AnyAddress requests are
// served from the bucket.
func WithPlacement(p gcd.Placement) PageOption {
	return func(r *gcd.Request) { r.Placement = p }
}

// WithAlignment requests an alignment larger than one page. Aligned
// requests bypass the bucket.
func WithAlignment(align uint64) PageOption {
	return func(r *gcd.Request) { r.Alignment = align }
}

// Pages is a claimed page range. Call Free when done with it, or Leak to
// keep it for the rest of execution.
type Pages struct {
	a     *TypedAllocator
	base  uint64
	count uint64
	done  bool
}

// Base returns the first address of the range.
func (p *Pages) Base() uint64 { return p.base }

// Count returns the number of pages.
func (p *Pages) Count() uint64 { return p.count }

// Range returns the claimed span.
func (p *Pages) Range() gcd.Range {
	return gcd.Range{Base: p.base, Length: format.PagesToBytes(p.count)}
}

// Free returns the pages to their allocator. Calling Free on a released or
// leaked range does nothing.
func (p *Pages) Free() error {
	if p == nil || p.done {
		return nil
	}
	if err := p.a.FreePages(p.base, p.count); err != nil {
		return err
	}
	p.done = true
	return nil
}

// Leak gives up the handle without freeing: the range stays allocated for
// the rest of execution and later Free calls do nothing.
func (p *Pages) Leak() gcd.Range {
	p.done = true
	return p.Range()
}

// AllocatePages claims count pages tagged with this allocator's memory type.
// AnyAddress requests are served from the bucket when it has room; the
// rest go to the GCD.
func (a *TypedAllocator) AllocatePages(count uint64, opts ...PageOption) (*Pages, error) {
	if count == 0 {
		return nil, invalidf("zero-page allocation")
	}
	if count > maxPoolRequest>>format.PageShift {
		return nil, exhausted(nil, "request of %d pages exceeds limit", count)
	}
	req := gcd.Request{Length: format.PagesToBytes(count)}
	for _, opt := range opts {
		opt(&req)
	}

	g := a.mu.Acquire()
	defer g.Release()

	if req.Placement.IsAny() && req.Alignment <= format.PageSize {
		if base, _, ok := a.bucket.take(count, count); ok {
			a.pages[base] = pageAlloc{pages: count, fromBucket: true}
			a.stats.PageAllocCalls++
			a.log.Debug("pages from bucket", "base", base, "pages", count)
			return &Pages{a: a, base: base, count: count}, nil
		}
	}

	r, err := a.claim(req)
	if err != nil {
		return nil, err
	}
	a.pages[r.Base] = pageAlloc{pages: count}
	a.stats.PageAllocCalls++
	a.log.Debug("pages from gcd", "base", r.Base, "pages", count, "placement", req.Placement)
	return &Pages{a: a, base: r.Base, count: count}, nil
}

// AdoptPages claims count pages at exactly base for a range that was in
// use before this allocator existed. The range is tracked like an
// AllocatePages result, so FreePages can release it later.
func (a *TypedAllocator) AdoptPages(base, count uint64) (*Pages, error) {
	if count == 0 || count > maxPoolRequest>>format.PageShift {
		return nil, invalidf("adoption of %d pages", count)
	}
	g := a.mu.Acquire()
	defer g.Release()

	r, err := a.claim(gcd.Request{Length: format.PagesToBytes(count), Placement: gcd.AtAddress(base)})
	if err != nil {
		return nil, err
	}
	a.pages[r.Base] = pageAlloc{pages: count}
	a.log.Debug("pages adopted", "base", r.Base, "pages", count)
	return &Pages{a: a, base: r.Base, count: count}, nil
}

// FreePages releases a range returned by AllocatePages. Bucket pages go
// back to the bucket and stay allocated in the GCD.
func (a *TypedAllocator) FreePages(base, count uint64) error {
	g := a.mu.Acquire()
	defer g.Release()

	p, ok := a.pages[base]
	if !ok {
		return notFoundf("%#x is not a %s page allocation", base, a.memType)
	}
	if count != p.pages {
		return invalidf("free of %d pages at %#x, allocated %d", count, base, p.pages)
	}

	if p.fromBucket {
		a.bucket.put(base, count)
	} else {
		if err := a.domain.Free(base, format.PagesToBytes(count), a.owner); err != nil {
			return err
		}
		a.stats.GCDFreeCalls++
		a.stats.ClaimedPages -= count
	}
	delete(a.pages, base)
	a.stats.PageFreeCalls++
	a.log.Debug("pages freed", "base", base, "pages", count, "bucket", p.fromBucket)
	return nil
}

// Outstanding returns the page allocations not yet freed, keyed by base.
func (a *TypedAllocator) Outstanding() map[uint64]uint64 {
	g := a.mu.Acquire()
	defer g.Release()
	out := make(map[uint64]uint64, len(a.pages))
	for base, p := range a.pages {
		out[base] = p.pages
	}
	return out
}
