package alloc

import (
	"sort"

	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/internal/format"
)

// pageRun is a run of free bucket pages.
type pageRun struct {
	base  uint64
	pages uint64
}

func (r pageRun) end() uint64 { return r.base + format.PagesToBytes(r.pages) }

// bucket is a GCD range claimed once for an allocator and never returned.
// Its pages are handed out and taken back internally, so the GCD keeps
// reporting the whole range under the allocator's memory type.
type bucket struct {
	r    gcd.Range
	free []pageRun // sorted by base, never adjacent
}

func (b *bucket) seeded() bool { return b.r.Length != 0 }

func (b *bucket) seed(r gcd.Range) {
	b.r = r
	b.free = []pageRun{{base: r.Base, pages: r.Length >> format.PageShift}}
}

// contains reports whether [base, base+pages) lies inside the bucket.
func (b *bucket) contains(base, pages uint64) bool {
	if !b.seeded() {
		return false
	}
	end := base + format.PagesToBytes(pages)
	return base >= b.r.Base && end <= b.r.End() && end > base
}

// take carves between need and want pages from the first run holding at
// least need pages.
func (b *bucket) take(need, want uint64) (uint64, uint64, bool) {
	for i, run := range b.free {
		if run.pages < need {
			continue
		}
		n := min(want, run.pages)
		base := run.base
		if n == run.pages {
			b.free = append(b.free[:i], b.free[i+1:]...)
		} else {
			b.free[i] = pageRun{base: run.base + format.PagesToBytes(n), pages: run.pages - n}
		}
		return base, n, true
	}
	return 0, 0, false
}

// put returns pages to the bucket, merging with neighbouring runs.
func (b *bucket) put(base, pages uint64) {
	run := pageRun{base: base, pages: pages}
	i := sort.Search(len(b.free), func(i int) bool { return b.free[i].base > base })

	if i > 0 && b.free[i-1].end() == run.base {
		run.base = b.free[i-1].base
		run.pages += b.free[i-1].pages
		i--
		b.free = append(b.free[:i], b.free[i+1:]...)
	}
	if i < len(b.free) && run.end() == b.free[i].base {
		run.pages += b.free[i].pages
		b.free = append(b.free[:i], b.free[i+1:]...)
	}

	b.free = append(b.free, pageRun{})
	copy(b.free[i+1:], b.free[i:])
	b.free[i] = run
}

// freePages returns the number of pages available in the bucket.
func (b *bucket) freePages() uint64 {
	var n uint64
	for _, run := range b.free {
		n += run.pages
	}
	return n
}
