package alloc

import (
	"log/slog"
	"sort"

	"github.com/joshuapare/dxemem/gcd"
	"github.com/joshuapare/dxemem/internal/format"
	"github.com/joshuapare/dxemem/internal/logger"
	"github.com/joshuapare/dxemem/pkg/types"
	"github.com/joshuapare/dxemem/tpl"
)

const (
	// DefaultMinExpansion is the smallest pool expansion requested from the
	// GCD when the free lists cannot satisfy a request.
	DefaultMinExpansion = 0x10_0000

	// LockLevel is the priority ceiling of an allocator lock. It sits below
	// the GCD ceiling so an allocator may call into the GCD while held.
	LockLevel = tpl.Notify

	// maxPoolRequest bounds pool requests so rounding cannot overflow.
	maxPoolRequest = 1 << 48

	// handleBase tags the owner handles of allocators created without an
	// explicit Owner.
	handleBase types.Handle = 0xA110_C000_0000_0000
)

// Options configures a TypedAllocator. The zero value is usable.
type Options struct {
	// Controller must be the controller the GCD was built with when both
	// run on the same logical thread. Default: a private tpl.Machine.
	Controller tpl.Controller

	// SizeClasses selects the pool size classes. Default: DefaultConfig.
	SizeClasses *SizeClassConfig

	// MinExpansion is the smallest pool expansion in bytes.
	// Default: DefaultMinExpansion.
	MinExpansion uint64

	// Owner is the handle recorded on every GCD range this allocator
	// claims. Default: derived from the memory type.
	Owner types.Handle

	// Logger receives debug records for expansions and page traffic.
	// Default: logger.L.
	Logger *slog.Logger
}

// DefaultHandle returns the owner handle an allocator for mt uses when no
// Owner is configured.
func DefaultHandle(mt types.MemoryType) types.Handle {
	return handleBase | types.Handle(mt)
}

// inUse records a handed-out pool block.
type inUse struct {
	rounded uint64 // request size after rounding, checked on Free
	block   uint64 // size of the block actually handed out
	whole   bool   // the block was an entire fallback block
}

// pageAlloc records an outstanding AllocatePages result.
type pageAlloc struct {
	pages      uint64
	fromBucket bool
}

// TypedAllocator is the pool and page allocator for one memory type. Every
// byte it hands out is backed by GCD pages tagged with its memory type and
// owned by its handle.
type TypedAllocator struct {
	mu      *tpl.Mutex
	domain  *gcd.Domain
	memType types.MemoryType
	owner   types.Owner
	log     *slog.Logger

	table        *sizeClassTable
	classes      *classLists
	fallback     *fallbackList
	used         map[uint64]inUse
	minExpansion uint64

	bucket bucket
	heap   []gcd.Range // pool expansions claimed directly from the GCD
	pages  map[uint64]pageAlloc

	stats Stats
}

// New returns an allocator for mt backed by domain.
func New(domain *gcd.Domain, mt types.MemoryType, opts Options) (*TypedAllocator, error) {
	if domain == nil {
		return nil, invalidf("nil GCD")
	}
	if !mt.Allocatable() {
		return nil, invalidf("memory type %s is not allocatable", mt)
	}

	config := opts.SizeClasses
	if config == nil {
		config = &DefaultConfig
	}
	table := newSizeClassTable(*config)
	if table.NumClasses() == 0 {
		return nil, invalidf("size class config %q yields no classes", config.Name)
	}

	ctl := opts.Controller
	if ctl == nil {
		ctl = tpl.NewMachine()
	}
	handle := opts.Owner
	if handle == 0 {
		handle = DefaultHandle(mt)
	}
	minExp := opts.MinExpansion
	if minExp == 0 {
		minExp = DefaultMinExpansion
	}

	return &TypedAllocator{
		mu:           tpl.NewMutex(ctl, LockLevel, "alloc "+mt.String()),
		domain:       domain,
		memType:      mt,
		owner:        types.Owner{Agent: handle},
		log:          logger.Or(opts.Logger).With("type", mt.String()),
		table:        table,
		classes:      newClassLists(table.NumClasses()),
		fallback:     newFallbackList(),
		used:         make(map[uint64]inUse),
		minExpansion: format.AlignUp(minExp, format.PageSize),
		pages:        make(map[uint64]pageAlloc),
	}, nil
}

// MemoryType returns the memory type this allocator tags its ranges with.
func (a *TypedAllocator) MemoryType() types.MemoryType { return a.memType }

// Owner returns the owner recorded on this allocator's GCD ranges.
func (a *TypedAllocator) Owner() types.Owner { return a.owner }

// ============================================================================
// Pool
// ============================================================================

// Allocate returns an 8-byte aligned block of at least size bytes.
func (a *TypedAllocator) Allocate(size uint64) (uint64, error) {
	return a.AllocateAligned(size, format.MinBlockAlign)
}

// AllocateAligned returns a block of at least size bytes aligned to align,
// a power of two no larger than a page.
//
// Search order: the exact class list head, then the fallback list by
// address (splitting off any excess), then the head of the smallest larger
// non-empty class handed out whole. When all three miss, the pool expands
// once and the search is retried.
func (a *TypedAllocator) AllocateAligned(size, align uint64) (uint64, error) {
	if size == 0 {
		return 0, invalidf("zero-size allocation")
	}
	if align == 0 {
		align = format.MinBlockAlign
	}
	if !format.IsPowerOfTwo(align) || align > format.PageSize {
		return 0, invalidf("alignment %#x not a power of two up to a page", align)
	}
	align = max(align, format.MinBlockAlign)
	if size > maxPoolRequest {
		return 0, exhausted(nil, "request of %#x bytes exceeds pool limit", size)
	}

	g := a.mu.Acquire()
	defer g.Release()

	rounded, class := a.table.round(size)
	addr, ok := a.take(rounded, class, align)
	if !ok {
		if err := a.expand(rounded + align - format.MinBlockAlign); err != nil {
			return 0, err
		}
		if addr, ok = a.take(rounded, class, align); !ok {
			return 0, exhausted(nil, "no block of %#x bytes after expansion", rounded)
		}
	}

	a.stats.PoolAllocCalls++
	return addr, nil
}

// take serves one request from the free lists. It does not expand.
func (a *TypedAllocator) take(rounded uint64, class int, align uint64) (uint64, bool) {
	n := a.table.NumClasses()

	if class < n {
		if b, ok := a.classes.peek(class); ok && format.IsAligned(b.Addr, align) {
			a.classes.pop(class)
			a.hand(b.Addr, inUse{rounded: rounded, block: b.Size})
			a.stats.FastPathHits++
			return b.Addr, true
		}
	}

	if b, start, ok := a.fallback.firstFit(rounded, align); ok {
		a.fallback.remove(b)
		end := start + rounded
		if start > b.Addr {
			a.fallback.insert(Block{Addr: b.Addr, Size: start - b.Addr})
			a.stats.SplitCount++
		}
		if end < b.End() {
			a.fallback.insert(Block{Addr: end, Size: b.End() - end})
			a.stats.SplitCount++
		}
		whole := start == b.Addr && end == b.End()
		a.hand(start, inUse{rounded: rounded, block: rounded, whole: whole})
		a.stats.FallbackHits++
		return start, true
	}

	for c := class + 1; c < n; c++ {
		if b, ok := a.classes.peek(c); ok && format.IsAligned(b.Addr, align) {
			a.classes.pop(c)
			a.hand(b.Addr, inUse{rounded: rounded, block: b.Size})
			a.stats.FastPathHits++
			return b.Addr, true
		}
	}
	return 0, false
}

func (a *TypedAllocator) hand(addr uint64, u inUse) {
	a.used[addr] = u
	a.stats.ReservedUsed += u.block
}

// Free returns a block obtained from Allocate. size must round to the same
// block size as the original request.
//
// A block with no free neighbour whose size is exactly a class size goes
// back on its class list, unless it was an entire fallback block. Anything
// else merges with its free neighbours into the fallback list.
func (a *TypedAllocator) Free(addr, size uint64) error {
	g := a.mu.Acquire()
	defer g.Release()

	u, ok := a.used[addr]
	if !ok {
		return notFoundf("%#x was not allocated from the %s pool", addr, a.memType)
	}
	if size == 0 || size > maxPoolRequest {
		return invalidf("free of %#x with size %#x", addr, size)
	}
	if rounded, _ := a.table.round(size); rounded != u.rounded {
		return invalidf("free of %#x with size %#x, allocated as %#x", addr, size, u.rounded)
	}

	delete(a.used, addr)
	a.stats.ReservedUsed -= u.block
	a.stats.PoolFreeCalls++

	_, exact := a.table.exact(u.block)
	a.release(Block{Addr: addr, Size: u.block}, exact && !u.whole)
	return nil
}

// release adds b to the free lists, merging it with any free neighbour.
// toClass allows an unmerged block to go on its class list.
func (a *TypedAllocator) release(b Block, toClass bool) {
	merged := false
	if prev, ok := a.takeFreeEndingAt(b.Addr); ok {
		b = Block{Addr: prev.Addr, Size: prev.Size + b.Size}
		merged = true
	}
	if next, ok := a.takeFreeStartingAt(b.End()); ok {
		b.Size += next.Size
		merged = true
	}
	if merged {
		a.stats.CoalesceCount++
	}

	if !merged && toClass {
		class, _ := a.table.exact(b.Size)
		a.classes.push(class, b)
		return
	}
	a.fallback.insert(b)
}

func (a *TypedAllocator) takeFreeEndingAt(addr uint64) (Block, bool) {
	if b, ok := a.classes.takeEndingAt(addr); ok {
		return b, true
	}
	return a.fallback.takeEndingAt(addr)
}

func (a *TypedAllocator) takeFreeStartingAt(addr uint64) (Block, bool) {
	if b, ok := a.classes.takeStartingAt(addr); ok {
		return b, true
	}
	return a.fallback.takeStartingAt(addr)
}

// expand adds at least need bytes of fresh pages to the fallback list.
// The bucket supplies exactly the pages needed, so pool growth leaves the
// rest of it for page requests. GCD expansions are rounded up to
// MinExpansion.
func (a *TypedAllocator) expand(need uint64) error {
	needPages := format.PagesFor(need)
	wantPages := max(needPages, a.minExpansion>>format.PageShift)
	a.stats.ExpansionCalls++

	if base, n, ok := a.bucket.take(needPages, needPages); ok {
		a.addPool(base, format.PagesToBytes(n))
		a.log.Debug("pool expanded from bucket", "base", base, "pages", n)
		return nil
	}

	r, err := a.claim(gcd.Request{Length: format.PagesToBytes(wantPages)})
	if err != nil && wantPages > needPages {
		r, err = a.claim(gcd.Request{Length: format.PagesToBytes(needPages)})
	}
	if err != nil {
		return exhausted(err, "expanding %s pool by %d pages", a.memType, needPages)
	}
	a.heap = append(a.heap, r)
	a.addPool(r.Base, r.Length)
	a.log.Debug("pool expanded from gcd", "base", r.Base, "pages", r.Length>>format.PageShift)
	return nil
}

func (a *TypedAllocator) addPool(base, length uint64) {
	a.stats.ReservedSize += length
	a.release(Block{Addr: base, Size: length}, false)
}

// claim allocates pages from the GCD under this allocator's type and owner.
func (a *TypedAllocator) claim(req gcd.Request) (gcd.Range, error) {
	req.MemoryType = a.memType
	req.Owner = a.owner
	r, err := a.domain.Allocate(req)
	if err != nil {
		return gcd.Range{}, err
	}
	a.stats.GCDAllocCalls++
	a.stats.ClaimedPages += r.Length >> format.PageShift
	return r, nil
}

// Reserve expands the pool once so that at least bytes of small
// allocations can be served without touching the GCD.
func (a *TypedAllocator) Reserve(bytes uint64) error {
	if bytes == 0 {
		return invalidf("zero-size reservation")
	}
	g := a.mu.Acquire()
	defer g.Release()
	return a.expand(bytes)
}

// ============================================================================
// Bucket
// ============================================================================

// SeedBucket claims minPages from the GCD as this allocator's bucket. The
// bucket stays allocated under this allocator's memory type for the rest
// of execution; pool expansions and page requests draw from it first.
// It must be called before the allocator serves any request; ranges
// recorded with AdoptPages do not count.
func (a *TypedAllocator) SeedBucket(minPages uint64) error {
	if minPages == 0 {
		return invalidf("empty bucket")
	}
	g := a.mu.Acquire()
	defer g.Release()

	if a.bucket.seeded() {
		return types.Errorf(types.ErrKindAlreadyStarted, "alloc: %s bucket already seeded", a.memType)
	}
	if a.stats.ExpansionCalls != 0 || a.stats.PageAllocCalls != 0 || len(a.used) != 0 {
		return types.Errorf(types.ErrKindAlreadyStarted, "alloc: %s allocator already in use", a.memType)
	}

	r, err := a.claim(gcd.Request{Length: format.PagesToBytes(minPages)})
	if err != nil {
		return err
	}
	a.bucket.seed(r)
	a.log.Debug("bucket seeded", "base", r.Base, "pages", minPages)
	return nil
}

// ============================================================================
// Introspection
// ============================================================================

// Stats returns a snapshot of the activity counters.
func (a *TypedAllocator) Stats() Stats {
	g := a.mu.Acquire()
	defer g.Release()
	s := a.stats
	s.BucketPages = a.bucket.r.Length >> format.PageShift
	s.BucketFree = a.bucket.freePages()
	return s
}

// FreeListState returns a structural copy of the free lists.
func (a *TypedAllocator) FreeListState() FreeListState {
	g := a.mu.Acquire()
	defer g.Release()

	n := a.table.NumClasses()
	st := FreeListState{
		ClassSizes: append([]uint64(nil), a.table.sizes...),
		Classes:    make([][]Block, n),
		Fallback:   a.fallback.blocks(),
	}
	for c := 0; c < n; c++ {
		st.Classes[c] = a.classes.blocks(c)
	}
	return st
}

// Ranges returns every GCD range this allocator currently holds, in
// address order: its bucket, direct pool expansions and outstanding pages
// that did not come from the bucket.
func (a *TypedAllocator) Ranges() []gcd.Range {
	g := a.mu.Acquire()
	defer g.Release()
	return a.ranges()
}

func (a *TypedAllocator) ranges() []gcd.Range {
	out := make([]gcd.Range, 0, len(a.heap)+len(a.pages)+1)
	if a.bucket.seeded() {
		out = append(out, a.bucket.r)
	}
	out = append(out, a.heap...)
	for base, p := range a.pages {
		if !p.fromBucket {
			out = append(out, gcd.Range{Base: base, Length: format.PagesToBytes(p.pages)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Base < out[j].Base })
	return out
}

// Contains reports whether addr lies in memory held by this allocator.
func (a *TypedAllocator) Contains(addr uint64) bool {
	g := a.mu.Acquire()
	defer g.Release()
	for _, r := range a.ranges() {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}
