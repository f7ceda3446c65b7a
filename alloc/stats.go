package alloc

// Stats counts allocator activity since construction. The counters are a
// snapshot; they do not change after Stats returns.
type Stats struct {
	PoolAllocCalls uint64 // successful Allocate/AllocateAligned calls
	PoolFreeCalls  uint64 // successful Free calls
	PageAllocCalls uint64 // successful AllocatePages calls
	PageFreeCalls  uint64 // successful FreePages calls
	GCDAllocCalls  uint64 // page allocations requested from the GCD
	GCDFreeCalls   uint64 // page ranges returned to the GCD
	ExpansionCalls uint64 // pool expansions (bucket or GCD backed)
	FastPathHits   uint64 // allocations served from a class list
	FallbackHits   uint64 // allocations served from the fallback list
	SplitCount     uint64 // fallback blocks split on allocation
	CoalesceCount  uint64 // frees that merged with a free neighbour

	ReservedSize uint64 // bytes of pool memory obtained by expansion
	ReservedUsed uint64 // bytes of pool memory currently handed out
	ClaimedPages uint64 // pages currently claimed from the GCD
	BucketPages  uint64 // size of the bucket in pages (zero when unseeded)
	BucketFree   uint64 // bucket pages not currently in use
}

// FreeListState is a structural copy of an allocator's free lists. Two
// states are deeply equal exactly when the allocator held the same free
// blocks in the same list positions.
type FreeListState struct {
	ClassSizes []uint64  // block size of each class
	Classes    [][]Block // per class, head first
	Fallback   []Block   // address order
}

// FreeBytes returns the total size of all free blocks.
func (s FreeListState) FreeBytes() uint64 {
	var n uint64
	for _, list := range s.Classes {
		for _, b := range list {
			n += b.Size
		}
	}
	for _, b := range s.Fallback {
		n += b.Size
	}
	return n
}
