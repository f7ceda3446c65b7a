package alloc

import "github.com/google/btree"

// Block is a free span of pool memory.
type Block struct {
	Addr uint64
	Size uint64
}

// End returns the first address past the block.
func (b Block) End() uint64 { return b.Addr + b.Size }

const nilIdx int32 = -1

// node is one entry of a class list. Nodes live in an arena and link to
// each other by index.
type node struct {
	block Block
	class int
	prev  int32
	next  int32
}

// classLists holds one LIFO list per size class. byStart and byEnd index
// every listed block so coalescing can find neighbours in O(1).
type classLists struct {
	nodes   []node
	spare   []int32 // recycled arena slots
	heads   []int32
	counts  []int
	byStart map[uint64]int32
	byEnd   map[uint64]int32
}

func newClassLists(numClasses int) *classLists {
	l := &classLists{
		heads:   make([]int32, numClasses),
		counts:  make([]int, numClasses),
		byStart: make(map[uint64]int32),
		byEnd:   make(map[uint64]int32),
	}
	for i := range l.heads {
		l.heads[i] = nilIdx
	}
	return l
}

// push puts b at the head of class.
func (l *classLists) push(class int, b Block) {
	var idx int32
	if n := len(l.spare); n > 0 {
		idx = l.spare[n-1]
		l.spare = l.spare[:n-1]
	} else {
		idx = int32(len(l.nodes))
		l.nodes = append(l.nodes, node{})
	}

	head := l.heads[class]
	l.nodes[idx] = node{block: b, class: class, prev: nilIdx, next: head}
	if head != nilIdx {
		l.nodes[head].prev = idx
	}
	l.heads[class] = idx
	l.counts[class]++
	l.byStart[b.Addr] = idx
	l.byEnd[b.End()] = idx
}

// peek returns the head of class without unlinking it.
func (l *classLists) peek(class int) (Block, bool) {
	idx := l.heads[class]
	if idx == nilIdx {
		return Block{}, false
	}
	return l.nodes[idx].block, true
}

// pop unlinks and returns the head of class.
func (l *classLists) pop(class int) (Block, bool) {
	idx := l.heads[class]
	if idx == nilIdx {
		return Block{}, false
	}
	return l.remove(idx), true
}

// remove unlinks the node at idx from whichever list holds it.
func (l *classLists) remove(idx int32) Block {
	n := l.nodes[idx]
	if n.prev != nilIdx {
		l.nodes[n.prev].next = n.next
	} else {
		l.heads[n.class] = n.next
	}
	if n.next != nilIdx {
		l.nodes[n.next].prev = n.prev
	}
	l.counts[n.class]--
	delete(l.byStart, n.block.Addr)
	delete(l.byEnd, n.block.End())

	l.nodes[idx] = node{prev: nilIdx, next: nilIdx}
	l.spare = append(l.spare, idx)
	return n.block
}

// takeStartingAt unlinks the listed block starting at addr, if any.
func (l *classLists) takeStartingAt(addr uint64) (Block, bool) {
	idx, ok := l.byStart[addr]
	if !ok {
		return Block{}, false
	}
	return l.remove(idx), true
}

// takeEndingAt unlinks the listed block ending at addr, if any.
func (l *classLists) takeEndingAt(addr uint64) (Block, bool) {
	idx, ok := l.byEnd[addr]
	if !ok {
		return Block{}, false
	}
	return l.remove(idx), true
}

// blocks returns the blocks of class from head to tail.
func (l *classLists) blocks(class int) []Block {
	out := make([]Block, 0, l.counts[class])
	for idx := l.heads[class]; idx != nilIdx; idx = l.nodes[idx].next {
		out = append(out, l.nodes[idx].block)
	}
	return out
}

func (l *classLists) count(class int) int { return l.counts[class] }

// ============================================================================
// Fallback list
// ============================================================================

func lessBlock(a, b Block) bool { return a.Addr < b.Addr }

// fallbackList holds free blocks of any size in address order.
type fallbackList struct {
	tree  *btree.BTreeG[Block]
	bytes uint64
}

func newFallbackList() *fallbackList {
	return &fallbackList{tree: btree.NewG[Block](16, lessBlock)}
}

func (f *fallbackList) insert(b Block) {
	f.tree.ReplaceOrInsert(b)
	f.bytes += b.Size
}

func (f *fallbackList) remove(b Block) {
	if old, ok := f.tree.Delete(b); ok {
		f.bytes -= old.Size
	}
}

// takeStartingAt removes the block starting at addr, if any.
func (f *fallbackList) takeStartingAt(addr uint64) (Block, bool) {
	b, ok := f.tree.Get(Block{Addr: addr})
	if !ok {
		return Block{}, false
	}
	f.remove(b)
	return b, true
}

// takeEndingAt removes the block ending exactly at addr, if any.
func (f *fallbackList) takeEndingAt(addr uint64) (Block, bool) {
	var (
		prev  Block
		found bool
	)
	f.tree.DescendLessOrEqual(Block{Addr: addr}, func(b Block) bool {
		prev, found = b, b.End() == addr
		return false
	})
	if !found {
		return Block{}, false
	}
	f.remove(prev)
	return prev, true
}

// firstFit returns the lowest-addressed block that holds size bytes at
// align, and the aligned start within it.
func (f *fallbackList) firstFit(size, align uint64) (Block, uint64, bool) {
	var (
		hit   Block
		start uint64
		found bool
	)
	f.tree.Ascend(func(b Block) bool {
		s := (b.Addr + align - 1) &^ (align - 1)
		if s >= b.Addr && s-b.Addr <= b.Size && b.Size-(s-b.Addr) >= size {
			hit, start, found = b, s, true
			return false
		}
		return true
	})
	return hit, start, found
}

// blocks returns every block in address order.
func (f *fallbackList) blocks() []Block {
	out := make([]Block, 0, f.tree.Len())
	f.tree.Ascend(func(b Block) bool {
		out = append(out, b)
		return true
	})
	return out
}

func (f *fallbackList) len() int { return f.tree.Len() }
