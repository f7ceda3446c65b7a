package alloc

import (
	"math"
	"sort"

	"github.com/joshuapare/dxemem/internal/format"
)

// SizeClassConfig defines the pool size class strategy.
// Every class holds blocks of exactly one size; requests round up to the
// smallest class that fits, or to an 8-byte multiple past the largest.
type SizeClassConfig struct {
	// Name for this configuration (for stats and benchmarking)
	Name string

	// Small allocation settings (linear increments)
	SmallMin       uint64 // Smallest class size (typically 8)
	SmallMax       uint64 // Last class of the linear phase
	SmallIncrement uint64 // Increment between linear classes (8, 16, or 32)

	// Medium allocation settings (logarithmic growth)
	MediumMax    uint64  // Largest class size (typically one page)
	GrowthFactor float64 // Exponential growth factor (1.5, 2.0, etc.)
}

// Predefined configurations.
var (
	// PowerOfTwo: 8, 16, 32 ... 4096. Ten classes, one per power of two.
	ConfigPowerOfTwo = SizeClassConfig{
		Name:           "PowerOfTwo",
		SmallMin:       8,
		SmallMax:       8,
		SmallIncrement: 8,
		MediumMax:      format.PageSize,
		GrowthFactor:   2.0,
	}

	// Balanced: 8-512 step 16 (32 classes) + 512-4K log growth (~6 classes).
	ConfigBalanced = SizeClassConfig{
		Name:           "Balanced",
		SmallMin:       8,
		SmallMax:       504,
		SmallIncrement: 16,
		MediumMax:      format.PageSize,
		GrowthFactor:   1.5,
	}

	// FineGrained: 8-256 step 8 (32 classes) + 256-4K log growth (~7 classes).
	ConfigFineGrained = SizeClassConfig{
		Name:           "FineGrained",
		SmallMin:       8,
		SmallMax:       256,
		SmallIncrement: 8,
		MediumMax:      format.PageSize,
		GrowthFactor:   1.5,
	}

	// Default configuration (used if none specified).
	DefaultConfig = ConfigPowerOfTwo
)

// sizeClassTable holds the computed class sizes, ascending.
type sizeClassTable struct {
	config     SizeClassConfig
	sizes      []uint64
	numClasses int
}

// newSizeClassTable computes class sizes from config. Sizes are 8-byte
// aligned and strictly increasing.
func newSizeClassTable(config SizeClassConfig) *sizeClassTable {
	table := &sizeClassTable{
		config: config,
		sizes:  make([]uint64, 0, 48),
	}
	add := func(size uint64) {
		size = format.AlignBlock(size)
		if n := len(table.sizes); n > 0 && size <= table.sizes[n-1] {
			return
		}
		table.sizes = append(table.sizes, size)
	}

	inc := max(config.SmallIncrement, format.MinBlockAlign)

	// Phase 1: Small allocations (linear increments)
	for size := max(config.SmallMin, format.MinBlockAlign); size <= config.SmallMax; size += inc {
		add(size)
	}

	// Phase 2: Medium allocations (logarithmic growth)
	if n := len(table.sizes); n > 0 && table.sizes[n-1] < config.MediumMax {
		size := table.sizes[n-1]
		for size < config.MediumMax {
			nextSize := uint64(math.Ceil(float64(size) * config.GrowthFactor))
			if nextSize <= size {
				nextSize = size + format.MinBlockAlign // Ensure progress
			}
			nextSize = min(nextSize, config.MediumMax)
			add(nextSize)
			size = nextSize
		}
	}

	table.numClasses = len(table.sizes)
	return table
}

// classFor returns the index of the smallest class that holds size.
// Returns numClasses for sizes past the largest class.
func (t *sizeClassTable) classFor(size uint64) int {
	return sort.Search(t.numClasses, func(i int) bool { return t.sizes[i] >= size })
}

// exact returns the class whose block size is exactly size.
func (t *sizeClassTable) exact(size uint64) (int, bool) {
	c := t.classFor(size)
	if c < t.numClasses && t.sizes[c] == size {
		return c, true
	}
	return 0, false
}

// round returns the block size a request of size bytes occupies, and its
// class (numClasses when it is served from the fallback list only).
func (t *sizeClassTable) round(size uint64) (uint64, int) {
	c := t.classFor(size)
	if c < t.numClasses {
		return t.sizes[c], c
	}
	return format.AlignBlock(size), c
}

// largest returns the largest class size.
func (t *sizeClassTable) largest() uint64 {
	if t.numClasses == 0 {
		return 0
	}
	return t.sizes[t.numClasses-1]
}

// String returns a human-readable description of the size class table.
func (t *sizeClassTable) String() string {
	return t.config.Name
}

// NumClasses returns the number of size classes.
func (t *sizeClassTable) NumClasses() int {
	return t.numClasses
}
