// Package format holds the page-granularity constants and alignment helpers
// shared by the address-space tracker and the typed allocators.
package format

const (
	// PageShift is log2(PageSize).
	PageShift = 12

	// PageSize is the allocation granularity of the memory space. Every
	// memory region start and length is a multiple of it.
	PageSize = 1 << PageShift

	// PageMask selects the offset-within-page bits of an address.
	PageMask = PageSize - 1

	// MinBlockAlign is the alignment of every pool block handed out by a
	// typed allocator.
	MinBlockAlign = 8

	// MinBlockAlignMask is MinBlockAlign - 1.
	MinBlockAlignMask = MinBlockAlign - 1

	// DefaultAddressBits is the width of the memory space when the caller
	// does not supply one.
	DefaultAddressBits = 48

	// IOAddressBits is the width of the I/O port space.
	IOAddressBits = 16

	// MaxAddressBits is the widest address space the region map can model.
	MaxAddressBits = 64
)
