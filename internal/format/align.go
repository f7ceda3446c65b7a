package format

import "math/bits"

// Alignment utilities for page and block arithmetic. All helpers operate on
// uint64 so physical addresses above 4 GiB need no conversion.

// AlignUp returns n rounded up to the next multiple of align. align must be a
// power of two. The result wraps to zero if n is within align of the top of
// the address space; callers that care use AlignUpChecked.
//
// Example:
//
//	AlignUp(1, 0x1000)      = 0x1000
//	AlignUp(0x1000, 0x1000) = 0x1000
//	AlignUp(0x1001, 0x1000) = 0x2000
func AlignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// AlignUpChecked is AlignUp with overflow detection.
func AlignUpChecked(n, align uint64) (uint64, bool) {
	sum, carry := bits.Add64(n, align-1, 0)
	if carry != 0 {
		return 0, false
	}
	return sum &^ (align - 1), true
}

// AlignDown returns n rounded down to a multiple of align (a power of two).
func AlignDown(n, align uint64) uint64 {
	return n &^ (align - 1)
}

// IsAligned reports whether n is a multiple of align (a power of two).
func IsAligned(n, align uint64) bool {
	return n&(align-1) == 0
}

// IsPowerOfTwo reports whether n is a non-zero power of two.
func IsPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// IsPageAligned reports whether n is a multiple of PageSize.
func IsPageAligned(n uint64) bool {
	return n&PageMask == 0
}

// PagesFor returns the number of pages needed to hold n bytes.
//
// Example:
//
//	PagesFor(0)      = 0
//	PagesFor(1)      = 1
//	PagesFor(0x1000) = 1
//	PagesFor(0x1001) = 2
func PagesFor(n uint64) uint64 {
	return (n + PageMask) >> PageShift
}

// PagesToBytes converts a page count to a byte length.
func PagesToBytes(pages uint64) uint64 {
	return pages << PageShift
}

// AlignBlock rounds a pool request up to MinBlockAlign.
func AlignBlock(n uint64) uint64 {
	return (n + MinBlockAlignMask) &^ MinBlockAlignMask
}

// End returns base+length and whether the sum stayed within 64 bits. The end
// of a range that touches the top of the address space is reported as
// overflow, which callers treat as out of range.
func End(base, length uint64) (uint64, bool) {
	end, carry := bits.Add64(base, length, 0)
	return end, carry == 0
}

// SpaceLimit returns 2^addressBits, the exclusive upper bound of a space.
// 2^64 does not fit in a uint64, so a 64-bit space ends at the last page
// boundary and its top page is never tracked.
func SpaceLimit(addressBits uint) uint64 {
	if addressBits >= MaxAddressBits {
		return ^uint64(0) &^ PageMask
	}
	return uint64(1) << addressBits
}
